package editor

import (
	"fmt"
	"strings"

	"trove/api/internal/flow"
)

// ContainerKey names an ordered collection: a flow's stage list or a stage's
// node list.
type ContainerKey string

func FlowKey(flowID string) ContainerKey   { return ContainerKey("flow:" + flowID) }
func StageKey(stageID string) ContainerKey { return ContainerKey("stage:" + stageID) }

func (k ContainerKey) split() (kind, id string) {
	kind, id, _ = strings.Cut(string(k), ":")
	return kind, id
}

type txState int

const (
	txOpen txState = iota
	txApplied
	txCommitted
	txRolledBack
)

// Transaction is an optimistic change to one or more containers. It keeps the
// ordered ids each container held before the change so Rollback can restore
// exactly that order.
type Transaction struct {
	state    txState
	previous map[ContainerKey][]string
	planned  map[ContainerKey][]string
}

// NewTransaction snapshots the current order of every container in planned.
func NewTransaction(f *flow.Flow, planned map[ContainerKey][]string) (*Transaction, error) {
	tx := &Transaction{
		previous: make(map[ContainerKey][]string, len(planned)),
		planned:  make(map[ContainerKey][]string, len(planned)),
	}
	for key, ids := range planned {
		current, err := containerIDs(f, key)
		if err != nil {
			return nil, err
		}
		tx.previous[key] = current
		tx.planned[key] = append([]string(nil), ids...)
	}
	return tx, nil
}

// Keys lists the containers the transaction touches.
func (tx *Transaction) Keys() []ContainerKey {
	keys := make([]ContainerKey, 0, len(tx.planned))
	for key := range tx.planned {
		keys = append(keys, key)
	}
	return keys
}

// Previous returns the order a container had before Apply.
func (tx *Transaction) Previous(key ContainerKey) []string {
	return append([]string(nil), tx.previous[key]...)
}

func (tx *Transaction) Apply(f *flow.Flow) error {
	if tx.state != txOpen {
		return fmt.Errorf("%w: apply", ErrTxState)
	}
	arrange(f, tx.planned)
	tx.state = txApplied
	return nil
}

// Commit keeps the applied order.
func (tx *Transaction) Commit() error {
	if tx.state != txApplied {
		return fmt.Errorf("%w: commit", ErrTxState)
	}
	tx.state = txCommitted
	return nil
}

// Rollback restores the snapshot taken by NewTransaction.
func (tx *Transaction) Rollback(f *flow.Flow) error {
	if tx.state != txApplied {
		return fmt.Errorf("%w: rollback", ErrTxState)
	}
	arrange(f, tx.previous)
	tx.state = txRolledBack
	return nil
}

func containerIDs(f *flow.Flow, key ContainerKey) ([]string, error) {
	kind, id := key.split()
	switch kind {
	case "flow":
		if id != f.ID {
			return nil, fmt.Errorf("flow %s: %w", id, ErrStageNotFound)
		}
		return flow.StageIDs(f.Stages), nil
	case "stage":
		stage := f.Stage(id)
		if stage == nil {
			return nil, fmt.Errorf("stage %s: %w", id, ErrStageNotFound)
		}
		return flow.NodeIDs(stage.Nodes), nil
	default:
		return nil, fmt.Errorf("container %q: %w", key, ErrUnknownAction)
	}
}

// arrange rebuilds the named containers in the given id order. Nodes are
// pooled across every stage container in orders, so an id may move between
// stages. Ids that are no longer present are skipped; items present but not
// listed stay in their current container after the listed ones.
func arrange(f *flow.Flow, orders map[ContainerKey][]string) {
	type pooled struct {
		node  flow.Node
		stage string
	}
	pool := make(map[string]pooled)
	var stageKeys []string
	for key := range orders {
		kind, id := key.split()
		if kind != "stage" {
			continue
		}
		stage := f.Stage(id)
		if stage == nil {
			continue
		}
		stageKeys = append(stageKeys, id)
		for _, node := range stage.Nodes {
			pool[node.ID] = pooled{node: node, stage: id}
		}
	}

	rebuilt := make(map[string][]flow.Node, len(stageKeys))
	for _, stageID := range stageKeys {
		ids := orders[StageKey(stageID)]
		nodes := make([]flow.Node, 0, len(ids))
		for _, nodeID := range ids {
			if p, ok := pool[nodeID]; ok {
				nodes = append(nodes, p.node)
				delete(pool, nodeID)
			}
		}
		rebuilt[stageID] = nodes
	}
	// Leftovers keep their relative order within their original stage.
	for _, stageID := range stageKeys {
		for _, node := range f.Stage(stageID).Nodes {
			if p, ok := pool[node.ID]; ok && p.stage == stageID {
				rebuilt[stageID] = append(rebuilt[stageID], p.node)
			}
		}
	}
	for stageID, nodes := range rebuilt {
		stage := f.Stage(stageID)
		stage.Nodes = nodes
		flow.RenumberNodes(stage.Nodes)
	}

	if ids, ok := orders[FlowKey(f.ID)]; ok {
		byID := make(map[string]flow.Stage, len(f.Stages))
		for _, stage := range f.Stages {
			byID[stage.ID] = stage
		}
		stages := make([]flow.Stage, 0, len(f.Stages))
		for _, stageID := range ids {
			if stage, ok := byID[stageID]; ok {
				stages = append(stages, stage)
				delete(byID, stageID)
			}
		}
		for _, stage := range f.Stages {
			if _, ok := byID[stage.ID]; ok {
				stages = append(stages, stage)
			}
		}
		f.Stages = stages
		flow.RenumberStages(f.Stages)
	}
}
