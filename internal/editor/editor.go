// Package editor is the headless flow editor: it turns pointer drags into
// classified actions and applies them to an in-memory flow, optimistically
// where the result is known locally and after the server answers where it is
// not.
package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"trove/api/internal/flow"
)

type ResultKind string

const (
	ResultCommitted    ResultKind = "committed"
	ResultInserted     ResultKind = "inserted"
	ResultIgnored      ResultKind = "ignored"
	ResultBusy         ResultKind = "busy"
	ResultRolledBack   ResultKind = "rolled-back"
	ResultFailed       ResultKind = "failed"
	ResultPlanRejected ResultKind = "plan-rejected"
)

// Result reports what happened to one dispatched action. Node is set for
// inserts.
type Result struct {
	Kind   ResultKind
	Action Action
	Node   *flow.Node
	Err    error
}

type Option func(*Editor)

func WithNotifier(n Notifier) Option {
	return func(e *Editor) {
		if n != nil {
			e.notifier = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Editor) { e.logger = logger }
}

// WithUsageCounter enables usage annotations on AvailableItems.
func WithUsageCounter(u UsageCounter) Option {
	return func(e *Editor) { e.usage = u }
}

// Editor owns one flow. All state changes happen under mu; remote calls are
// made without holding it so edits to other containers can proceed.
type Editor struct {
	mu       sync.Mutex
	flow     flow.Flow
	session  DragSession
	inflight map[ContainerKey]ActionKind
	pending  map[string]struct{}

	remote   Remote
	notifier Notifier
	usage    UsageCounter
	logger   zerolog.Logger
	refresh  singleflight.Group
}

func New(f flow.Flow, remote Remote, opts ...Option) *Editor {
	e := &Editor{
		flow:     normalize(f),
		inflight: make(map[ContainerKey]ActionKind),
		pending:  make(map[string]struct{}),
		remote:   remote,
		notifier: nopNotifier{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open loads flowID from the remote and returns an editor for it.
func Open(ctx context.Context, remote Remote, flowID string, opts ...Option) (*Editor, error) {
	f, err := remote.GetFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", flowID, err)
	}
	return New(f, remote, opts...), nil
}

// Flow returns a snapshot of the current state.
func (e *Editor) Flow() flow.Flow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.Clone()
}

func (e *Editor) SessionState() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.State()
}

func (e *Editor) BeginDrag(src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Begin(src)
}

func (e *Editor) Hover(target *Target) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Hover(target)
}

func (e *Editor) CancelDrag() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Cancel()
}

// Release completes the current drag and dispatches the resolved action.
// The session is back in Idle before the remote call starts.
func (e *Editor) Release(ctx context.Context) Result {
	e.mu.Lock()
	outcome, ok := e.session.Release()
	if !ok {
		e.mu.Unlock()
		return Result{Kind: ResultIgnored, Action: Ignore{Reason: "no drop target"}}
	}
	action := Resolve(&e.flow, outcome)
	e.session.Settle()
	e.mu.Unlock()
	return e.Dispatch(ctx, action)
}

// Dispatch executes an already classified action.
func (e *Editor) Dispatch(ctx context.Context, action Action) Result {
	switch a := action.(type) {
	case Ignore:
		e.logger.Debug().Str("reason", a.Reason).Msg("drop ignored")
		return Result{Kind: ResultIgnored, Action: a}
	case InsertAtEnd:
		return e.insert(ctx, a, a.StageID, a.ContentID, "")
	case InsertBefore:
		return e.insert(ctx, a, a.StageID, a.ContentID, a.AnchorNodeID)
	case ReorderNodes:
		return e.optimistic(ctx, a, func(f *flow.Flow) (map[ContainerKey][]string, error) {
			stage := f.Stage(a.StageID)
			if stage == nil {
				return nil, ErrStageNotFound
			}
			nodes, err := PlanNodeReorder(stage.Nodes, a.NodeID, a.TargetNodeID)
			if err != nil {
				return nil, err
			}
			return map[ContainerKey][]string{StageKey(a.StageID): flow.NodeIDs(nodes)}, nil
		}, func(ctx context.Context, planned map[ContainerKey][]string) error {
			return e.remote.ReorderNodes(ctx, a.StageID, planned[StageKey(a.StageID)])
		})
	case MoveNode:
		return e.optimistic(ctx, a, func(f *flow.Flow) (map[ContainerKey][]string, error) {
			from, to := f.Stage(a.FromStageID), f.Stage(a.ToStageID)
			if from == nil || to == nil {
				return nil, ErrStageNotFound
			}
			newFrom, newTo, err := PlanNodeMove(from.Nodes, to.Nodes, a.NodeID, a.BeforeNodeID)
			if err != nil {
				return nil, err
			}
			return map[ContainerKey][]string{
				StageKey(a.FromStageID): flow.NodeIDs(newFrom),
				StageKey(a.ToStageID):   flow.NodeIDs(newTo),
			}, nil
		}, func(ctx context.Context, planned map[ContainerKey][]string) error {
			return e.remote.MoveNode(ctx, a.NodeID, a.ToStageID, planned[StageKey(a.ToStageID)])
		})
	case ReorderStages:
		return e.optimistic(ctx, a, func(f *flow.Flow) (map[ContainerKey][]string, error) {
			stages, err := PlanStageReorder(f.Stages, a.StageID, a.TargetStageID)
			if err != nil {
				return nil, err
			}
			return map[ContainerKey][]string{FlowKey(f.ID): flow.StageIDs(stages)}, nil
		}, func(ctx context.Context, planned map[ContainerKey][]string) error {
			flowID := e.flowID()
			return e.remote.ReorderStages(ctx, flowID, planned[FlowKey(flowID)])
		})
	default:
		return Result{Kind: ResultPlanRejected, Action: action, Err: ErrUnknownAction}
	}
}

// Busy reports whether key has an operation in flight.
func (e *Editor) Busy(key ContainerKey) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inflight[key]
	return ok
}

// InFlight is the number of containers with an operation in flight.
func (e *Editor) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

type planFunc func(f *flow.Flow) (map[ContainerKey][]string, error)
type callFunc func(ctx context.Context, planned map[ContainerKey][]string) error

func (e *Editor) optimistic(ctx context.Context, action Action, plan planFunc, call callFunc) Result {
	e.mu.Lock()
	planned, err := plan(&e.flow)
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn().Err(err).Str("action", string(action.Kind())).Msg("plan rejected")
		return Result{Kind: ResultPlanRejected, Action: action, Err: err}
	}
	keys := keysOf(planned)
	if e.busyLocked(keys) {
		e.mu.Unlock()
		return Result{Kind: ResultBusy, Action: action, Err: ErrContainerBusy}
	}
	tx, err := NewTransaction(&e.flow, planned)
	if err == nil {
		err = tx.Apply(&e.flow)
	}
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn().Err(err).Str("action", string(action.Kind())).Msg("plan rejected")
		return Result{Kind: ResultPlanRejected, Action: action, Err: err}
	}
	e.markLocked(action.Kind(), keys)
	e.mu.Unlock()

	callErr := call(ctx, planned)

	e.mu.Lock()
	e.releaseLocked(keys)
	if callErr == nil {
		_ = tx.Commit()
		e.mu.Unlock()
		return Result{Kind: ResultCommitted, Action: action}
	}
	if err := tx.Rollback(&e.flow); err != nil {
		e.logger.Error().Err(err).Msg("rollback failed")
	}
	e.mu.Unlock()

	e.logger.Error().Err(callErr).Str("action", string(action.Kind())).Msg("remote rejected change, rolled back")
	e.notifier.Notify(Notice{
		Level:   NoticeError,
		Message: "Could not save the new order. It has been restored.",
		Action:  action.Kind(),
		Err:     callErr,
	})
	return Result{Kind: ResultRolledBack, Action: action, Err: callErr}
}

func (e *Editor) insert(ctx context.Context, action Action, stageID, contentID, beforeNodeID string) Result {
	key := StageKey(stageID)

	e.mu.Lock()
	stage := e.flow.Stage(stageID)
	if stage == nil {
		e.mu.Unlock()
		e.logger.Warn().Str("stage", stageID).Msg("insert into unknown stage")
		return Result{Kind: ResultPlanRejected, Action: action, Err: ErrStageNotFound}
	}
	if _, err := InsertIndex(stage.Nodes, beforeNodeID); err != nil {
		e.mu.Unlock()
		e.logger.Warn().Err(err).Str("anchor", beforeNodeID).Msg("insert anchor missing")
		return Result{Kind: ResultPlanRejected, Action: action, Err: err}
	}
	if _, pending := e.pending[contentID]; pending || e.flow.HasContent(contentID) {
		e.mu.Unlock()
		return Result{Kind: ResultIgnored, Action: action}
	}
	if e.busyLocked([]ContainerKey{key}) {
		e.mu.Unlock()
		return Result{Kind: ResultBusy, Action: action, Err: ErrContainerBusy}
	}
	e.markLocked(action.Kind(), []ContainerKey{key})
	e.pending[contentID] = struct{}{}
	flowID := e.flow.ID
	e.mu.Unlock()

	node, err := e.remote.CreateNode(ctx, flowID, stageID, contentID, beforeNodeID)

	e.mu.Lock()
	e.releaseLocked([]ContainerKey{key})
	delete(e.pending, contentID)
	if err != nil {
		e.mu.Unlock()
		e.logger.Error().Err(err).Str("content", contentID).Msg("create node failed")
		e.notifier.Notify(Notice{
			Level:   NoticeError,
			Message: "Could not add the item to the stage.",
			Action:  action.Kind(),
			Err:     err,
		})
		return Result{Kind: ResultFailed, Action: action, Err: err}
	}
	defer e.mu.Unlock()

	stage = e.flow.Stage(stageID)
	if stage == nil {
		e.logger.Warn().Str("stage", stageID).Msg("stage vanished before insert was merged")
		return Result{Kind: ResultInserted, Action: action, Node: &node}
	}
	nodes, err := PlanInsert(stage.Nodes, node, beforeNodeID)
	if err != nil {
		e.logger.Warn().Err(err).Int("position", node.Position).Msg("anchor vanished, using server position")
		nodes = insertAt(stage.Nodes, node, node.Position)
		flow.RenumberNodes(nodes)
	}
	stage.Nodes = nodes
	merged := nodes[flow.NodeIndex(nodes, node.ID)]
	return Result{Kind: ResultInserted, Action: action, Node: &merged}
}

// AddStage appends a new stage.
func (e *Editor) AddStage(ctx context.Context, name string) (flow.Stage, error) {
	var created flow.Stage
	err := e.edit(ctx, "add stage", func(f *flow.Flow) ([]ContainerKey, error) {
		return []ContainerKey{FlowKey(f.ID)}, nil
	}, func(ctx context.Context, flowID string) (func(*flow.Flow), error) {
		stage, err := e.remote.AddStage(ctx, flowID, name)
		if err != nil {
			return nil, err
		}
		if stage.Nodes == nil {
			stage.Nodes = []flow.Node{}
		}
		created = stage
		return func(f *flow.Flow) {
			f.Stages = append(f.Stages, stage)
			flow.RenumberStages(f.Stages)
			created.Position = len(f.Stages) - 1
		}, nil
	})
	return created, err
}

func (e *Editor) RenameStage(ctx context.Context, stageID, name string) error {
	return e.edit(ctx, "rename stage", func(f *flow.Flow) ([]ContainerKey, error) {
		if f.Stage(stageID) == nil {
			return nil, ErrStageNotFound
		}
		return []ContainerKey{StageKey(stageID)}, nil
	}, func(ctx context.Context, _ string) (func(*flow.Flow), error) {
		stage, err := e.remote.RenameStage(ctx, stageID, name)
		if err != nil {
			return nil, err
		}
		return func(f *flow.Flow) {
			if s := f.Stage(stageID); s != nil {
				s.Name = stage.Name
			}
		}, nil
	})
}

// DeleteStage removes a stage and every node in it.
func (e *Editor) DeleteStage(ctx context.Context, stageID string) error {
	return e.edit(ctx, "delete stage", func(f *flow.Flow) ([]ContainerKey, error) {
		if f.Stage(stageID) == nil {
			return nil, ErrStageNotFound
		}
		return []ContainerKey{FlowKey(f.ID), StageKey(stageID)}, nil
	}, func(ctx context.Context, _ string) (func(*flow.Flow), error) {
		if err := e.remote.DeleteStage(ctx, stageID); err != nil {
			return nil, err
		}
		return func(f *flow.Flow) {
			if idx := f.StageIndex(stageID); idx >= 0 {
				f.Stages = slices.Delete(f.Stages, idx, idx+1)
				flow.RenumberStages(f.Stages)
			}
		}, nil
	})
}

func (e *Editor) RemoveNode(ctx context.Context, nodeID string) error {
	return e.edit(ctx, "remove node", func(f *flow.Flow) ([]ContainerKey, error) {
		si, _, ok := f.LocateNode(nodeID)
		if !ok {
			return nil, ErrNodeNotFound
		}
		return []ContainerKey{StageKey(f.Stages[si].ID)}, nil
	}, func(ctx context.Context, _ string) (func(*flow.Flow), error) {
		if err := e.remote.RemoveNode(ctx, nodeID); err != nil {
			return nil, err
		}
		return func(f *flow.Flow) {
			if si, ni, ok := f.LocateNode(nodeID); ok {
				stage := &f.Stages[si]
				stage.Nodes = slices.Delete(stage.Nodes, ni, ni+1)
				flow.RenumberNodes(stage.Nodes)
			}
		}, nil
	})
}

// UpdateNode replaces a node's description.
func (e *Editor) UpdateNode(ctx context.Context, nodeID, description string) error {
	return e.edit(ctx, "update node", func(f *flow.Flow) ([]ContainerKey, error) {
		si, _, ok := f.LocateNode(nodeID)
		if !ok {
			return nil, ErrNodeNotFound
		}
		return []ContainerKey{StageKey(f.Stages[si].ID)}, nil
	}, func(ctx context.Context, _ string) (func(*flow.Flow), error) {
		node, err := e.remote.UpdateNode(ctx, nodeID, description)
		if err != nil {
			return nil, err
		}
		return func(f *flow.Flow) {
			if si, ni, ok := f.LocateNode(nodeID); ok {
				f.Stages[si].Nodes[ni].Description = node.Description
			}
		}, nil
	})
}

type keysFunc func(f *flow.Flow) ([]ContainerKey, error)
type remoteEdit func(ctx context.Context, flowID string) (func(*flow.Flow), error)

// edit runs a non-drag change: claim the containers, call the remote, then
// merge the server's answer into local state.
func (e *Editor) edit(ctx context.Context, op string, keys keysFunc, call remoteEdit) error {
	e.mu.Lock()
	claimed, err := keys(&e.flow)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.busyLocked(claimed) {
		e.mu.Unlock()
		return ErrContainerBusy
	}
	e.markLocked(ActionKind(op), claimed)
	flowID := e.flow.ID
	e.mu.Unlock()

	merge, err := call(ctx, flowID)

	e.mu.Lock()
	e.releaseLocked(claimed)
	if err == nil {
		merge(&e.flow)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error().Err(err).Str("op", op).Msg("edit failed")
		e.notifier.Notify(Notice{Level: NoticeError, Message: "Could not " + op + ".", Err: err})
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Refresh reloads the flow from the remote. Concurrent calls share one
// request. It refuses to overwrite local state while anything is in flight.
func (e *Editor) Refresh(ctx context.Context) error {
	if e.InFlight() > 0 {
		return ErrContainerBusy
	}
	flowID := e.flowID()
	v, err, _ := e.refresh.Do(flowID, func() (any, error) {
		return e.remote.GetFlow(ctx, flowID)
	})
	if err != nil {
		return fmt.Errorf("refresh flow %s: %w", flowID, err)
	}
	fresh, ok := v.(flow.Flow)
	if !ok {
		return errors.New("refresh: unexpected result type")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inflight) > 0 {
		return ErrContainerBusy
	}
	e.flow = normalize(fresh)
	return nil
}

func (e *Editor) flowID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.ID
}

func (e *Editor) busyLocked(keys []ContainerKey) bool {
	for _, key := range keys {
		if _, ok := e.inflight[key]; ok {
			return true
		}
	}
	return false
}

func (e *Editor) markLocked(kind ActionKind, keys []ContainerKey) {
	for _, key := range keys {
		e.inflight[key] = kind
	}
}

func (e *Editor) releaseLocked(keys []ContainerKey) {
	for _, key := range keys {
		delete(e.inflight, key)
	}
}

func keysOf(m map[ContainerKey][]string) []ContainerKey {
	keys := make([]ContainerKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}

// normalize sorts by stored position and renumbers, so a flow loaded from
// anywhere starts out dense.
func normalize(f flow.Flow) flow.Flow {
	out := f.Clone()
	slices.SortStableFunc(out.Stages, func(a, b flow.Stage) int { return a.Position - b.Position })
	for i := range out.Stages {
		slices.SortStableFunc(out.Stages[i].Nodes, func(a, b flow.Node) int { return a.Position - b.Position })
	}
	out.Renumber()
	return out
}
