package editor

import "trove/api/internal/flow"

type ActionKind string

const (
	KindInsertAtEnd   ActionKind = "insert-at-end"
	KindInsertBefore  ActionKind = "insert-before"
	KindReorderNodes  ActionKind = "reorder-nodes"
	KindMoveNode      ActionKind = "move-node"
	KindReorderStages ActionKind = "reorder-stages"
	KindIgnore        ActionKind = "ignore"
)

// Action is a classified drop. The set of implementations is closed; every
// switch over it ends in a default that rejects unknown variants.
type Action interface {
	Kind() ActionKind
	action()
}

// InsertAtEnd appends a new node for ContentID to the stage.
type InsertAtEnd struct {
	StageID   string
	ContentID string
}

// InsertBefore creates a node for ContentID immediately before AnchorNodeID.
type InsertBefore struct {
	StageID      string
	AnchorNodeID string
	ContentID    string
}

// ReorderNodes moves NodeID to TargetNodeID's index within one stage.
type ReorderNodes struct {
	StageID      string
	NodeID       string
	TargetNodeID string
}

// MoveNode removes NodeID from one stage and inserts it into another, before
// BeforeNodeID or at the end when BeforeNodeID is empty.
type MoveNode struct {
	FromStageID  string
	ToStageID    string
	NodeID       string
	BeforeNodeID string
}

// ReorderStages moves StageID to TargetStageID's index in the flow.
type ReorderStages struct {
	StageID       string
	TargetStageID string
}

type Ignore struct {
	Reason string
}

func (InsertAtEnd) Kind() ActionKind   { return KindInsertAtEnd }
func (InsertBefore) Kind() ActionKind  { return KindInsertBefore }
func (ReorderNodes) Kind() ActionKind  { return KindReorderNodes }
func (MoveNode) Kind() ActionKind      { return KindMoveNode }
func (ReorderStages) Kind() ActionKind { return KindReorderStages }
func (Ignore) Kind() ActionKind        { return KindIgnore }

func (InsertAtEnd) action()   {}
func (InsertBefore) action()  {}
func (ReorderNodes) action()  {}
func (MoveNode) action()      {}
func (ReorderStages) action() {}
func (Ignore) action()        {}

// Resolve classifies a drag outcome against the current flow. Sources are
// tried in the order external item, node, stage and the first structural
// match wins. Stage ownership is always read from f, not from the zone.
func Resolve(f *flow.Flow, o Outcome) Action {
	if o.Target == nil {
		return Ignore{Reason: "dropped outside any zone"}
	}
	if o.Target.Is(o.Source) {
		return Ignore{Reason: "dropped onto itself"}
	}
	switch o.Source.Kind {
	case SourceExternal:
		return resolveExternal(f, o.Source, *o.Target)
	case SourceNode:
		return resolveNode(f, o.Source, *o.Target)
	case SourceStage:
		return resolveStage(f, o.Source, *o.Target)
	default:
		return Ignore{Reason: "unknown source kind"}
	}
}

func resolveExternal(f *flow.Flow, src Source, target Target) Action {
	if f.HasContent(src.ID) {
		return Ignore{Reason: "content already in flow"}
	}
	switch target.Kind {
	case ZoneStageEnd:
		if f.Stage(target.ID) == nil {
			return Ignore{Reason: "unknown stage"}
		}
		return InsertAtEnd{StageID: target.ID, ContentID: src.ID}
	case ZoneNode:
		si, _, ok := f.LocateNode(target.ID)
		if !ok {
			return Ignore{Reason: "unknown anchor node"}
		}
		return InsertBefore{StageID: f.Stages[si].ID, AnchorNodeID: target.ID, ContentID: src.ID}
	default:
		return Ignore{Reason: "external item needs a node or stage-end zone"}
	}
}

func resolveNode(f *flow.Flow, src Source, target Target) Action {
	fromIdx, nodeIdx, ok := f.LocateNode(src.ID)
	if !ok {
		return Ignore{Reason: "unknown node"}
	}
	from := f.Stages[fromIdx]

	switch target.Kind {
	case ZoneNode:
		toIdx, _, ok := f.LocateNode(target.ID)
		if !ok {
			return Ignore{Reason: "unknown target node"}
		}
		if toIdx == fromIdx {
			return ReorderNodes{StageID: from.ID, NodeID: src.ID, TargetNodeID: target.ID}
		}
		return MoveNode{FromStageID: from.ID, ToStageID: f.Stages[toIdx].ID, NodeID: src.ID, BeforeNodeID: target.ID}
	case ZoneStageEnd:
		toIdx := f.StageIndex(target.ID)
		if toIdx < 0 {
			return Ignore{Reason: "unknown stage"}
		}
		if toIdx != fromIdx {
			return MoveNode{FromStageID: from.ID, ToStageID: target.ID, NodeID: src.ID}
		}
		last := len(from.Nodes) - 1
		if nodeIdx == last {
			return Ignore{Reason: "node already last"}
		}
		return ReorderNodes{StageID: from.ID, NodeID: src.ID, TargetNodeID: from.Nodes[last].ID}
	default:
		return Ignore{Reason: "node needs a node or stage-end zone"}
	}
}

func resolveStage(f *flow.Flow, src Source, target Target) Action {
	if target.Kind != ZoneStage {
		return Ignore{Reason: "stage needs a stage zone"}
	}
	if f.Stage(src.ID) == nil || f.Stage(target.ID) == nil {
		return Ignore{Reason: "unknown stage"}
	}
	return ReorderStages{StageID: src.ID, TargetStageID: target.ID}
}
