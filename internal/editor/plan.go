package editor

import "trove/api/internal/flow"

// Move returns a copy of items with the element at from relocated to to,
// shifting everything in between by one. Out-of-range indexes return an
// unchanged copy.
func Move[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)
	if from == to || from < 0 || to < 0 || from >= len(out) || to >= len(out) {
		return out
	}
	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}

// PlanNodeReorder moves nodeID to targetNodeID's index.
func PlanNodeReorder(nodes []flow.Node, nodeID, targetNodeID string) ([]flow.Node, error) {
	from := flow.NodeIndex(nodes, nodeID)
	to := flow.NodeIndex(nodes, targetNodeID)
	if from < 0 || to < 0 {
		return nil, ErrNodeNotFound
	}
	out := Move(nodes, from, to)
	flow.RenumberNodes(out)
	return out, nil
}

// PlanStageReorder moves stageID to targetStageID's index.
func PlanStageReorder(stages []flow.Stage, stageID, targetStageID string) ([]flow.Stage, error) {
	from, to := -1, -1
	for i := range stages {
		switch stages[i].ID {
		case stageID:
			from = i
		case targetStageID:
			to = i
		}
	}
	if from < 0 || to < 0 {
		return nil, ErrStageNotFound
	}
	out := Move(stages, from, to)
	flow.RenumberStages(out)
	return out, nil
}

// InsertIndex is where a node inserted before beforeNodeID lands; an empty
// anchor means the end of the list.
func InsertIndex(nodes []flow.Node, beforeNodeID string) (int, error) {
	if beforeNodeID == "" {
		return len(nodes), nil
	}
	idx := flow.NodeIndex(nodes, beforeNodeID)
	if idx < 0 {
		return 0, ErrAnchorNotFound
	}
	return idx, nil
}

// PlanInsert splices node into nodes before beforeNodeID.
func PlanInsert(nodes []flow.Node, node flow.Node, beforeNodeID string) ([]flow.Node, error) {
	idx, err := InsertIndex(nodes, beforeNodeID)
	if err != nil {
		return nil, err
	}
	out := insertAt(nodes, node, idx)
	flow.RenumberNodes(out)
	return out, nil
}

// PlanNodeMove removes nodeID from one stage's list and inserts it into
// another's before beforeNodeID.
func PlanNodeMove(from, to []flow.Node, nodeID, beforeNodeID string) ([]flow.Node, []flow.Node, error) {
	idx := flow.NodeIndex(from, nodeID)
	if idx < 0 {
		return nil, nil, ErrNodeNotFound
	}
	at, err := InsertIndex(to, beforeNodeID)
	if err != nil {
		return nil, nil, err
	}
	moved := from[idx]

	newFrom := make([]flow.Node, 0, len(from)-1)
	newFrom = append(newFrom, from[:idx]...)
	newFrom = append(newFrom, from[idx+1:]...)
	newTo := insertAt(to, moved, at)

	flow.RenumberNodes(newFrom)
	flow.RenumberNodes(newTo)
	return newFrom, newTo, nil
}

func insertAt(nodes []flow.Node, node flow.Node, idx int) []flow.Node {
	if idx < 0 {
		idx = 0
	}
	if idx > len(nodes) {
		idx = len(nodes)
	}
	out := make([]flow.Node, 0, len(nodes)+1)
	out = append(out, nodes[:idx]...)
	out = append(out, node)
	out = append(out, nodes[idx:]...)
	return out
}
