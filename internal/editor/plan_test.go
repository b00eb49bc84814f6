package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/api/internal/flow"
)

func TestMove(t *testing.T) {
	in := []string{"A", "B", "C", "D"}
	assert.Equal(t, []string{"D", "A", "B", "C"}, Move(in, 3, 0))
	assert.Equal(t, []string{"B", "C", "A", "D"}, Move(in, 0, 2))
	assert.Equal(t, in, Move(in, 1, 1))
	assert.Equal(t, in, Move(in, -1, 2))
	assert.Equal(t, in, Move(in, 0, 9))
	assert.Equal(t, []string{"A", "B", "C", "D"}, in, "input must not change")
}

func TestPlanNodeReorder(t *testing.T) {
	f := testFlow()
	nodes, err := PlanNodeReorder(f.Stages[0].Nodes, "C", "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, flow.NodeIDs(nodes))
	for i, n := range nodes {
		assert.Equal(t, i, n.Position)
	}
	assert.Equal(t, []string{"A", "B", "C"}, flow.NodeIDs(f.Stages[0].Nodes))

	_, err = PlanNodeReorder(f.Stages[0].Nodes, "C", "Z")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
}

func TestPlanStageReorder(t *testing.T) {
	f := testFlow()
	stages, err := PlanStageReorder(f.Stages, "s3", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s1", "s2"}, flow.StageIDs(stages))
	assert.Equal(t, 2, stages[2].Position)

	_, err = PlanStageReorder(f.Stages, "s3", "s9")
	assert.True(t, errors.Is(err, ErrStageNotFound))
}

func TestPlanInsert(t *testing.T) {
	f := testFlow()
	x := flow.Node{ID: "X", ContentID: "cX", Position: 99}

	nodes, err := PlanInsert(f.Stages[0].Nodes, x, "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "X", "C"}, flow.NodeIDs(nodes))
	assert.Equal(t, 2, nodes[2].Position)

	nodes, err = PlanInsert(f.Stages[2].Nodes, x, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, flow.NodeIDs(nodes))
	assert.Equal(t, 0, nodes[0].Position)

	_, err = PlanInsert(f.Stages[0].Nodes, x, "Z")
	assert.True(t, errors.Is(err, ErrAnchorNotFound))
}

func TestPlanNodeMove(t *testing.T) {
	f := testFlow()
	from, to, err := PlanNodeMove(f.Stages[0].Nodes, f.Stages[1].Nodes, "A", "E")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, flow.NodeIDs(from))
	assert.Equal(t, []string{"D", "A", "E"}, flow.NodeIDs(to))
	assert.Equal(t, 0, from[0].Position)
	assert.Equal(t, 1, to[1].Position)

	from, to, err = PlanNodeMove(f.Stages[0].Nodes, f.Stages[2].Nodes, "B", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, flow.NodeIDs(from))
	assert.Equal(t, []string{"B"}, flow.NodeIDs(to))

	_, _, err = PlanNodeMove(f.Stages[0].Nodes, f.Stages[1].Nodes, "D", "")
	assert.True(t, errors.Is(err, ErrNodeNotFound))
	_, _, err = PlanNodeMove(f.Stages[0].Nodes, f.Stages[1].Nodes, "A", "Z")
	assert.True(t, errors.Is(err, ErrAnchorNotFound))
}
