package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFlow() Flow {
	return Flow{
		ID: "flw_1",
		Stages: []Stage{
			{ID: "stg_a", Name: "Intro", Position: 0, Nodes: []Node{
				{ID: "nd_1", ContentID: "cnt_1", Position: 0},
				{ID: "nd_2", ContentID: "cnt_2", Position: 1},
			}},
			{ID: "stg_b", Name: "Deep dive", Position: 1},
		},
	}
}

func TestValidateAcceptsDenseFlow(t *testing.T) {
	f := sampleFlow()
	require.NoError(t, f.Validate())

	empty := Flow{ID: "flw_empty"}
	require.NoError(t, empty.Validate())
}

func TestValidateRejectsGaps(t *testing.T) {
	f := sampleFlow()
	f.Stages[0].Nodes[1].Position = 2
	err := f.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGappedOrdinals))

	f = sampleFlow()
	f.Stages[1].Position = 0
	assert.True(t, errors.Is(f.Validate(), ErrGappedOrdinals))
}

func TestValidateRejectsDuplicateContent(t *testing.T) {
	f := sampleFlow()
	f.Stages[1].Nodes = []Node{{ID: "nd_3", ContentID: "cnt_1", Position: 0}}
	assert.True(t, errors.Is(f.Validate(), ErrDuplicateContent))
}

func TestRenumberRestoresDenseOrdinals(t *testing.T) {
	f := sampleFlow()
	f.Stages[0].Nodes[0].Position = 7
	f.Stages[1].Position = 9
	f.Renumber()
	require.NoError(t, f.Validate())
	assert.Equal(t, 1, f.Stages[1].Position)
}

func TestCloneDoesNotShareNodes(t *testing.T) {
	f := sampleFlow()
	c := f.Clone()
	c.Stages[0].Nodes[0].Description = "changed"
	c.Stages[0].Name = "Other"
	assert.Empty(t, f.Stages[0].Nodes[0].Description)
	assert.Equal(t, "Intro", f.Stages[0].Name)
}

func TestLocateNodeAndContent(t *testing.T) {
	f := sampleFlow()
	si, ni, ok := f.LocateNode("nd_2")
	require.True(t, ok)
	assert.Equal(t, 0, si)
	assert.Equal(t, 1, ni)

	_, _, ok = f.LocateNode("missing")
	assert.False(t, ok)

	assert.True(t, f.HasContent("cnt_2"))
	assert.False(t, f.HasContent("cnt_9"))
	assert.Len(t, f.ContentIDs(), 2)
	assert.Equal(t, []string{"stg_a", "stg_b"}, StageIDs(f.Stages))
	assert.Equal(t, []string{"nd_1", "nd_2"}, NodeIDs(f.Stages[0].Nodes))
}

func TestNormalizeVisibility(t *testing.T) {
	assert.Equal(t, VisibilityPublic, NormalizeVisibility("public"))
	assert.Equal(t, VisibilityPrivate, NormalizeVisibility("PUBLIC"))
	assert.Equal(t, VisibilityPrivate, NormalizeVisibility(""))
}
