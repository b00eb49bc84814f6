package editor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/api/internal/flow"
)

func TestTransactionApplyRollback(t *testing.T) {
	f := testFlow()
	tx, err := NewTransaction(&f, map[ContainerKey][]string{StageKey("s1"): {"C", "A", "B"}})
	require.NoError(t, err)

	require.NoError(t, tx.Apply(&f))
	assert.Equal(t, []string{"C", "A", "B"}, flow.NodeIDs(f.Stages[0].Nodes))
	require.NoError(t, f.Validate())

	require.NoError(t, tx.Rollback(&f))
	assert.Equal(t, []string{"A", "B", "C"}, flow.NodeIDs(f.Stages[0].Nodes))
	require.NoError(t, f.Validate())

	assert.True(t, errors.Is(tx.Commit(), ErrTxState))
	assert.True(t, errors.Is(tx.Rollback(&f), ErrTxState))
}

func TestTransactionAcrossStages(t *testing.T) {
	f := testFlow()
	tx, err := NewTransaction(&f, map[ContainerKey][]string{
		StageKey("s1"): {"B", "C"},
		StageKey("s2"): {"D", "A", "E"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tx.Previous(StageKey("s1")))
	assert.Len(t, tx.Keys(), 2)

	require.NoError(t, tx.Apply(&f))
	assert.Equal(t, []string{"B", "C"}, flow.NodeIDs(f.Stages[0].Nodes))
	assert.Equal(t, []string{"D", "A", "E"}, flow.NodeIDs(f.Stages[1].Nodes))
	require.NoError(t, f.Validate())

	require.NoError(t, tx.Rollback(&f))
	assert.Equal(t, []string{"A", "B", "C"}, flow.NodeIDs(f.Stages[0].Nodes))
	assert.Equal(t, []string{"D", "E"}, flow.NodeIDs(f.Stages[1].Nodes))
	require.NoError(t, f.Validate())
}

func TestTransactionStageOrder(t *testing.T) {
	f := testFlow()
	tx, err := NewTransaction(&f, map[ContainerKey][]string{FlowKey(f.ID): {"s3", "s1", "s2"}})
	require.NoError(t, err)
	require.NoError(t, tx.Apply(&f))
	require.NoError(t, tx.Commit())
	assert.Equal(t, []string{"s3", "s1", "s2"}, flow.StageIDs(f.Stages))
	require.NoError(t, f.Validate())
	assert.True(t, errors.Is(tx.Apply(&f), ErrTxState))
}

func TestTransactionKeepsUnlistedItems(t *testing.T) {
	f := testFlow()
	tx, err := NewTransaction(&f, map[ContainerKey][]string{StageKey("s1"): {"C", "Z"}})
	require.NoError(t, err)
	require.NoError(t, tx.Apply(&f))
	assert.Equal(t, []string{"C", "A", "B"}, flow.NodeIDs(f.Stages[0].Nodes))
	require.NoError(t, f.Validate())
}

func TestNewTransactionUnknownContainer(t *testing.T) {
	f := testFlow()
	_, err := NewTransaction(&f, map[ContainerKey][]string{StageKey("s9"): {"A"}})
	assert.True(t, errors.Is(err, ErrStageNotFound))
	_, err = NewTransaction(&f, map[ContainerKey][]string{"column:x": {"A"}})
	assert.True(t, errors.Is(err, ErrUnknownAction))
}
