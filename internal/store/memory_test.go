package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"trove/api/internal/flow"
)

func seedMemoryFlow(t *testing.T) (*MemoryStore, string) {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	owner, err := s.EnsureUserByName(ctx, "Avery")
	if err != nil {
		t.Fatalf("EnsureUserByName() error = %v", err)
	}
	for _, id := range []string{"cA", "cB", "cC", "cD", "cX"} {
		if err := s.InsertContent(ctx, owner.ID, flow.Content{ID: id, Kind: flow.KindBook, Title: "Title " + id}); err != nil {
			t.Fatalf("InsertContent(%s) error = %v", id, err)
		}
	}
	err = s.CreateFlow(ctx, flow.Flow{
		ID:      "flw_1",
		OwnerID: owner.ID,
		Name:    "Reading list",
		Stages: []flow.Stage{
			{ID: "s1", Name: "Start"},
			{ID: "s2", Name: "Later"},
		},
	})
	if err != nil {
		t.Fatalf("CreateFlow() error = %v", err)
	}
	for _, n := range []struct{ stage, id, content string }{
		{"s1", "A", "cA"}, {"s1", "B", "cB"}, {"s1", "C", "cC"}, {"s2", "D", "cD"},
	} {
		if _, err := s.CreateNode(ctx, n.stage, flow.Node{ID: n.id, ContentID: n.content}, ""); err != nil {
			t.Fatalf("CreateNode(%s) error = %v", n.id, err)
		}
	}
	return s, "flw_1"
}

func mustFlow(t *testing.T, s *MemoryStore, flowID string) flow.Flow {
	t.Helper()
	f, err := s.GetFlow(context.Background(), flowID)
	if err != nil {
		t.Fatalf("GetFlow() error = %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("flow invariants broken: %v", err)
	}
	return f
}

func stageOrder(f flow.Flow, stageID string) []string {
	return flow.NodeIDs(f.Stage(stageID).Nodes)
}

func TestMemoryReorderNodesRequiresPermutation(t *testing.T) {
	s, flowID := seedMemoryFlow(t)
	ctx := context.Background()

	for _, ids := range [][]string{
		{"A", "B"},
		{"A", "B", "C", "D"},
		{"A", "A", "C"},
		{"A", "B", "Z"},
	} {
		if err := s.ReorderNodes(ctx, "s1", ids); !errors.Is(err, ErrOrderMismatch) {
			t.Fatalf("ReorderNodes(%v) error = %v, want ErrOrderMismatch", ids, err)
		}
	}
	if got := stageOrder(mustFlow(t, s, flowID), "s1"); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("order changed after rejected reorders: %v", got)
	}
}

func TestMemoryReorderIsIdempotent(t *testing.T) {
	s, flowID := seedMemoryFlow(t)
	ctx := context.Background()
	want := []string{"C", "A", "B"}

	for i := 0; i < 2; i++ {
		if err := s.ReorderNodes(ctx, "s1", want); err != nil {
			t.Fatalf("ReorderNodes() pass %d error = %v", i, err)
		}
		if got := stageOrder(mustFlow(t, s, flowID), "s1"); !reflect.DeepEqual(got, want) {
			t.Fatalf("pass %d order = %v, want %v", i, got, want)
		}
	}

	if err := s.ReorderStages(ctx, flowID, []string{"s2", "s1"}); err != nil {
		t.Fatalf("ReorderStages() error = %v", err)
	}
	if err := s.ReorderStages(ctx, flowID, []string{"s2", "s1"}); err != nil {
		t.Fatalf("ReorderStages() repeat error = %v", err)
	}
	if got := flow.StageIDs(mustFlow(t, s, flowID).Stages); !reflect.DeepEqual(got, []string{"s2", "s1"}) {
		t.Fatalf("stage order = %v", got)
	}
}

func TestMemoryCreateNodeRules(t *testing.T) {
	s, flowID := seedMemoryFlow(t)
	ctx := context.Background()

	if _, err := s.CreateNode(ctx, "s2", flow.Node{ID: "dup", ContentID: "cA"}, ""); !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("duplicate content error = %v", err)
	}
	if _, err := s.CreateNode(ctx, "s1", flow.Node{ID: "X", ContentID: "cX"}, "D"); !errors.Is(err, ErrAnchorNotFound) {
		t.Fatalf("foreign anchor error = %v", err)
	}
	if _, err := s.CreateNode(ctx, "s1", flow.Node{ID: "X", ContentID: "missing"}, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown content error = %v", err)
	}

	node, err := s.CreateNode(ctx, "s1", flow.Node{ID: "X", ContentID: "cX"}, "C")
	if err != nil {
		t.Fatalf("CreateNode() error = %v", err)
	}
	if node.Position != 2 || node.Content.Title != "Title cX" {
		t.Fatalf("unexpected node: %+v", node)
	}
	if got := stageOrder(mustFlow(t, s, flowID), "s1"); !reflect.DeepEqual(got, []string{"A", "B", "X", "C"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestMemoryMoveNodeAcrossStages(t *testing.T) {
	s, flowID := seedMemoryFlow(t)
	ctx := context.Background()

	if err := s.MoveNode(ctx, "B", "s2", []string{"D"}); !errors.Is(err, ErrOrderMismatch) {
		t.Fatalf("MoveNode() without moved id error = %v", err)
	}
	if err := s.MoveNode(ctx, "B", "s2", []string{"B", "D"}); err != nil {
		t.Fatalf("MoveNode() error = %v", err)
	}
	f := mustFlow(t, s, flowID)
	if got := stageOrder(f, "s1"); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("source order = %v", got)
	}
	if got := stageOrder(f, "s2"); !reflect.DeepEqual(got, []string{"B", "D"}) {
		t.Fatalf("target order = %v", got)
	}

	if err := s.MoveNode(ctx, "B", "s2", []string{"D", "B"}); err != nil {
		t.Fatalf("MoveNode() within stage error = %v", err)
	}
	if got := stageOrder(mustFlow(t, s, flowID), "s2"); !reflect.DeepEqual(got, []string{"D", "B"}) {
		t.Fatalf("same-stage move order = %v", got)
	}
}

func TestMemoryDeletesKeepPositionsDense(t *testing.T) {
	s, flowID := seedMemoryFlow(t)
	ctx := context.Background()

	if err := s.RemoveNode(ctx, "B"); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if _, err := s.AddStage(ctx, flowID, flow.Stage{ID: "s3", Name: "Someday"}); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}
	if err := s.DeleteStage(ctx, "s1"); err != nil {
		t.Fatalf("DeleteStage() error = %v", err)
	}
	f := mustFlow(t, s, flowID)
	if got := flow.StageIDs(f.Stages); !reflect.DeepEqual(got, []string{"s2", "s3"}) {
		t.Fatalf("stages = %v", got)
	}
	if f.HasContent("cA") {
		t.Fatal("deleting a stage must drop its nodes")
	}

	counts, err := s.UsageCounts(ctx, []string{"cA", "cD"})
	if err != nil {
		t.Fatalf("UsageCounts() error = %v", err)
	}
	if counts["cA"] != 0 || counts["cD"] != 1 {
		t.Fatalf("usage counts = %v", counts)
	}
}

func TestMemoryRefreshSessions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	user, _ := s.EnsureUserByName(ctx, "Avery")

	if err := s.SaveRefreshSession(ctx, "hash", user.ID, s.now().Add(-1)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if _, err := s.LookupRefreshSession(ctx, "hash"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session lookup error = %v", err)
	}
}
