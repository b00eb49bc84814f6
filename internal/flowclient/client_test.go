package flowclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trove/api/internal/app"
	"trove/api/internal/config"
	"trove/api/internal/counts"
	"trove/api/internal/editor"
	"trove/api/internal/flow"
	"trove/api/internal/store"
)

var _ editor.Remote = (*Client)(nil)

type harness struct {
	client  *Client
	flow    flow.Flow
	content map[string]string
}

// newHarness serves the API over a memory store and seeds one flow with
// stages Start [A B] and Later [], plus library items A, B and X.
func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := config.Config{JWTSecret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour}
	svc := app.New(cfg, store.NewMemoryStore(), app.Deps{Logger: zerolog.Nop()})
	server := httptest.NewServer(app.NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)

	ctx := context.Background()
	client := New(server.URL, WithHTTPClient(server.Client()))
	_, err := client.Login(ctx, "Avery")
	require.NoError(t, err)

	f, err := client.CreateFlow(ctx, CreateFlowRequest{Name: "Queue", Stages: []string{"Start", "Later"}})
	require.NoError(t, err)

	content := make(map[string]string)
	for _, title := range []string{"A", "B", "X"} {
		c, err := client.AddContent(ctx, ContentRequest{Kind: "game", Title: title})
		require.NoError(t, err)
		content[title] = c.ID
	}
	for _, title := range []string{"A", "B"} {
		_, err := client.CreateNode(ctx, f.ID, f.Stages[0].ID, content[title], "")
		require.NoError(t, err)
	}
	f, err = client.GetFlow(ctx, f.ID)
	require.NoError(t, err)
	return harness{client: client, flow: f, content: content}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.CreateNode(ctx, h.flow.ID, h.flow.Stages[0].ID, h.content["A"], "")
	require.Error(t, err)
	assert.True(t, IsCode(err, "DUPLICATE_CONTENT"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	err = h.client.ReorderNodes(ctx, h.flow.Stages[0].ID, []string{h.flow.Stages[0].Nodes[0].ID})
	assert.True(t, IsCode(err, "ORDER_MISMATCH"))

	anonymous := New(h.client.baseURL, WithHTTPClient(h.client.http))
	_, err = anonymous.ListFlows(ctx)
	assert.True(t, IsCode(err, "UNAUTHORIZED"))
}

func TestClientLibraryAndUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	items, err := h.client.ListLibrary(ctx, "", h.flow.ID, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, h.content["X"], items[0].ContentID)

	got, err := h.client.UsageCounts(ctx, []string{h.content["A"], h.content["X"]})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{h.content["A"]: 1, h.content["X"]: 0}, got)

	flows, err := h.client.ListFlows(ctx)
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, 2, flows[0].NodeCount)
}

func TestEditorAgainstServer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batcher := counts.New(h.client.UsageCounts)
	defer batcher.Close()
	ed, err := editor.Open(ctx, h.client, h.flow.ID, editor.WithUsageCounter(batcher))
	require.NoError(t, err)

	start, later := h.flow.Stages[0], h.flow.Stages[1]
	a, b := start.Nodes[0].ID, start.Nodes[1].ID

	available, err := ed.AvailableItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, 0, available[0].UsageCount)

	// Drag library item X onto node B: inserted between A and B.
	require.NoError(t, ed.BeginDrag(editor.Source{Kind: editor.SourceExternal, ID: h.content["X"]}))
	ed.Hover(&editor.Target{Kind: editor.ZoneNode, ID: b, StageID: start.ID})
	res := ed.Release(ctx)
	require.Equal(t, editor.ResultInserted, res.Kind, "err=%v", res.Err)
	x := res.Node.ID

	// Drag B onto A: reorder within the stage.
	require.NoError(t, ed.BeginDrag(editor.Source{Kind: editor.SourceNode, ID: b}))
	ed.Hover(&editor.Target{Kind: editor.ZoneNode, ID: a, StageID: start.ID})
	res = ed.Release(ctx)
	require.Equal(t, editor.ResultCommitted, res.Kind, "err=%v", res.Err)

	// Drag A to the empty Later stage.
	require.NoError(t, ed.BeginDrag(editor.Source{Kind: editor.SourceNode, ID: a}))
	ed.Hover(&editor.Target{Kind: editor.ZoneStageEnd, ID: later.ID, StageID: later.ID})
	res = ed.Release(ctx)
	require.Equal(t, editor.ResultCommitted, res.Kind, "err=%v", res.Err)

	// Drag Later before Start.
	require.NoError(t, ed.BeginDrag(editor.Source{Kind: editor.SourceStage, ID: later.ID}))
	ed.Hover(&editor.Target{Kind: editor.ZoneStage, ID: start.ID})
	res = ed.Release(ctx)
	require.Equal(t, editor.ResultCommitted, res.Kind, "err=%v", res.Err)

	local := ed.Flow()
	server, err := h.client.GetFlow(ctx, h.flow.ID)
	require.NoError(t, err)
	require.NoError(t, server.Validate())

	assert.Equal(t, flow.StageIDs(local.Stages), flow.StageIDs(server.Stages))
	assert.Equal(t, []string{later.ID, start.ID}, flow.StageIDs(server.Stages))
	assert.Equal(t, []string{a}, flow.NodeIDs(server.Stages[0].Nodes))
	assert.Equal(t, []string{b, x}, flow.NodeIDs(server.Stages[1].Nodes))
	for i := range local.Stages {
		assert.Equal(t, flow.NodeIDs(server.Stages[i].Nodes), flow.NodeIDs(local.Stages[i].Nodes))
	}
}

func TestEditorRollsBackStaleReorder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start := h.flow.Stages[0]
	a, b := start.Nodes[0].ID, start.Nodes[1].ID

	// Someone else adds X to the stage behind the editor's back.
	_, err := h.client.CreateNode(ctx, h.flow.ID, start.ID, h.content["X"], "")
	require.NoError(t, err)

	var notices []editor.Notice
	ed, err := editor.Open(ctx, &staleRemote{Client: h.client, stale: h.flow}, h.flow.ID,
		editor.WithNotifier(editor.NotifierFunc(func(n editor.Notice) { notices = append(notices, n) })))
	require.NoError(t, err)

	res := ed.Dispatch(ctx, editor.ReorderNodes{StageID: start.ID, NodeID: b, TargetNodeID: a})
	require.Equal(t, editor.ResultRolledBack, res.Kind)
	assert.True(t, IsCode(res.Err, "ORDER_MISMATCH"))
	assert.Equal(t, []string{a, b}, flow.NodeIDs(ed.Flow().Stages[0].Nodes))
	require.Len(t, notices, 1)
	assert.Equal(t, editor.NoticeError, notices[0].Level)

	require.NoError(t, ed.Refresh(ctx))
	assert.Len(t, ed.Flow().Stages[0].Nodes, 3)
}

// staleRemote serves a cached flow on the first load so the editor starts
// out of date; every later call goes to the server.
type staleRemote struct {
	*Client
	stale  flow.Flow
	served bool
}

func (r *staleRemote) GetFlow(ctx context.Context, flowID string) (flow.Flow, error) {
	if !r.served && r.stale.ID == flowID {
		r.served = true
		return r.stale, nil
	}
	return r.Client.GetFlow(ctx, flowID)
}
