package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trove/api/internal/flow"
)

func node(id, contentID string) flow.Node {
	return flow.Node{ID: id, ContentID: contentID}
}

// testFlow has three stages: s1 [A B C], s2 [D E], s3 empty.
func testFlow() flow.Flow {
	f := flow.Flow{
		ID:   "flw_1",
		Name: "Roadmap",
		Stages: []flow.Stage{
			{ID: "s1", Name: "Intro", Nodes: []flow.Node{node("A", "cA"), node("B", "cB"), node("C", "cC")}},
			{ID: "s2", Name: "Middle", Nodes: []flow.Node{node("D", "cD"), node("E", "cE")}},
			{ID: "s3", Name: "Empty", Nodes: []flow.Node{}},
		},
	}
	f.Renumber()
	return f
}

func outcome(src Source, kind ZoneKind, id, stageID string) Outcome {
	return Outcome{Source: src, Target: &Target{Kind: kind, ID: id, StageID: stageID}}
}

func TestResolve(t *testing.T) {
	f := testFlow()
	nodeSrc := func(id string) Source { return Source{Kind: SourceNode, ID: id} }
	stageSrc := func(id string) Source { return Source{Kind: SourceStage, ID: id} }
	extSrc := func(id string) Source { return Source{Kind: SourceExternal, ID: id} }

	cases := []struct {
		name string
		in   Outcome
		want Action
	}{
		{"external on stage end", outcome(extSrc("cX"), ZoneStageEnd, "s3", "s3"), InsertAtEnd{StageID: "s3", ContentID: "cX"}},
		{"external on node", outcome(extSrc("cX"), ZoneNode, "C", "s1"), InsertBefore{StageID: "s1", AnchorNodeID: "C", ContentID: "cX"}},
		{"external zone stage id is not trusted", outcome(extSrc("cX"), ZoneNode, "D", "s1"), InsertBefore{StageID: "s2", AnchorNodeID: "D", ContentID: "cX"}},
		{"node onto node same stage", outcome(nodeSrc("C"), ZoneNode, "A", "s1"), ReorderNodes{StageID: "s1", NodeID: "C", TargetNodeID: "A"}},
		{"node onto own stage end", outcome(nodeSrc("A"), ZoneStageEnd, "s1", "s1"), ReorderNodes{StageID: "s1", NodeID: "A", TargetNodeID: "C"}},
		{"node onto node other stage", outcome(nodeSrc("A"), ZoneNode, "E", "s2"), MoveNode{FromStageID: "s1", ToStageID: "s2", NodeID: "A", BeforeNodeID: "E"}},
		{"node onto other stage end", outcome(nodeSrc("A"), ZoneStageEnd, "s3", "s3"), MoveNode{FromStageID: "s1", ToStageID: "s3", NodeID: "A"}},
		{"stage onto stage", outcome(stageSrc("s3"), ZoneStage, "s1", ""), ReorderStages{StageID: "s3", TargetStageID: "s1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Resolve(&f, tc.in))
		})
	}
}

func TestResolveIgnores(t *testing.T) {
	f := testFlow()
	cases := []struct {
		name string
		in   Outcome
	}{
		{"no target", Outcome{Source: Source{Kind: SourceNode, ID: "A"}}},
		{"node onto itself", outcome(Source{Kind: SourceNode, ID: "A"}, ZoneNode, "A", "s1")},
		{"stage onto node", outcome(Source{Kind: SourceStage, ID: "s2"}, ZoneNode, "A", "s1")},
		{"stage onto stage end", outcome(Source{Kind: SourceStage, ID: "s2"}, ZoneStageEnd, "s1", "s1")},
		{"node onto stage header", outcome(Source{Kind: SourceNode, ID: "A"}, ZoneStage, "s2", "")},
		{"last node onto own stage end", outcome(Source{Kind: SourceNode, ID: "C"}, ZoneStageEnd, "s1", "s1")},
		{"external already in flow", outcome(Source{Kind: SourceExternal, ID: "cD"}, ZoneStageEnd, "s3", "s3")},
		{"external onto stage header", outcome(Source{Kind: SourceExternal, ID: "cX"}, ZoneStage, "s1", "")},
		{"unknown node", outcome(Source{Kind: SourceNode, ID: "Z"}, ZoneNode, "A", "s1")},
		{"unknown target node", outcome(Source{Kind: SourceNode, ID: "A"}, ZoneNode, "Z", "s1")},
		{"unknown stage", outcome(Source{Kind: SourceExternal, ID: "cX"}, ZoneStageEnd, "s9", "s9")},
		{"unknown source kind", outcome(Source{Kind: "column", ID: "A"}, ZoneNode, "B", "s1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(&f, tc.in)
			assert.Equal(t, KindIgnore, got.Kind())
		})
	}
}
