// Package flow holds the value objects shared by the flow editor and the API:
// flows, their ordered stages, the nodes inside each stage and the library
// items that can be dropped into them.
package flow

import (
	"errors"
	"fmt"
	"time"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// NormalizeVisibility maps unknown values to private.
func NormalizeVisibility(value string) Visibility {
	if Visibility(value) == VisibilityPublic {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

type ContentKind string

const (
	KindBook  ContentKind = "book"
	KindVideo ContentKind = "video"
	KindGame  ContentKind = "game"
	KindMusic ContentKind = "music"
)

func (k ContentKind) Valid() bool {
	switch k {
	case KindBook, KindVideo, KindGame, KindMusic:
		return true
	default:
		return false
	}
}

// Content is a library entry. The editor never mutates it.
type Content struct {
	ID       string      `json:"id"`
	Kind     ContentKind `json:"kind"`
	Title    string      `json:"title"`
	Creator  string      `json:"creator,omitempty"`
	Year     int         `json:"year,omitempty"`
	CoverURL string      `json:"coverUrl,omitempty"`
}

type Flow struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	OwnerID    string     `json:"ownerId"`
	CoverImage string     `json:"coverImage,omitempty"`
	Stages     []Stage    `json:"stages"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Stage is owned by the flow whose Stages slice contains it.
type Stage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Nodes    []Node `json:"nodes"`
}

type Node struct {
	ID          string  `json:"id"`
	ContentID   string  `json:"contentId"`
	Content     Content `json:"content"`
	Description string  `json:"description,omitempty"`
	Position    int     `json:"position"`
}

// ExternalItem is a library item offered as a drag source. It is never
// persisted by the editor; dropping it creates a Node.
type ExternalItem struct {
	ContentID  string      `json:"contentId"`
	Kind       ContentKind `json:"kind"`
	Title      string      `json:"title"`
	Creator    string      `json:"creator,omitempty"`
	Year       int         `json:"year,omitempty"`
	CoverURL   string      `json:"coverUrl,omitempty"`
	UsageCount int         `json:"usageCount,omitempty"`
}

// ItemFromContent projects a library content row into a drag source.
func ItemFromContent(c Content) ExternalItem {
	return ExternalItem{
		ContentID: c.ID,
		Kind:      c.Kind,
		Title:     c.Title,
		Creator:   c.Creator,
		Year:      c.Year,
		CoverURL:  c.CoverURL,
	}
}

var (
	ErrGappedOrdinals   = errors.New("ordinals are not dense")
	ErrDuplicateContent = errors.New("content appears more than once in flow")
)

// Clone returns a deep copy of the flow so callers can hand out snapshots
// without sharing the stage and node backing arrays.
func (f Flow) Clone() Flow {
	out := f
	out.Stages = make([]Stage, len(f.Stages))
	for i, stage := range f.Stages {
		out.Stages[i] = stage.Clone()
	}
	return out
}

func (s Stage) Clone() Stage {
	out := s
	out.Nodes = make([]Node, len(s.Nodes))
	copy(out.Nodes, s.Nodes)
	return out
}

func (f *Flow) StageIndex(stageID string) int {
	for i := range f.Stages {
		if f.Stages[i].ID == stageID {
			return i
		}
	}
	return -1
}

// Stage returns a pointer into the flow's stage slice, or nil.
func (f *Flow) Stage(stageID string) *Stage {
	if idx := f.StageIndex(stageID); idx >= 0 {
		return &f.Stages[idx]
	}
	return nil
}

// LocateNode finds the stage and slot currently holding nodeID.
func (f *Flow) LocateNode(nodeID string) (stageIdx, nodeIdx int, ok bool) {
	for i := range f.Stages {
		if j := NodeIndex(f.Stages[i].Nodes, nodeID); j >= 0 {
			return i, j, true
		}
	}
	return -1, -1, false
}

func (f *Flow) ContentIDs() map[string]struct{} {
	used := make(map[string]struct{})
	for _, stage := range f.Stages {
		for _, node := range stage.Nodes {
			used[node.ContentID] = struct{}{}
		}
	}
	return used
}

func (f *Flow) HasContent(contentID string) bool {
	for _, stage := range f.Stages {
		for _, node := range stage.Nodes {
			if node.ContentID == contentID {
				return true
			}
		}
	}
	return false
}

// Renumber rewrites every stage and node position to its slice index.
func (f *Flow) Renumber() {
	for i := range f.Stages {
		f.Stages[i].Position = i
		RenumberNodes(f.Stages[i].Nodes)
	}
}

func RenumberNodes(nodes []Node) {
	for i := range nodes {
		nodes[i].Position = i
	}
}

func RenumberStages(stages []Stage) {
	for i := range stages {
		stages[i].Position = i
	}
}

// Validate checks the ordering and exclusivity invariants.
func (f *Flow) Validate() error {
	if err := checkDense(stagePositions(f.Stages)); err != nil {
		return fmt.Errorf("flow %s stages: %w", f.ID, err)
	}
	seen := make(map[string]string)
	for _, stage := range f.Stages {
		if err := checkDense(nodePositions(stage.Nodes)); err != nil {
			return fmt.Errorf("stage %s nodes: %w", stage.ID, err)
		}
		for _, node := range stage.Nodes {
			if other, ok := seen[node.ContentID]; ok {
				return fmt.Errorf("content %s in nodes %s and %s: %w", node.ContentID, other, node.ID, ErrDuplicateContent)
			}
			seen[node.ContentID] = node.ID
		}
	}
	return nil
}

func checkDense(positions []int) error {
	present := make([]bool, len(positions))
	for _, p := range positions {
		if p < 0 || p >= len(positions) || present[p] {
			return ErrGappedOrdinals
		}
		present[p] = true
	}
	return nil
}

func stagePositions(stages []Stage) []int {
	out := make([]int, len(stages))
	for i, stage := range stages {
		out[i] = stage.Position
	}
	return out
}

func nodePositions(nodes []Node) []int {
	out := make([]int, len(nodes))
	for i, node := range nodes {
		out[i] = node.Position
	}
	return out
}

func NodeIndex(nodes []Node, nodeID string) int {
	for i := range nodes {
		if nodes[i].ID == nodeID {
			return i
		}
	}
	return -1
}

func StageIDs(stages []Stage) []string {
	ids := make([]string, len(stages))
	for i, stage := range stages {
		ids[i] = stage.ID
	}
	return ids
}

func NodeIDs(nodes []Node) []string {
	ids := make([]string, len(nodes))
	for i, node := range nodes {
		ids[i] = node.ID
	}
	return ids
}
