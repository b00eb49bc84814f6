package editor

import (
	"context"

	"trove/api/internal/flow"
)

// Remote is the persistence side of the editor. Reorder calls carry the full
// ordered id list of the container; the server rejects anything that is not
// an exact permutation of what it holds.
type Remote interface {
	GetFlow(ctx context.Context, flowID string) (flow.Flow, error)
	CreateNode(ctx context.Context, flowID, stageID, contentID, insertBeforeNodeID string) (flow.Node, error)
	ReorderNodes(ctx context.Context, stageID string, orderedNodeIDs []string) error
	ReorderStages(ctx context.Context, flowID string, orderedStageIDs []string) error
	MoveNode(ctx context.Context, nodeID, toStageID string, orderedNodeIDs []string) error
	AddStage(ctx context.Context, flowID, name string) (flow.Stage, error)
	RenameStage(ctx context.Context, stageID, name string) (flow.Stage, error)
	DeleteStage(ctx context.Context, stageID string) error
	RemoveNode(ctx context.Context, nodeID string) error
	UpdateNode(ctx context.Context, nodeID, description string) (flow.Node, error)
	ListLibraryItems(ctx context.Context, query string) ([]flow.ExternalItem, error)
}

// UsageCounter reports how many flows reference a content item.
type UsageCounter interface {
	UsageCount(ctx context.Context, contentID string) (int, error)
}

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message about an edit.
type Notice struct {
	Level   NoticeLevel
	Message string
	Action  ActionKind
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (fn NotifierFunc) Notify(n Notice) { fn(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
