package store

import (
	"errors"
	"time"

	"trove/api/internal/flow"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrOrderMismatch    = errors.New("ordered ids do not match the container")
	ErrDuplicateContent = errors.New("content already in flow")
	ErrAnchorNotFound   = errors.New("anchor node not in stage")
	ErrEmailTaken       = errors.New("email already registered")
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FlowSummary is a flow without its stages, used for listings.
type FlowSummary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Visibility flow.Visibility `json:"visibility"`
	OwnerID    string          `json:"ownerId"`
	CoverImage string          `json:"coverImage,omitempty"`
	StageCount int             `json:"stageCount"`
	NodeCount  int             `json:"nodeCount"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// FlowPatch carries the flow fields an owner may change. Nil means keep.
type FlowPatch struct {
	Name       *string
	Visibility *flow.Visibility
	CoverImage *string
}

// checkPermutation reports ErrOrderMismatch unless ordered holds exactly the
// ids in current, each once, in any order.
func checkPermutation(current, ordered []string) error {
	if len(current) != len(ordered) {
		return ErrOrderMismatch
	}
	want := make(map[string]int, len(current))
	for _, id := range current {
		want[id]++
	}
	for _, id := range ordered {
		if want[id] == 0 {
			return ErrOrderMismatch
		}
		want[id]--
	}
	return nil
}
