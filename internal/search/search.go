// Package search finds library contents by title or creator. Meilisearch is
// used when configured and healthy; Postgres full-text search is the fallback.
package search

import (
	"context"

	"trove/api/internal/flow"
)

// Query describes a library search for one owner.
type Query struct {
	Text    string
	OwnerID string
	Kind    flow.ContentKind // empty = all kinds
	Limit   int
}

// Searcher can execute a library search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]flow.Content, error)
	Healthy() bool
}

// Indexer can push contents into a search index.
type Indexer interface {
	IndexContents(records []ContentRecord) error
	DeleteContent(id string) error
}

// ContentRecord is the data we index for a library content.
type ContentRecord struct {
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Creator  string `json:"creator"`
	Year     int    `json:"year"`
	CoverURL string `json:"coverUrl"`
}

func RecordFromContent(ownerID string, c flow.Content) ContentRecord {
	return ContentRecord{
		ID:       c.ID,
		OwnerID:  ownerID,
		Kind:     string(c.Kind),
		Title:    c.Title,
		Creator:  c.Creator,
		Year:     c.Year,
		CoverURL: c.CoverURL,
	}
}

func (r ContentRecord) Content() flow.Content {
	return flow.Content{
		ID:       r.ID,
		Kind:     flow.ContentKind(r.Kind),
		Title:    r.Title,
		Creator:  r.Creator,
		Year:     r.Year,
		CoverURL: r.CoverURL,
	}
}
