package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"trove/api/internal/flow"
)

// PgFTS implements Searcher over the generated search_vector column of
// contents.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]flow.Content, error) {
	if strings.TrimSpace(q.Text) == "" {
		return []flow.Content{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	args := []any{q.Text, q.OwnerID}
	where := "c.search_vector @@ plainto_tsquery('simple', $1) AND c.owner_id = $2"
	if q.Kind != "" {
		args = append(args, string(q.Kind))
		where += fmt.Sprintf(" AND c.kind = $%d", len(args))
	}
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.kind, c.title, c.creator, c.year, c.cover_url
		FROM contents c
		WHERE %s
		ORDER BY ts_rank(c.search_vector, plainto_tsquery('simple', $1)) DESC, c.id
		LIMIT $%d`, where, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]flow.Content, 0)
	for rows.Next() {
		var c flow.Content
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Title, &c.Creator, &c.Year, &c.CoverURL); err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		c.Kind = flow.ContentKind(kind)
		results = append(results, c)
	}
	return results, rows.Err()
}

// LoadAllRecords returns every content for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, title, creator, year, cover_url FROM contents
	`)
	if err != nil {
		return nil, fmt.Errorf("load contents: %w", err)
	}
	defer rows.Close()

	records := make([]ContentRecord, 0)
	for rows.Next() {
		var r ContentRecord
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Kind, &r.Title, &r.Creator, &r.Year, &r.CoverURL); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return records, nil
}
