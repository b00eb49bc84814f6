package search

import (
	"context"

	"github.com/rs/zerolog"

	"trove/api/internal/flow"
)

// Index is a Searcher that can also be written to.
type Index interface {
	Searcher
	Indexer
}

// Service tries the primary index first and falls back to Postgres FTS.
type Service struct {
	primary  Index
	fallback Searcher
	logger   zerolog.Logger
}

// NewService creates a search service. primary may be nil when Meilisearch is
// not configured; fallback may be nil when there is no database.
func NewService(primary Index, fallback Searcher, logger zerolog.Logger) *Service {
	return &Service{primary: primary, fallback: fallback, logger: logger.With().Str("component", "search").Logger()}
}

// Search never fails; errors are logged and yield no results.
func (s *Service) Search(ctx context.Context, q Query) []flow.Content {
	if s.primary != nil && s.primary.Healthy() {
		results, err := s.primary.Search(ctx, q)
		if err == nil {
			return nonNil(results)
		}
		s.logger.Warn().Err(err).Msg("primary search failed, falling back")
	}
	if s.fallback == nil {
		return []flow.Content{}
	}
	results, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("fallback search failed")
		return []flow.Content{}
	}
	return nonNil(results)
}

// Enabled reports whether any searcher is configured.
func (s *Service) Enabled() bool {
	return s.primary != nil || s.fallback != nil
}

// Status is "disabled", "ok" when the primary index answers, or "fallback"
// when queries go to Postgres.
func (s *Service) Status() string {
	switch {
	case !s.Enabled():
		return "disabled"
	case s.primary != nil && s.primary.Healthy():
		return "ok"
	default:
		return "fallback"
	}
}

// IndexContent indexes a content (fire-and-forget).
func (s *Service) IndexContent(ownerID string, c flow.Content) {
	if s.primary == nil || !s.primary.Healthy() {
		return
	}
	record := RecordFromContent(ownerID, c)
	go func() {
		if err := s.primary.IndexContents([]ContentRecord{record}); err != nil {
			s.logger.Warn().Err(err).Str("content_id", record.ID).Msg("index content")
		}
	}()
}

// ReindexAll pushes every record into the primary index.
func (s *Service) ReindexAll(records []ContentRecord) {
	if s.primary == nil || !s.primary.Healthy() || len(records) == 0 {
		return
	}
	if err := s.primary.IndexContents(records); err != nil {
		s.logger.Warn().Err(err).Int("count", len(records)).Msg("reindex contents")
	}
}

// ReindexFromPG loads every content from Postgres and reindexes it.
func (s *Service) ReindexFromPG(ctx context.Context, pg *PgFTS) {
	if s.primary == nil || !s.primary.Healthy() || pg == nil {
		return
	}
	records, err := pg.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reindex load failed")
		return
	}
	s.ReindexAll(records)
}

func nonNil(r []flow.Content) []flow.Content {
	if r == nil {
		return []flow.Content{}
	}
	return r
}
