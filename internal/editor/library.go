package editor

import (
	"context"
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"

	"trove/api/internal/flow"
)

const usageLookupLimit = 8

// AvailableItems lists library items that can still be dropped into the
// flow: anything already used by a node or currently being inserted is left
// out. A non-empty query re-ranks the remote result by fuzzy title match.
func (e *Editor) AvailableItems(ctx context.Context, query string) ([]flow.ExternalItem, error) {
	items, err := e.remote.ListLibraryItems(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}

	e.mu.Lock()
	used := e.flow.ContentIDs()
	for id := range e.pending {
		used[id] = struct{}{}
	}
	e.mu.Unlock()

	out := make([]flow.ExternalItem, 0, len(items))
	for _, item := range items {
		if _, ok := used[item.ContentID]; ok {
			continue
		}
		out = append(out, item)
	}
	if query != "" {
		out = rankByTitle(out, query)
	}
	if e.usage != nil {
		e.annotateUsage(ctx, out)
	}
	return out, nil
}

// rankByTitle puts fuzzy title matches first, closest first. Items the
// remote matched on something other than the title keep their order after.
func rankByTitle(items []flow.ExternalItem, query string) []flow.ExternalItem {
	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}
	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	sort.Stable(ranks)

	out := make([]flow.ExternalItem, 0, len(items))
	taken := make([]bool, len(items))
	for _, r := range ranks {
		out = append(out, items[r.OriginalIndex])
		taken[r.OriginalIndex] = true
	}
	for i, item := range items {
		if !taken[i] {
			out = append(out, item)
		}
	}
	return out
}

// annotateUsage fills UsageCount in place. Counts are decoration; a failed
// lookup is logged and leaves the remaining counts at zero.
func (e *Editor) annotateUsage(ctx context.Context, items []flow.ExternalItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(usageLookupLimit)
	for i := range items {
		g.Go(func() error {
			n, err := e.usage.UsageCount(gctx, items[i].ContentID)
			if err != nil {
				return err
			}
			items[i].UsageCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn().Err(err).Msg("usage counts unavailable")
	}
}
