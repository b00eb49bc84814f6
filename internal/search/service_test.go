package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"trove/api/internal/flow"
)

type fakeIndex struct {
	mu      sync.Mutex
	healthy bool
	results []flow.Content
	err     error
	indexed []ContentRecord
}

func (f *fakeIndex) Search(context.Context, Query) ([]flow.Content, error) { return f.results, f.err }
func (f *fakeIndex) Healthy() bool                                          { return f.healthy }
func (f *fakeIndex) DeleteContent(string) error                             { return nil }

func (f *fakeIndex) IndexContents(records []ContentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func TestServicePrefersHealthyPrimary(t *testing.T) {
	primary := &fakeIndex{healthy: true, results: []flow.Content{{ID: "meili"}}}
	fallback := &fakeIndex{healthy: true, results: []flow.Content{{ID: "pg"}}}
	svc := NewService(primary, fallback, zerolog.Nop())

	got := svc.Search(context.Background(), Query{Text: "dune", OwnerID: "usr_1"})
	if len(got) != 1 || got[0].ID != "meili" {
		t.Fatalf("Search() = %+v, want primary result", got)
	}
}

func TestServiceFallsBack(t *testing.T) {
	fallback := &fakeIndex{healthy: true, results: []flow.Content{{ID: "pg"}}}

	cases := []struct {
		name    string
		primary Index
	}{
		{name: "no primary", primary: nil},
		{name: "unhealthy primary", primary: &fakeIndex{healthy: false}},
		{name: "primary error", primary: &fakeIndex{healthy: true, err: errors.New("boom")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.primary, fallback, zerolog.Nop())
			got := svc.Search(context.Background(), Query{Text: "dune"})
			if len(got) != 1 || got[0].ID != "pg" {
				t.Fatalf("Search() = %+v, want fallback result", got)
			}
		})
	}
}

func TestServiceNeverReturnsNil(t *testing.T) {
	svc := NewService(nil, &fakeIndex{healthy: true, err: errors.New("down")}, zerolog.Nop())
	if got := svc.Search(context.Background(), Query{Text: "x"}); got == nil || len(got) != 0 {
		t.Fatalf("Search() = %#v, want empty slice", got)
	}
	if got := NewService(nil, nil, zerolog.Nop()).Search(context.Background(), Query{Text: "x"}); got == nil {
		t.Fatal("Search() without searchers returned nil")
	}
}

func TestReindexAllSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeIndex{healthy: false}
	NewService(primary, nil, zerolog.Nop()).ReindexAll([]ContentRecord{{ID: "c1"}})
	if len(primary.indexed) != 0 {
		t.Fatal("unhealthy primary must not be written")
	}

	primary.healthy = true
	NewService(primary, nil, zerolog.Nop()).ReindexAll([]ContentRecord{{ID: "c1"}})
	if len(primary.indexed) != 1 {
		t.Fatalf("indexed = %+v", primary.indexed)
	}
}

func TestDecodeHit(t *testing.T) {
	hit := meili.Hit{
		"id":      json.RawMessage(`"cnt_1"`),
		"ownerId": json.RawMessage(`"usr_1"`),
		"kind":    json.RawMessage(`"game"`),
		"title":   json.RawMessage(`"Outer Wilds"`),
		"year":    json.RawMessage(`2019`),
	}
	record, err := decodeHit(hit)
	if err != nil {
		t.Fatalf("decodeHit() error = %v", err)
	}
	c := record.Content()
	if c.ID != "cnt_1" || c.Kind != flow.KindGame || c.Title != "Outer Wilds" || c.Year != 2019 {
		t.Fatalf("unexpected content: %+v", c)
	}
}

func TestServiceStatus(t *testing.T) {
	fallback := &fakeIndex{healthy: true}
	cases := []struct {
		name string
		svc  *Service
		want string
	}{
		{name: "nothing configured", svc: NewService(nil, nil, zerolog.Nop()), want: "disabled"},
		{name: "postgres only", svc: NewService(nil, fallback, zerolog.Nop()), want: "fallback"},
		{name: "meili down", svc: NewService(&fakeIndex{}, fallback, zerolog.Nop()), want: "fallback"},
		{name: "meili up", svc: NewService(&fakeIndex{healthy: true}, fallback, zerolog.Nop()), want: "ok"},
	}
	for _, tc := range cases {
		if got := tc.svc.Status(); got != tc.want {
			t.Fatalf("%s: Status() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
