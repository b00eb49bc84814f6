// Package counts coalesces per-item count lookups into batched loads and
// caches the answers for the life of the process.
package counts

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrClosed = errors.New("counts: batcher closed")

// Loader fetches counts for ids in one round trip. Ids missing from the
// returned map count as zero.
type Loader func(ctx context.Context, ids []string) (map[string]int, error)

const (
	DefaultWindow   = 10 * time.Millisecond
	DefaultMaxBatch = 100
)

type Option func(*Batcher)

// WithWindow sets how long the first Get in a batch waits for company.
func WithWindow(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.window = d
		}
	}
}

// WithMaxBatch flushes as soon as this many distinct ids are waiting.
func WithMaxBatch(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.maxBatch = n
		}
	}
}

type result struct {
	n   int
	err error
}

type Batcher struct {
	load     Loader
	window   time.Duration
	maxBatch int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cache   map[string]int
	waiting map[string][]chan result
	timer   *time.Timer
	closed  bool
}

func New(load Loader, opts ...Option) *Batcher {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Batcher{
		load:     load,
		window:   DefaultWindow,
		maxBatch: DefaultMaxBatch,
		ctx:      ctx,
		cancel:   cancel,
		cache:    make(map[string]int),
		waiting:  make(map[string][]chan result),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get returns the count for id, joining the batch that is currently
// collecting or starting a new one.
func (b *Batcher) Get(ctx context.Context, id string) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	if n, ok := b.cache[id]; ok {
		b.mu.Unlock()
		return n, nil
	}
	ch := make(chan result, 1)
	b.waiting[id] = append(b.waiting[id], ch)
	if len(b.waiting) >= b.maxBatch {
		b.flushLocked()
	} else if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.flush)
	}
	b.mu.Unlock()

	select {
	case r := <-ch:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// UsageCount makes a Batcher usable as the editor's usage source.
func (b *Batcher) UsageCount(ctx context.Context, contentID string) (int, error) {
	return b.Get(ctx, contentID)
}

// Invalidate drops cached counts. With no ids the whole cache is cleared.
func (b *Batcher) Invalidate(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(ids) == 0 {
		clear(b.cache)
		return
	}
	for _, id := range ids {
		delete(b.cache, id)
	}
}

// Close fails every waiting Get, cancels running loads and waits for them.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	waiting := b.waiting
	b.waiting = make(map[string][]chan result)
	b.mu.Unlock()

	deliver(waiting, nil, ErrClosed)
	b.cancel()
	b.wg.Wait()
}

func (b *Batcher) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.waiting) == 0 {
		return
	}
	batch := b.waiting
	b.waiting = make(map[string][]chan result)
	b.wg.Add(1)
	go b.run(batch)
}

func (b *Batcher) run(batch map[string][]chan result) {
	defer b.wg.Done()

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	loaded, err := b.load(b.ctx, ids)
	if err == nil {
		b.mu.Lock()
		for _, id := range ids {
			b.cache[id] = loaded[id]
		}
		b.mu.Unlock()
	}
	deliver(batch, loaded, err)
}

func deliver(batch map[string][]chan result, loaded map[string]int, err error) {
	for id, chans := range batch {
		r := result{err: err}
		if err == nil {
			r.n = loaded[id]
		}
		for _, ch := range chans {
			ch <- r
		}
	}
}
