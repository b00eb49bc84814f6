package counts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLoader struct {
	mu      sync.Mutex
	batches [][]string
	counts  map[string]int
	err     error
}

func (l *recordingLoader) Load(_ context.Context, ids []string) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, append([]string(nil), ids...))
	if l.err != nil {
		return nil, l.err
	}
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if n, ok := l.counts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func (l *recordingLoader) Batches() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]string(nil), l.batches...)
}

func TestConcurrentGetsShareOneLoad(t *testing.T) {
	loader := &recordingLoader{counts: map[string]int{"a": 1, "b": 2, "c": 3}}
	b := New(loader.Load, WithWindow(50*time.Millisecond))
	defer b.Close()

	ids := []string{"a", "b", "c", "a", "missing"}
	got := make([]int, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := b.Get(context.Background(), id)
			assert.NoError(t, err)
			got[i] = n
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3, 1, 0}, got)
	batches := loader.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"a", "b", "c", "missing"}, batches[0])
}

func TestCachedCountsSkipLoader(t *testing.T) {
	loader := &recordingLoader{counts: map[string]int{"a": 7}}
	b := New(loader.Load, WithWindow(time.Millisecond))
	defer b.Close()

	ctx := context.Background()
	n, err := b.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = b.UsageCount(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Len(t, loader.Batches(), 1)

	b.Invalidate("a")
	_, err = b.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, loader.Batches(), 2)

	b.Invalidate()
	_, err = b.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, loader.Batches(), 3)
}

func TestMaxBatchFlushesEarly(t *testing.T) {
	var loads atomic.Int32
	b := New(func(_ context.Context, ids []string) (map[string]int, error) {
		loads.Add(1)
		return map[string]int{}, nil
	}, WithWindow(time.Hour), WithMaxBatch(2))
	defer b.Close()

	var wg sync.WaitGroup
	for _, id := range []string{"x", "y"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Get(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	loader := &recordingLoader{err: errors.New("boom")}
	b := New(loader.Load, WithWindow(time.Millisecond))
	defer b.Close()

	_, err := b.Get(context.Background(), "a")
	require.Error(t, err)

	loader.mu.Lock()
	loader.err = nil
	loader.counts = map[string]int{"a": 2}
	loader.mu.Unlock()

	n, err := b.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCloseFailsWaiters(t *testing.T) {
	b := New(func(context.Context, []string) (map[string]int, error) {
		return nil, nil
	}, WithWindow(time.Hour))

	errs := make(chan error, 1)
	go func() {
		_, err := b.Get(context.Background(), "a")
		errs <- err
	}()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.waiting) == 1
	}, time.Second, time.Millisecond)

	b.Close()
	assert.ErrorIs(t, <-errs, ErrClosed)

	_, err := b.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
	b.Close()
}

func TestGetHonoursContext(t *testing.T) {
	b := New(func(context.Context, []string) (map[string]int, error) {
		return nil, nil
	}, WithWindow(time.Hour))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Get(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
