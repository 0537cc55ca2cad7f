package segmentpool

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/segmux/internal/index"
	"github.com/iamBelugaa/segmux/pkg/backend/memory"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// decades resolves every offset to the 10-byte segment containing it and keeps
// track of the handles it handed out.
type decades struct {
	calls   atomic.Int64
	mu      sync.Mutex
	handles []*memory.Memory
}

func (r *decades) Resolve(_ context.Context, offset uint64) (segment.Segment, error) {
	r.calls.Add(1)
	h := memory.NewZeroed(10)

	r.mu.Lock()
	r.handles = append(r.handles, h)
	r.mu.Unlock()

	start := offset / 10 * 10
	return segment.Segment{Start: start, End: start + 10, Handle: h}, nil
}

func (r *decades) closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, h := range r.handles {
		if h.Closed() {
			n++
		}
	}
	return n
}

func newPool(t *testing.T, resolver segment.Resolver, limit int) *SegmentPool {
	t.Helper()
	return New(index.New(), resolver, limit, zaptest.NewLogger(t).Sugar())
}

func starts(infos []segment.Info) []uint64 {
	out := make([]uint64, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Start)
	}
	return out
}

func TestAcquireCachesResolvedSegments(t *testing.T) {
	ctx := context.Background()
	r := &decades{}
	sp := newPool(t, r, 0)

	d, err := sp.Acquire(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), d.Start)
	assert.Equal(t, uint64(20), d.End)
	assert.Equal(t, 1, d.Pins)
	sp.Release(d)

	for _, offset := range []uint64{10, 15, 19} {
		again, err := sp.Acquire(ctx, offset)
		require.NoError(t, err)
		assert.Same(t, d, again)
		sp.Release(again)
	}

	assert.Equal(t, int64(1), r.calls.Load(), "cached addresses never reach the resolver")
	stats := sp.Stats()
	assert.Equal(t, uint64(3), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Resolves)
	assert.Equal(t, 1, stats.Resolved)
	assert.Zero(t, d.Pins)
}

func TestAcquireWithoutResolver(t *testing.T) {
	sp := newPool(t, nil, 0)
	require.NoError(t, sp.Add(segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}))

	d, err := sp.Acquire(context.Background(), 9)
	require.NoError(t, err)
	sp.Release(d)

	_, err = sp.Acquire(context.Background(), 10)
	require.Error(t, err)

	se, ok := errors.AsSegmentError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrSegmentNotFound, se.Code())
	assert.Equal(t, uint64(10), se.Offset())
}

func TestAddRejectsConflicts(t *testing.T) {
	sp := newPool(t, nil, 0)
	require.NoError(t, sp.Add(segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}))

	err := sp.Add(segment.Segment{Start: 5, End: 15, Handle: memory.NewZeroed(10)})
	assert.True(t, errors.IsCode(err, errors.ErrSegmentConflict))
	assert.Len(t, sp.Segments(), 1)
}

func TestResolverFailureAddsNothing(t *testing.T) {
	boom := stdErrors.New("nooo")
	sp := newPool(t, segment.ResolverFunc(func(context.Context, uint64) (segment.Segment, error) {
		return segment.Segment{}, boom
	}), 0)

	_, err := sp.Acquire(context.Background(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "the resolver's error is surfaced verbatim")

	re, ok := errors.AsResolveError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrResolveFailed, re.Code())
	assert.Equal(t, uint64(0), re.Offset())
	assert.Empty(t, sp.Segments())
}

func TestResolverInvalidRange(t *testing.T) {
	tests := []struct {
		name string
		seg  segment.Segment
	}{
		{"does not cover offset", segment.Segment{Start: 20, End: 30, Handle: memory.NewZeroed(10)}},
		{"empty range", segment.Segment{Start: 5, End: 5, Handle: memory.NewZeroed(0)}},
		{"missing handle", segment.Segment{Start: 0, End: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := newPool(t, segment.ResolverFunc(func(context.Context, uint64) (segment.Segment, error) {
				return tt.seg, nil
			}), 0)

			_, err := sp.Acquire(context.Background(), 5)
			assert.True(t, errors.IsCode(err, errors.ErrResolveInvalidRange))
			assert.Empty(t, sp.Segments())

			if h, ok := tt.seg.Handle.(*memory.Memory); ok {
				assert.True(t, h.Closed(), "the rejected handle is closed")
			}
		})
	}
}

func TestResolverConflictWithStaticSegment(t *testing.T) {
	sp := newPool(t, segment.ResolverFunc(func(_ context.Context, offset uint64) (segment.Segment, error) {
		return segment.Segment{Start: 0, End: 20, Handle: memory.NewZeroed(20)}, nil
	}), 0)
	require.NoError(t, sp.Add(segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}))

	_, err := sp.Acquire(context.Background(), 15)
	assert.True(t, errors.IsCode(err, errors.ErrSegmentConflict))
	assert.Equal(t, []uint64{0}, starts(sp.Segments()))
}

func TestLimitEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	r := &decades{}
	sp := newPool(t, r, 2)

	use := func(offset uint64) {
		d, err := sp.Acquire(ctx, offset)
		require.NoError(t, err)
		sp.Release(d)
	}

	use(0)
	use(10)
	use(0) // 10 is now the least recently used
	use(20)

	assert.Equal(t, []uint64{0, 20}, starts(sp.Segments()))
	assert.True(t, r.handles[1].Closed())
	assert.Equal(t, 1, r.closed())
	assert.Equal(t, uint64(1), sp.Stats().Evictions)

	use(15) // re-resolves the evicted range, evicting 0
	assert.Equal(t, []uint64{10, 20}, starts(sp.Segments()))
	assert.Equal(t, int64(4), r.calls.Load())
}

func TestPinnedSegmentsAreNeverEvicted(t *testing.T) {
	ctx := context.Background()
	r := &decades{}
	sp := newPool(t, r, 1)

	first, err := sp.Acquire(ctx, 0)
	require.NoError(t, err)
	second, err := sp.Acquire(ctx, 10)
	require.NoError(t, err)

	assert.Len(t, sp.Segments(), 2, "exceeding the limit is tolerated while everything is pinned")
	assert.Zero(t, r.closed())

	sp.Release(first)
	assert.Equal(t, []uint64{10}, starts(sp.Segments()), "releasing makes the excess evictable")
	assert.True(t, r.handles[0].Closed())

	sp.Release(second)
	assert.Len(t, sp.Segments(), 1)
}

func TestStaticSegmentsDoNotCountTowardLimit(t *testing.T) {
	ctx := context.Background()
	r := &decades{}
	sp := newPool(t, r, 1)
	require.NoError(t, sp.Add(segment.Segment{Start: 100, End: 110, Handle: memory.NewZeroed(10)}))

	for _, offset := range []uint64{0, 10, 20} {
		d, err := sp.Acquire(ctx, offset)
		require.NoError(t, err)
		sp.Release(d)
	}

	assert.Equal(t, []uint64{20, 100}, starts(sp.Segments()))
}

func TestEvictionTieBreaksOnInsertionOrder(t *testing.T) {
	sp := newPool(t, &decades{}, 1)
	idx := sp.index

	a, err := idx.Add(segment.Segment{Start: 50, End: 60, Handle: memory.NewZeroed(10)}, false)
	require.NoError(t, err)
	b, err := idx.Add(segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}, false)
	require.NoError(t, err)

	sp.mu.Lock()
	victims := sp.evictLocked()
	sp.mu.Unlock()

	require.Len(t, victims, 1)
	assert.Same(t, a, victims[0], "equally idle: the older registration goes first")
	_, ok := idx.Find(b.Start)
	assert.True(t, ok)
}

func TestConcurrentAcquireYieldsOneDescriptor(t *testing.T) {
	ctx := context.Background()
	r := &decades{}
	sp := newPool(t, r, 0)

	const workers = 16
	results := make([]*index.Descriptor, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := sp.Acquire(ctx, uint64(30+i%10))
			if assert.NoError(t, err) {
				results[i] = d
			}
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		assert.Same(t, results[0], d)
	}
	assert.Equal(t, workers, results[0].Pins)
	assert.Len(t, sp.Segments(), 1)
	assert.Equal(t, int(r.calls.Load())-1, r.closed(), "duplicate resolutions are closed")

	for _, d := range results {
		sp.Release(d)
	}
	assert.Zero(t, results[0].Pins)
}

func TestDrainRetiresPool(t *testing.T) {
	ctx := context.Background()
	sp := newPool(t, &decades{}, 0)
	require.NoError(t, sp.Add(segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}))

	d, err := sp.Acquire(ctx, 25)
	require.NoError(t, err)
	sp.Release(d)

	drained := sp.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, uint64(0), drained[0].Start)
	assert.Equal(t, uint64(20), drained[1].Start)
	assert.Empty(t, sp.Segments())

	_, err = sp.Acquire(ctx, 0)
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.ErrorIs(t, sp.Add(segment.Segment{Start: 50, End: 60, Handle: memory.NewZeroed(10)}), errors.ErrClosed)
}

func TestResolveCompletingAfterDrainClosesHandle(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	h := memory.NewZeroed(10)

	sp := newPool(t, segment.ResolverFunc(func(context.Context, uint64) (segment.Segment, error) {
		close(entered)
		<-proceed
		return segment.Segment{Start: 0, End: 10, Handle: h}, nil
	}), 0)

	errCh := make(chan error, 1)
	go func() {
		_, err := sp.Acquire(context.Background(), 3)
		errCh <- err
	}()

	<-entered
	sp.Drain()
	close(proceed)

	assert.ErrorIs(t, <-errCh, errors.ErrClosed)
	assert.True(t, h.Closed())
}

func TestCanceledWaiterDoesNotFailSharedResolution(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})

	sp := newPool(t, segment.ResolverFunc(func(ctx context.Context, offset uint64) (segment.Segment, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-proceed
		if err := ctx.Err(); err != nil {
			return segment.Segment{}, err
		}
		return segment.Segment{Start: 0, End: 10, Handle: memory.NewZeroed(10)}, nil
	}), 0)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := sp.Acquire(ctxA, 3)
		errA <- err
	}()
	<-entered

	type acquired struct {
		d   *index.Descriptor
		err error
	}
	resB := make(chan acquired, 1)
	go func() {
		d, err := sp.Acquire(context.Background(), 3)
		resB <- acquired{d, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(proceed)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, uint64(0), b.d.Start)
	assert.Equal(t, int32(1), calls.Load())

	sp.Release(b.d)
	assert.Eventually(t, func() bool {
		infos := sp.Segments()
		return len(infos) == 1 && !infos[0].Pinned
	}, time.Second, 5*time.Millisecond)
}

func TestAbandonedResolutionIsNotLeftPinned(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	r := &decades{}
	var once sync.Once

	sp := newPool(t, segment.ResolverFunc(func(ctx context.Context, offset uint64) (segment.Segment, error) {
		once.Do(func() { close(entered) })
		<-proceed
		return r.Resolve(ctx, offset)
	}), 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := sp.Acquire(ctx, 3)
		errCh <- err
	}()

	<-entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(proceed)

	assert.Eventually(t, func() bool {
		infos := sp.Segments()
		return len(infos) == 1 && !infos[0].Pinned
	}, time.Second, 5*time.Millisecond)

	// The abandoned segment can now be evicted like any other.
	d, err := sp.Acquire(context.Background(), 15)
	require.NoError(t, err)
	sp.Release(d)
	assert.Equal(t, []uint64{10}, starts(sp.Segments()))
}
