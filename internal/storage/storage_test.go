package storage

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iamBelugaa/segmux/internal/index"
	"github.com/iamBelugaa/segmux/internal/storage/segmentpool"
	"github.com/iamBelugaa/segmux/pkg/backend/memory"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

type call struct {
	op     string
	local  uint64
	length uint64
}

// recorder wraps a memory handle and records every sub-operation it receives.
type recorder struct {
	*memory.Memory

	mu    sync.Mutex
	calls []call
	fail  error
	short bool
}

func newRecorder(size uint64) *recorder {
	return &recorder{Memory: memory.NewZeroed(size)}
}

func (r *recorder) record(op string, local, length uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op, local, length})
	return r.fail
}

func (r *recorder) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := r.record(opRead, offset, length); err != nil {
		return nil, err
	}
	data, err := r.Memory.Read(ctx, offset, length)
	if r.short && err == nil {
		data = data[:len(data)-1]
	}
	return data, err
}

func (r *recorder) Write(ctx context.Context, offset uint64, data []byte) error {
	if err := r.record(opWrite, offset, uint64(len(data))); err != nil {
		return err
	}
	return r.Memory.Write(ctx, offset, data)
}

func (r *recorder) Delete(ctx context.Context, offset, length uint64) error {
	if err := r.record(opDelete, offset, length); err != nil {
		return err
	}
	return r.Memory.Delete(ctx, offset, length)
}

func (r *recorder) recorded() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// newStatic builds a Storage over statically registered segments of the given sizes,
// laid out back to back from address 0.
func newStatic(t *testing.T, sizes ...uint64) (*Storage, []*recorder) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	pool := segmentpool.New(index.New(), nil, 0, log)

	var start uint64
	handles := make([]*recorder, 0, len(sizes))
	for _, size := range sizes {
		h := newRecorder(size)
		require.NoError(t, pool.Add(segment.Segment{Start: start, End: start + size, Handle: h}))
		handles = append(handles, h)
		start += size
	}

	return New(pool, log), handles
}

func TestZeroLengthCompletesWithoutLookup(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	pool := segmentpool.New(index.New(), segment.ResolverFunc(func(context.Context, uint64) (segment.Segment, error) {
		t.Fatal("resolver must not be called for empty ranges")
		return segment.Segment{}, nil
	}), 0, log)
	s := New(pool, log)
	ctx := context.Background()

	data, err := s.Read(ctx, 1000, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.NoError(t, s.Write(ctx, 1000, nil))
	assert.NoError(t, s.Delete(ctx, 1000, 0))
}

func TestWriteThenReadAcrossSegments(t *testing.T) {
	ctx := context.Background()
	s, _ := newStatic(t, 10, 10, 10)

	payload := []byte("0123456789abcdefghijklmno")
	require.NoError(t, s.Write(ctx, 0, payload))

	got, err := s.Read(ctx, 0, 25)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	got, err = s.Read(ctx, 8, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("89abc"), got)
}

func TestSubOperationsUseLocalOffsets(t *testing.T) {
	ctx := context.Background()
	s, handles := newStatic(t, 14, 28, 4)

	require.NoError(t, s.Write(ctx, 10, make([]byte, 35)))

	assert.Equal(t, []call{{opWrite, 10, 4}}, handles[0].recorded())
	assert.Equal(t, []call{{opWrite, 0, 28}}, handles[1].recorded())
	assert.Equal(t, []call{{opWrite, 0, 3}}, handles[2].recorded())

	require.NoError(t, s.Delete(ctx, 15, 2))
	assert.Equal(t, call{opDelete, 1, 2}, handles[1].recorded()[1])
	assert.Len(t, handles[0].recorded(), 1, "segments outside the range are untouched")
	assert.Len(t, handles[2].recorded(), 1)
}

func TestWriteLandsInMiddleSegment(t *testing.T) {
	ctx := context.Background()
	s, handles := newStatic(t, 14, 28, 4)

	require.NoError(t, s.Write(ctx, 15, []byte("hi")))

	got, err := handles[1].Memory.Read(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
}

func TestFailureAbortsRemainingChunks(t *testing.T) {
	ctx := context.Background()
	s, handles := newStatic(t, 10, 10, 10)
	boom := stdErrors.New("disk on fire")
	handles[1].fail = boom

	err := s.Write(ctx, 0, []byte("aaaaaaaaaabbbbbbbbbbcccccccccc"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	se, ok := errors.AsSegmentError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrHandleWriteFailed, se.Code())
	assert.Equal(t, uint64(10), se.Offset())
	start, end := se.Range()
	assert.Equal(t, [2]uint64{10, 20}, [2]uint64{start, end})
	assert.Equal(t, opWrite, se.Operation())

	assert.Equal(t, []byte("aaaaaaaaaa"), handles[0].Bytes(), "earlier chunks are not rolled back")
	assert.Empty(t, handles[2].recorded(), "later segments are never reached")
}

func TestErrorCodesFollowOperation(t *testing.T) {
	ctx := context.Background()
	s, handles := newStatic(t, 10)
	handles[0].fail = stdErrors.New("nope")

	_, err := s.Read(ctx, 0, 1)
	assert.True(t, errors.IsCode(err, errors.ErrHandleReadFailed))
	assert.True(t, errors.IsCode(s.Delete(ctx, 0, 1), errors.ErrHandleDeleteFailed))
}

func TestShortReadIsAnError(t *testing.T) {
	s, handles := newStatic(t, 10)
	handles[0].short = true

	_, err := s.Read(context.Background(), 0, 4)
	assert.True(t, errors.IsCode(err, errors.ErrHandleShortRead))
}

func TestGapWithoutResolver(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	pool := segmentpool.New(index.New(), nil, 0, log)
	first := newRecorder(10)
	require.NoError(t, pool.Add(segment.Segment{Start: 0, End: 10, Handle: first}))
	require.NoError(t, pool.Add(segment.Segment{Start: 20, End: 30, Handle: newRecorder(10)}))
	s := New(pool, log)

	_, err := s.Read(context.Background(), 5, 20)
	assert.True(t, errors.IsCode(err, errors.ErrSegmentNotFound))
	assert.Len(t, first.recorded(), 1, "the first chunk ran before the gap was hit")
}

func TestHugeReadOnUncoveredAddressFailsLookup(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	s := New(segmentpool.New(index.New(), nil, 0, log), log)

	for _, length := range []uint64{1 << 40, 1 << 62} {
		data, err := s.Read(context.Background(), 0, length)
		assert.Nil(t, data)
		assert.True(t, errors.IsCode(err, errors.ErrSegmentNotFound), "length %d", length)
	}
}

func TestHugeReadPastLastSegmentKeepsFirstChunk(t *testing.T) {
	s, handles := newStatic(t, 10)

	_, err := s.Read(context.Background(), 4, 1<<62)
	assert.True(t, errors.IsCode(err, errors.ErrSegmentNotFound))
	assert.Equal(t, []call{{opRead, 4, 6}}, handles[0].recorded())
}

func TestOverflowingRangeIsRejected(t *testing.T) {
	s, handles := newStatic(t, 10)

	_, err := s.Read(context.Background(), ^uint64(0)-2, 10)
	ve, ok := errors.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "length", ve.Field())
	assert.Empty(t, handles[0].recorded())
}

func TestCanceledContextStopsBeforeDispatch(t *testing.T) {
	s, handles := newStatic(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Write(ctx, 0, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, handles[0].recorded())
}

func TestSegmentsAreUnpinnedAfterOperations(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	idx := index.New()
	pool := segmentpool.New(idx, nil, 0, log)
	require.NoError(t, pool.Add(segment.Segment{Start: 0, End: 10, Handle: newRecorder(10)}))
	s := New(pool, log)

	_, err := s.Read(context.Background(), 0, 10)
	require.NoError(t, err)

	for _, info := range pool.Segments() {
		assert.False(t, info.Pinned)
	}
}
