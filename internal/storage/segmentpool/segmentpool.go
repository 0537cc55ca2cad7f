package segmentpool

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iamBelugaa/segmux/internal/index"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// New creates a pool over idx. A nil resolver restricts the pool to statically
// registered segments; limit <= 0 leaves the number of open segments unbounded.
func New(idx *index.Index, resolver segment.Resolver, limit int, log *zap.SugaredLogger) *SegmentPool {
	log.Infow("Initializing segment pool", "limit", limit, "resolver", resolver != nil)
	return &SegmentPool{
		log:      log,
		index:    idx,
		limit:    limit,
		resolver: resolver,
	}
}

// Add registers a pre-resolved segment. Static segments are never evicted.
func (sp *SegmentPool) Add(seg segment.Segment) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.closed {
		return errors.ErrClosed
	}

	if _, err := sp.index.Add(seg, true); err != nil {
		return err
	}

	sp.log.Infow("Static segment registered", "start", seg.Start, "end", seg.End, "open", sp.index.Len())
	return nil
}

// Acquire returns the descriptor covering offset, pinned. Every successful Acquire
// must be paired with a Release.
func (sp *SegmentPool) Acquire(ctx context.Context, offset uint64) (*index.Descriptor, error) {
	for {
		sp.mu.Lock()
		if sp.closed {
			sp.mu.Unlock()
			return nil, errors.ErrClosed
		}

		if d, ok := sp.index.Find(offset); ok {
			sp.pinLocked(d)
			sp.mu.Unlock()

			sp.stats.Hits.Add(1)
			sp.log.Debugw("Segment pool hit", "offset", offset, "start", d.Start, "end", d.End)
			return d, nil
		}
		sp.mu.Unlock()

		if sp.resolver == nil {
			return nil, errors.NewSegmentError(
				nil, errors.ErrSegmentNotFound,
				fmt.Sprintf("no segment covers offset %d and no resolver is configured", offset),
			).
				WithOffset(offset).
				WithOperation("lookup")
		}

		sp.stats.Misses.Add(1)

		// The shared resolution outlives any single caller's context.
		shared := context.WithoutCancel(ctx)
		ch := sp.inflight.DoChan(strconv.FormatUint(offset, 10), func() (any, error) {
			return sp.resolve(shared, offset)
		})

		var result singleflight.Result
		select {
		case result = <-ch:
		case <-ctx.Done():
			go sp.abandon(ch)
			return nil, ctx.Err()
		}
		if result.Err != nil {
			return nil, result.Err
		}

		res := result.Val.(*resolution)
		if d, ok := sp.claim(res); ok {
			return d, nil
		}

		// Evicted between resolution and claim; look it up again.
		sp.log.Infow("Resolved segment evicted before use, retrying", "offset", offset, "shared", result.Shared)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Release unpins d and closes whatever the limit no longer allows to stay open.
func (sp *SegmentPool) Release(d *index.Descriptor) {
	sp.mu.Lock()
	d.Pins--
	victims := sp.evictLocked()
	sp.mu.Unlock()

	sp.closeEvicted(victims)
}

// Segments returns a snapshot of every open segment in ascending address order.
func (sp *SegmentPool) Segments() []segment.Info {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	descriptors := sp.index.Descriptors()
	infos := make([]segment.Info, 0, len(descriptors))
	for _, d := range descriptors {
		infos = append(infos, d.Info())
	}
	return infos
}

// Stats returns the pool counters and the current number of open segments.
func (sp *SegmentPool) Stats() StatsSnapshot {
	return StatsSnapshot{
		Hits:      sp.stats.Hits.Load(),
		Misses:    sp.stats.Misses.Load(),
		Resolves:  sp.stats.Resolves.Load(),
		Evictions: sp.stats.Evictions.Load(),
		Open:      sp.index.Len(),
		Resolved:  sp.index.Resolved(),
	}
}

// Drain retires the pool and hands back every open descriptor, ascending. Closing
// their handles is left to the caller.
func (sp *SegmentPool) Drain() []*index.Descriptor {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	sp.closed = true
	return sp.index.Clear()
}

// resolve asks the resolver for the segment covering offset and registers it.
func (sp *SegmentPool) resolve(ctx context.Context, offset uint64) (*resolution, error) {
	sp.stats.Resolves.Add(1)
	sp.log.Infow("Resolving segment", "offset", offset)

	seg, err := sp.resolver.Resolve(ctx, offset)
	if err != nil {
		sp.log.Errorw("Resolver failed", "offset", offset, "error", err)
		return nil, errors.NewResolveError(
			err, errors.ErrResolveFailed, fmt.Sprintf("failed to resolve segment for offset %d", offset),
		).
			WithOffset(offset)
	}

	if seg.Handle == nil || seg.Start >= seg.End || !seg.Contains(offset) {
		if seg.Handle != nil {
			sp.closeHandle(seg, "invalid")
		}
		return nil, errors.NewResolveError(
			nil, errors.ErrResolveInvalidRange,
			fmt.Sprintf("resolver returned segment [%d, %d) which cannot serve offset %d", seg.Start, seg.End, offset),
		).
			WithOffset(offset).
			WithDetail("start", seg.Start).
			WithDetail("end", seg.End).
			WithDetail("handle", seg.Handle != nil)
	}

	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		sp.closeHandle(seg, "closed")
		return nil, errors.ErrClosed
	}

	// A concurrent resolution for another offset in the same segment got there first.
	if existing, ok := sp.index.Lookup(seg.Start, seg.End); ok {
		existing.Pins++
		sp.mu.Unlock()

		sp.closeHandle(seg, "duplicate")
		res := &resolution{descriptor: existing}
		res.pending.Store(true)
		return res, nil
	}

	d, err := sp.index.Add(seg, false)
	if err != nil {
		sp.mu.Unlock()
		sp.closeHandle(seg, "conflict")
		return nil, err
	}
	d.Pins++
	sp.mu.Unlock()

	sp.log.Infow(
		"Segment resolved and cached",
		"offset", offset,
		"start", seg.Start,
		"end", seg.End,
		"open", sp.index.Len(),
		"resolved", sp.index.Resolved(),
	)

	res := &resolution{descriptor: d}
	res.pending.Store(true)
	return res, nil
}

// claim pins the shared resolution for the calling waiter. It fails when the
// descriptor has already been evicted again.
func (sp *SegmentPool) claim(res *resolution) (*index.Descriptor, bool) {
	d := res.descriptor

	sp.mu.Lock()
	current, ok := sp.index.Lookup(d.Start, d.End)
	if sp.closed || !ok || current != d {
		sp.mu.Unlock()
		return nil, false
	}

	sp.pinLocked(d)
	if res.pending.CompareAndSwap(true, false) {
		d.Pins--
	}
	victims := sp.evictLocked()
	sp.mu.Unlock()

	sp.closeEvicted(victims)
	return d, true
}

// abandon waits for a resolution its caller gave up on and drops the pending pin
// unless another waiter already claimed it.
func (sp *SegmentPool) abandon(ch <-chan singleflight.Result) {
	result := <-ch
	if result.Err != nil {
		return
	}
	res := result.Val.(*resolution)

	sp.mu.Lock()
	if !res.pending.CompareAndSwap(true, false) {
		sp.mu.Unlock()
		return
	}
	res.descriptor.Pins--
	victims := sp.evictLocked()
	sp.mu.Unlock()

	sp.closeEvicted(victims)
}

func (sp *SegmentPool) pinLocked(d *index.Descriptor) {
	sp.clock++
	d.LastUsed = sp.clock
	d.Pins++
}

// evictLocked removes least-recently-used unpinned resolved descriptors until the
// limit holds or nothing else can go. Pinned and static descriptors are skipped;
// ties on recency fall back to insertion order.
func (sp *SegmentPool) evictLocked() []*index.Descriptor {
	if sp.limit <= 0 || sp.closed {
		return nil
	}

	var victims []*index.Descriptor
	for sp.index.Resolved() > sp.limit {
		var victim *index.Descriptor
		sp.index.Ascend(func(d *index.Descriptor) bool {
			if d.Static || d.Pins > 0 {
				return true
			}
			if victim == nil || d.LastUsed < victim.LastUsed || (d.LastUsed == victim.LastUsed && d.Seq < victim.Seq) {
				victim = d
			}
			return true
		})

		if victim == nil {
			sp.log.Debugw(
				"Segment limit exceeded but every resolved segment is pinned",
				"limit", sp.limit,
				"resolved", sp.index.Resolved(),
			)
			break
		}

		sp.index.Remove(victim)
		victims = append(victims, victim)
	}

	return victims
}

func (sp *SegmentPool) closeEvicted(victims []*index.Descriptor) {
	for _, d := range victims {
		sp.stats.Evictions.Add(1)
		if err := d.Handle.Close(); err != nil {
			sp.log.Errorw("Failed to close evicted segment", "start", d.Start, "end", d.End, "error", err)
			continue
		}
		sp.log.Infow("Segment evicted", "start", d.Start, "end", d.End, "limit", sp.limit)
	}
}

func (sp *SegmentPool) closeHandle(seg segment.Segment, reason string) {
	if err := seg.Handle.Close(); err != nil {
		sp.log.Errorw("Failed to close discarded segment", "start", seg.Start, "end", seg.End, "reason", reason, "error", err)
	}
}
