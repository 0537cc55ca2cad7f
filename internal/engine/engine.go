// Package engine ties the segment index, the segment pool and the range engine
// together and owns the router's lifecycle.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iamBelugaa/segmux/internal/index"
	"github.com/iamBelugaa/segmux/internal/storage"
	"github.com/iamBelugaa/segmux/internal/storage/segmentpool"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/options"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// Engine represents the router core that coordinates all subsystems.
type Engine struct {
	closed  atomic.Bool
	pool    *segmentpool.SegmentPool
	storage *storage.Storage
	options *options.Options
	log     *zap.SugaredLogger
}

// Stats describes the engine's segment activity.
type Stats = segmentpool.StatsSnapshot

// New creates an Engine. resolver may be nil, in which case only segments added
// with Add are reachable.
func New(log *zap.SugaredLogger, resolver segment.Resolver, options *options.Options) (*Engine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	log.Infow("Initializing engine", "limit", options.Limit, "resolver", resolver != nil)

	pool := segmentpool.New(index.New(), resolver, options.Limit, log)
	return &Engine{
		log:     log,
		pool:    pool,
		options: options,
		storage: storage.New(pool, log),
	}, nil
}

// Add registers a pre-resolved segment.
func (e *Engine) Add(seg segment.Segment) error {
	if e.closed.Load() {
		return errors.ErrClosed
	}
	return e.pool.Add(seg)
}

// Read returns length bytes starting at offset.
func (e *Engine) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if e.closed.Load() {
		return nil, errors.ErrClosed
	}

	e.log.Debugw("Starting Read operation", "offset", offset, "length", length)
	return e.storage.Read(ctx, offset, length)
}

// Write stores data starting at offset.
func (e *Engine) Write(ctx context.Context, offset uint64, data []byte) error {
	if e.closed.Load() {
		return errors.ErrClosed
	}

	e.log.Debugw("Starting Write operation", "offset", offset, "length", len(data))
	return e.storage.Write(ctx, offset, data)
}

// Delete discards length bytes starting at offset.
func (e *Engine) Delete(ctx context.Context, offset, length uint64) error {
	if e.closed.Load() {
		return errors.ErrClosed
	}

	e.log.Debugw("Starting Delete operation", "offset", offset, "length", length)
	return e.storage.Delete(ctx, offset, length)
}

// Segments lists the currently open segments in ascending address order.
func (e *Engine) Segments() []segment.Info {
	return e.pool.Segments()
}

// Stats returns pool counters.
func (e *Engine) Stats() Stats {
	return e.pool.Stats()
}

// Close closes every open segment concurrently, waits for all of them and returns
// the first failure. Every handle gets its Close call even when others fail.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return errors.ErrClosed
	}

	descriptors := e.pool.Drain()
	e.log.Infow("Closing engine", "segments", len(descriptors))

	var g errgroup.Group
	for _, d := range descriptors {
		g.Go(func() error {
			if err := d.Handle.Close(); err != nil {
				e.log.Errorw("Failed to close segment", "start", d.Start, "end", d.End, "error", err)
				return errors.NewSegmentError(
					err, errors.ErrHandleCloseFailed,
					fmt.Sprintf("failed to close segment [%d, %d)", d.Start, d.End),
				).
					WithOffset(d.Start).
					WithRange(d.Start, d.End).
					WithOperation("close")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	e.log.Infow("Engine closed successfully", "segments", len(descriptors))
	return nil
}
