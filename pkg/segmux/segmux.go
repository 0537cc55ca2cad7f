// Package segmux presents many independently opened storage segments as one
// byte-addressable space. Segments are registered up front with Add or produced
// on demand by a Resolver, and an optional limit bounds how many resolved
// segments stay open.
package segmux

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/internal/engine"
	"github.com/iamBelugaa/segmux/pkg/logger"
	"github.com/iamBelugaa/segmux/pkg/options"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// Stats reports segment pool counters.
type Stats = engine.Stats

type Instance struct {
	engine  *engine.Engine
	options *options.Options
	log     *zap.SugaredLogger
}

// New creates a router. resolver may be nil, in which case only addresses covered
// by segments registered with Add are reachable.
func New(ctx context.Context, resolver segment.Resolver, opts ...options.OptionFunc) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defaultOpts := options.DefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	if err := defaultOpts.Validate(); err != nil {
		return nil, err
	}

	log := defaultOpts.Logger
	if log == nil {
		log = logger.New(defaultOpts.Service, defaultOpts.LogLevel)
	}

	eng, err := engine.New(log, resolver, &defaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize segmux: %w", err)
	}

	log.Infow(
		"Segmux router initialized successfully",
		"service", defaultOpts.Service,
		"limit", defaultOpts.Limit,
		"resolver", resolver != nil,
	)

	return &Instance{engine: eng, options: &defaultOpts, log: log}, nil
}

// Add registers a segment that is never evicted. Its range must not overlap any
// segment already known to the router.
func (i *Instance) Add(seg segment.Segment) error {
	if err := isValidSegment(seg); err != nil {
		return err
	}
	return i.engine.Add(seg)
}

// Read returns length bytes starting at offset.
func (i *Instance) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := isValidRange(offset, length); err != nil {
		return nil, err
	}
	return i.engine.Read(ctx, offset, length)
}

// Write stores data starting at offset. Chunks are written in ascending address
// order and a failure leaves the earlier chunks written.
func (i *Instance) Write(ctx context.Context, offset uint64, data []byte) error {
	if err := isValidRange(offset, uint64(len(data))); err != nil {
		return err
	}
	return i.engine.Write(ctx, offset, data)
}

// Delete discards length bytes starting at offset. What a deleted range reads back
// as is up to the segment handles.
func (i *Instance) Delete(ctx context.Context, offset, length uint64) error {
	if err := isValidRange(offset, length); err != nil {
		return err
	}
	return i.engine.Delete(ctx, offset, length)
}

// Segments returns a snapshot of the open segments ordered by start address.
func (i *Instance) Segments() []segment.Info {
	return i.engine.Segments()
}

func (i *Instance) Stats() Stats {
	return i.engine.Stats()
}

// Close closes every open segment and retires the router. It returns the first
// close failure after all closes settled; a second call returns errors.ErrClosed.
func (i *Instance) Close() error {
	i.log.Infow("Close request received")
	return i.engine.Close()
}
