// Package shard maps the address space onto fixed-size shards: offset o lives in
// shard o/size, which covers [id*size, (id+1)*size).
package shard

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// Opener produces the handle backing one shard.
type Opener interface {
	Open(ctx context.Context, id uint64) (segment.Handle, error)
}

type OpenerFunc func(ctx context.Context, id uint64) (segment.Handle, error)

func (f OpenerFunc) Open(ctx context.Context, id uint64) (segment.Handle, error) {
	return f(ctx, id)
}

// Resolver is a segment.Resolver handing out fixed-size shards.
type Resolver struct {
	opener Opener
	size   uint64
	log    *zap.SugaredLogger
}

func NewResolver(opener Opener, size uint64, log *zap.SugaredLogger) (*Resolver, error) {
	if size == 0 {
		return nil, errors.NewFieldRangeError("shardSize", size, 1, uint64(math.MaxUint64))
	}
	return &Resolver{opener: opener, size: size, log: log}, nil
}

// Bounds returns the shard id covering offset and its address range. The last
// shard is cut short at the top of the address space.
func (r *Resolver) Bounds(offset uint64) (id, start, end uint64) {
	id = offset / r.size
	start = id * r.size
	end = start + r.size
	if end < start {
		end = math.MaxUint64
	}
	return id, start, end
}

func (r *Resolver) Resolve(ctx context.Context, offset uint64) (segment.Segment, error) {
	id, start, end := r.Bounds(offset)

	r.log.Debugw("Opening shard", "offset", offset, "shardID", id, "start", start, "end", end)
	h, err := r.opener.Open(ctx, id)
	if err != nil {
		return segment.Segment{}, fmt.Errorf("open shard %d: %w", id, err)
	}

	return segment.Segment{Start: start, End: end, Handle: h}, nil
}
