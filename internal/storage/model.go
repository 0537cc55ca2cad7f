package storage

import (
	"context"
	stdErrors "errors"

	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/internal/storage/segmentpool"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

var (
	errShortRead = stdErrors.New("handle returned fewer bytes than requested")
)

// Storage splits address-range operations across the segments they touch.
type Storage struct {
	pool *segmentpool.SegmentPool
	log  *zap.SugaredLogger
}

// chunk is the part of a request served by a single segment.
type chunk struct {
	Local  uint64 // Offset inside the segment.
	Length uint64 // Bytes served by the segment.
	Done   uint64 // Bytes of the request served by earlier segments.
}

// subOperation runs one chunk against a segment handle.
type subOperation func(ctx context.Context, handle segment.Handle, c chunk) error

// maxReadPrealloc caps the buffer reserved up front by Read.
const maxReadPrealloc = 1 << 20

// Operation names used in logs and errors.
const (
	opRead   = "read"
	opWrite  = "write"
	opDelete = "delete"
)
