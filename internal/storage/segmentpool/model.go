package segmentpool

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iamBelugaa/segmux/internal/index"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// SegmentPool resolves addresses to open segments, caches them in the index and
// keeps the number of open resolved segments within limit.
type SegmentPool struct {
	mu       sync.Mutex
	clock    uint64 // Logical time handed out as Descriptor.LastUsed.
	limit    int
	closed   bool
	index    *index.Index
	resolver segment.Resolver
	inflight singleflight.Group
	stats    Stats
	log      *zap.SugaredLogger
}

// Stats counts pool activity since creation.
type Stats struct {
	Hits      atomic.Uint64 // Acquisitions served from the index.
	Misses    atomic.Uint64 // Acquisitions that had to go through the resolver.
	Resolves  atomic.Uint64 // Resolver invocations.
	Evictions atomic.Uint64 // Segments closed to honour the limit.
}

// StatsSnapshot is a plain copy of Stats.
type StatsSnapshot struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Resolves  uint64 `json:"resolves"`
	Evictions uint64 `json:"evictions"`
	Open      int    `json:"open"`
	Resolved  int    `json:"resolved"`
}

// resolution is the value shared by every caller waiting on the same resolver call.
// The descriptor carries one extra pin until the first waiter has pinned it itself.
type resolution struct {
	descriptor *index.Descriptor
	pending    atomic.Bool
}
