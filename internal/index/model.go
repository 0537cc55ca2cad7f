package index

import (
	"sync"

	"github.com/google/btree"

	"github.com/iamBelugaa/segmux/pkg/segment"
)

// Descriptor is a segment held by the index together with the bookkeeping the
// segment pool needs for eviction. Only Start, End and Handle are immutable; the
// remaining fields are owned by the pool and must be accessed under its lock.
type Descriptor struct {
	segment.Segment

	Static   bool   // Registered explicitly; never evicted.
	Seq      uint64 // Insertion order, used to break recency ties.
	LastUsed uint64 // Logical time of the most recent acquisition.
	Pins     int    // Number of in-flight sub-operations referencing the descriptor.
}

// Info returns a read-only snapshot of the descriptor.
func (d *Descriptor) Info() segment.Info {
	return segment.Info{Start: d.Start, End: d.End, Static: d.Static, Pinned: d.Pins > 0}
}

// Index keeps descriptors ordered by Start in a B-tree and answers address lookups.
type Index struct {
	mu       sync.RWMutex
	seq      uint64
	resolved int
	tree     *btree.BTreeG[*Descriptor]
}

func byStart(a, b *Descriptor) bool {
	return a.Start < b.Start
}
