package index

import (
	"fmt"

	"github.com/google/btree"

	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

const degree = 16

func New() *Index {
	return &Index{tree: btree.NewG[*Descriptor](degree, byStart)}
}

// Find returns the descriptor whose range contains offset.
func (idx *Index) Find(offset uint64) (*Descriptor, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	d := idx.floor(offset)
	if d == nil || offset >= d.End {
		return nil, false
	}
	return d, true
}

// Add inserts seg keeping the index ordered. A range that overlaps an existing
// descriptor is rejected and the index is left unchanged.
func (idx *Index) Add(seg segment.Segment, static bool) (*Descriptor, error) {
	if seg.Start >= seg.End {
		return nil, errors.NewValidationError(
			nil, errors.ErrValidationInvalidData,
			fmt.Sprintf("segment range [%d, %d) is empty", seg.Start, seg.End),
		).
			WithField("end").
			WithProvided(seg.End).
			WithExpected(fmt.Sprintf("> %d", seg.Start))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing := idx.overlapping(seg); existing != nil {
		return nil, errors.NewSegmentError(
			nil, errors.ErrSegmentConflict,
			fmt.Sprintf(
				"segment [%d, %d) overlaps registered segment [%d, %d)",
				seg.Start, seg.End, existing.Start, existing.End,
			),
		).
			WithOperation("add").
			WithOffset(seg.Start).
			WithRange(existing.Start, existing.End)
	}

	idx.seq++
	d := &Descriptor{Segment: seg, Static: static, Seq: idx.seq}
	idx.tree.ReplaceOrInsert(d)
	if !static {
		idx.resolved++
	}
	return d, nil
}

// Lookup returns the descriptor registered with exactly the given bounds.
func (idx *Index) Lookup(start, end uint64) (*Descriptor, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	d, ok := idx.tree.Get(&Descriptor{Segment: segment.Segment{Start: start}})
	if !ok || d.End != end {
		return nil, false
	}
	return d, true
}

// Remove drops d from the index. It reports false when d is not the descriptor
// currently registered at its Start.
func (idx *Index) Remove(d *Descriptor) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	current, ok := idx.tree.Get(d)
	if !ok || current != d {
		return false
	}

	idx.tree.Delete(d)
	if !d.Static {
		idx.resolved--
	}
	return true
}

// Len returns the number of registered descriptors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// Resolved returns the number of descriptors produced by a resolver.
func (idx *Index) Resolved() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.resolved
}

// Ascend calls fn for each descriptor in ascending address order until fn returns false.
func (idx *Index) Ascend(fn func(d *Descriptor) bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	idx.tree.Ascend(btree.ItemIteratorG[*Descriptor](fn))
}

// Descriptors returns every descriptor in ascending address order.
func (idx *Index) Descriptors() []*Descriptor {
	descriptors := make([]*Descriptor, 0, idx.Len())
	idx.Ascend(func(d *Descriptor) bool {
		descriptors = append(descriptors, d)
		return true
	})
	return descriptors
}

// Clear drops every descriptor and returns them in ascending address order.
func (idx *Index) Clear() []*Descriptor {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	descriptors := make([]*Descriptor, 0, idx.tree.Len())
	idx.tree.Ascend(func(d *Descriptor) bool {
		descriptors = append(descriptors, d)
		return true
	})

	idx.tree.Clear(false)
	idx.resolved = 0
	return descriptors
}

// floor returns the descriptor with the greatest Start <= offset.
func (idx *Index) floor(offset uint64) *Descriptor {
	var found *Descriptor
	idx.tree.DescendLessOrEqual(&Descriptor{Segment: segment.Segment{Start: offset}}, func(d *Descriptor) bool {
		found = d
		return false
	})
	return found
}

// overlapping returns a registered descriptor sharing an address with seg, if any.
func (idx *Index) overlapping(seg segment.Segment) *Descriptor {
	if prev := idx.floor(seg.Start); prev != nil && prev.End > seg.Start {
		return prev
	}

	var next *Descriptor
	idx.tree.AscendGreaterOrEqual(&Descriptor{Segment: segment.Segment{Start: seg.Start}}, func(d *Descriptor) bool {
		next = d
		return false
	})
	if next != nil && next.Start < seg.End {
		return next
	}
	return nil
}
