// Package segment defines the contract between the router and the byte stores it
// stitches together: a Handle serving one contiguous range and a Resolver that
// produces Handles on demand.
package segment

import "context"

// Handle is the capability a segment delegates to. All offsets are local to the
// segment, 0 being the segment's Start.
type Handle interface {
	// Read returns exactly length bytes starting at offset.
	Read(ctx context.Context, offset, length uint64) ([]byte, error)

	// Write stores data starting at offset.
	Write(ctx context.Context, offset uint64, data []byte) error

	// Delete discards length bytes starting at offset. What "discard" means
	// (zero-fill, hole punching, logical deletion) is up to the implementation.
	Delete(ctx context.Context, offset, length uint64) error

	// Close releases the underlying store. The handle is not used afterwards.
	Close() error
}

// Segment binds a Handle to the absolute range [Start, End) of the address space.
type Segment struct {
	Start  uint64
	End    uint64
	Handle Handle
}

// Len returns the number of addressable bytes in the segment.
func (s Segment) Len() uint64 {
	return s.End - s.Start
}

// Contains reports whether offset falls inside [Start, End).
func (s Segment) Contains(offset uint64) bool {
	return offset >= s.Start && offset < s.End
}

// Overlaps reports whether the two segments share at least one address.
func (s Segment) Overlaps(other Segment) bool {
	return s.Start < other.End && other.Start < s.End
}

// Resolver produces the segment covering an absolute address on a cache miss.
type Resolver interface {
	Resolve(ctx context.Context, offset uint64) (Segment, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, offset uint64) (Segment, error)

// Resolve calls f(ctx, offset).
func (f ResolverFunc) Resolve(ctx context.Context, offset uint64) (Segment, error) {
	return f(ctx, offset)
}

// Info is a read-only view of a segment currently held by a router.
type Info struct {
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Static bool   `json:"static"` // Registered with Add rather than produced by the resolver.
	Pinned bool   `json:"pinned"` // Referenced by at least one in-flight sub-operation.
}
