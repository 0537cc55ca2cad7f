package errors

// SegmentError reports a failure tied to a segment of the address space: a missing
// segment, a conflicting registration, or a failed sub-operation on a segment handle.
type SegmentError struct {
	*baseError
	offset    uint64
	start     uint64
	end       uint64
	operation string
}

// NewSegmentError creates a new segment-specific error with the provided context.
func NewSegmentError(err error, code ErrorCode, msg string) *SegmentError {
	return &SegmentError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message.
func (se *SegmentError) WithMessage(msg string) *SegmentError {
	se.baseError.WithMessage(msg)
	return se
}

// WithCode sets the error code.
func (se *SegmentError) WithCode(code ErrorCode) *SegmentError {
	se.baseError.WithCode(code)
	return se
}

// WithDetail adds contextual information.
func (se *SegmentError) WithDetail(key string, value any) *SegmentError {
	se.baseError.WithDetail(key, value)
	return se
}

// WithOffset records the absolute address being processed.
func (se *SegmentError) WithOffset(offset uint64) *SegmentError {
	se.offset = offset
	return se
}

// WithRange records the bounds of the segment involved, end exclusive.
func (se *SegmentError) WithRange(start, end uint64) *SegmentError {
	se.start = start
	se.end = end
	return se
}

// WithOperation records which sub-operation was running (read, write, delete, close).
func (se *SegmentError) WithOperation(operation string) *SegmentError {
	se.operation = operation
	return se
}

// Offset returns the absolute address at which the error occurred.
func (se *SegmentError) Offset() uint64 {
	return se.offset
}

// Range returns the bounds of the segment involved.
func (se *SegmentError) Range() (uint64, uint64) {
	return se.start, se.end
}

// Operation returns the name of the sub-operation that was running.
func (se *SegmentError) Operation() string {
	return se.operation
}
