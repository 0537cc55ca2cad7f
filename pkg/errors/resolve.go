package errors

// ResolveError is returned when the external resolver fails or hands back a
// segment that cannot serve the requested address.
type ResolveError struct {
	*baseError
	offset uint64
}

// NewResolveError creates a new resolver error with the provided context.
func NewResolveError(err error, code ErrorCode, msg string) *ResolveError {
	return &ResolveError{baseError: NewBaseError(err, code, msg)}
}

// WithDetail adds contextual information.
func (re *ResolveError) WithDetail(key string, value any) *ResolveError {
	re.baseError.WithDetail(key, value)
	return re
}

// WithOffset records the probe address handed to the resolver.
func (re *ResolveError) WithOffset(offset uint64) *ResolveError {
	re.offset = offset
	return re
}

// Offset returns the probe address handed to the resolver.
func (re *ResolveError) Offset() uint64 {
	return re.offset
}
