package errors

import (
	stdErrors "errors"
	"io/fs"
)

// StorageError is a specialized error type for the byte stores behind segments:
// shard files, object-store blobs and the shard manifest.
type StorageError struct {
	*baseError
	shardID  uint64
	offset   int64
	fileName string
	path     string
}

// NewStorageError creates a new storage-specific error with the provided context.
func NewStorageError(err error, code ErrorCode, msg string) *StorageError {
	return &StorageError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message.
func (se *StorageError) WithMessage(msg string) *StorageError {
	se.baseError.WithMessage(msg)
	return se
}

// WithCode sets the error code.
func (se *StorageError) WithCode(code ErrorCode) *StorageError {
	se.baseError.WithCode(code)
	return se
}

// WithDetail adds contextual information.
func (se *StorageError) WithDetail(key string, value any) *StorageError {
	se.baseError.WithDetail(key, value)
	return se
}

// WithShardID sets which shard was involved in the error.
func (se *StorageError) WithShardID(id uint64) *StorageError {
	se.shardID = id
	return se
}

// WithOffset records the byte position, local to the store, where the error occurred.
func (se *StorageError) WithOffset(offset int64) *StorageError {
	se.offset = offset
	return se
}

// WithFileName captures which file or object was being processed when the error occurred.
func (se *StorageError) WithFileName(fileName string) *StorageError {
	se.fileName = fileName
	return se
}

// WithPath captures which filesystem path or bucket was being processed during the error.
func (se *StorageError) WithPath(path string) *StorageError {
	se.path = path
	return se
}

// ShardID returns the shard identifier where the error occurred.
func (se *StorageError) ShardID() uint64 {
	return se.shardID
}

// Offset returns the byte offset within the store where the error happened.
func (se *StorageError) Offset() int64 {
	return se.offset
}

// FileName returns the name of the file or object that was being processed.
func (se *StorageError) FileName() string {
	return se.fileName
}

// Path returns the full filesystem path or bucket that was being processed.
func (se *StorageError) Path() string {
	return se.path
}

// ClassifyFileOpenError wraps a failed os.OpenFile, recording why the file could
// not be opened.
func ClassifyFileOpenError(err error, path, fileName string) *StorageError {
	reason := "unknown"
	switch {
	case stdErrors.Is(err, fs.ErrNotExist):
		reason = "not_found"
	case stdErrors.Is(err, fs.ErrPermission):
		reason = "permission_denied"
	case stdErrors.Is(err, fs.ErrExist):
		reason = "already_exists"
	}

	return NewStorageError(err, ErrIOOpenFailed, "failed to open file").
		WithPath(path).
		WithFileName(fileName).
		WithDetail("reason", reason)
}
