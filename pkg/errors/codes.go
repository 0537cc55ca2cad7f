package errors

type ErrorCode string

const (
	ErrIOGeneral     ErrorCode = "IO_GENERAL"
	ErrIOSyncFailed  ErrorCode = "IO_SYNC_FAILED"
	ErrIOReadFailed  ErrorCode = "IO_READ_FAILED"
	ErrIOWriteFailed ErrorCode = "IO_WRITE_FAILED"
	ErrIOCloseFailed ErrorCode = "IO_CLOSE_FAILED"
	ErrIOOpenFailed  ErrorCode = "IO_OPEN_FAILED"

	ErrSystemUnsupportedVersion ErrorCode = "SYSTEM_UNSUPPORTED_VERSION"

	ErrValidationInvalidData ErrorCode = "VALIDATION_INVALID_DATA"

	ErrResolveFailed       ErrorCode = "RESOLVE_FAILED"
	ErrResolveInvalidRange ErrorCode = "RESOLVE_INVALID_RANGE"

	ErrSegmentNotFound ErrorCode = "SEGMENT_NOT_FOUND"
	ErrSegmentConflict ErrorCode = "SEGMENT_CONFLICT"

	ErrHandleReadFailed   ErrorCode = "HANDLE_READ_FAILED"
	ErrHandleWriteFailed  ErrorCode = "HANDLE_WRITE_FAILED"
	ErrHandleDeleteFailed ErrorCode = "HANDLE_DELETE_FAILED"
	ErrHandleCloseFailed  ErrorCode = "HANDLE_CLOSE_FAILED"
	ErrHandleShortRead    ErrorCode = "HANDLE_SHORT_READ"

	ErrManifestCorrupt  ErrorCode = "MANIFEST_CORRUPT"
	ErrManifestMismatch ErrorCode = "MANIFEST_MISMATCH"
)
