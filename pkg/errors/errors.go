package errors

import (
	stdErrors "errors"
)

// ErrClosed is returned by every operation issued after the router was closed.
var ErrClosed = stdErrors.New("operation failed: router is closed")

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func AsSegmentError(err error) (*SegmentError, bool) {
	var se *SegmentError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func AsResolveError(err error) (*ResolveError, bool) {
	var re *ResolveError
	if stdErrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var coded interface{ Code() ErrorCode }
	for err != nil {
		if stdErrors.As(err, &coded) {
			if coded.Code() == code {
				return true
			}
			err = stdErrors.Unwrap(coded.(error))
			continue
		}
		return false
	}
	return false
}
