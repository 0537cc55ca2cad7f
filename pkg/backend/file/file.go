// Package file provides a segment handle backed by a single file on disk.
package file

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"github.com/iamBelugaa/segmux/pkg/errors"
)

// zeroChunk bounds the buffer used to zero-fill deleted ranges.
const zeroChunk = 64 * 1024

// File is a segment.Handle over an *os.File. Reads past the end of the file fail,
// writes extend it and deletes zero-fill the part of the range that exists.
type File struct {
	mu          sync.RWMutex
	file        *os.File
	path        string
	closed      bool
	syncOnClose bool
}

type config struct {
	size uint64
	sync bool
}

type Option func(*config)

// WithSize grows a smaller file to size bytes. The new tail is sparse where the
// filesystem supports it and reads as zeros.
func WithSize(size uint64) Option {
	return func(c *config) {
		c.size = size
	}
}

// WithSyncOnClose controls whether Close flushes the file before closing it.
// Enabled by default.
func WithSyncOnClose(sync bool) Option {
	return func(c *config) {
		c.sync = sync
	}
}

// Open opens or creates the file at path.
func Open(path string, opts ...Option) (*File, error) {
	cfg := config{sync: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	f := &File{file: fh, path: path, syncOnClose: cfg.sync}
	if cfg.size > 0 {
		size, err := f.size()
		if err == nil && size < cfg.size {
			err = fh.Truncate(int64(cfg.size))
		}
		if err != nil {
			fh.Close()
			return nil, f.storageError(err, errors.ErrIOGeneral, "failed to size file", 0).
				WithDetail("size", cfg.size)
		}
	}

	return f, nil
}

func (f *File) Path() string {
	return f.path
}

// Size returns the current length of the file.
func (f *File) Size() (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return 0, f.errClosed("stat", 0)
	}
	return f.size()
}

func (f *File) Read(_ context.Context, offset, length uint64) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, f.errClosed("read", offset)
	}

	buf := make([]byte, length)
	n, err := f.file.ReadAt(buf, int64(offset))
	if err != nil {
		if stdErrors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, f.storageError(
			err, errors.ErrIOReadFailed,
			fmt.Sprintf("could not satisfy length: wanted %d bytes at %d, read %d", length, offset, n),
			offset,
		).
			WithDetail("length", length)
	}

	return buf, nil
}

func (f *File) Write(_ context.Context, offset uint64, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.errClosed("write", offset)
	}

	if _, err := f.file.WriteAt(data, int64(offset)); err != nil {
		return f.storageError(err, errors.ErrIOWriteFailed, "failed to write file", offset).
			WithDetail("length", len(data))
	}
	return nil
}

func (f *File) Delete(_ context.Context, offset, length uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.errClosed("delete", offset)
	}

	size, err := f.size()
	if err != nil {
		return f.storageError(err, errors.ErrIOGeneral, "failed to stat file", offset)
	}
	if offset >= size {
		return nil
	}

	end := min(offset+length, size)
	zeros := make([]byte, min(end-offset, zeroChunk))
	for pos := offset; pos < end; {
		n := min(end-pos, uint64(len(zeros)))
		if _, err := f.file.WriteAt(zeros[:n], int64(pos)); err != nil {
			return f.storageError(err, errors.ErrIOWriteFailed, "failed to zero file range", pos).
				WithDetail("length", length)
		}
		pos += n
	}

	return nil
}

// Close flushes the file, unless disabled with WithSyncOnClose, and closes it. Both
// failures are reported.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var err error
	if f.syncOnClose {
		if syncErr := f.file.Sync(); syncErr != nil {
			err = multierr.Append(err, f.storageError(syncErr, errors.ErrIOSyncFailed, "failed to sync file", 0))
		}
	}
	if closeErr := f.file.Close(); closeErr != nil {
		err = multierr.Append(err, f.storageError(closeErr, errors.ErrIOCloseFailed, "failed to close file", 0))
	}

	return err
}

func (f *File) size() (uint64, error) {
	stat, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.Size()), nil
}

func (f *File) storageError(err error, code errors.ErrorCode, msg string, offset uint64) *errors.StorageError {
	return errors.NewStorageError(err, code, msg).
		WithPath(f.path).
		WithFileName(filepath.Base(f.path)).
		WithOffset(int64(offset))
}

func (f *File) errClosed(op string, offset uint64) error {
	return f.storageError(os.ErrClosed, errors.ErrIOGeneral, fmt.Sprintf("file segment is closed: cannot %s", op), offset)
}
