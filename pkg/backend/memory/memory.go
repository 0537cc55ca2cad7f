// Package memory provides a growable in-memory segment handle.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/iamBelugaa/segmux/pkg/errors"
)

// Memory is a segment.Handle backed by a byte slice. Writes past the end grow the
// slice; reads past the end fail; deletes zero-fill whatever part of the range exists.
type Memory struct {
	mu      sync.RWMutex
	data    []byte
	maxSize uint64
	closed  bool
	onClose func() error
}

// DefaultMaxSize bounds how far writes may grow a handle unless WithMaxSize says otherwise.
const DefaultMaxSize uint64 = 1 << 32

type Option func(*Memory)

// WithMaxSize bounds the size a write may grow the handle to.
func WithMaxSize(size uint64) Option {
	return func(m *Memory) {
		m.maxSize = size
	}
}

// WithOnClose runs fn every time Close is called; its error is returned from Close.
func WithOnClose(fn func() error) Option {
	return func(m *Memory) {
		m.onClose = fn
	}
}

// New creates a handle holding a copy of initial.
func New(initial []byte, opts ...Option) *Memory {
	m := &Memory{data: append([]byte(nil), initial...), maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewZeroed creates a handle holding size zero bytes.
func NewZeroed(size uint64, opts ...Option) *Memory {
	m := New(nil, opts...)
	m.data = make([]byte, size)
	return m
}

func (m *Memory) Read(_ context.Context, offset, length uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errClosed("read", offset)
	}

	if offset+length < offset || offset+length > uint64(len(m.data)) {
		return nil, errors.NewStorageError(
			io.ErrUnexpectedEOF, errors.ErrIOReadFailed,
			fmt.Sprintf("could not satisfy length: wanted %d bytes at %d, have %d", length, offset, len(m.data)),
		).
			WithOffset(int64(offset)).
			WithDetail("length", length)
	}

	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

func (m *Memory) Write(_ context.Context, offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed("write", offset)
	}

	end := offset + uint64(len(data))
	if end < offset || end > max(m.maxSize, uint64(len(m.data))) {
		return errors.NewStorageError(
			nil, errors.ErrIOWriteFailed,
			fmt.Sprintf("write of %d bytes at %d exceeds max size %d", len(data), offset, m.maxSize),
		).
			WithOffset(int64(offset)).
			WithDetail("length", len(data))
	}

	if end > uint64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}

	copy(m.data[offset:end], data)
	return nil
}

func (m *Memory) Delete(_ context.Context, offset, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed("delete", offset)
	}

	size := uint64(len(m.data))
	if offset >= size {
		return nil
	}

	end := min(offset+length, size)
	clear(m.data[offset:end])
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	onClose := m.onClose
	m.mu.Unlock()

	if onClose != nil {
		return onClose()
	}
	return nil
}

// Bytes returns a copy of the current contents.
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...)
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func errClosed(op string, offset uint64) error {
	return errors.NewStorageError(
		nil, errors.ErrIOGeneral, fmt.Sprintf("memory segment is closed: cannot %s", op),
	).
		WithOffset(int64(offset))
}
