package objstore

import (
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/iamBelugaa/segmux/pkg/errors"
)

// Handle is a segment.Handle over a single object of a fixed size. A missing object
// reads as zeros and is created by the first write.
type Handle struct {
	mu     sync.Mutex
	client Client
	key    string
	size   uint64
	data   []byte
	closed bool
}

func NewHandle(client Client, key string, size uint64) *Handle {
	return &Handle{client: client, key: key, size: size}
}

func (h *Handle) Key() string {
	return h.key
}

func (h *Handle) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.check("read", offset, length); err != nil {
		return nil, err
	}
	if err := h.load(ctx); err != nil {
		return nil, err
	}

	out := make([]byte, length)
	copy(out, h.data[offset:offset+length])
	return out, nil
}

func (h *Handle) Write(ctx context.Context, offset uint64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.check("write", offset, uint64(len(data))); err != nil {
		return err
	}
	if err := h.load(ctx); err != nil {
		return err
	}

	previous := append([]byte(nil), h.data[offset:offset+uint64(len(data))]...)
	copy(h.data[offset:], data)
	if err := h.flush(ctx, offset); err != nil {
		copy(h.data[offset:], previous)
		return err
	}
	return nil
}

// Delete zero-fills the part of the range that lies inside the object.
func (h *Handle) Delete(ctx context.Context, offset, length uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return h.errClosed("delete", offset)
	}
	if offset >= h.size {
		return nil
	}
	if err := h.load(ctx); err != nil {
		return err
	}

	end := min(offset+length, h.size)
	if offset+length < offset {
		end = h.size
	}

	previous := append([]byte(nil), h.data[offset:end]...)
	clear(h.data[offset:end])
	if err := h.flush(ctx, offset); err != nil {
		copy(h.data[offset:], previous)
		return err
	}
	return nil
}

// Close drops the cached copy. Every write was already uploaded.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.data = nil
	return nil
}

func (h *Handle) check(op string, offset, length uint64) error {
	if h.closed {
		return h.errClosed(op, offset)
	}

	if offset+length < offset || offset+length > h.size {
		return errors.NewStorageError(
			io.ErrUnexpectedEOF, errors.ErrIOGeneral,
			fmt.Sprintf("cannot %s %d bytes at %d: object holds %d", op, length, offset, h.size),
		).
			WithFileName(h.key).
			WithOffset(int64(offset))
	}
	return nil
}

func (h *Handle) load(ctx context.Context) error {
	if h.data != nil {
		return nil
	}

	data, err := h.client.Get(ctx, h.key)
	switch {
	case stdErrors.Is(err, ErrNotFound):
		data = nil
	case err != nil:
		return errors.NewStorageError(err, errors.ErrIOReadFailed, "failed to fetch object").
			WithFileName(h.key)
	}

	h.data = make([]byte, h.size)
	copy(h.data, data)
	return nil
}

func (h *Handle) flush(ctx context.Context, offset uint64) error {
	if err := h.client.Put(ctx, h.key, h.data); err != nil {
		return errors.NewStorageError(err, errors.ErrIOWriteFailed, "failed to upload object").
			WithFileName(h.key).
			WithOffset(int64(offset))
	}
	return nil
}

func (h *Handle) errClosed(op string, offset uint64) error {
	return errors.NewStorageError(
		nil, errors.ErrIOGeneral, fmt.Sprintf("object segment is closed: cannot %s", op),
	).
		WithFileName(h.key).
		WithOffset(int64(offset))
}
