// Package storage implements the range engine: every read, write and delete on the
// logical address space is cut into per-segment chunks that run strictly in
// ascending address order, stopping at the first failure.
package storage

import (
	"context"
	stdErrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iamBelugaa/segmux/internal/storage/segmentpool"
	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

// New creates and initializes a new Storage instance over pool.
func New(pool *segmentpool.SegmentPool, log *zap.SugaredLogger) *Storage {
	return &Storage{pool: pool, log: log}
}

// Read returns length bytes starting at offset, in address order.
func (s *Storage) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := checkRange(opRead, offset, length); err != nil {
		return nil, err
	}

	// The result grows chunk by chunk, so a length no segment can back fails on
	// lookup instead of on allocation.
	buf := make([]byte, 0, min(length, maxReadPrealloc))
	err := s.span(ctx, opRead, offset, length, func(ctx context.Context, h segment.Handle, c chunk) error {
		data, err := h.Read(ctx, c.Local, c.Length)
		if err != nil {
			return err
		}
		if uint64(len(data)) != c.Length {
			return fmt.Errorf("%w: got %d, wanted %d", errShortRead, len(data), c.Length)
		}
		buf = append(buf, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Write stores data starting at offset. A failure part-way leaves the chunks that
// already succeeded in place.
func (s *Storage) Write(ctx context.Context, offset uint64, data []byte) error {
	length := uint64(len(data))
	if err := checkRange(opWrite, offset, length); err != nil {
		return err
	}

	return s.span(ctx, opWrite, offset, length, func(ctx context.Context, h segment.Handle, c chunk) error {
		return h.Write(ctx, c.Local, data[c.Done:c.Done+c.Length])
	})
}

// Delete hands [offset, offset+length) to each covering segment's Delete.
func (s *Storage) Delete(ctx context.Context, offset, length uint64) error {
	if err := checkRange(opDelete, offset, length); err != nil {
		return err
	}

	return s.span(ctx, opDelete, offset, length, func(ctx context.Context, h segment.Handle, c chunk) error {
		return h.Delete(ctx, c.Local, c.Length)
	})
}

// span walks [offset, offset+length) segment by segment. Each segment is pinned
// only while its own chunk runs.
func (s *Storage) span(ctx context.Context, op string, offset, length uint64, run subOperation) error {
	var chunks int
	for done := uint64(0); done < length; {
		if err := ctx.Err(); err != nil {
			return err
		}

		at := offset + done
		d, err := s.pool.Acquire(ctx, at)
		if err != nil {
			s.log.Errorw("Segment lookup failed", "operation", op, "offset", at, "error", err)
			return err
		}

		c := chunk{
			Local:  at - d.Start,
			Length: min(length-done, d.End-at),
			Done:   done,
		}

		s.log.Debugw(
			"Dispatching chunk",
			"operation", op,
			"offset", at,
			"segmentStart", d.Start,
			"segmentEnd", d.End,
			"localOffset", c.Local,
			"length", c.Length,
		)

		err = run(ctx, d.Handle, c)
		s.pool.Release(d)

		if err != nil {
			s.log.Errorw(
				"Segment sub-operation failed",
				"operation", op,
				"offset", at,
				"segmentStart", d.Start,
				"segmentEnd", d.End,
				"completedBytes", done,
				"error", err,
			)
			return handleError(err, op, at, d.Start, d.End)
		}

		done += c.Length
		chunks++
	}

	s.log.Debugw("Range operation completed", "operation", op, "offset", offset, "length", length, "chunks", chunks)
	return nil
}

func checkRange(op string, offset, length uint64) error {
	if offset+length < offset {
		return errors.NewValidationError(
			nil, errors.ErrValidationInvalidData,
			fmt.Sprintf("%s range starting at %d with length %d overflows the address space", op, offset, length),
		).
			WithField("length").
			WithProvided(length).
			WithExpected(fmt.Sprintf("<= %d", ^uint64(0)-offset))
	}
	return nil
}

func handleError(err error, op string, offset, start, end uint64) error {
	code := errors.ErrHandleReadFailed
	switch {
	case stdErrors.Is(err, errShortRead):
		code = errors.ErrHandleShortRead
	case op == opWrite:
		code = errors.ErrHandleWriteFailed
	case op == opDelete:
		code = errors.ErrHandleDeleteFailed
	}

	return errors.NewSegmentError(
		err, code, fmt.Sprintf("%s failed on segment [%d, %d) at offset %d", op, start, end, offset),
	).
		WithOffset(offset).
		WithRange(start, end).
		WithOperation(op)
}
