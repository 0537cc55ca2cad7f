package segmux

import (
	"fmt"
	"math"

	"github.com/iamBelugaa/segmux/pkg/errors"
	"github.com/iamBelugaa/segmux/pkg/segment"
)

func isValidSegment(seg segment.Segment) error {
	if seg.Handle == nil {
		return errors.NewValidationError(nil, errors.ErrValidationInvalidData, "segment handle is required").
			WithField("handle").
			WithExpected("non-nil handle")
	}

	if seg.Start >= seg.End {
		return errors.NewValidationError(
			nil, errors.ErrValidationInvalidData,
			fmt.Sprintf("segment range [%d, %d) is empty", seg.Start, seg.End),
		).
			WithField("end").
			WithProvided(seg.End).
			WithExpected(fmt.Sprintf("> %d", seg.Start))
	}

	return nil
}

func isValidRange(offset, length uint64) error {
	if length > math.MaxUint64-offset {
		return errors.NewFieldRangeError("length", length, 0, math.MaxUint64-offset).
			WithDetail("offset", offset)
	}
	return nil
}
