package lxpulseaudio

import (
	"github.com/pkg/errors"
)

// MinBlockFrames is the smallest nonzero fixed block size.
const MinBlockFrames = 16

// BlockSizes is the block policy of a virtual device. All sizes are in frames except
// MaxChunkBytes.
type BlockSizes struct {
	// Fixed is the number of output frames produced per filter call. Zero means variable.
	Fixed int
	// FixedInput is the number of input frames handed to every filter call. Zero means variable.
	FixedInput int
	// Overlap is the number of already consumed frames handed to the filter again in front of
	// the new ones.
	Overlap int
	// MaxChunkBytes bounds the new input consumed per call. Zero means the core's maximum block size.
	MaxChunkBytes int
}

// Validate checks the policy against the largest block, in frames, the core can hand out, and
// the size in bytes of an input frame.
func (b BlockSizes) Validate(maxBlockFrames, inFrameSize int) error {
	switch {
	case b.Fixed < 0 || b.FixedInput < 0 || b.Overlap < 0 || b.MaxChunkBytes < 0:
		return errors.Wrap(ErrInvalidBlockSizes, "negative block size")
	case b.Fixed > maxBlockFrames || b.FixedInput > maxBlockFrames || b.Overlap+MinBlockFrames > maxBlockFrames:
		return errors.Wrapf(ErrInvalidBlockSizes,
			"fixed %d, fixed input %d or overlap %d exceeds maximum of %d frames",
			b.Fixed, b.FixedInput, b.Overlap, maxBlockFrames)
	case b.Fixed > 0 && b.Fixed < MinBlockFrames:
		return errors.Wrapf(ErrInvalidBlockSizes, "fixed block size %d too small", b.Fixed)
	case b.FixedInput > 0 && b.FixedInput < MinBlockFrames:
		return errors.Wrapf(ErrInvalidBlockSizes, "fixed input block size %d too small", b.FixedInput)
	case b.Fixed+b.Overlap > maxBlockFrames:
		return errors.Wrapf(ErrInvalidBlockSizes,
			"fixed block size %d plus overlap %d exceeds maximum of %d frames", b.Fixed, b.Overlap, maxBlockFrames)
	case b.FixedInput != 0 && b.Fixed > b.FixedInput:
		return errors.Wrapf(ErrInvalidBlockSizes,
			"fixed block size %d larger than fixed input block size %d", b.Fixed, b.FixedInput)
	case b.FixedInput != 0 && b.Overlap != 0:
		return errors.Wrap(ErrInvalidBlockSizes, "overlap cannot be combined with a fixed input block size")
	case b.MaxChunkBytes > 0 && b.MaxChunkBytes < MinBlockFrames*inFrameSize:
		return errors.Wrapf(ErrInvalidBlockSizes,
			"max chunk of %d bytes holds less than %d input frames", b.MaxChunkBytes, MinBlockFrames)
	}
	return nil
}

// maxRewindFrames is how much history the buffer queue must keep.
func (b BlockSizes) maxRewindFrames() int {
	if b.FixedInput > b.Overlap {
		return b.FixedInput
	}
	return b.Overlap
}
