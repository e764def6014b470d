// Package romimage loads a firmware image file into block-aligned,
// zero-padded storage ready for block-by-block flashing. See spec.md §4.3.
package romimage

import (
	"errors"
	"fmt"
	"io"
)

// BlockSize is the SST39SF0x0 sector-erase granularity: 4 KiB.
const BlockSize = 4096

// MaxBlocks caps a programmed image at 64 blocks (256 KiB).
const MaxBlocks = 64

// MinSizeOverrideKiB and MaxSizeOverrideKiB bound the -size override, in
// KiB; the value must also be even (spec.md §3).
const (
	MinSizeOverrideKiB = 2
	MaxSizeOverrideKiB = 256
)

var (
	// ErrEmpty is returned when the source file contains no bytes.
	ErrEmpty = errors.New("romimage: file is empty")
	// ErrNotEvenKiB is returned when the original length is not a
	// multiple of 2 KiB.
	ErrNotEvenKiB = errors.New("romimage: length is not a multiple of 2048 bytes")
	// ErrTooLarge is returned when the source file is longer than
	// MaxBlocks blocks (256 KiB).
	ErrTooLarge = errors.New("romimage: image exceeds 256 KiB")
	// ErrBadSizeOverride is returned for an out-of-range or odd -size value.
	ErrBadSizeOverride = errors.New("romimage: size override must be an even number of KiB in [2, 256]")
)

// Block is one fixed 4 KiB unit of a RomImage. Every Block is fully
// initialized: if the source file ran out before filling it, the
// remainder is zero-padded.
type Block [BlockSize]byte

// RomImage is the ordered sequence of blocks read from a source file,
// along with the bookkeeping spec.md §3 requires.
type RomImage struct {
	Blocks []Block

	// OriginalSize is the number of bytes actually read from the source
	// file, before any padding.
	OriginalSize int

	// Padded reports whether the tail block required zero-padding to
	// reach a 4 KiB boundary — informational, not an error (spec.md §4.3
	// step 6).
	Padded bool
}

// ProgrammedSize is the number of bytes that will actually be written to
// the device: len(Blocks) * BlockSize.
func (r *RomImage) ProgrammedSize() int {
	return len(r.Blocks) * BlockSize
}

// ValidateSizeOverride checks a -size argument, in KiB, against spec.md §3.
func ValidateSizeOverride(kib int) error {
	if kib < MinSizeOverrideKiB || kib > MaxSizeOverrideKiB || kib%2 != 0 {
		return ErrBadSizeOverride
	}
	return nil
}

// Load reads r into a RomImage, applying an optional size override (in
// KiB, 0 meaning "no override") as spec.md §4.3 describes.
func Load(r io.Reader, sizeOverrideKiB int) (*RomImage, error) {
	limit := MaxBlocks * BlockSize
	if sizeOverrideKiB > 0 {
		if err := ValidateSizeOverride(sizeOverrideKiB); err != nil {
			return nil, err
		}
		limit = sizeOverrideKiB * 1024
	}

	img := &RomImage{}
	remaining := limit

	for remaining > 0 {
		var block Block
		want := BlockSize
		if want > remaining {
			want = remaining
		}
		n, err := io.ReadFull(r, block[:want])
		if n > 0 {
			img.OriginalSize += n
			img.Blocks = append(img.Blocks, block)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("romimage: read: %w", err)
		}
		remaining -= n
		if n < want {
			break
		}
	}

	if remaining == 0 {
		// The limit was reached: read on far enough to tell whether the
		// file itself is longer than the 256 KiB cap.
		slack := int64(MaxBlocks*BlockSize - limit)
		extra, err := io.CopyN(io.Discard, r, slack+1)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("romimage: read: %w", err)
		}
		if extra > slack {
			return nil, ErrTooLarge
		}
	}

	if sizeOverrideKiB > 0 {
		for img.ProgrammedSize() < limit {
			img.Blocks = append(img.Blocks, Block{})
		}
	}

	img.Padded = img.OriginalSize%BlockSize != 0

	if err := img.validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func (r *RomImage) validate() error {
	if r.OriginalSize == 0 {
		return ErrEmpty
	}
	if r.OriginalSize%2048 != 0 {
		return ErrNotEvenKiB
	}
	if len(r.Blocks) > MaxBlocks {
		return ErrTooLarge
	}
	return nil
}
