// Package flasher drives the per-block compare/erase/program loop and the
// post-write verification pass. See spec.md §4.6.
package flasher

import (
	"errors"

	"openenterprise/sstflash/device"
	"openenterprise/sstflash/mmio"
	"openenterprise/sstflash/romimage"
	"openenterprise/sstflash/timing"
	"openenterprise/sstflash/winplan"
)

// ErrHardwareTimeout is returned when erase or program polling is
// exhausted; the device is left in an indeterminate state (spec.md §7).
var ErrHardwareTimeout = errors.New("flasher: hardware timeout during erase or program")

// ErrVerifyFailed is returned when a post-programming byte-compare finds a
// mismatch (spec.md §7).
var ErrVerifyFailed = errors.New("flasher: verification failed after programming")

// Phase names an Event's stage, for the progress callback.
type Phase string

const (
	PhaseCompare Phase = "compare"
	PhaseErase   Phase = "erase"
	PhaseProgram Phase = "program"
	PhaseVerify  Phase = "verify"
)

// Event is delivered to the progress callback once per phase of each
// block (compare, then erase and program if the block differs, and verify
// in the separate verification pass), so the CLI
// progress bar and the optional MQTT notifier (package notify) can both
// subscribe to the same stream — adapted from the teacher's chunked ACK
// loop in ota_server.go and the retrieval pack's go-cyacd
// bootloader.WithProgressCallback pattern.
type Event struct {
	Phase       Phase
	BlockIndex  int
	TotalBlocks int
}

// Result is the outcome of FlashAndVerify's write pass.
type Result struct {
	// BlocksFlashed is 0 if the device already matched the image, or the
	// number of blocks actually erased and programmed.
	BlocksFlashed int
}

// blockSegment returns the destination segment for the i-th 4 KiB block:
// the destination segment advances by 0x100 (256 segments == 4096 bytes)
// per block, per spec.md §4.6.
func blockSegment(destSegment uint16, blockIndex int) uint16 {
	return destSegment + uint16(blockIndex*0x100)
}

// newBlockProtocol builds a device.Protocol for block i: a fixed command
// window (plan.Command, shared across all blocks) and a destination
// window scoped to that block.
func newBlockProtocol(space mmio.Space, plan winplan.WindowPlan, crit device.CriticalSection, timeout timing.CalibratedTimeout, blockIndex int) *device.Protocol {
	cmd := space.Window(plan.Command, 0x8000)
	dest := space.Window(blockSegment(plan.Dest, blockIndex), romimage.BlockSize)
	return device.New(cmd, dest, crit, timeout)
}

// compareBlock reports whether the live device already holds block's
// contents, without issuing any command sequence.
func compareBlock(dest mmio.Window, block romimage.Block) bool {
	for i, want := range block {
		if dest.ReadByte(i) != want {
			return false
		}
	}
	return true
}

// FlashAndVerify writes image to the destination segment plan.Dest, per
// block: compare, and if different, erase then program byte-by-byte, per
// spec.md §4.6. If any block was written, a separate verification pass
// re-reads and compares every block afterward, so a transient glitch
// during the write loop cannot self-mask.
func FlashAndVerify(space mmio.Space, plan winplan.WindowPlan, crit device.CriticalSection, timeout timing.CalibratedTimeout, image *romimage.RomImage, progress func(Event)) (Result, error) {
	total := len(image.Blocks)
	var flashed int

	for i, block := range image.Blocks {
		destWindow := space.Window(blockSegment(plan.Dest, i), romimage.BlockSize)

		if progress != nil {
			progress(Event{Phase: PhaseCompare, BlockIndex: i, TotalBlocks: total})
		}
		if compareBlock(destWindow, block) {
			continue
		}

		proto := newBlockProtocol(space, plan, crit, timeout, i)

		if progress != nil {
			progress(Event{Phase: PhaseErase, BlockIndex: i, TotalBlocks: total})
		}
		if err := proto.EraseSector(); err != nil {
			return Result{BlocksFlashed: flashed}, ErrHardwareTimeout
		}

		if progress != nil {
			progress(Event{Phase: PhaseProgram, BlockIndex: i, TotalBlocks: total})
		}
		for j, want := range block {
			if err := proto.ProgramByte(j, want); err != nil {
				return Result{BlocksFlashed: flashed}, ErrHardwareTimeout
			}
		}

		flashed++
	}

	if flashed == 0 {
		return Result{BlocksFlashed: 0}, nil
	}

	for i, block := range image.Blocks {
		if progress != nil {
			progress(Event{Phase: PhaseVerify, BlockIndex: i, TotalBlocks: total})
		}
		destWindow := space.Window(blockSegment(plan.Dest, i), romimage.BlockSize)
		if !compareBlock(destWindow, block) {
			return Result{BlocksFlashed: flashed}, ErrVerifyFailed
		}
	}

	return Result{BlocksFlashed: flashed}, nil
}
