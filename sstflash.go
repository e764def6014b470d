// Package sstflash is the process controller (C7): it sequences
// calibration, window planning, device detection, user confirmation,
// flashing, and verification into the single top-level run spec.md §4.7
// describes. Every collaborator that touches real hardware — the memory
// window, the BIOS tick, interrupt masking, the keystroke prompt — is
// injected via Hardware, so the whole sequence runs identically against a
// mmio.FakeSpace in tests.
package sstflash

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"openenterprise/sstflash/device"
	"openenterprise/sstflash/flasher"
	"openenterprise/sstflash/mmio"
	"openenterprise/sstflash/romimage"
	"openenterprise/sstflash/timing"
	"openenterprise/sstflash/winplan"
)

var (
	// ErrInvalidArguments names the invalid-arguments error class. Run
	// never returns it, and cmd/sstflash does not wrap it either: its
	// argument errors are printed directly and exit with status 1.
	ErrInvalidArguments = errors.New("sstflash: invalid arguments")
	// ErrUserAborted is returned when the operator declines the Continue
	// Y/N prompt.
	ErrUserAborted = errors.New("sstflash: user aborted")
)

// Outcome classifies how a Run call ended, for cmd/sstflash's exit-code
// and halt-forever mapping (spec.md §4.7).
type Outcome int

const (
	// OutcomeAlreadyUpToDate means every block already matched the image;
	// zero blocks were flashed and no erase or program sequence was ever
	// issued (the software-ID sequence of device detection still runs).
	OutcomeAlreadyUpToDate Outcome = iota
	// OutcomeFlashed means one or more blocks were erased, programmed,
	// and verified successfully.
	OutcomeFlashed
	// OutcomeHardwareFault means a hardware timeout or verification
	// mismatch left the device in an indeterminate state; the caller
	// must halt rather than continue.
	OutcomeHardwareFault
)

// Hardware bundles the host-platform collaborators the controller treats
// as opaque external services (spec.md §1): the memory window, the BIOS
// tick source, the interrupt mask/unmask primitive, and the interactive
// Y/N confirm prompt.
type Hardware struct {
	Space   mmio.Space
	Tick    timing.TickSource
	Crit    device.CriticalSection
	Confirm func() (bool, error)
}

// Options are the parsed command-line inputs (spec.md §6).
type Options struct {
	Dest            uint16
	SizeOverrideKiB int
}

// Report summarizes one Run, for the CLI to print and the logger to
// structure.
type Report struct {
	Outcome       Outcome
	Plan          winplan.WindowPlan
	Overlap       bool
	Identity      device.Identity
	BlocksFlashed int
}

// Run executes the calibrate -> plan -> detect device -> overlap-warn ->
// confirm -> flash -> verify sequence of spec.md §4.7, in that literal
// order. progress may be nil.
func Run(ctx context.Context, opts Options, hw Hardware, image *romimage.RomImage, progress func(flasher.Event), logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}

	destWindow := hw.Space.Window(opts.Dest, romimage.BlockSize)
	probe := device.CalibrationProbe(destWindow)
	timeout := timing.Calibrate(hw.Tick, probe)
	logger.Info("timing calibrated", slog.Int("units", int(timeout)))

	plan := winplan.Plan(opts.Dest, image.ProgrammedSize())
	logger.Info("window planned",
		slog.String("dest", fmt.Sprintf("0x%04X", plan.Dest)),
		slog.String("command", fmt.Sprintf("0x%04X", plan.Command)),
	)
	report := Report{Plan: plan}

	cmdWindow := hw.Space.Window(plan.Command, 0x8000)
	proto := device.New(cmdWindow, destWindow, hw.Crit, timeout)
	identity, err := proto.Identify()
	if err != nil {
		return report, fmt.Errorf("sstflash: device at dest=0x%04X command=0x%04X: %w", plan.Dest, plan.Command, err)
	}
	report.Identity = identity
	logger.Info("device identified", slog.String("part", identity.Name))

	report.Overlap = winplan.DetectOverlap(hw.Space, plan)
	if report.Overlap {
		logger.Warn("another ROM signature detected inside the command window")
	}

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	ok, err := hw.Confirm()
	if err != nil {
		return report, fmt.Errorf("sstflash: confirm prompt: %w", err)
	}
	if !ok {
		return report, ErrUserAborted
	}

	result, err := flasher.FlashAndVerify(hw.Space, plan, hw.Crit, timeout, image, progress)
	report.BlocksFlashed = result.BlocksFlashed

	switch {
	case err != nil:
		report.Outcome = OutcomeHardwareFault
		return report, err
	case result.BlocksFlashed == 0:
		report.Outcome = OutcomeAlreadyUpToDate
		return report, nil
	default:
		report.Outcome = OutcomeFlashed
		return report, nil
	}
}

// Halt blocks forever: per spec.md §4.7, once programming has begun the
// just-written firmware is no longer a safe host to return control to, so
// both the non-recoverable and the successful paths end by halting rather
// than returning, mirroring the teacher's fatalError watchdog-wait idiom
// in main.go.
func Halt() {
	select {}
}
