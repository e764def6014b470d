package sstflash

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"openenterprise/sstflash/mmio"
	"openenterprise/sstflash/romimage"
)

// fakeCrit is a no-op device.CriticalSection.
type fakeCrit struct{}

func (fakeCrit) Disable() {}
func (fakeCrit) Enable()  {}

// fastTick advances its value once every 8 calls, mirroring package
// timing's own test fake, tuned low enough that calibration
// finishes in a handful of calls instead of waiting out real BIOS ticks.
type fastTick struct {
	calls int
	value byte
}

func (t *fastTick) Tick() byte {
	t.calls++
	if t.calls%8 == 0 {
		t.value++
	}
	return t.value
}

// erasingSpace wraps a FakeSpace with just enough of the chip's command
// interpreter for a sector erase to complete: on a flat buffer the 0x30
// trigger byte would stay in place and the erase poll for 0xFF would time
// out. Byte programs need no model, since the written value reads back.
type erasingSpace struct {
	*mmio.FakeSpace
	eraseSetup bool
}

func (s *erasingSpace) Window(segment uint16, length int) mmio.Window {
	return &erasingWindow{Window: s.FakeSpace.Window(segment, length), space: s}
}

type erasingWindow struct {
	mmio.Window
	space *erasingSpace
}

func (w *erasingWindow) WriteByte(offset int, v byte) {
	switch {
	case offset == 0x5555 && (v == 0x80 || v == 0xA0):
		w.space.eraseSetup = v == 0x80
	case w.space.eraseSetup && offset == 0 && v == 0x30:
		w.space.eraseSetup = false
		for i := 0; i < w.Len(); i++ {
			w.Window.WriteByte(i, 0xFF)
		}
		return
	}
	w.Window.WriteByte(offset, v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func confirmYes() (bool, error) { return true, nil }
func confirmNo() (bool, error)  { return false, nil }

func loadImage(t *testing.T, pattern byte, n int) *romimage.RomImage {
	t.Helper()
	img, err := romimage.Load(bytes.NewReader(bytes.Repeat([]byte{pattern}, n)), 0)
	if err != nil {
		t.Fatalf("romimage.Load: %v", err)
	}
	return img
}

// preloadIdentity writes the software-ID bytes a plain FakeSpace must
// already answer with, since FakeSpace has no command interpreter of its
// own — it is a flat buffer, and Identify reads dest:0/dest:1 directly.
func preloadIdentity(space *mmio.FakeSpace, dest uint16, vendor, deviceID byte) {
	w := space.Window(dest, 2)
	w.WriteByte(0, vendor)
	w.WriteByte(1, deviceID)
}

func TestRunFlashesAndVerifies(t *testing.T) {
	space := mmio.NewFakeSpace()
	preloadIdentity(space, 0xC800, 0xBF, 0xB6)
	img := loadImage(t, 0x11, romimage.BlockSize)

	hw := Hardware{Space: &erasingSpace{FakeSpace: space}, Tick: &fastTick{}, Crit: fakeCrit{}, Confirm: confirmYes}
	report, err := Run(context.Background(), Options{Dest: 0xC800}, hw, img, nil, discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeFlashed {
		t.Fatalf("Outcome = %v, want OutcomeFlashed", report.Outcome)
	}
	if report.Identity.Name != "SST39SF020" {
		t.Fatalf("Identity.Name = %q, want SST39SF020", report.Identity.Name)
	}
	if report.BlocksFlashed != 1 {
		t.Fatalf("BlocksFlashed = %d, want 1", report.BlocksFlashed)
	}
}

func TestRunAbortsOnDeviceNotRecognized(t *testing.T) {
	space := mmio.NewFakeSpace()
	preloadIdentity(space, 0xC800, 0xBF, 0x00)
	img := loadImage(t, 0x11, romimage.BlockSize)

	hw := Hardware{Space: space, Tick: &fastTick{}, Crit: fakeCrit{}, Confirm: confirmYes}
	_, err := Run(context.Background(), Options{Dest: 0xC800}, hw, img, nil, discardLogger())
	if err == nil {
		t.Fatalf("Run() err = nil, want a device-not-recognized error")
	}
}

func TestRunAbortsOnUserDecline(t *testing.T) {
	space := mmio.NewFakeSpace()
	preloadIdentity(space, 0xC800, 0xBF, 0xB6)
	img := loadImage(t, 0x11, romimage.BlockSize)

	hw := Hardware{Space: space, Tick: &fastTick{}, Crit: fakeCrit{}, Confirm: confirmNo}
	_, err := Run(context.Background(), Options{Dest: 0xC800}, hw, img, nil, discardLogger())
	if !errors.Is(err, ErrUserAborted) {
		t.Fatalf("Run() err = %v, want ErrUserAborted", err)
	}
}

// TestRunIdempotent covers spec.md §8 scenario 5. The image's own first two
// bytes double as the software-ID bytes Identify reads: on a plain
// FakeSpace (a flat buffer with no command-mode switching, per spec.md
// §9's test-harness simplification) dest:0/dest:1 can't simultaneously
// hold "recognized vendor/device" and "a different already-matching image
// byte", so the fixture is built to agree with both.
func TestRunIdempotent(t *testing.T) {
	space := mmio.NewFakeSpace()

	raw := bytes.Repeat([]byte{0x22}, romimage.BlockSize)
	raw[0], raw[1] = 0xBF, 0xB6
	img, err := romimage.Load(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("romimage.Load: %v", err)
	}

	destAddr := int(0xC800) << 4
	for i, b := range raw {
		space.Bytes()[destAddr+i] = b
	}

	hw := Hardware{Space: space, Tick: &fastTick{}, Crit: fakeCrit{}, Confirm: confirmYes}
	report, err := Run(context.Background(), Options{Dest: 0xC800}, hw, img, nil, discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeAlreadyUpToDate {
		t.Fatalf("Outcome = %v, want OutcomeAlreadyUpToDate", report.Outcome)
	}
	if report.BlocksFlashed != 0 {
		t.Fatalf("BlocksFlashed = %d, want 0", report.BlocksFlashed)
	}
}
