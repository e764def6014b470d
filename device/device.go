// Package device drives the SST39SF0x0 byte-wide command protocol: unlock
// cycles, software ID entry, sector erase, and byte program. See spec.md
// §4.5.
package device

import (
	"errors"

	"openenterprise/sstflash/mmio"
	"openenterprise/sstflash/timing"
)

var (
	// ErrDeviceNotRecognized is returned when the software-ID bytes don't
	// match a known SST39SF0x0 part.
	ErrDeviceNotRecognized = errors.New("device: software ID not recognized")
	// ErrEraseTimeout is returned when a sector erase does not complete
	// within its bounded polling window. The device is left in an
	// indeterminate state.
	ErrEraseTimeout = errors.New("device: sector erase timed out")
	// ErrProgramTimeout is returned when a byte program does not complete
	// within its bounded polling window. The device is left in an
	// indeterminate state.
	ErrProgramTimeout = errors.New("device: byte program timed out")
)

// vendorSST is the JEDEC manufacturer code for Silicon Storage Technology.
const vendorSST = 0xBF

// eraseTimeoutOuter is the number of outer iterations, each one
// CalibratedTimeout unit (~215 µs) long, the erase poll allows before
// giving up (~250 ms total, spec.md §4.5).
const eraseTimeoutOuter = 1163

// softwareIDSettleReads is the number of times the vendor byte is read
// before it's trusted, letting the bus settle after entering software ID
// mode. Kept at 3 per spec.md §9 rather than derived from calibration.
const softwareIDSettleReads = 3

// deviceNames maps the second software-ID byte to the SST39SF0x0 part it
// identifies. Parts outside this table are refused: spec.md §4.7 requires
// aborting before any destructive operation on an unrecognized device.
var deviceNames = map[byte]string{
	0xB4: "SST39SF512",
	0xB5: "SST39SF010",
	0xB6: "SST39SF020",
	0xB7: "SST39SF040",
}

// CriticalSection is the host's opaque interrupt mask/unmask primitive
// (spec.md §1, §5). Every Protocol method pairs Disable with a deferred
// Enable on all exit paths, including errors.
type CriticalSection interface {
	Disable()
	Enable()
}

// Identity is the result of a successful Identify call.
type Identity struct {
	Vendor byte
	Device byte
	Name   string
}

// Protocol drives the SST39SF0x0 command set over a command window and a
// destination window. The two may alias the same underlying memory (the
// common case, since the command window is chosen to overlap the
// destination range whenever possible — see package winplan).
type Protocol struct {
	cmd     mmio.Window
	dest    mmio.Window
	crit    CriticalSection
	timeout timing.CalibratedTimeout
}

// New builds a Protocol. timeout is the calibrated program-byte unit
// (package timing), already measured against this destination window.
func New(cmd, dest mmio.Window, crit CriticalSection, timeout timing.CalibratedTimeout) *Protocol {
	return &Protocol{cmd: cmd, dest: dest, crit: crit, timeout: timeout}
}

// CalibrationProbe returns a timing.RawPoll that reads the destination
// window's first byte and never reports a match, so Calibrate's busy-wait
// loop measures real device latency without mutating device state
// (spec.md §4.2).
func CalibrationProbe(dest mmio.Window) timing.RawPoll {
	return func() bool {
		_ = dest.ReadByte(0)
		return false
	}
}

func (p *Protocol) unlock() {
	p.cmd.WriteByte(0x5555, 0xAA)
	p.cmd.WriteByte(0x2AAA, 0x55)
}

// Identify enters software ID mode, reads the vendor and device bytes, and
// exits, per spec.md §4.5. The vendor byte is read three times total to
// let the bus settle before the value is trusted (spec.md §9, kept at 3 —
// see DESIGN.md).
func (p *Protocol) Identify() (Identity, error) {
	p.crit.Disable()
	defer p.crit.Enable()

	p.unlock()
	p.cmd.WriteByte(0x5555, 0x90)

	var vendor byte
	for i := 0; i < softwareIDSettleReads; i++ {
		vendor = p.dest.ReadByte(0)
	}
	dev := p.dest.ReadByte(1)

	p.cmd.WriteByte(0x5555, 0xF0)

	name, ok := deviceNames[dev]
	if vendor != vendorSST || !ok {
		return Identity{Vendor: vendor, Device: dev}, ErrDeviceNotRecognized
	}
	return Identity{Vendor: vendor, Device: dev, Name: name}, nil
}

// EraseSector erases the 4 KiB block starting at the destination window's
// offset 0, bounded by eraseTimeoutOuter repetitions of the calibrated
// poll unit (spec.md §4.5).
func (p *Protocol) EraseSector() error {
	p.crit.Disable()
	defer p.crit.Enable()

	p.unlock()
	p.cmd.WriteByte(0x5555, 0x80)
	p.unlock()
	p.dest.WriteByte(0, 0x30)

	for outer := 0; outer < eraseTimeoutOuter; outer++ {
		if p.poll(func() bool { return p.dest.ReadByte(0) == 0xFF }) {
			return nil
		}
	}
	return ErrEraseTimeout
}

// ProgramByte writes value at offset within the destination window,
// bounded by one calibrated poll unit (spec.md §4.5).
func (p *Protocol) ProgramByte(offset int, value byte) error {
	p.crit.Disable()
	defer p.crit.Enable()

	p.unlock()
	p.cmd.WriteByte(0x5555, 0xA0)
	p.dest.WriteByte(offset, value)

	if p.poll(func() bool { return p.dest.ReadByte(offset) == value }) {
		return nil
	}
	return ErrProgramTimeout
}

// poll busy-waits up to p.timeout iterations for cond to become true.
func (p *Protocol) poll(cond func() bool) bool {
	for i := timing.CalibratedTimeout(0); i < p.timeout; i++ {
		if cond() {
			return true
		}
	}
	return false
}
