package main

import (
	"openenterprise/sstflash/mmio"
	"openenterprise/sstflash/timing"
)

// biosTick reads the low byte of the BIOS tick counter at the well-known
// address 0040:006C — the same legacy 1 MiB window every other component
// in this tool operates through, not a separate timer facility. This is
// the "BIOS tick" package timing's calibration algorithm is built around
// (spec.md §4.2).
type biosTick struct {
	w mmio.Window
}

func newBIOSTick(space mmio.Space) timing.TickSource {
	return biosTick{w: space.Window(0x0040, 0x70)}
}

func (t biosTick) Tick() byte {
	return t.w.ReadByte(0x6C)
}
