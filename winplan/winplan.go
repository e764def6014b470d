// Package winplan selects the 32 KiB-aligned command window the SST39SF0x0
// protocol issues its unlock cycles through, and flags when another ROM
// image may share that window. See spec.md §4.4.
package winplan

import "openenterprise/sstflash/mmio"

// windowAlign is the command window's required alignment in bytes: 32 KiB,
// a segment multiple of 0x800.
const windowAlign = 0x8000

// overlapStride is the x86 option-ROM scan granularity: 2 KiB.
const overlapStride = 0x800

// WindowPlan is the output of Plan: where the unlock cycles live. Plan
// leaves Overlap false; DetectOverlap returns the overlap result separately.
type WindowPlan struct {
	// Dest is the destination segment the image is programmed at.
	Dest uint16
	// Len is the programmed length in bytes.
	Len int
	// Command is the 32 KiB-aligned command-window segment S.
	Command uint16
	// Overlap reports whether the overlap heuristic found a candidate ROM
	// signature elsewhere in the command window.
	Overlap bool
}

// Plan computes the command-window segment for a destination segment D and
// programmed length L, per spec.md §4.4 steps 1-4, subject to the
// overriding invariant S ≤ D (spec.md §3): rounding up by one window is
// only taken when it still leaves the command window at or before the
// destination. Flooring guarantees dest_addr < seq_addr + 32 KiB, so
// adding a further 32 KiB to seq_addr always pushes it strictly past
// dest_addr — the round-up step can never satisfy S ≤ D, and is therefore
// never taken (see DESIGN.md, Open Question resolution #4).
func Plan(dest uint16, length int) WindowPlan {
	destAddr := int(dest) << 4
	seqAddr := destAddr &^ (windowAlign - 1)

	if seqAddr < destAddr && seqAddr+2*windowAlign <= destAddr+length && seqAddr+windowAlign <= destAddr {
		seqAddr += windowAlign
	}

	return WindowPlan{
		Dest:    dest,
		Len:     length,
		Command: uint16(seqAddr >> 4),
	}
}

// DetectOverlap scans the command window plan.Command..plan.Command+32KiB in
// 2 KiB strides, skipping the destination range [Dest, Dest+Len), looking
// for a byte pattern that suggests another ROM is mapped there. The second
// byte test is deliberately loose (spec.md §4.4, §9) and must not be
// "corrected" to require a canonical 0x55 0xAA signature.
func DetectOverlap(space mmio.Space, plan WindowPlan) bool {
	destLo := int(plan.Dest) << 4
	destHi := destLo + plan.Len
	cmdLo := int(plan.Command) << 4

	for off := 0; off < windowAlign; off += overlapStride {
		curr := cmdLo + off
		if curr >= destLo && curr < destHi {
			continue
		}
		seg := uint16(curr >> 4)
		w := space.Window(seg, 2)
		b0 := w.ReadByte(0)
		b1 := w.ReadByte(1)
		if b0 == 0x55 || b1 == 0xFF {
			return true
		}
	}
	return false
}
