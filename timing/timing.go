// Package timing derives a busy-poll loop count that stands in for a
// short wall-clock interval, on a host with no reliable short-interval
// timer. See spec.md §4.2 for the algorithm and its rationale.
package timing

import "math"

// TickSource abstracts the BIOS tick byte: the low 8 bits of a counter
// that advances roughly every 54.925 ms (18.2 Hz). Only the current LSB
// is observable; there is no way to read elapsed wall-clock time directly.
type TickSource interface {
	Tick() byte
}

// CalibratedTimeout is a 16-bit loop count representing approximately
// 215 microseconds of busy-polling the destination flash device. It is
// derived once per run (see Calibrate) and never mutated afterward. Its
// magnitude is defined entirely by the algorithm below — not by any label
// a caller might attach to it (spec.md §9, open question 3).
type CalibratedTimeout uint16

// RawPoll performs one iteration of "poll one byte of the flash for a
// mismatching value" against the live destination device. It must read
// the actual device, not arbitrary memory, so its latency reflects the
// slow flash bus (spec.md §4.2). A single call corresponds to testing one
// byte; Calibrate issues a batch of 256 to size one returned unit.
type RawPoll func() bool

// pollBatch calls the given RawPoll 256 times (spec.md §4.2 step 3's
// "256 tries"), ignoring its result. Since RawPoll is constructed by the
// caller to never match, this always runs to completion and exists only
// to give the inner loop its per-iteration device-latency cost.
func pollBatch(poll RawPoll) {
	for i := 0; i < 256; i++ {
		poll()
	}
}

// Calibrate measures how many batches of 256 device polls fit into one
// BIOS tick and returns that count as a CalibratedTimeout, per spec.md
// §4.2:
//
//  1. Read the current tick LSB t0.
//  2. Busy-wait until the tick changes to t1.
//  3. Count iterations N of a 256-poll batch while the tick remains t1.
//  4. Return N, saturating at 0xFFFF.
//
// On real hardware the tick always advances, so this terminates; a test
// harness supplies a TickSource that advances deterministically to avoid
// the (acceptable, per spec.md §4.2) risk of an infinite loop.
func Calibrate(tick TickSource, poll RawPoll) CalibratedTimeout {
	t0 := tick.Tick()
	var t1 byte
	for {
		t1 = tick.Tick()
		if t1 != t0 {
			break
		}
	}

	var n uint32
	for tick.Tick() == t1 {
		pollBatch(poll)
		if n == math.MaxUint16 {
			break
		}
		n++
	}

	if n > math.MaxUint16 {
		n = math.MaxUint16
	}
	return CalibratedTimeout(n)
}
