package main

import "runtime"

// osThreadCritical is the best approximation a hosted OS process has of
// the bare-metal interrupt mask/unmask primitive spec.md §5 calls for:
// userspace on Linux cannot mask CPU interrupts directly, but pinning the
// goroutine to its OS thread for the duration of a command sequence at
// least stops the Go scheduler from preempting it mid-sequence onto
// another thread. Disable/Enable are still paired 1:1 by package device
// on every exit path, including errors.
type osThreadCritical struct{}

func (c *osThreadCritical) Disable() { runtime.LockOSThread() }
func (c *osThreadCritical) Enable()  { runtime.UnlockOSThread() }
