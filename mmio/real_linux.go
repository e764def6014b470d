//go:build linux

package mmio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// RealSpace maps the host's real legacy 1 MiB window by mmap-ing /dev/mem.
// This is the production backend for the opaque "map segment:offset to a
// volatile byte window" collaborator spec.md §1 treats as external to the
// core; everything above this file is ordinary safe Go.
type RealSpace struct {
	f   *os.File
	mem []byte // mmap of the full 1 MiB window, offset 0 == physical address 0
}

// OpenRealSpace opens /dev/mem and maps the low 1 MiB window. Requires
// sufficient privilege (typically root) on the host.
func OpenRealSpace() (*RealSpace, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open /dev/mem: %w", err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, WindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmio: mmap /dev/mem: %w", err)
	}

	return &RealSpace{f: f, mem: mem}, nil
}

// Close unmaps the window and closes /dev/mem.
func (s *RealSpace) Close() error {
	err := unix.Munmap(s.mem)
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Window implements Space.
func (s *RealSpace) Window(segment uint16, length int) Window {
	addr := segAddr(segment)
	return &sliceWindow{backing: s.mem[addr : addr+length]}
}
