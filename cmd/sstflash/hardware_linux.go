//go:build linux

package main

import "openenterprise/sstflash/mmio"

// openHardwareSpace opens the real memory-mapped window via /dev/mem. This
// is the only platform sstflash's production build actually targets: the
// legacy segment:offset window it programs against only exists on x86
// hosts running with that mapping available.
func openHardwareSpace() (mmio.Space, func() error, error) {
	space, err := mmio.OpenRealSpace()
	if err != nil {
		return nil, nil, err
	}
	return space, space.Close, nil
}
