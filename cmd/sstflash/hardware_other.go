//go:build !linux

package main

import (
	"errors"

	"openenterprise/sstflash/mmio"
)

func openHardwareSpace() (mmio.Space, func() error, error) {
	return nil, nil, errors.New("sstflash: real hardware access requires linux (/dev/mem)")
}
