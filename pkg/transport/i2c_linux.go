// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package transport

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from <linux/i2c-dev.h>
const i2cSlave = 0x0703

// I2CBus talks to one address on a Linux i2c-dev adapter.
type I2CBus struct {
	file    *os.File
	address int
}

// OpenI2C opens device (e.g. /dev/i2c-1) and binds it to address.
func OpenI2C(device string, address int) (*I2CBus, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open i2c adapter %s: %w", device, err)
	}
	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, address); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to select i2c address %d on %s: %w", address, device, err)
	}
	return &I2CBus{file: f, address: address}, nil
}

func (b *I2CBus) Read(p []byte) (int, error) {
	n, err := b.file.Read(p)
	return n, classifyI2C(err)
}

func (b *I2CBus) Write(p []byte) (int, error) {
	n, err := b.file.Write(p)
	return n, classifyI2C(err)
}

func (b *I2CBus) Close() error {
	return b.file.Close()
}

// classifyI2C wraps the errno values the i2c-dev driver reports for a
// missing acknowledge or a busy bus.
func classifyI2C(err error) error {
	if err == nil {
		return nil
	}
	for _, errno := range []unix.Errno{unix.EREMOTEIO, unix.ENXIO, unix.EAGAIN, unix.ETIMEDOUT, unix.EIO} {
		if errors.Is(err, errno) {
			return fmt.Errorf("%w: %v", ErrNack, err)
		}
	}
	return err
}
