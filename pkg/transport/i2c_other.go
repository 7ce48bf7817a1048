// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package transport

import (
	"errors"
	"io"
)

// I2CBus is only available on Linux.
type I2CBus struct {
	io.ReadWriteCloser
}

// OpenI2C always fails outside Linux.
func OpenI2C(device string, address int) (*I2CBus, error) {
	return nil, errors.New("i2c-dev is only supported on linux")
}
