// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux && !darwin

package storage

import (
	"errors"
	"os"
)

// IsMounted reports whether path exists; mount points cannot be told apart
// from plain directories on this platform.
func IsMounted(path string) (bool, error) {
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}
