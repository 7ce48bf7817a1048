// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux && !darwin

package diskspace

import "errors"

// Statfs is unavailable on this platform.
type Statfs struct{}

func (Statfs) Free(string) (uint64, error) {
	return 0, errors.New("statfs not supported on this platform")
}
