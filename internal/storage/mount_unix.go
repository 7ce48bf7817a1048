// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux || darwin

package storage

import (
	"errors"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMounted reports whether path is the root of a mounted filesystem, i.e.
// it lives on a different device than its parent directory.
func IsMounted(path string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, err
	}
	if err := unix.Stat(filepath.Dir(filepath.Clean(path)), &parent); err != nil {
		return false, err
	}
	return st.Dev != parent.Dev, nil
}
