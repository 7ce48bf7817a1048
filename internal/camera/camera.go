// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package camera wraps the camera capability behind the capture controller.
package camera

import (
	"errors"
	"time"
)

// ErrClosed is returned by a camera after Close.
var ErrClosed = errors.New("camera closed")

// Rect is a normalized crop rectangle; all fields are in 0..1.
type Rect struct {
	X, Y, W, H float64
}

// Camera is the narrow interface to the physical camera driver.
type Camera interface {
	// SetCrop selects the sensor region shown in preview and captured.
	SetCrop(r Rect) error
	// SetShutter fixes the exposure time. Only effective with auto exposure off.
	SetShutter(d time.Duration) error
	SetAutoExposure(on bool) error
	// Capture writes one full-resolution frame to path and returns after the
	// file is closed.
	Capture(path string) error
	StartStreaming() error
	StopStreaming() error
	// Resolution returns a label such as "4056x3040", or "" if unknown.
	Resolution() string
	Close() error
}
