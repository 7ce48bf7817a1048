// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"
	"time"
)

// Simulated is a camera that writes small synthetic frames. It backs the
// `run --simulate` mode and the tests.
type Simulated struct {
	mu sync.Mutex

	Width, Height int

	// FailCapture, when set, is returned by the next Capture calls.
	FailCapture error

	crop      Rect
	shutter   time.Duration
	auto      bool
	streaming bool
	closed    bool
	captures  []string
}

// NewSimulated returns a streaming simulated camera.
func NewSimulated() *Simulated {
	return &Simulated{
		Width:     4056,
		Height:    3040,
		crop:      Rect{0, 0, 1, 1},
		auto:      true,
		streaming: true,
	}
}

func (s *Simulated) SetCrop(r Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.crop = r
	return nil
}

func (s *Simulated) SetShutter(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.shutter = d
	return nil
}

func (s *Simulated) SetAutoExposure(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.auto = on
	return nil
}

func (s *Simulated) Capture(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.FailCapture != nil {
		return s.FailCapture
	}

	// Thumbnail-sized so tests stay fast; the shade follows the shutter.
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	shade := uint8(s.shutter / (400 * time.Microsecond))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.SetGray(0, 0, color.Gray{Y: uint8(len(s.captures))})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		f.Close()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.captures = append(s.captures, path)
	return nil
}

func (s *Simulated) StartStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.streaming = true
	return nil
}

func (s *Simulated) StopStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	return nil
}

func (s *Simulated) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.streaming = false
	return nil
}

// State returns the last applied settings.
func (s *Simulated) State() (crop Rect, shutter time.Duration, auto, streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop, s.shutter, s.auto, s.streaming
}

// Captures returns the paths passed to successful Capture calls.
func (s *Simulated) Captures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.captures...)
}
