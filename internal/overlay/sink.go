// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// ErrUnsupported is returned by a sink whose display backend is not ready.
var ErrUnsupported = errors.New("overlay unsupported")

// Sink hands a composed overlay to the display backend.
type Sink interface {
	Apply(img image.Image) error
}

// FileSink publishes the overlay as an image file picked up by the display
// compositor. The format follows the extension: .png or .bmp.
type FileSink struct {
	Path string
}

// Apply writes img atomically. A missing target directory means the
// compositor is not running and reports ErrUnsupported.
func (s FileSink) Apply(img image.Image) error {
	dir := filepath.Dir(s.Path)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return fmt.Errorf("%w: %s not present", ErrUnsupported, dir)
	}

	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".png":
		encode = png.Encode
	case ".bmp":
		encode = bmp.Encode
	default:
		return fmt.Errorf("overlay format %q not supported", filepath.Ext(s.Path))
	}

	f, err := os.CreateTemp(dir, ".overlay-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode overlay: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
