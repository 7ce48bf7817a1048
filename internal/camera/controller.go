// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/Thermoquad/filmkorn/internal/gpio"
	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/rs/zerolog/log"
)

// Shutter range reached by the exposure potentiometer.
const (
	MinShutter = 100 * time.Microsecond
	MaxShutter = 100 * time.Millisecond
)

// RateWindow is the number of capture intervals averaged by FrameRate.
const RateWindow = 36

// zoomCrops are the sensor regions for each zoom level.
var zoomCrops = map[filmkorn.Zoom]Rect{
	filmkorn.Zoom1x:  {0, 0, 1, 1},
	filmkorn.Zoom3x:  {1.0 / 3, 1.0 / 3, 1.0 / 3, 1.0 / 3},
	filmkorn.Zoom10x: {0.45, 0.45, 0.1, 0.1},
}

// CropFor returns the crop rectangle for z.
func CropFor(z filmkorn.Zoom) Rect {
	if r, ok := zoomCrops[z]; ok {
		return r
	}
	return zoomCrops[filmkorn.Zoom1x]
}

// ShutterFor maps a potentiometer reading onto the shutter range. The mapping
// is logarithmic so each pot step is a constant fraction of a stop.
func ShutterFor(raw uint16) time.Duration {
	if raw > filmkorn.MaxExposure {
		raw = filmkorn.MaxExposure
	}
	ratio := float64(MaxShutter) / float64(MinShutter)
	d := float64(MinShutter) * math.Pow(ratio, float64(raw)/filmkorn.MaxExposure)
	return time.Duration(math.Round(d/float64(time.Microsecond))) * time.Microsecond
}

// Controller owns the camera and lamp and executes zoom, lamp, exposure and
// capture operations on behalf of the main loop. It is not safe for
// concurrent use.
type Controller struct {
	cam  Camera
	lamp gpio.Line
	now  func() time.Time

	zoom     filmkorn.Zoom
	lampOn   bool
	exposure uint16
	shutter  time.Duration
	auto     bool

	lastCapture time.Time
	intervals   [RateWindow]time.Duration
	next        int
	filled      int
}

// NewController wraps cam. lamp may be nil when the lamp is switched by the
// microcontroller itself.
func NewController(cam Camera, lamp gpio.Line) *Controller {
	return &Controller{
		cam:     cam,
		lamp:    lamp,
		now:     time.Now,
		shutter: ShutterFor(0),
		auto:    true,
	}
}

// SetClock replaces the time source used for frame-rate accounting.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// Zoom returns the current zoom level.
func (c *Controller) Zoom() filmkorn.Zoom { return c.zoom }

// Lamp reports whether the lamp is on.
func (c *Controller) Lamp() bool { return c.lampOn }

// Exposure returns the last potentiometer reading.
func (c *Controller) Exposure() uint16 { return c.exposure }

// Shutter returns the fixed shutter derived from the last exposure reading.
func (c *Controller) Shutter() time.Duration { return c.shutter }

// AutoExposure reports whether auto exposure is active.
func (c *Controller) AutoExposure() bool { return c.auto }

// Resolution returns the camera's resolution label.
func (c *Controller) Resolution() string { return c.cam.Resolution() }

// SetZoom selects a zoom level. Any tele zoom turns the lamp on; returning to
// 1:1 leaves the lamp as it is.
func (c *Controller) SetZoom(z filmkorn.Zoom) error {
	if err := c.cam.SetCrop(CropFor(z)); err != nil {
		return fmt.Errorf("set zoom %s: %w", z, err)
	}
	c.zoom = z
	log.Debug().Str("component", "camera").Stringer("zoom", z).Msg("zoom set")
	if z != filmkorn.Zoom1x {
		return c.SetLamp(true)
	}
	return nil
}

// SetLamp switches the lamp. Switching it off also returns the preview to 1:1.
func (c *Controller) SetLamp(on bool) error {
	if c.lamp != nil {
		if err := c.lamp.Set(on); err != nil {
			return fmt.Errorf("set lamp: %w", err)
		}
	}
	c.lampOn = on
	log.Debug().Str("component", "camera").Bool("lamp", on).Msg("lamp set")
	if !on && c.zoom != filmkorn.Zoom1x {
		if err := c.cam.SetCrop(CropFor(filmkorn.Zoom1x)); err != nil {
			return fmt.Errorf("reset zoom: %w", err)
		}
		c.zoom = filmkorn.Zoom1x
	}
	return nil
}

// SetExposure records a potentiometer reading and applies the derived
// shutter unless auto exposure is active.
func (c *Controller) SetExposure(raw uint16) error {
	c.exposure = raw
	c.shutter = ShutterFor(raw)
	if c.auto {
		return nil
	}
	if err := c.cam.SetShutter(c.shutter); err != nil {
		return fmt.Errorf("set shutter: %w", err)
	}
	return nil
}

// SetAutoExposure toggles automatic exposure. Leaving auto mode reapplies the
// last known shutter.
func (c *Controller) SetAutoExposure(on bool) error {
	if err := c.cam.SetAutoExposure(on); err != nil {
		return fmt.Errorf("set auto exposure: %w", err)
	}
	c.auto = on
	if !on {
		if err := c.cam.SetShutter(c.shutter); err != nil {
			return fmt.Errorf("set shutter: %w", err)
		}
	}
	return nil
}

// Capture takes one frame with exposure fixed to the last known value and
// writes it to path. The frame is written under a temporary name and renamed
// into place so a directory watcher only ever sees complete files.
func (c *Controller) Capture(path string) error {
	if c.auto {
		if err := c.SetAutoExposure(false); err != nil {
			return err
		}
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".part")
	if err := c.cam.Capture(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("capture %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish %s: %w", path, err)
	}

	now := c.now()
	if !c.lastCapture.IsZero() {
		c.intervals[c.next] = now.Sub(c.lastCapture)
		c.next = (c.next + 1) % RateWindow
		if c.filled < RateWindow {
			c.filled++
		}
	}
	c.lastCapture = now
	return nil
}

// ResetRate forgets capture timing, e.g. at the start of a session.
func (c *Controller) ResetRate() {
	c.lastCapture = time.Time{}
	c.next = 0
	c.filled = 0
}

// FrameRate returns the instantaneous rate from the last interval and the
// rolling average over the last RateWindow intervals, in frames per second.
func (c *Controller) FrameRate() (instant, average float64) {
	if c.filled == 0 {
		return 0, 0
	}
	last := c.intervals[(c.next+RateWindow-1)%RateWindow]
	if last > 0 {
		instant = float64(time.Second) / float64(last)
	}
	var sum time.Duration
	for i := 0; i < c.filled; i++ {
		sum += c.intervals[i]
	}
	if sum > 0 {
		average = float64(c.filled) * float64(time.Second) / float64(sum)
	}
	return instant, average
}

// StartStreaming resumes the live preview.
func (c *Controller) StartStreaming() error {
	return c.cam.StartStreaming()
}

// StopStreaming halts the live preview.
func (c *Controller) StopStreaming() error {
	return c.cam.StopStreaming()
}

// Close turns the lamp off and releases the camera.
func (c *Controller) Close() error {
	if c.lamp != nil && c.lampOn {
		_ = c.lamp.Set(false)
	}
	c.lampOn = false
	return c.cam.Close()
}
