// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package core ties the scanner components together and runs the
// cooperative main loop.
package core

import (
	"sync/atomic"
	"time"

	"github.com/Thermoquad/filmkorn/internal/camera"
	"github.com/Thermoquad/filmkorn/internal/diskspace"
	"github.com/Thermoquad/filmkorn/internal/overlay"
	"github.com/Thermoquad/filmkorn/internal/power"
	"github.com/Thermoquad/filmkorn/internal/scan"
	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/Thermoquad/filmkorn/internal/storage"
	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/Thermoquad/filmkorn/pkg/transport"
	"github.com/hashicorp/go-multierror"
)

// Link is the controller bus as seen by the main loop.
type Link interface {
	Send(cmd filmkorn.HostCommand, seq uint8) error
	Poll() (*filmkorn.Frame, error)
	Counters() transport.Counters
	Close() error
}

// Options configures the main loop.
type Options struct {
	RawRoot         string
	ScanTick        time.Duration
	IdleTick        time.Duration
	SwitchInterval  time.Duration
	PublishInterval time.Duration
	// ResumeAt reopens the latest session at this frame number; negative
	// starts normally.
	ResumeAt int
}

// Components are the collaborators the controller drives. Switcher, Drain
// and Hub are optional.
type Components struct {
	Link     Link
	Camera   *camera.Controller
	Scan     *scan.Machine
	Governor *diskspace.Governor
	Power    *power.Manager
	Overlay  *overlay.Presenter
	Switcher *storage.Switcher
	Drain    *storage.Drain
	Hub      *status.Hub
}

// Controller is the owned aggregate of scanner state. Only the main loop
// touches it; background pollers and the signal handler reach it through
// atomic flags.
type Controller struct {
	opts Options
	Components

	seq   *filmkorn.Sequencer
	stats *filmkorn.Statistics
	now   func() time.Time
	sleep func(d time.Duration)

	filmLoaded        bool
	targetUnavailable bool
	draining          bool
	screen            overlay.Screen
	screenShown       bool

	lastSwitch  time.Time
	lastPublish time.Time

	shutdown atomic.Bool
}

// New builds a controller and registers it as the governor's listener.
func New(opts Options, c Components) *Controller {
	ctl := &Controller{
		opts:       opts,
		Components: c,
		seq:        filmkorn.NewSequencer(),
		stats:      filmkorn.NewStatistics(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	c.Governor.SetListener(ctl)
	return ctl
}

// SetClock replaces the loop's time source and tick sleep.
func (c *Controller) SetClock(now func() time.Time, sleep func(time.Duration)) {
	c.now = now
	c.sleep = sleep
}

// Shutdown asks the main loop to stop at the next tick. Safe to call from a
// signal handler goroutine.
func (c *Controller) Shutdown() {
	c.shutdown.Store(true)
}

// ShuttingDown reports whether Shutdown was called.
func (c *Controller) ShuttingDown() bool {
	return c.shutdown.Load()
}

// Statistics returns the protocol counters.
func (c *Controller) Statistics() filmkorn.Statistics {
	return *c.stats
}

// Sequence returns the nibble the next request will carry.
func (c *Controller) Sequence() uint8 {
	return c.seq.Current()
}

// Screen returns the status screen currently shown.
func (c *Controller) Screen() overlay.Screen {
	return c.screen
}

// FilmLoaded reports the last known film sensor state.
func (c *Controller) FilmLoaded() bool {
	return c.filmLoaded
}

// Close releases the camera and the bus. The lamp is switched off.
func (c *Controller) Close() error {
	var result *multierror.Error
	if err := c.Camera.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Link.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Snapshot captures the current state for the status feed.
func (c *Controller) Snapshot() status.Snapshot {
	inst, avg := c.Camera.FrameRate()
	budget := c.Governor.Last()
	counters := c.Link.Counters()

	s := status.Snapshot{
		Time:            c.now(),
		State:           c.Scan.State().String(),
		Power:           c.Power.State().String(),
		Screen:          string(c.screen),
		Zoom:            c.Camera.Zoom().String(),
		Lamp:            c.Camera.Lamp(),
		FilmLoaded:      c.filmLoaded,
		Exposure:        c.Camera.Exposure(),
		Shutter:         overlay.FormatShutter(c.Camera.Shutter()),
		FPS:             inst,
		AvgFPS:          avg,
		FreeBytes:       budget.Free,
		WaitBytes:       budget.Wait,
		AbortBytes:      budget.Abort,
		ResumeBytes:     c.Governor.ResumeThreshold(),
		WaitingForSpace: c.Governor.Waiting(),
		WaitingForDrive: c.waitingForDrive(),
		Draining:        c.draining,
		OverlayDisabled: c.Overlay.Disabled(),
		Bus: status.BusStats{
			Polls:       c.stats.Polls,
			Accepted:    c.stats.Accepted,
			Idle:        c.stats.Idle,
			Stale:       c.stats.Stale,
			Resets:      c.stats.Resets,
			Unknown:     c.stats.UnknownOpcodes,
			Malformed:   c.stats.Malformed,
			Empty:       c.stats.Empty,
			NoResponse:  c.stats.NoResponse,
			NackRetries: counters.NackRetries,
		},
	}
	if sess := c.Scan.Session(); sess != nil {
		s.SessionID = sess.ID.String()
		s.SessionDir = sess.Dir
		s.Frames = sess.Counter
	}
	if c.Switcher != nil {
		s.Target = c.Switcher.Applied().String()
	}
	return s
}
