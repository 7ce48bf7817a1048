// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package power suspends and resumes peripheral power and the camera on idle
// timeout or on the sleep button.
package power

import (
	"context"
	"time"

	"github.com/Thermoquad/filmkorn/internal/gpio"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
)

// State is the power state.
type State int

// Power states
const (
	Awake State = iota
	Sleeping
)

func (s State) String() string {
	if s == Sleeping {
		return "sleeping"
	}
	return "awake"
}

// Scanner is the state machine view the manager needs.
type Scanner interface {
	Scanning() bool
	Sleep() bool
	Wake() bool
}

// Streamer controls the camera's live stream.
type Streamer interface {
	StartStreaming() error
	StopStreaming() error
}

// Overlay is paused while asleep and reapplied after waking.
type Overlay interface {
	SetActive(active bool)
	Reapply()
}

// UnitStarter starts an external hand-off unit.
type UnitStarter interface {
	StartUnit(ctx context.Context, name string) error
}

// Options configures a Manager.
type Options struct {
	IdleTimeout time.Duration
	SettleDelay time.Duration
	SleepUnit   string
	WakeUnit    string
	// Button debounce timing.
	ButtonStable   time.Duration
	ButtonInterval time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		IdleTimeout:    300 * time.Second,
		SettleDelay:    2 * time.Second,
		SleepUnit:      "filmkorn-sleep.service",
		WakeUnit:       "filmkorn-wake.service",
		ButtonStable:   50 * time.Millisecond,
		ButtonInterval: time.Second,
	}
}

// Manager owns the power state. It is driven from the main loop.
type Manager struct {
	opts    Options
	power   gpio.Line
	button  gpio.Line
	scanner Scanner
	camera  Streamer
	overlay Overlay
	units   UnitStarter
	now     func() time.Time

	debounce  *Debouncer
	state     State
	idleSince time.Time
	reapplyAt time.Time
	sleeps    int
}

// New returns an awake manager and asserts peripheral power, since an output
// line opened through sysfs starts low. button, overlay and units may be nil.
func New(opts Options, power, button gpio.Line, scanner Scanner, camera Streamer, overlay Overlay, units UnitStarter) *Manager {
	if err := power.Set(true); err != nil {
		log.Warn().Str("component", "power").Err(err).Msg("cannot assert peripheral power")
	}
	return &Manager{
		opts:     opts,
		power:    power,
		button:   button,
		scanner:  scanner,
		camera:   camera,
		overlay:  overlay,
		units:    units,
		now:      time.Now,
		debounce: NewDebouncer(opts.ButtonStable, opts.ButtonInterval),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// State returns the power state.
func (m *Manager) State() State { return m.state }

// Sleeping reports whether the scanner is asleep.
func (m *Manager) Sleeping() bool { return m.state == Sleeping }

// Sleeps returns how many times the manager has gone to sleep.
func (m *Manager) Sleeps() int { return m.sleeps }

// Activity restarts the idle timer.
func (m *Manager) Activity() {
	m.idleSince = m.now()
}

// Tick samples the button, runs the idle timer and finishes a pending
// post-wake overlay reapply. idle is true while a non-scanning status screen
// is shown.
func (m *Manager) Tick(ctx context.Context, idle bool) {
	now := m.now()

	if m.button != nil {
		high, err := m.button.Get()
		if err != nil {
			log.Debug().Str("component", "power").Err(err).Msg("button read failed")
		} else if m.debounce.Update(high, now) {
			log.Info().Str("component", "power").Msg("sleep button pressed")
			m.Toggle(ctx)
		}
	}

	if !m.reapplyAt.IsZero() && !now.Before(m.reapplyAt) {
		m.reapplyAt = time.Time{}
		if m.overlay != nil {
			m.overlay.Reapply()
		}
	}

	if m.state == Sleeping {
		return
	}
	if !idle || m.scanner.Scanning() || m.idleSince.IsZero() {
		m.idleSince = now
		return
	}
	if m.opts.IdleTimeout > 0 && now.Sub(m.idleSince) >= m.opts.IdleTimeout {
		log.Info().Str("component", "power").Dur("idle", now.Sub(m.idleSince)).Msg("idle timeout")
		m.Sleep(ctx)
	}
}

// Toggle sleeps when awake and wakes when asleep.
func (m *Manager) Toggle(ctx context.Context) {
	if m.state == Sleeping {
		m.Wake(ctx)
		return
	}
	m.Sleep(ctx)
}

// Sleep cuts peripheral power and stops the camera stream. It does nothing
// while a scan is running. Hand-off failures are logged.
func (m *Manager) Sleep(ctx context.Context) bool {
	if m.state == Sleeping || m.scanner.Scanning() || !m.scanner.Sleep() {
		return false
	}
	m.state = Sleeping
	m.sleeps++
	m.reapplyAt = time.Time{}

	var result *multierror.Error
	if m.overlay != nil {
		m.overlay.SetActive(false)
	}
	if err := m.camera.StopStreaming(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.power.Set(false); err != nil {
		result = multierror.Append(result, err)
	}
	if m.units != nil && m.opts.SleepUnit != "" {
		if err := m.units.StartUnit(ctx, m.opts.SleepUnit); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warn().Str("component", "power").Err(err).Msg("sleep hand-off incomplete")
	}
	log.Info().Str("component", "power").Msg("sleeping")
	return true
}

// Wake restores peripheral power and the camera stream and schedules the
// overlay to be reapplied after the settle delay.
func (m *Manager) Wake(ctx context.Context) bool {
	if m.state != Sleeping {
		return false
	}
	m.scanner.Wake()
	m.state = Awake
	now := m.now()
	m.idleSince = now

	var result *multierror.Error
	if err := m.power.Set(true); err != nil {
		result = multierror.Append(result, err)
	}
	if err := m.camera.StartStreaming(); err != nil {
		result = multierror.Append(result, err)
	}
	if m.overlay != nil {
		m.overlay.SetActive(true)
	}
	m.reapplyAt = now.Add(m.opts.SettleDelay)
	if m.units != nil && m.opts.WakeUnit != "" {
		if err := m.units.StartUnit(ctx, m.opts.WakeUnit); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Warn().Str("component", "power").Err(err).Msg("wake hand-off incomplete")
	}
	log.Info().Str("component", "power").Msg("awake")
	return true
}
