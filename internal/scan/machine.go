// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scan implements the scan state machine and session lifecycle.
package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoSession is returned when a capture has no session to write into.
	ErrNoSession = errors.New("no scan session")
	// ErrTargetUnavailable is returned when the session directory cannot be
	// created or opened.
	ErrTargetUnavailable = errors.New("capture target unavailable")
	// ErrSleeping is returned for operations that are illegal while asleep.
	ErrSleeping = errors.New("scanner is sleeping")
)

// State of the scanner.
type State int

// States
const (
	StateIdle State = iota
	StatePreviewing
	StateScanning
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreviewing:
		return "previewing"
	case StateScanning:
		return "scanning"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Camera is the part of the capture controller the state machine drives.
type Camera interface {
	SetZoom(z filmkorn.Zoom) error
	SetLamp(on bool) error
	Lamp() bool
	Capture(path string) error
	Resolution() string
	ResetRate()
}

// Options configures a Machine.
type Options struct {
	// Root is the directory session directories are created in.
	Root string
	// Extension of captured frames, without the dot.
	Extension string
}

// Machine is the scan state machine. It exclusively owns the current session.
// It is driven from the main loop and is not safe for concurrent use.
type Machine struct {
	opts Options
	cam  Camera
	now  func() time.Time

	state    State
	session  *Session
	resuming bool
}

// New returns an idle machine.
func New(opts Options, cam Camera) *Machine {
	return &Machine{opts: opts, cam: cam, now: time.Now}
}

// SetClock replaces the time source used to name sessions.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Scanning reports whether a session is active.
func (m *Machine) Scanning() bool { return m.state == StateScanning }

// Resuming reports whether the active session was reopened by Resume and has
// not yet been confirmed by a StartScan.
func (m *Machine) Resuming() bool { return m.resuming }

// Session returns a copy of the active session, or nil.
func (m *Machine) Session() *Session {
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// StartScan opens a new session. It returns started=false when a scan is
// already running, leaving that session untouched. If no session can be
// created the lamp is switched back off. A session reopened by
// Resume is adopted as is and reported as started.
func (m *Machine) StartScan() (started bool, err error) {
	switch m.state {
	case StateSleeping:
		return false, ErrSleeping
	case StateScanning:
		if m.resuming {
			m.resuming = false
			return true, nil
		}
		log.Debug().Str("component", "scan").Msg("start ignored, already scanning")
		return false, nil
	}

	if err := m.cam.SetZoom(filmkorn.Zoom1x); err != nil {
		return false, err
	}
	if err := m.cam.SetLamp(true); err != nil {
		return false, err
	}
	s, err := createSession(m.opts.Root, m.opts.Extension, m.cam.Resolution(), m.now())
	if err != nil {
		if lerr := m.cam.SetLamp(false); lerr != nil {
			log.Warn().Str("component", "scan").Err(lerr).Msg("lamp off failed")
		}
		m.settle()
		return false, err
	}
	m.begin(s)
	log.Info().
		Str("component", "scan").
		Str("session", s.ID.String()).
		Str("dir", s.Dir).
		Msg("scan started")
	return true, nil
}

// Resume reopens the most recent session and continues numbering at next.
func (m *Machine) Resume(next int) error {
	if next < 0 {
		return fmt.Errorf("resume index %d is negative", next)
	}
	if m.state == StateSleeping {
		return ErrSleeping
	}
	s, err := openLatestSession(m.opts.Root, m.opts.Extension, next)
	if err != nil {
		return err
	}
	if err := m.cam.SetLamp(true); err != nil {
		return err
	}
	m.begin(s)
	m.resuming = true
	log.Info().
		Str("component", "scan").
		Str("dir", s.Dir).
		Int("next", next).
		Msg("scan resumed")
	return nil
}

func (m *Machine) begin(s *Session) {
	m.session = s
	m.state = StateScanning
	m.cam.ResetRate()
}

// CaptureFrame captures one frame into the active session and returns its
// path. Capturing without a session stops the scan. A capture error closes
// the session.
func (m *Machine) CaptureFrame() (string, error) {
	if m.state != StateScanning || m.session == nil || m.session.Dir == "" {
		m.closeSession()
		return "", ErrNoSession
	}
	path := m.session.Path()
	if err := m.cam.Capture(path); err != nil {
		log.Error().Str("component", "scan").Err(err).Msg("capture failed, closing session")
		m.closeSession()
		return "", err
	}
	m.session.Counter++
	return path, nil
}

// StopScan closes the active session and turns the lamp off. It reports
// whether a session was open.
func (m *Machine) StopScan() (bool, error) {
	wasScanning := m.state == StateScanning
	if wasScanning {
		log.Info().
			Str("component", "scan").
			Int("frames", m.session.Counter).
			Msg("scan stopped")
	}
	m.session = nil
	m.resuming = false
	if m.state != StateSleeping {
		m.state = StateIdle
	}
	err := m.cam.SetLamp(false)
	m.settle()
	return wasScanning, err
}

func (m *Machine) closeSession() {
	m.session = nil
	m.resuming = false
	if m.state == StateScanning {
		m.state = StateIdle
	}
	m.settle()
}

// SetZoom changes zoom in any state except sleeping.
func (m *Machine) SetZoom(z filmkorn.Zoom) error {
	if m.state == StateSleeping {
		return ErrSleeping
	}
	if err := m.cam.SetZoom(z); err != nil {
		return err
	}
	m.settle()
	return nil
}

// SetLamp switches the lamp in any state except sleeping.
func (m *Machine) SetLamp(on bool) error {
	if m.state == StateSleeping {
		return ErrSleeping
	}
	if err := m.cam.SetLamp(on); err != nil {
		return err
	}
	m.settle()
	return nil
}

// Sleep enters the sleeping state. It refuses while scanning.
func (m *Machine) Sleep() bool {
	if m.state == StateScanning || m.state == StateSleeping {
		return false
	}
	m.state = StateSleeping
	return true
}

// Wake leaves the sleeping state.
func (m *Machine) Wake() bool {
	if m.state != StateSleeping {
		return false
	}
	m.state = StateIdle
	m.settle()
	return true
}

// settle derives Idle or Previewing from the lamp when not scanning or asleep.
func (m *Machine) settle() {
	if m.state == StateScanning || m.state == StateSleeping {
		return
	}
	if m.cam.Lamp() {
		m.state = StatePreviewing
	} else {
		m.state = StateIdle
	}
}
