// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package storage selects where the background sync daemon sends frames and
// watches the capture volume drain.
package storage

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/filmkorn/internal/gpio"
	"github.com/rs/zerolog/log"
)

// Target is a sync destination.
type Target int

// Targets
const (
	TargetNone Target = iota
	TargetLocal
	TargetNetwork
)

func (t Target) String() string {
	switch t {
	case TargetLocal:
		return "local"
	case TargetNetwork:
		return "network"
	default:
		return "none"
	}
}

// Status is the outcome of a switch check.
type Status int

// Switch statuses
const (
	StatusOK Status = iota
	// StatusNoDrive means the local target is selected but not mounted yet.
	StatusNoDrive
)

// Restarter restarts the sync service.
type Restarter interface {
	RestartUnit(ctx context.Context, name string) error
}

// Options configures a Switcher.
type Options struct {
	// LocalMount is the mount point of the attached drive.
	LocalMount string
	// LocalConfig and NetConfig are the two sync configurations.
	LocalConfig string
	NetConfig   string
	// Link is the symlink the sync daemon reads its configuration through.
	Link string
	// Unit is the sync service restarted after a switch.
	Unit string
	// PollInterval spaces mount checks while waiting for the drive.
	PollInterval time.Duration
}

// Switcher applies the hardware target switch. Check is called from the main
// loop; the mount poller runs on its own goroutine and only sets a flag.
type Switcher struct {
	opts      Options
	line      gpio.Line
	restarter Restarter
	mounted   func(path string) (bool, error)

	applied Target
	waiting bool

	mountSeen atomic.Bool
	polling   atomic.Bool
}

// NewSwitcher returns a switcher. A high switch line selects the local drive.
func NewSwitcher(opts Options, line gpio.Line, restarter Restarter) *Switcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Switcher{opts: opts, line: line, restarter: restarter, mounted: IsMounted}
}

// SetMountCheck replaces the mount probe.
func (s *Switcher) SetMountCheck(f func(path string) (bool, error)) {
	s.mounted = f
}

// Applied returns the target the sync daemon currently points at.
func (s *Switcher) Applied() Target { return s.applied }

// WaitingForDrive reports whether a local switch is held back by a missing mount.
func (s *Switcher) WaitingForDrive() bool { return s.waiting }

// Desired reads the switch.
func (s *Switcher) Desired() (Target, error) {
	high, err := s.line.Get()
	if err != nil {
		return TargetNone, fmt.Errorf("read target switch: %w", err)
	}
	if high {
		return TargetLocal, nil
	}
	return TargetNetwork, nil
}

// Check reads the switch and applies a changed target. Selecting the local
// target without its drive returns StatusNoDrive and starts the mount poller;
// a later Check completes the switch once the drive has appeared.
func (s *Switcher) Check(ctx context.Context) Status {
	want, err := s.Desired()
	if err != nil {
		log.Warn().Str("component", "storage").Err(err).Msg("switch unreadable")
		return s.status()
	}

	if want != TargetLocal {
		s.waiting = false
		if want != s.applied {
			s.apply(ctx, want)
		}
		return StatusOK
	}

	if s.applied == TargetLocal && !s.waiting {
		return StatusOK
	}
	if !s.waiting {
		ok, err := s.mounted(s.opts.LocalMount)
		if err != nil {
			log.Warn().Str("component", "storage").Err(err).Msg("mount check failed")
		}
		if ok {
			s.apply(ctx, TargetLocal)
			return StatusOK
		}
		log.Info().Str("component", "storage").Str("mount", s.opts.LocalMount).Msg("waiting for drive")
		s.waiting = true
		s.mountSeen.Store(false)
	}
	if s.mountSeen.Load() {
		s.waiting = false
		s.apply(ctx, TargetLocal)
		return StatusOK
	}
	s.startPoller(ctx)
	return StatusNoDrive
}

func (s *Switcher) status() Status {
	if s.waiting {
		return StatusNoDrive
	}
	return StatusOK
}

// startPoller watches for the local mount on a goroutine until it appears.
func (s *Switcher) startPoller(ctx context.Context) {
	if !s.polling.CompareAndSwap(false, true) {
		return
	}
	mount, interval, probe := s.opts.LocalMount, s.opts.PollInterval, s.mounted
	go func() {
		defer s.polling.Store(false)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			if ok, _ := probe(mount); ok {
				s.mountSeen.Store(true)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}

func (s *Switcher) apply(ctx context.Context, t Target) {
	config := s.opts.NetConfig
	if t == TargetLocal {
		config = s.opts.LocalConfig
	}
	if err := SwapLink(config, s.opts.Link); err != nil {
		log.Error().Str("component", "storage").Err(err).Stringer("target", t).Msg("switch failed")
		return
	}
	s.applied = t
	log.Info().Str("component", "storage").Stringer("target", t).Str("config", config).Msg("sync target switched")

	if s.restarter == nil || s.opts.Unit == "" {
		return
	}
	if err := s.restarter.RestartUnit(ctx, s.opts.Unit); err != nil {
		log.Error().Str("component", "storage").Err(err).Str("unit", s.opts.Unit).Msg("sync restart failed")
	}
}

// SwapLink atomically points link at target by renaming a fresh symlink over it.
func SwapLink(target, link string) error {
	tmp := link + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear %s: %w", tmp, err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("symlink %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", link, err)
	}
	return nil
}
