// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package diskspace applies backpressure to capture when the capture volume
// runs low on free space.
package diskspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCritical means free space fell below the abort threshold. It is not
// recoverable in-process.
var ErrCritical = errors.New("disk space critical")

// Level classifies a budget.
type Level int

// Levels
const (
	LevelOK Level = iota
	LevelLow
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelLow:
		return "low"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Budget is one free-space sample against the thresholds.
type Budget struct {
	Free  uint64
	Wait  uint64
	Abort uint64
}

// Level classifies the sample.
func (b Budget) Level() Level {
	switch {
	case b.Free < b.Abort:
		return LevelCritical
	case b.Free < b.Wait:
		return LevelLow
	default:
		return LevelOK
	}
}

// Sampler reports free bytes available to unprivileged writers at path.
type Sampler interface {
	Free(path string) (uint64, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(path string) (uint64, error)

func (f SamplerFunc) Free(path string) (uint64, error) { return f(path) }

// Listener is told when capture is paused for space and when it resumes.
type Listener interface {
	SpaceLow(b Budget)
	SpaceRecovered(b Budget)
}

// Options configures a Governor.
type Options struct {
	Path  string
	Wait  uint64
	Abort uint64
	// Hysteresis scales Wait to get the resume threshold.
	Hysteresis float64
	// ScanInterval and IdleInterval space periodic checks.
	ScanInterval time.Duration
	IdleInterval time.Duration
	// PollInterval is the sleep between samples while waiting.
	PollInterval time.Duration
}

// Governor samples the capture volume and blocks capture while it is low.
// It is driven from the main loop.
type Governor struct {
	opts     Options
	sampler  Sampler
	listener Listener
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	lastCheck time.Time
	last      Budget
	waiting   bool
}

// New returns a governor. listener may be nil.
func New(opts Options, sampler Sampler, listener Listener) *Governor {
	if opts.Hysteresis < 1 {
		opts.Hysteresis = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &Governor{
		opts:     opts,
		sampler:  sampler,
		listener: listener,
		now:      time.Now,
		sleep:    sleepContext,
		last:     Budget{Wait: opts.Wait, Abort: opts.Abort},
	}
}

// SetClock replaces the time source and the sleep used while waiting.
func (g *Governor) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	g.now = now
	g.sleep = sleep
}

// SetListener replaces the listener.
func (g *Governor) SetListener(l Listener) {
	g.listener = l
}

// Last returns the most recent sample.
func (g *Governor) Last() Budget {
	return g.last
}

// Waiting reports whether capture is currently paused for space.
func (g *Governor) Waiting() bool {
	return g.waiting
}

// ResumeThreshold is the free space required to leave the waiting state.
func (g *Governor) ResumeThreshold() uint64 {
	return uint64(float64(g.opts.Wait) * g.opts.Hysteresis)
}

// Due reports whether a periodic check is due.
func (g *Governor) Due(scanning bool) bool {
	interval := g.opts.IdleInterval
	if scanning {
		interval = g.opts.ScanInterval
	}
	return g.lastCheck.IsZero() || g.now().Sub(g.lastCheck) >= interval
}

// Sample takes one reading.
func (g *Governor) Sample() (Budget, error) {
	free, err := g.sampler.Free(g.opts.Path)
	if err != nil {
		return g.last, fmt.Errorf("sample %s: %w", g.opts.Path, err)
	}
	g.last = Budget{Free: free, Wait: g.opts.Wait, Abort: g.opts.Abort}
	g.lastCheck = g.now()
	return g.last, nil
}

// Check runs a periodic check if one is due.
func (g *Governor) Check(ctx context.Context, scanning bool) error {
	if !g.Due(scanning) {
		return nil
	}
	return g.Ensure(ctx)
}

// Ensure samples now and blocks until there is room to capture. It returns
// ErrCritical below the abort threshold and ctx.Err() if cancelled while
// waiting. A failed sample is logged and treated as enough space.
func (g *Governor) Ensure(ctx context.Context) error {
	b, err := g.Sample()
	if err != nil {
		log.Warn().Str("component", "diskspace").Err(err).Msg("free space unknown")
		g.lastCheck = g.now()
		return nil
	}
	switch b.Level() {
	case LevelCritical:
		return g.critical(b)
	case LevelLow:
		return g.WaitForSpace(ctx)
	}
	return nil
}

// WaitForSpace blocks until free space rises above the resume threshold.
func (g *Governor) WaitForSpace(ctx context.Context) error {
	resume := g.ResumeThreshold()
	g.waiting = true
	defer func() { g.waiting = false }()

	log.Warn().
		Str("component", "diskspace").
		Uint64("free", g.last.Free).
		Uint64("wait", g.opts.Wait).
		Uint64("resume", resume).
		Msg("capture paused, waiting for space")
	if g.listener != nil {
		g.listener.SpaceLow(g.last)
	}

	for {
		if err := g.sleep(ctx, g.opts.PollInterval); err != nil {
			return err
		}
		b, err := g.Sample()
		if err != nil {
			log.Warn().Str("component", "diskspace").Err(err).Msg("sample failed while waiting")
			continue
		}
		if b.Level() == LevelCritical {
			return g.critical(b)
		}
		if b.Free > resume {
			log.Info().Str("component", "diskspace").Uint64("free", b.Free).Msg("space recovered")
			if g.listener != nil {
				g.listener.SpaceRecovered(b)
			}
			return nil
		}
	}
}

func (g *Governor) critical(b Budget) error {
	log.Error().
		Str("component", "diskspace").
		Uint64("free", b.Free).
		Uint64("abort", b.Abort).
		Msg("free space below abort threshold")
	return fmt.Errorf("%w: %d bytes free, abort below %d", ErrCritical, b.Free, b.Abort)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
