// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package overlay renders status screens and telemetry badges over the live
// preview on a background worker.
package overlay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

// Options configures a Presenter.
type Options struct {
	Width, Height int
	// Retries is how many times an unsupported sink is retried before the
	// overlay is disabled for the rest of the process.
	Retries    int
	RetryDelay time.Duration
}

type request struct {
	screen    Screen
	telemetry Telemetry
}

// Presenter owns the sink and the renderer on its own goroutine. Callers
// submit requests without blocking; only the most recent pending request is
// kept.
type Presenter struct {
	opts     Options
	sink     Sink
	renderer *Renderer
	requests chan request

	mu      sync.Mutex
	current request

	active   atomic.Bool
	disabled atomic.Bool
	applied  atomic.Int64
}

// NewPresenter returns an active presenter. Call Run to start the worker.
func NewPresenter(opts Options, sink Sink) *Presenter {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	p := &Presenter{
		opts:     opts,
		sink:     sink,
		renderer: NewRenderer(opts.Width, opts.Height),
		requests: make(chan request, 1),
	}
	p.active.Store(true)
	return p
}

// Show switches the status screen, keeping the current telemetry.
func (p *Presenter) Show(s Screen) {
	p.mu.Lock()
	changed := p.current.screen != s
	p.current.screen = s
	r := p.current
	p.mu.Unlock()
	if changed {
		log.Debug().Str("component", "overlay").Str("screen", string(s)).Msg("screen")
	}
	p.submit(r)
}

// UpdateTelemetry replaces the telemetry badges.
func (p *Presenter) UpdateTelemetry(t Telemetry) {
	p.mu.Lock()
	p.current.telemetry = t
	r := p.current
	p.mu.Unlock()
	p.submit(r)
}

// Current returns the screen last asked for.
func (p *Presenter) Current() Screen {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.screen
}

// Reapply resubmits the last known overlay, e.g. after the display woke up.
func (p *Presenter) Reapply() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()
	p.submit(r)
}

// SetActive pauses or resumes rendering. Requests made while paused are
// dropped; Reapply restores the latest state.
func (p *Presenter) SetActive(active bool) {
	p.active.Store(active)
}

// Disabled reports whether the overlay was given up on.
func (p *Presenter) Disabled() bool {
	return p.disabled.Load()
}

// Applied returns how many frames reached the sink.
func (p *Presenter) Applied() int64 {
	return p.applied.Load()
}

func (p *Presenter) submit(r request) {
	if p.disabled.Load() || !p.active.Load() {
		return
	}
	for {
		select {
		case p.requests <- r:
			return
		default:
		}
		// Drop the stale pending request.
		select {
		case <-p.requests:
		default:
		}
	}
}

// Run renders and applies requests until ctx is cancelled.
func (p *Presenter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-p.requests:
			if p.disabled.Load() || !p.active.Load() {
				continue
			}
			p.apply(ctx, r)
		}
	}
}

func (p *Presenter) apply(ctx context.Context, r request) {
	img := p.renderer.Compose(r.screen, r.telemetry)

	op := func() error {
		err := p.sink.Apply(img)
		if err != nil && !errors.Is(err, ErrUnsupported) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.opts.RetryDelay), uint64(p.opts.Retries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		log.Debug().Str("component", "overlay").Err(err).Dur("retry_in", wait).Msg("overlay not ready")
	}

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		p.applied.Add(1)
	case errors.Is(err, ErrUnsupported) && ctx.Err() == nil:
		p.disabled.Store(true)
		log.Warn().Str("component", "overlay").Err(err).Int("retries", p.opts.Retries).Msg("overlay disabled")
	default:
		log.Warn().Str("component", "overlay").Err(err).Msg("overlay apply failed")
	}
}
