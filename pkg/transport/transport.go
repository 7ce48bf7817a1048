// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

// Options configures the retry policy.
type Options struct {
	// InitialInterval is the first backoff delay; each retry doubles it.
	InitialInterval time.Duration
	// MaxAttempts bounds the total number of tries per operation.
	MaxAttempts int
}

// DefaultOptions returns the production policy: 100ms, doubling, 5 attempts.
func DefaultOptions() Options {
	return Options{
		InitialInterval: 100 * time.Millisecond,
		MaxAttempts:     5,
	}
}

// Counters tracks bus-level retry activity.
type Counters struct {
	NackRetries   uint64
	SendFailures  uint64
	PollFailures  uint64
	EmptyReplies  uint64
	LastError     string
	LastErrorTime time.Time
}

// Transport is the host side of the polled exchange. It is owned by the
// main loop and never used concurrently.
type Transport struct {
	bus      Bus
	opts     Options
	counters Counters
	block    []byte
}

// New wraps bus with the given retry policy.
func New(bus Bus, opts Options) *Transport {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Transport{
		bus:   bus,
		opts:  opts,
		block: make([]byte, filmkorn.BlockSize),
	}
}

// Counters returns a copy of the retry counters.
func (t *Transport) Counters() Counters {
	return t.counters
}

// Close closes the underlying bus.
func (t *Transport) Close() error {
	return t.bus.Close()
}

func (t *Transport) policy() backoff.BackOff {
	if t.opts.MaxAttempts == 1 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = t.opts.InitialInterval << uint(t.opts.MaxAttempts)
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(t.opts.MaxAttempts-1))
}

// retry runs op until it succeeds, fails with a non-NACK error, or the
// attempt budget is spent.
func (t *Transport) retry(what string, op func() error) error {
	attempt := func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrNack) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		t.counters.NackRetries++
		log.Debug().Err(err).Str("op", what).Dur("backoff", wait).Msg("bus nack, retrying")
	}

	err := backoff.RetryNotify(attempt, t.policy(), notify)
	if err != nil {
		t.counters.LastError = err.Error()
		t.counters.LastErrorTime = time.Now()
	}
	return err
}

// Send writes one request byte. Failures are logged and returned, never
// raised: callers proceed optimistically.
func (t *Transport) Send(cmd filmkorn.HostCommand, seq uint8) error {
	b, err := filmkorn.EncodeRequest(cmd, seq)
	if err != nil {
		return err
	}

	err = t.retry("send", func() error {
		_, err := t.bus.Write([]byte{b})
		return err
	})
	if err != nil {
		t.counters.SendFailures++
		log.Warn().Err(err).Str("command", cmd.String()).Uint8("seq", seq).Msg("controller did not take request")
		return fmt.Errorf("%w: send %s: %v", ErrNoResponse, cmd, err)
	}
	return nil
}

// Poll reads the next response block and decodes it.
//
// It returns ErrNoResponse when the peer stayed silent through every retry,
// ErrEmptyResponse for an all-zero block, and the decoder's error for a block
// outside the known opcode range.
func (t *Transport) Poll() (*filmkorn.Frame, error) {
	err := t.retry("poll", func() error {
		n, err := t.bus.Read(t.block)
		if err != nil {
			return err
		}
		if n < len(t.block) {
			return fmt.Errorf("%w: short read %d/%d", ErrNack, n, len(t.block))
		}
		return nil
	})
	if err != nil {
		t.counters.PollFailures++
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}

	if filmkorn.IsEmptyBlock(t.block) {
		t.counters.EmptyReplies++
		return nil, ErrEmptyResponse
	}
	return filmkorn.DecodeBlock(t.block)
}

// Exchange sends a poll request carrying seq and reads the answer.
func (t *Transport) Exchange(seq uint8) (*filmkorn.Frame, error) {
	if err := t.Send(filmkorn.HostPoll, seq); err != nil {
		return nil, err
	}
	return t.Poll()
}
