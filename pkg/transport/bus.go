// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport exchanges request bytes and response blocks with the
// scanner controller over a shared, address-based bus.
package transport

import (
	"errors"
	"io"
)

// Bus is a byte-oriented link to one peer address.
type Bus interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport errors
var (
	// ErrNack marks a transient bus error (peer busy, arbitration lost).
	// Only errors wrapping ErrNack are retried.
	ErrNack = errors.New("bus nack")

	// ErrNoResponse is returned after the retry budget is exhausted.
	ErrNoResponse = errors.New("no response from controller")

	// ErrEmptyResponse is returned when the peer answers with nothing actionable.
	ErrEmptyResponse = errors.New("empty response")
)

// IsNoData reports whether a poll error simply means "nothing this tick".
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoResponse) || errors.Is(err, ErrEmptyResponse)
}
