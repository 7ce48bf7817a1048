// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks poll outcomes on the bus
type Statistics struct {
	StartTime time.Time

	// Counters
	Polls          uint64
	Accepted       uint64
	Idle           uint64
	Stale          uint64
	Resets         uint64
	UnknownOpcodes uint64
	Malformed      uint64
	Empty          uint64
	NoResponse     uint64

	// Rates (calculated)
	PollRate  float64 // polls/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// RecordVerdict counts a successfully decoded frame.
func (s *Statistics) RecordVerdict(v Verdict) {
	s.Polls++
	switch v {
	case VerdictAccept:
		s.Accepted++
	case VerdictIdle:
		s.Idle++
	case VerdictStale:
		s.Stale++
	case VerdictReset:
		s.Resets++
	}
}

// RecordDecodeError counts a block that could not be decoded.
func (s *Statistics) RecordDecodeError(err error) {
	s.Polls++
	switch {
	case errors.Is(err, ErrUnknownOpcode):
		s.UnknownOpcodes++
	default:
		s.Malformed++
	}
}

// RecordEmpty counts an all-zero response.
func (s *Statistics) RecordEmpty() {
	s.Polls++
	s.Empty++
}

// RecordNoResponse counts a poll that exhausted its retries.
func (s *Statistics) RecordNoResponse() {
	s.Polls++
	s.NoResponse++
}

// Errors returns the total number of failed polls.
func (s *Statistics) Errors() uint64 {
	return s.UnknownOpcodes + s.Malformed + s.NoResponse
}

// CalculateRates calculates poll and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PollRate = float64(s.Polls) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)
	result := fmt.Sprintf("=== Bus Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Polls:           %8d\n", s.Polls)
	result += fmt.Sprintf("Accepted:        %8d\n", s.Accepted)
	result += fmt.Sprintf("Idle:            %8d\n", s.Idle)
	if s.Stale > 0 {
		result += fmt.Sprintf("Stale:           %8d\n", s.Stale)
	}
	if s.Resets > 0 {
		result += fmt.Sprintf("Resets:          %8d\n", s.Resets)
	}
	if s.UnknownOpcodes > 0 {
		result += fmt.Sprintf("Unknown Opcodes: %8d\n", s.UnknownOpcodes)
	}
	if s.Malformed > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.Malformed)
	}
	if s.Empty > 0 {
		result += fmt.Sprintf("Empty:           %8d\n", s.Empty)
	}
	if s.NoResponse > 0 {
		result += fmt.Sprintf("No Response:     %8d\n", s.NoResponse)
	}
	result += fmt.Sprintf("Poll Rate:       %8.1f polls/sec\n", s.PollRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "=====================================\n"
	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
