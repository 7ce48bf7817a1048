// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

// Verdict is the outcome of matching a response against the sequencer.
type Verdict int

const (
	// VerdictAccept means the frame must be executed.
	VerdictAccept Verdict = iota
	// VerdictIdle means the peer had nothing pending.
	VerdictIdle
	// VerdictStale means the nibble did not match; the frame is discarded.
	VerdictStale
	// VerdictReset means the controller restarted and a resync is required.
	VerdictReset
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictIdle:
		return "idle"
	case VerdictStale:
		return "stale"
	case VerdictReset:
		return "reset"
	default:
		return "unknown"
	}
}

// Sequencer tracks the host's 4-bit sequence nibble.
//
// The host only executes a response whose nibble equals the last nibble it
// sent. After executing it advances the counter, so a repeated read of the same
// response can never run its handler twice.
type Sequencer struct {
	seq           uint8
	repeatPending bool
}

// NewSequencer returns a sequencer at its initial value.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Current returns the nibble to put on the next request.
func (s *Sequencer) Current() uint8 {
	return s.seq
}

// RepeatPending reports whether the last response was stale.
func (s *Sequencer) RepeatPending() bool {
	return s.repeatPending
}

// Match classifies a decoded frame. It does not advance the counter.
func (s *Sequencer) Match(f *Frame) Verdict {
	if f.Command == CmdControllerReset {
		return VerdictReset
	}
	if f.Command == CmdIdle {
		return VerdictIdle
	}
	if f.Seq != s.seq {
		s.repeatPending = true
		return VerdictStale
	}
	s.repeatPending = false
	return VerdictAccept
}

// Advance moves to the next nibble, wrapping modulo 16.
func (s *Sequencer) Advance() {
	s.seq = (s.seq + 1) % SeqModulus
}

// Reset returns to the initial nibble.
func (s *Sequencer) Reset() {
	s.seq = 0
	s.repeatPending = false
}
