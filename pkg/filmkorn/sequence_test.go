// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import "testing"

func TestSequencer_AcceptAndAdvance(t *testing.T) {
	s := NewSequencer()

	f := &Frame{Command: CmdCaptureFrame, Seq: 0}
	if v := s.Match(f); v != VerdictAccept {
		t.Fatalf("Match() = %s, want accept", v)
	}
	s.Advance()

	// the same response read again is now stale
	if v := s.Match(f); v != VerdictStale {
		t.Errorf("repeated Match() = %s, want stale", v)
	}
	if !s.RepeatPending() {
		t.Error("RepeatPending() = false after stale response")
	}
	if s.Current() != 1 {
		t.Errorf("Current() = %d, want 1 (stale must not advance)", s.Current())
	}

	if v := s.Match(&Frame{Command: CmdLampOn, Seq: 1}); v != VerdictAccept {
		t.Errorf("Match() = %s, want accept", v)
	}
	if s.RepeatPending() {
		t.Error("RepeatPending() should clear on accept")
	}
}

func TestSequencer_MismatchNeverAccepts(t *testing.T) {
	for sent := uint8(0); sent < SeqModulus; sent++ {
		for got := uint8(0); got < SeqModulus; got++ {
			if got == sent {
				continue
			}
			s := &Sequencer{seq: sent}
			if v := s.Match(&Frame{Command: CmdCaptureFrame, Seq: got}); v == VerdictAccept {
				t.Fatalf("sent %d, received %d: accepted", sent, got)
			}
		}
	}
}

func TestSequencer_Wraps(t *testing.T) {
	s := NewSequencer()
	for i := 0; i < SeqModulus; i++ {
		s.Advance()
	}
	if s.Current() != 0 {
		t.Errorf("Current() after 16 advances = %d, want 0", s.Current())
	}
}

func TestSequencer_IdleAndReset(t *testing.T) {
	s := &Sequencer{seq: 9}

	if v := s.Match(&Frame{Command: CmdIdle, Seq: 2}); v != VerdictIdle {
		t.Errorf("idle Match() = %s, want idle", v)
	}
	if v := s.Match(&Frame{Command: CmdControllerReset, Seq: 4}); v != VerdictReset {
		t.Errorf("reset Match() = %s, want reset", v)
	}

	s.Reset()
	if s.Current() != 0 {
		t.Errorf("Current() after Reset = %d, want 0", s.Current())
	}
}

func TestStatistics_Record(t *testing.T) {
	s := NewStatistics()
	s.RecordVerdict(VerdictAccept)
	s.RecordVerdict(VerdictStale)
	s.RecordDecodeError(ErrUnknownOpcode)
	s.RecordEmpty()
	s.RecordNoResponse()

	if s.Polls != 5 {
		t.Errorf("Polls = %d, want 5", s.Polls)
	}
	if s.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", s.Errors())
	}

	s.Reset()
	if s.Polls != 0 || s.StartTime.IsZero() {
		t.Error("Reset() should clear counters and restart the clock")
	}
}
