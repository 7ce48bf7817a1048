// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
)

// scriptedBus replays canned reads and write errors
type scriptedBus struct {
	reads     [][]byte
	readErrs  []error
	writeErrs []error
	written   []byte
	readCalls int
	closed    bool
}

func (b *scriptedBus) Read(p []byte) (int, error) {
	i := b.readCalls
	b.readCalls++
	if i < len(b.readErrs) && b.readErrs[i] != nil {
		return 0, b.readErrs[i]
	}
	if i < len(b.reads) {
		return copy(p, b.reads[i]), nil
	}
	return 0, fmt.Errorf("%w: script exhausted", ErrNack)
}

func (b *scriptedBus) Write(p []byte) (int, error) {
	if len(b.writeErrs) > 0 {
		err := b.writeErrs[0]
		b.writeErrs = b.writeErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	b.written = append(b.written, p...)
	return len(p), nil
}

func (b *scriptedBus) Close() error {
	b.closed = true
	return nil
}

func fastOptions() Options {
	return Options{InitialInterval: time.Millisecond, MaxAttempts: 5}
}

func nack() error {
	return fmt.Errorf("%w: remote i/o error", ErrNack)
}

func TestPoll_ExhaustedRetriesReturnNoData(t *testing.T) {
	bus := &scriptedBus{readErrs: []error{nack(), nack(), nack(), nack(), nack()}}
	tr := New(bus, fastOptions())

	frame, err := tr.Poll()
	if frame != nil {
		t.Errorf("Poll() frame = %+v, want nil", frame)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Poll() error = %v, want ErrNoResponse", err)
	}
	if !IsNoData(err) {
		t.Error("IsNoData() = false for exhausted poll")
	}
	if bus.readCalls != 5 {
		t.Errorf("read attempts = %d, want 5", bus.readCalls)
	}
	if c := tr.Counters(); c.NackRetries != 4 || c.PollFailures != 1 {
		t.Errorf("counters = %+v, want 4 retries and 1 failure", c)
	}
}

func TestPoll_RecoversAfterNack(t *testing.T) {
	block := filmkorn.EncodeBlock(filmkorn.CmdLampOn, 2, [filmkorn.ArgSize]byte{})
	bus := &scriptedBus{
		readErrs: []error{nack(), nack(), nil},
		reads:    [][]byte{nil, nil, block},
	}
	tr := New(bus, fastOptions())

	frame, err := tr.Poll()
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if frame.Command != filmkorn.CmdLampOn || frame.Seq != 2 {
		t.Errorf("Poll() = %s seq=%d, want LAMP_ON seq=2", frame.Command, frame.Seq)
	}
	if bus.readCalls != 3 {
		t.Errorf("read attempts = %d, want 3", bus.readCalls)
	}
}

func TestPoll_PermanentErrorNotRetried(t *testing.T) {
	bus := &scriptedBus{readErrs: []error{errors.New("bad file descriptor")}}
	tr := New(bus, fastOptions())

	if _, err := tr.Poll(); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Poll() error = %v, want ErrNoResponse", err)
	}
	if bus.readCalls != 1 {
		t.Errorf("read attempts = %d, want 1", bus.readCalls)
	}
}

func TestPoll_EmptyResponse(t *testing.T) {
	bus := &scriptedBus{reads: [][]byte{make([]byte, filmkorn.BlockSize)}}
	tr := New(bus, fastOptions())

	_, err := tr.Poll()
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Poll() error = %v, want ErrEmptyResponse", err)
	}
	if errors.Is(err, ErrNoResponse) {
		t.Error("empty response must be distinct from no response")
	}
}

func TestPoll_UnknownOpcode(t *testing.T) {
	bus := &scriptedBus{reads: [][]byte{{0x42, 0, 0, 0, 0, 0}}}
	tr := New(bus, fastOptions())

	_, err := tr.Poll()
	if !errors.Is(err, filmkorn.ErrUnknownOpcode) {
		t.Fatalf("Poll() error = %v, want ErrUnknownOpcode", err)
	}
	if IsNoData(err) {
		t.Error("unknown opcode is a decode error, not a no-data poll")
	}
}

func TestPoll_ShortReadIsRetried(t *testing.T) {
	block := filmkorn.EncodeBlock(filmkorn.CmdStopScan, 0, [filmkorn.ArgSize]byte{})
	bus := &scriptedBus{reads: [][]byte{block[:3], block}}
	tr := New(bus, fastOptions())

	frame, err := tr.Poll()
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if frame.Command != filmkorn.CmdStopScan {
		t.Errorf("Command = %s, want STOP_SCAN", frame.Command)
	}
}

func TestSend_EncodesRequestByte(t *testing.T) {
	bus := &scriptedBus{}
	tr := New(bus, fastOptions())

	if err := tr.Send(filmkorn.HostReady, 7); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if len(bus.written) != 1 || bus.written[0] != 0x71 {
		t.Errorf("written = % X, want 71", bus.written)
	}
}

func TestSend_ExhaustedRetriesDoNotPanic(t *testing.T) {
	bus := &scriptedBus{writeErrs: []error{nack(), nack(), nack(), nack(), nack()}}
	tr := New(bus, fastOptions())

	err := tr.Send(filmkorn.HostReady, 0)
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Send() error = %v, want ErrNoResponse", err)
	}
	if len(bus.written) != 0 {
		t.Errorf("written = % X, want nothing", bus.written)
	}
	if tr.Counters().SendFailures != 1 {
		t.Errorf("SendFailures = %d, want 1", tr.Counters().SendFailures)
	}
}

func TestExchange(t *testing.T) {
	bus := &scriptedBus{reads: [][]byte{filmkorn.EncodeBlock(filmkorn.CmdCaptureFrame, 3, [filmkorn.ArgSize]byte{})}}
	tr := New(bus, fastOptions())

	frame, err := tr.Exchange(3)
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}
	if bus.written[0] != 0x30 {
		t.Errorf("poll request = 0x%02X, want 0x30", bus.written[0])
	}
	if frame.Command != filmkorn.CmdCaptureFrame {
		t.Errorf("Command = %s, want CAPTURE_FRAME", frame.Command)
	}
}

func TestNew_SingleAttempt(t *testing.T) {
	bus := &scriptedBus{readErrs: []error{nack(), nack()}}
	tr := New(bus, Options{InitialInterval: time.Millisecond, MaxAttempts: 1})

	if _, err := tr.Poll(); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Poll() error = %v, want ErrNoResponse", err)
	}
	if bus.readCalls != 1 {
		t.Errorf("read attempts = %d, want 1", bus.readCalls)
	}
}
