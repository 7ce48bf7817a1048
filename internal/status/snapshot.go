// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package status publishes scanner state snapshots to remote monitors over a
// websocket, encoded as CBOR, and advertises the feed over mDNS.
package status

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// BusStats are the protocol counters of the controller link.
type BusStats struct {
	Polls       uint64 `cbor:"1,keyasint"`
	Accepted    uint64 `cbor:"2,keyasint"`
	Idle        uint64 `cbor:"3,keyasint"`
	Stale       uint64 `cbor:"4,keyasint"`
	Resets      uint64 `cbor:"5,keyasint"`
	Unknown     uint64 `cbor:"6,keyasint"`
	Malformed   uint64 `cbor:"7,keyasint"`
	Empty       uint64 `cbor:"8,keyasint"`
	NoResponse  uint64 `cbor:"9,keyasint"`
	NackRetries uint64 `cbor:"10,keyasint"`
}

// Snapshot is one published view of the scanner.
type Snapshot struct {
	Time       time.Time `cbor:"1,keyasint"`
	State      string    `cbor:"2,keyasint"`
	Power      string    `cbor:"3,keyasint"`
	Screen     string    `cbor:"4,keyasint,omitempty"`
	Zoom       string    `cbor:"5,keyasint"`
	Lamp       bool      `cbor:"6,keyasint"`
	FilmLoaded bool      `cbor:"7,keyasint"`
	Exposure   uint16    `cbor:"8,keyasint"`
	Shutter    string    `cbor:"9,keyasint"`
	FPS        float64   `cbor:"10,keyasint"`
	AvgFPS     float64   `cbor:"11,keyasint"`

	SessionID  string `cbor:"12,keyasint,omitempty"`
	SessionDir string `cbor:"13,keyasint,omitempty"`
	Frames     int    `cbor:"14,keyasint"`

	FreeBytes       uint64 `cbor:"15,keyasint"`
	WaitBytes       uint64 `cbor:"16,keyasint"`
	AbortBytes      uint64 `cbor:"17,keyasint"`
	WaitingForSpace bool   `cbor:"18,keyasint"`
	ResumeBytes     uint64 `cbor:"24,keyasint"`

	Target          string `cbor:"19,keyasint"`
	WaitingForDrive bool   `cbor:"20,keyasint"`
	Draining        bool   `cbor:"21,keyasint"`
	OverlayDisabled bool   `cbor:"22,keyasint"`

	Bus BusStats `cbor:"23,keyasint"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeUnixMicro
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Encode serializes s.
func (s Snapshot) Encode() ([]byte, error) {
	return encMode.Marshal(s)
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

// Headroom returns free space as a fraction of the resume threshold, clamped
// to 0..1, for progress displays.
func (s Snapshot) Headroom() float64 {
	if s.ResumeBytes == 0 {
		return 0
	}
	f := float64(s.FreeBytes) / float64(s.ResumeBytes)
	if f > 1 {
		return 1
	}
	return f
}
