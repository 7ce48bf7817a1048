// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package filmkorn implements the polled bus protocol spoken between the
// scanner host and its motor/lamp microcontroller.
//
// The host is always bus master. Every tick it writes a single request byte
// carrying a host opcode and the 4-bit sequence nibble, then reads a fixed-size
// response block holding the peer's next pending command, the echoed nibble and
// up to four argument bytes.
package filmkorn

// Bus parameters
const (
	// DefaultAddress is the controller's address on the shared bus.
	DefaultAddress = 42

	// BlockSize is the size of every peer response block.
	BlockSize = 6

	// ArgSize is the number of argument bytes in a response block.
	ArgSize = 4
)

// Request byte layout
const (
	seqShift   = 4
	seqMask    = 0x0F
	opcodeMask = 0x0F

	// SeqModulus is the number of distinct sequence nibbles.
	SeqModulus = 16
)

// Response block offsets
const (
	offOpcode = 0
	offSeq    = 1
	offArgs   = 2
)

// Peer response flags (ReportInitialValues a1)
const (
	FlagLamp       = 0x01
	FlagFilmLoaded = 0x02
)

// MaxExposure is the largest potentiometer reading the controller reports.
const MaxExposure = 1023
