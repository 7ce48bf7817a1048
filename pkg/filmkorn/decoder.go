// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import (
	"errors"
	"fmt"
	"time"
)

// Decode errors
var (
	// ErrUnknownOpcode is returned for an opcode outside the known range.
	// The block is ignored, never fatal.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrShortBlock is returned when fewer than BlockSize bytes were read.
	ErrShortBlock = errors.New("short response block")

	// ErrMalformed is returned when reserved bits are set.
	ErrMalformed = errors.New("malformed response block")
)

// IsEmptyBlock reports whether the peer returned nothing actionable.
func IsEmptyBlock(block []byte) bool {
	for _, b := range block {
		if b != 0 {
			return false
		}
	}
	return true
}

// DecodeBlock decodes one response block into a Frame.
func DecodeBlock(block []byte) (*Frame, error) {
	if len(block) < BlockSize {
		return nil, fmt.Errorf("%w: %d bytes (want %d)", ErrShortBlock, len(block), BlockSize)
	}

	op := block[offOpcode]
	if op&0x80 != 0 {
		return nil, fmt.Errorf("%w: opcode 0x%02X has bit 7 set", ErrMalformed, op)
	}
	cmd := Command(op)
	if !cmd.Valid() {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, op)
	}

	seq := block[offSeq]
	if seq&^seqMask != 0 {
		return nil, fmt.Errorf("%w: sequence byte 0x%02X", ErrMalformed, seq)
	}

	f := &Frame{
		Command:   cmd,
		Seq:       seq,
		Timestamp: time.Now(),
	}
	copy(f.Args[:], block[offArgs:offArgs+ArgSize])
	return f, nil
}
