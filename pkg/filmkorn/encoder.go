// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package filmkorn

import (
	"encoding/binary"
	"fmt"
)

// EncodeRequest packs a host opcode and sequence nibble into the request byte.
func EncodeRequest(cmd HostCommand, seq uint8) (byte, error) {
	if !cmd.Valid() {
		return 0, fmt.Errorf("invalid host command: 0x%02X", uint8(cmd))
	}
	return (seq&seqMask)<<seqShift | byte(cmd)&opcodeMask, nil
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(b byte) (HostCommand, uint8, error) {
	cmd := HostCommand(b & opcodeMask)
	if !cmd.Valid() {
		return 0, 0, fmt.Errorf("%w: host opcode 0x%02X", ErrUnknownOpcode, uint8(cmd))
	}
	return cmd, (b >> seqShift) & seqMask, nil
}

// EncodeBlock builds the response block a controller would send.
// Used by simulators and tests.
func EncodeBlock(cmd Command, seq uint8, args [ArgSize]byte) []byte {
	block := make([]byte, BlockSize)
	block[offOpcode] = byte(cmd)
	block[offSeq] = seq & seqMask
	copy(block[offArgs:], args[:])
	return block
}

// ExposureArgs builds the argument bytes of a SetExposure response.
func ExposureArgs(value uint16) [ArgSize]byte {
	var args [ArgSize]byte
	binary.BigEndian.PutUint16(args[2:4], value)
	return args
}

// InitialValuesArgs builds the argument bytes of a ReportInitialValues response.
func InitialValuesArgs(v InitialValues) [ArgSize]byte {
	var args [ArgSize]byte
	args[0] = byte(v.Zoom)
	if v.Lamp {
		args[1] |= FlagLamp
	}
	if v.FilmLoaded {
		args[1] |= FlagFilmLoaded
	}
	binary.BigEndian.PutUint16(args[2:4], v.Exposure)
	return args
}
