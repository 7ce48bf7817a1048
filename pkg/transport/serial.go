// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// readRequest is OR-ed into the address byte to ask the peer for a block
const readRequest = 0x80

// SerialBus carries the bus protocol over a UART: every write is prefixed
// with the peer address, and a read is an address byte with the read bit set
// followed by the peer's block.
type SerialBus struct {
	port    serial.Port
	address byte
}

// OpenSerial opens a serial port for the controller at address.
func OpenSerial(portName string, baudRate int, address int, timeout time.Duration) (*SerialBus, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &SerialBus{port: port, address: byte(address) &^ readRequest}, nil
}

func (s *SerialBus) Write(p []byte) (int, error) {
	frame := append([]byte{s.address}, p...)
	n, err := s.port.Write(frame)
	if err != nil {
		return 0, err
	}
	if n < len(frame) {
		return max(n-1, 0), fmt.Errorf("%w: short write %d/%d", ErrNack, n, len(frame))
	}
	return len(p), nil
}

func (s *SerialBus) Read(p []byte) (int, error) {
	if err := s.port.ResetInputBuffer(); err != nil {
		return 0, err
	}
	if _, err := s.port.Write([]byte{s.address | readRequest}); err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		n, err := s.port.Read(p[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			// read timeout
			break
		}
		total += n
	}
	if total < len(p) {
		return total, fmt.Errorf("%w: %d/%d bytes before timeout", ErrNack, total, len(p))
	}
	return total, nil
}

func (s *SerialBus) Close() error {
	return s.port.Close()
}
