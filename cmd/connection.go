// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Thermoquad/filmkorn/internal/config"
	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/Thermoquad/filmkorn/pkg/transport"
)

// serialReadTimeout bounds one UART read; the transport retries on timeout.
const serialReadTimeout = 50 * time.Millisecond

// OpenBus opens the controller bus selected by the configuration and wraps
// it in the retrying transport. The returned string describes the link.
func OpenBus(c config.Config) (*transport.Transport, string, error) {
	var (
		bus  transport.Bus
		info string
		err  error
	)

	switch c.Bus {
	case config.BusSerial:
		if c.SerialPort == "" {
			return nil, "", fmt.Errorf("serial bus requires --port")
		}
		bus, err = transport.OpenSerial(c.SerialPort, c.BaudRate, c.Address, serialReadTimeout)
		info = fmt.Sprintf("UART %s @ %d baud, address %d", c.SerialPort, c.BaudRate, c.Address)
	default:
		if c.I2CDevice == "" {
			return nil, "", fmt.Errorf("i2c bus requires --device")
		}
		bus, err = transport.OpenI2C(c.I2CDevice, c.Address)
		info = fmt.Sprintf("I2C %s, address %d", c.I2CDevice, c.Address)
	}
	if err != nil {
		return nil, "", err
	}

	return transport.New(bus, transport.DefaultOptions()), info, nil
}

// openBusOrExit is OpenBus with the bus-unavailable exit code attached.
func openBusOrExit(c config.Config) (*transport.Transport, string, error) {
	t, info, err := OpenBus(c)
	if err != nil {
		return nil, "", exitWith(ExitBus, fmt.Errorf("controller bus unavailable: %w", err))
	}
	return t, info, nil
}

// OpenFeed connects to a scanner's status feed. target is a ws:// URL or a
// host[:port]; a bare host uses the port of the configured listen address.
func OpenFeed(ctx context.Context, target string, c config.Config) (*status.Client, string, error) {
	u := target
	if !hasScheme(target) {
		host, port, err := net.SplitHostPort(target)
		if err != nil {
			host = target
			_, port, _ = net.SplitHostPort(c.StatusListen)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, "", fmt.Errorf("invalid port %q: %w", port, err)
		}
		u = status.FeedURL(host, p)
	}

	client, err := status.Dial(ctx, u)
	if err != nil {
		return nil, "", err
	}
	return client, u, nil
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == ':':
			return i+2 < len(s) && s[i+1] == '/' && s[i+2] == '/'
		case c == '/' || c == '.':
			return false
		}
	}
	return false
}
