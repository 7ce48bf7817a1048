// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package systemd starts and restarts units through the systemd D-Bus API.
package systemd

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	busName      = "org.freedesktop.systemd1"
	objectPath   = "/org/freedesktop/systemd1"
	managerIface = "org.freedesktop.systemd1.Manager"
)

// Manager wraps a private system bus connection.
type Manager struct {
	conn *dbus.Conn
}

// Connect opens a connection to the system bus and checks systemd is on it.
func Connect() (*Manager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var owner string
	if err := conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, busName).Store(&owner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s not on system bus: %w", busName, err)
	}
	return &Manager{conn: conn}, nil
}

// Close releases the bus connection.
func (m *Manager) Close() error {
	return m.conn.Close()
}

// StartUnit queues a start job for name.
func (m *Manager) StartUnit(ctx context.Context, name string) error {
	return m.job(ctx, "StartUnit", name)
}

// RestartUnit queues a restart job for name.
func (m *Manager) RestartUnit(ctx context.Context, name string) error {
	return m.job(ctx, "RestartUnit", name)
}

func (m *Manager) job(ctx context.Context, method, name string) error {
	obj := m.conn.Object(busName, objectPath)
	var job dbus.ObjectPath
	call := obj.CallWithContext(ctx, managerIface+"."+method, 0, name, "replace")
	if err := call.Store(&job); err != nil {
		return fmt.Errorf("%s %s: %w", method, name, err)
	}
	log.Debug().Str("component", "systemd").Str("unit", name).Str("job", string(job)).Msg(method)
	return nil
}

// Noop logs unit requests instead of sending them. It stands in for systemd
// on machines without a system bus.
type Noop struct{}

func (Noop) StartUnit(_ context.Context, name string) error {
	log.Info().Str("component", "systemd").Str("unit", name).Msg("start (simulated)")
	return nil
}

func (Noop) RestartUnit(_ context.Context, name string) error {
	log.Info().Str("component", "systemd").Str("unit", name).Msg("restart (simulated)")
	return nil
}

func (Noop) Close() error { return nil }
