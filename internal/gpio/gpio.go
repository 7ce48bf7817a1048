// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gpio provides single-line digital I/O for the power rail, the sleep
// button, the storage target switch, and the lamp.
package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Line is one digital GPIO line.
type Line interface {
	Get() (bool, error)
	Set(high bool) error
}

// Direction of a sysfs line.
type Direction string

// Directions
const (
	In  Direction = "in"
	Out Direction = "out"
)

// SysfsLine drives a line through the legacy /sys/class/gpio interface.
type SysfsLine struct {
	root   string
	number int
	value  string
}

// OpenSysfs exports line number under root and sets its direction.
func OpenSysfs(root string, number int, dir Direction) (*SysfsLine, error) {
	base := filepath.Join(root, "gpio"+strconv.Itoa(number))
	if _, err := os.Stat(base); errors.Is(err, os.ErrNotExist) {
		export := filepath.Join(root, "export")
		if err := os.WriteFile(export, []byte(strconv.Itoa(number)), 0o200); err != nil {
			return nil, fmt.Errorf("export gpio%d: %w", number, err)
		}
	}
	if err := os.WriteFile(filepath.Join(base, "direction"), []byte(dir), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio%d direction: %w", number, err)
	}
	return &SysfsLine{root: root, number: number, value: filepath.Join(base, "value")}, nil
}

// Get reads the line level.
func (l *SysfsLine) Get() (bool, error) {
	b, err := os.ReadFile(l.value)
	if err != nil {
		return false, fmt.Errorf("read gpio%d: %w", l.number, err)
	}
	return strings.TrimSpace(string(b)) == "1", nil
}

// Set drives the line level.
func (l *SysfsLine) Set(high bool) error {
	v := []byte("0")
	if high {
		v = []byte("1")
	}
	if err := os.WriteFile(l.value, v, 0o644); err != nil {
		return fmt.Errorf("write gpio%d: %w", l.number, err)
	}
	return nil
}

// Simulated is an in-memory line used when no GPIO chip is present and in
// tests. It is safe for concurrent use.
type Simulated struct {
	mu     sync.Mutex
	level  bool
	writes int
}

// NewSimulated returns a line at the given initial level.
func NewSimulated(level bool) *Simulated {
	return &Simulated{level: level}
}

func (s *Simulated) Get() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

func (s *Simulated) Set(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = high
	s.writes++
	return nil
}

// Writes returns how many times Set has been called.
func (s *Simulated) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
