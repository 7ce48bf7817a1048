// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package storage

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Undrained counts frame files below root that the sync daemon has not
// moved off the scanner yet. Hidden files, such as captures in progress, are
// not counted.
func Undrained(root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}

// Drain watches the capture volume empty out after a scan stops. Every Start
// bumps a generation, and a poller only reports the volume drained from a
// reading taken after the latest Start.
type Drain struct {
	root     string
	interval time.Duration
	count    func(root string) (int, error)

	mu      sync.Mutex
	gen     uint64
	running bool
	drained bool
}

// NewDrain returns a drain watcher for root.
func NewDrain(root string, interval time.Duration) *Drain {
	if interval <= 0 {
		interval = time.Second
	}
	return &Drain{root: root, interval: interval, count: Undrained}
}

// Start clears the drained flag and begins polling unless a poller is already
// running, in which case that poller picks up the new generation.
func (d *Drain) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drained = false
	d.gen++
	if d.running {
		return
	}
	d.running = true
	go d.poll(ctx)
}

func (d *Drain) poll(ctx context.Context) {
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		d.mu.Lock()
		gen := d.gen
		d.mu.Unlock()

		n, err := d.count(d.root)
		if err != nil {
			log.Debug().Str("component", "storage").Err(err).Msg("drain check failed")
		} else if n == 0 && d.finish(gen) {
			log.Info().Str("component", "storage").Msg("capture volume drained")
			return
		}
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
			return
		case <-t.C:
		}
	}
}

// finish marks the volume drained if no Start happened since gen was read.
func (d *Drain) finish(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return false
	}
	d.drained = true
	d.running = false
	return true
}

// Running reports whether the poller is active.
func (d *Drain) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Drained reports whether the last poller saw an empty volume.
func (d *Drain) Drained() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drained
}
