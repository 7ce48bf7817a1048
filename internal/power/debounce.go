// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package power

import "time"

// Debouncer turns raw samples of an active-low push button into single
// presses. A press is a falling edge that stays low for Stable, at least
// MinInterval after the previous press, and only after the button has been
// seen released.
type Debouncer struct {
	Stable      time.Duration
	MinInterval time.Duration

	raw       bool
	changedAt time.Time
	armed     bool
	lastFire  time.Time
}

// NewDebouncer returns a debouncer for a button pulled high at rest.
func NewDebouncer(stable, minInterval time.Duration) *Debouncer {
	return &Debouncer{Stable: stable, MinInterval: minInterval, raw: true}
}

// Update feeds one sample and reports whether it completes a press.
func (d *Debouncer) Update(high bool, now time.Time) bool {
	if high != d.raw {
		d.raw = high
		d.changedAt = now
	}
	if !d.changedAt.IsZero() && now.Sub(d.changedAt) < d.Stable {
		return false
	}
	if high {
		d.armed = true
		return false
	}
	if !d.armed {
		return false
	}
	if !d.lastFire.IsZero() && now.Sub(d.lastFire) < d.MinInterval {
		return false
	}
	d.armed = false
	d.lastFire = now
	return true
}
