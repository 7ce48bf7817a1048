// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package power

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/filmkorn/internal/gpio"
)

type fakeScanner struct {
	scanning bool
	sleeping bool
}

func (f *fakeScanner) Scanning() bool { return f.scanning }
func (f *fakeScanner) Sleep() bool {
	if f.scanning {
		return false
	}
	f.sleeping = true
	return true
}
func (f *fakeScanner) Wake() bool { f.sleeping = false; return true }

type fakeStreamer struct {
	streaming bool
	fail      error
}

func (f *fakeStreamer) StartStreaming() error { f.streaming = true; return nil }
func (f *fakeStreamer) StopStreaming() error {
	f.streaming = false
	return f.fail
}

type fakeOverlay struct {
	active    bool
	reapplied int
}

func (f *fakeOverlay) SetActive(a bool) { f.active = a }
func (f *fakeOverlay) Reapply()         { f.reapplied++ }

type fakeUnits struct {
	started []string
}

func (f *fakeUnits) StartUnit(_ context.Context, name string) error {
	f.started = append(f.started, name)
	return nil
}

type rig struct {
	m       *Manager
	clock   time.Time
	power   *gpio.Simulated
	button  *gpio.Simulated
	scanner *fakeScanner
	camera  *fakeStreamer
	overlay *fakeOverlay
	units   *fakeUnits
}

func newRig() *rig {
	r := &rig{
		clock:   time.Unix(1_700_000_000, 0),
		power:   gpio.NewSimulated(true),
		button:  gpio.NewSimulated(true),
		scanner: &fakeScanner{},
		camera:  &fakeStreamer{streaming: true},
		overlay: &fakeOverlay{active: true},
		units:   &fakeUnits{},
	}
	r.m = New(DefaultOptions(), r.power, r.button, r.scanner, r.camera, r.overlay, r.units)
	r.m.SetClock(func() time.Time { return r.clock })
	return r
}

func (r *rig) advance(total, step time.Duration, idle bool) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		r.clock = r.clock.Add(step)
		r.m.Tick(context.Background(), idle)
	}
}

func TestNewAssertsPowerFromLowLine(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "gpio17")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	value := filepath.Join(base, "value")
	if err := os.WriteFile(value, []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}
	line, err := gpio.OpenSysfs(root, 17, gpio.Out)
	if err != nil {
		t.Fatal(err)
	}

	clock := time.Unix(1_700_000_000, 0)
	m := New(DefaultOptions(), line, nil, &fakeScanner{}, &fakeStreamer{streaming: true}, nil, nil)
	m.SetClock(func() time.Time { return clock })
	for i := 0; i < 50; i++ {
		clock = clock.Add(100 * time.Millisecond)
		m.Tick(context.Background(), true)
	}

	if m.State() != Awake {
		t.Fatalf("state = %v, want awake", m.State())
	}
	b, _ := os.ReadFile(value)
	if string(b) != "1" {
		t.Errorf("power line value = %q while awake, want \"1\"", b)
	}
}

func TestNewAssertsSimulatedPower(t *testing.T) {
	line := gpio.NewSimulated(false)
	New(DefaultOptions(), line, nil, &fakeScanner{}, &fakeStreamer{}, nil, nil)
	if on, _ := line.Get(); !on {
		t.Error("peripheral power not asserted by New")
	}
}

func TestIdleTimeoutSleepsOnce(t *testing.T) {
	r := newRig()
	r.m.Tick(context.Background(), true)

	r.advance(299*time.Second, 100*time.Millisecond, true)
	if r.m.Sleeping() {
		t.Fatal("slept before timeout")
	}

	r.advance(10*time.Minute, 100*time.Millisecond, true)
	if !r.m.Sleeping() {
		t.Fatal("did not sleep after timeout")
	}
	if r.m.Sleeps() != 1 {
		t.Errorf("Sleeps() = %d, want exactly 1", r.m.Sleeps())
	}
	if on, _ := r.power.Get(); on {
		t.Error("peripheral power still asserted")
	}
	if r.camera.streaming {
		t.Error("camera still streaming")
	}
	if r.overlay.active {
		t.Error("overlay still active")
	}
	if len(r.units.started) != 1 || r.units.started[0] != "filmkorn-sleep.service" {
		t.Errorf("units = %v, want sleep hand-off", r.units.started)
	}
}

func TestNoIdleTimeoutWhileScanning(t *testing.T) {
	r := newRig()
	r.scanner.scanning = true
	r.advance(20*time.Minute, time.Second, true)
	if r.m.Sleeping() {
		t.Fatal("slept while scanning")
	}
}

func TestIdleTimerOnlyRunsOnStatusScreens(t *testing.T) {
	r := newRig()
	r.advance(20*time.Minute, time.Second, false)
	if r.m.Sleeping() {
		t.Fatal("slept while not on an idle screen")
	}

	r.advance(200*time.Second, time.Second, true)
	r.m.Activity()
	r.advance(200*time.Second, time.Second, true)
	if r.m.Sleeping() {
		t.Fatal("activity did not restart the idle timer")
	}
}

func TestSleepRefusedWhileScanning(t *testing.T) {
	r := newRig()
	r.scanner.scanning = true
	if r.m.Sleep(context.Background()) {
		t.Fatal("Sleep() succeeded while scanning")
	}
	if on, _ := r.power.Get(); !on {
		t.Error("power cut while scanning")
	}
}

func TestWakeReappliesOverlayAfterSettle(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	if !r.m.Sleep(ctx) {
		t.Fatal("Sleep() refused")
	}
	if !r.m.Wake(ctx) {
		t.Fatal("Wake() refused")
	}
	if on, _ := r.power.Get(); !on {
		t.Error("power not restored")
	}
	if !r.camera.streaming {
		t.Error("streaming not restored")
	}

	r.advance(time.Second, 100*time.Millisecond, false)
	if r.overlay.reapplied != 0 {
		t.Fatal("overlay reapplied before settle delay")
	}
	r.advance(2*time.Second, 100*time.Millisecond, false)
	if r.overlay.reapplied != 1 {
		t.Errorf("reapplied = %d, want 1", r.overlay.reapplied)
	}
	want := []string{"filmkorn-sleep.service", "filmkorn-wake.service"}
	if len(r.units.started) != 2 || r.units.started[0] != want[0] || r.units.started[1] != want[1] {
		t.Errorf("units = %v, want %v", r.units.started, want)
	}
}

func TestSleepHandOffFailureStillSleeps(t *testing.T) {
	r := newRig()
	r.camera.fail = errors.New("stream stuck")
	if !r.m.Sleep(context.Background()) {
		t.Fatal("Sleep() refused")
	}
	if on, _ := r.power.Get(); on {
		t.Error("power not cut after stream failure")
	}
}

func TestButtonToggles(t *testing.T) {
	r := newRig()
	ctx := context.Background()
	tick := func(d time.Duration) {
		r.clock = r.clock.Add(d)
		r.m.Tick(ctx, false)
	}

	tick(10 * time.Millisecond)
	_ = r.button.Set(false)
	tick(10 * time.Millisecond)
	if r.m.Sleeping() {
		t.Fatal("slept before the press was stable")
	}
	tick(60 * time.Millisecond)
	if !r.m.Sleeping() {
		t.Fatal("stable press did not sleep")
	}

	// Held down: no second toggle.
	r.advance(3*time.Second, 10*time.Millisecond, false)
	if !r.m.Sleeping() {
		t.Fatal("held button toggled again")
	}

	_ = r.button.Set(true)
	r.advance(100*time.Millisecond, 10*time.Millisecond, false)
	_ = r.button.Set(false)
	r.advance(100*time.Millisecond, 10*time.Millisecond, false)
	if r.m.Sleeping() {
		t.Fatal("second press did not wake")
	}
}

func TestDebouncer(t *testing.T) {
	t0 := time.Unix(0, 0)
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

	tests := []struct {
		name    string
		samples []bool
		stepMS  int
		want    int
	}{
		{"bounce shorter than stable", []bool{true, false, true, false, true, true, true}, 10, 0},
		{"clean press", []bool{true, false, false, false, false, false, false, false}, 10, 1},
		{"starts held low", []bool{false, false, false, false, false, false, false, false}, 10, 0},
		{"two presses too close", []bool{true, false, false, false, false, false, false, true, true, true, true, true, true, false, false, false, false, false, false}, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(50*time.Millisecond, time.Second)
			fired := 0
			for i, s := range tt.samples {
				if d.Update(s, at(i*tt.stepMS)) {
					fired++
				}
			}
			if fired != tt.want {
				t.Errorf("presses = %d, want %d", fired, tt.want)
			}
		})
	}
}
