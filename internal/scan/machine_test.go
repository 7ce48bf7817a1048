// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/filmkorn/internal/camera"
	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
)

var epoch = time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)

func newTestMachine(t *testing.T) (*Machine, *camera.Controller, *camera.Simulated, string) {
	t.Helper()
	root := t.TempDir()
	sim := camera.NewSimulated()
	ctrl := camera.NewController(sim, nil)
	m := New(Options{Root: root, Extension: "jpg"}, ctrl)
	m.SetClock(func() time.Time { return epoch })
	return m, ctrl, sim, root
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestScanScenario(t *testing.T) {
	m, ctrl, _, root := newTestMachine(t)

	started, err := m.StartScan()
	if err != nil || !started {
		t.Fatalf("StartScan() = %v, %v", started, err)
	}
	if m.State() != StateScanning {
		t.Fatalf("State() = %s, want scanning", m.State())
	}
	for i := 0; i < 3; i++ {
		if _, err := m.CaptureFrame(); err != nil {
			t.Fatalf("CaptureFrame() #%d error = %v", i, err)
		}
	}
	dir := m.Session().Dir
	if _, err := m.StopScan(); err != nil {
		t.Fatal(err)
	}

	sessions := listFiles(t, root)
	if len(sessions) != 1 {
		t.Fatalf("session dirs = %v, want one", sessions)
	}
	want := []string{"00000000.jpg", "00000001.jpg", "00000002.jpg"}
	got := listFiles(t, dir)
	if len(got) != len(want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("file[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if ctrl.Lamp() {
		t.Error("lamp still on after stop")
	}
	if m.State() != StateIdle {
		t.Errorf("State() = %s after stop, want idle", m.State())
	}
}

func TestSessionNaming(t *testing.T) {
	m, _, _, root := newTestMachine(t)
	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "2025-03-14T09_26_53_4056x3040")
	if got := m.Session().Dir; got != want {
		t.Errorf("Dir = %q, want %q", got, want)
	}
}

func TestStartScanWhileScanningIsNoop(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CaptureFrame(); err != nil {
		t.Fatal(err)
	}
	before := m.Session()

	m.SetClock(func() time.Time { return epoch.Add(time.Minute) })
	started, err := m.StartScan()
	if err != nil || started {
		t.Fatalf("second StartScan() = %v, %v, want no-op", started, err)
	}
	after := m.Session()
	if after.ID != before.ID || after.Dir != before.Dir || after.Counter != before.Counter {
		t.Errorf("session changed: before %+v after %+v", before, after)
	}
}

func TestSessionCollisionRetriesOnce(t *testing.T) {
	m, _, _, root := newTestMachine(t)
	taken := filepath.Join(root, SessionName(epoch, "4056x3040"))
	if err := os.Mkdir(taken, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(taken, "00000000.jpg"), []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := m.StartScan(); err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	want := filepath.Join(root, SessionName(epoch.Add(time.Second), "4056x3040"))
	if got := m.Session().Dir; got != want {
		t.Errorf("Dir = %q, want %q", got, want)
	}
}

func TestSessionDoubleCollisionFails(t *testing.T) {
	m, _, _, root := newTestMachine(t)
	for _, ts := range []time.Time{epoch, epoch.Add(time.Second)} {
		dir := filepath.Join(root, SessionName(ts, "4056x3040"))
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "x"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := m.StartScan()
	if !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("StartScan() error = %v, want ErrTargetUnavailable", err)
	}
	if m.Scanning() {
		t.Error("scanning without a session")
	}
	if m.cam.Lamp() {
		t.Error("lamp left on after a failed start")
	}
}

func TestStartScanRemovesEmptySessions(t *testing.T) {
	m, _, _, root := newTestMachine(t)
	stale := filepath.Join(root, "2024-01-01T00_00_00")
	other := filepath.Join(root, "not-a-session")
	for _, d := range []string{stale, other} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty session directory not removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated directory removed")
	}
}

func TestStartScanMissingRoot(t *testing.T) {
	sim := camera.NewSimulated()
	m := New(Options{Root: filepath.Join(t.TempDir(), "unmounted"), Extension: "jpg"}, camera.NewController(sim, nil))

	_, err := m.StartScan()
	if !errors.Is(err, ErrTargetUnavailable) {
		t.Fatalf("StartScan() error = %v, want ErrTargetUnavailable", err)
	}
	if m.Scanning() {
		t.Error("scan started without a directory")
	}
	if m.cam.Lamp() {
		t.Error("lamp left on after a failed start")
	}
	if m.State() != StateIdle {
		t.Errorf("State() = %s, want idle", m.State())
	}
}

func TestCaptureWithoutSessionStopsScan(t *testing.T) {
	m, _, sim, _ := newTestMachine(t)
	if _, err := m.CaptureFrame(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("CaptureFrame() error = %v, want ErrNoSession", err)
	}
	if len(sim.Captures()) != 0 {
		t.Error("camera captured without a session")
	}

	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	m.session.Dir = ""
	if _, err := m.CaptureFrame(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("CaptureFrame() error = %v, want ErrNoSession", err)
	}
	if m.Scanning() {
		t.Error("scan continues after capture with no path")
	}
}

func TestCaptureErrorClosesSession(t *testing.T) {
	m, _, sim, _ := newTestMachine(t)
	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	sim.FailCapture = errors.New("sensor timeout")

	if _, err := m.CaptureFrame(); err == nil {
		t.Fatal("CaptureFrame() = nil error")
	}
	if m.Session() != nil || m.Scanning() {
		t.Error("session still open after capture error")
	}
}

func TestCounterIncrementsPerCapture(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	for want := 0; want < 5; want++ {
		if got := m.Session().Counter; got != want {
			t.Fatalf("Counter = %d before capture %d", got, want)
		}
		path, err := m.CaptureFrame()
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(path) != FrameName(want, "jpg") {
			t.Errorf("path = %q, want frame %d", path, want)
		}
	}
}

func TestResumeContinuesNumbering(t *testing.T) {
	m, _, _, root := newTestMachine(t)
	older := filepath.Join(root, "2025-03-13T20_00_00_4056x3040")
	latest := filepath.Join(root, "2025-03-14T08_00_00_4056x3040")
	for _, d := range []string{older, latest} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(latest, "00000000.jpg"), []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Resume(42); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !m.Resuming() || !m.Scanning() {
		t.Fatalf("state = %s resuming=%v", m.State(), m.Resuming())
	}

	started, err := m.StartScan()
	if err != nil || !started {
		t.Fatalf("StartScan() while resuming = %v, %v", started, err)
	}
	if m.Session().Dir != latest {
		t.Fatalf("session moved to %q", m.Session().Dir)
	}

	path, err := m.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(latest, "00000042.jpg") {
		t.Errorf("path = %q, want frame 42 in latest session", path)
	}
	if got := m.Session().Resolution; got != "4056x3040" {
		t.Errorf("Resolution = %q", got)
	}

	started, _ = m.StartScan()
	if started {
		t.Error("second StartScan after resume confirmation was not a no-op")
	}
}

func TestResumeWithoutSessions(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	if err := m.Resume(3); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Resume() error = %v, want ErrNoSession", err)
	}
}

func TestZoomAndLampStates(t *testing.T) {
	m, ctrl, _, _ := newTestMachine(t)

	if err := m.SetZoom(filmkorn.Zoom3x); err != nil {
		t.Fatal(err)
	}
	if m.State() != StatePreviewing || !ctrl.Lamp() {
		t.Errorf("after 3x: state=%s lamp=%v", m.State(), ctrl.Lamp())
	}
	if err := m.SetLamp(false); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateIdle || ctrl.Zoom() != filmkorn.Zoom1x {
		t.Errorf("after lamp off: state=%s zoom=%s", m.State(), ctrl.Zoom())
	}
}

func TestSleepGuards(t *testing.T) {
	m, _, _, _ := newTestMachine(t)
	if _, err := m.StartScan(); err != nil {
		t.Fatal(err)
	}
	if m.Sleep() {
		t.Fatal("slept while scanning")
	}
	if _, err := m.StopScan(); err != nil {
		t.Fatal(err)
	}

	if !m.Sleep() {
		t.Fatal("Sleep() refused while idle")
	}
	if err := m.SetZoom(filmkorn.Zoom10x); !errors.Is(err, ErrSleeping) {
		t.Errorf("SetZoom while sleeping error = %v", err)
	}
	if _, err := m.StartScan(); !errors.Is(err, ErrSleeping) {
		t.Errorf("StartScan while sleeping error = %v", err)
	}
	if !m.Wake() || m.State() != StateIdle {
		t.Errorf("Wake() left state %s", m.State())
	}
}

func TestIsSessionName(t *testing.T) {
	tests := map[string]bool{
		"2025-03-14T09_26_53":           true,
		"2025-03-14T09_26_53_4056x3040": true,
		"lost+found":                    false,
		"2025-13-14T09_26_53":           false,
		"":                              false,
	}
	for name, want := range tests {
		if got := IsSessionName(name); got != want {
			t.Errorf("IsSessionName(%q) = %v, want %v", name, got, want)
		}
	}
}
