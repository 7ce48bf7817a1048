// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package overlay

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/bmp"
)

func TestFormatShutter(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, ""},
		{100 * time.Microsecond, "1/10000"},
		{time.Second / 250, "1/250"},
		{4100 * time.Microsecond, "1/250"},
		{time.Millisecond, "1/1000"},
		{16 * time.Millisecond, "1/60"},
		{100 * time.Millisecond, "1/10"},
		{500 * time.Millisecond, "1/2"},
		{699 * time.Millisecond, "1/2"},
		{700 * time.Millisecond, "0.7s"},
		{800 * time.Millisecond, "0.8s"},
		{2 * time.Second, "2.0s"},
	}
	for _, tt := range tests {
		if got := FormatShutter(tt.d); got != tt.want {
			t.Errorf("FormatShutter(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRendererCachesScreens(t *testing.T) {
	r := NewRenderer(320, 240)
	a := r.Screen(ScreenReadyToScan)
	b := r.Screen(ScreenReadyToScan)
	if a != b {
		t.Error("second lookup rendered a new bitmap")
	}
	r.Screen(ScreenInsertFilm)
	r.Screen(ScreenNone)
	r.Screen(ScreenNone)
	if r.Renders() != 2 {
		t.Errorf("Renders() = %d, want 2", r.Renders())
	}
}

func TestComposeLeavesCacheUntouched(t *testing.T) {
	r := NewRenderer(320, 240)
	cached := r.Screen(ScreenReadyToScan)
	before := append([]byte(nil), cached.Pix...)

	out := r.Compose(ScreenReadyToScan, Telemetry{FPS: 12.5, Shutter: 4 * time.Millisecond, Resolution: "4056x3040"})
	if &out.Pix[0] == &cached.Pix[0] {
		t.Fatal("Compose returned the cached bitmap")
	}
	for i := range before {
		if cached.Pix[i] != before[i] {
			t.Fatal("Compose modified the cached screen")
		}
	}

	// Top-left badge background.
	if _, _, _, a := out.At(margin+1, margin+1).RGBA(); a == 0 {
		t.Error("fps badge not drawn")
	}
	if _, _, _, a := cached.At(margin+1, margin+1).RGBA(); a != 0 {
		t.Error("cached screen has content in the badge corner")
	}
}

func TestComposeTransparentWithoutScreen(t *testing.T) {
	r := NewRenderer(64, 48)
	out := r.Compose(ScreenNone, Telemetry{})
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0 {
			t.Fatal("empty overlay is not transparent")
		}
	}
}

func TestFileSink(t *testing.T) {
	img := NewRenderer(64, 48).Compose(ScreenNoDrive, Telemetry{})

	t.Run("png", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overlay.png")
		if err := (FileSink{Path: path}).Apply(img); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		got, err := png.Decode(f)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Bounds() != img.Bounds() {
			t.Errorf("bounds = %v, want %v", got.Bounds(), img.Bounds())
		}
	})

	t.Run("bmp", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overlay.bmp")
		if err := (FileSink{Path: path}).Apply(img); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if _, err := bmp.Decode(f); err != nil {
			t.Fatalf("decode: %v", err)
		}
	})

	t.Run("backend missing", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent", "overlay.png")
		if err := (FileSink{Path: path}).Apply(img); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Apply() error = %v, want ErrUnsupported", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overlay.gif")
		err := (FileSink{Path: path}).Apply(img)
		if err == nil || errors.Is(err, ErrUnsupported) {
			t.Errorf("Apply() error = %v, want a format error", err)
		}
	})
}

type recordingSink struct {
	mu          sync.Mutex
	unsupported int
	calls       int
	images      []image.Image
}

func (s *recordingSink) Apply(img image.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.unsupported != 0 {
		if s.unsupported > 0 {
			s.unsupported--
		}
		return ErrUnsupported
	}
	s.images = append(s.images, img)
	return nil
}

func (s *recordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testOptions() Options {
	return Options{Width: 64, Height: 48, Retries: 3, RetryDelay: time.Millisecond}
}

func TestPresenterApplies(t *testing.T) {
	sink := &recordingSink{}
	p := NewPresenter(testOptions(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Show(ScreenReadyToScan)
	waitFor(t, "apply", func() bool { return p.Applied() == 1 })
	if p.Current() != ScreenReadyToScan {
		t.Errorf("Current() = %q", p.Current())
	}
}

func TestPresenterRecoversWithinRetries(t *testing.T) {
	sink := &recordingSink{unsupported: 2}
	p := NewPresenter(testOptions(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Show(ScreenInsertFilm)
	waitFor(t, "apply", func() bool { return p.Applied() == 1 })
	if p.Disabled() {
		t.Error("disabled although the sink recovered")
	}
	if sink.Calls() != 3 {
		t.Errorf("sink calls = %d, want 3", sink.Calls())
	}
}

func TestPresenterDisablesWhenUnsupported(t *testing.T) {
	sink := &recordingSink{unsupported: -1}
	p := NewPresenter(testOptions(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Show(ScreenInsertFilm)
	waitFor(t, "disable", p.Disabled)
	if got := sink.Calls(); got != 4 {
		t.Errorf("sink calls = %d, want 1 + 3 retries", got)
	}

	p.Show(ScreenReadyToScan)
	p.UpdateTelemetry(Telemetry{FPS: 3})
	time.Sleep(20 * time.Millisecond)
	if got := sink.Calls(); got != 4 {
		t.Errorf("sink called %d times after disable", got-4)
	}
}

func TestPresenterLatestWins(t *testing.T) {
	p := NewPresenter(testOptions(), &recordingSink{})
	p.Show(ScreenInsertFilm)
	p.Show(ScreenReadyToScan)
	p.UpdateTelemetry(Telemetry{FPS: 9})

	if n := len(p.requests); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
	r := <-p.requests
	if r.screen != ScreenReadyToScan || r.telemetry.FPS != 9 {
		t.Errorf("pending = %+v, want latest screen and telemetry", r)
	}
}

func TestPresenterInactiveDropsRequests(t *testing.T) {
	p := NewPresenter(testOptions(), &recordingSink{})
	p.SetActive(false)
	p.Show(ScreenWaitingForDrain)
	if len(p.requests) != 0 {
		t.Fatal("request queued while inactive")
	}
	if p.Current() != ScreenWaitingForDrain {
		t.Error("inactive presenter forgot the screen")
	}

	p.SetActive(true)
	p.Reapply()
	if len(p.requests) != 1 {
		t.Fatal("Reapply did not queue the last screen")
	}
}

func TestScreenIdle(t *testing.T) {
	if !ScreenReadyToScan.Idle() || !ScreenInsertFilm.Idle() {
		t.Error("resting screens not idle")
	}
	if ScreenWaitingForSpace.Idle() || ScreenNone.Idle() {
		t.Error("busy screens counted as idle")
	}
}
