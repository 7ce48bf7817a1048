// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Address != Default().Address {
		t.Errorf("Address = %d, want default", cfg.Address)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filmkorn.json")
	body := `{"bus":"serial","extension":"dng","hysteresis":1.5,"idleTimeout":"90s"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus != BusSerial {
		t.Errorf("Bus = %q, want serial", cfg.Bus)
	}
	if cfg.Extension != "dng" {
		t.Errorf("Extension = %q, want dng", cfg.Extension)
	}
	if cfg.Hysteresis != 1.5 {
		t.Errorf("Hysteresis = %v, want 1.5", cfg.Hysteresis)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want 90s", cfg.IdleTimeout)
	}
	if cfg.ScanTick != 10*time.Millisecond {
		t.Errorf("ScanTick = %v, want untouched default", cfg.ScanTick)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filmkorn.yaml")
	body := `# bench scanner
bus: serial
serialPort: /dev/ttyUSB0
waitBytes: 8589934592
abortBytes: 2147483648
drainPoll: 1.5s
shutdownTimeout: 250ms
advertise: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus != BusSerial || cfg.SerialPort != "/dev/ttyUSB0" {
		t.Errorf("bus = %q %q", cfg.Bus, cfg.SerialPort)
	}
	if cfg.WaitBytes != 8<<30 || cfg.AbortBytes != 2<<30 {
		t.Errorf("thresholds = %d/%d", cfg.WaitBytes, cfg.AbortBytes)
	}
	if cfg.DrainPoll != 1500*time.Millisecond {
		t.Errorf("DrainPoll = %v, want 1.5s", cfg.DrainPoll)
	}
	if cfg.ShutdownTimeout != 250*time.Millisecond {
		t.Errorf("ShutdownTimeout = %v, want 250ms", cfg.ShutdownTimeout)
	}
	if cfg.Advertise {
		t.Error("Advertise should be off")
	}
	if cfg.IdleTimeout != Default().IdleTimeout {
		t.Errorf("IdleTimeout = %v, want untouched default", cfg.IdleTimeout)
	}
}

func TestLoadInvalidAfterParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filmkorn.yaml")
	if err := os.WriteFile(path, []byte("abortBytes: 8589934592\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error, want threshold validation error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown bus", func(c *Config) { c.Bus = "spi" }},
		{"abort above wait", func(c *Config) { c.AbortBytes = c.WaitBytes + 1 }},
		{"abort equals wait", func(c *Config) { c.AbortBytes = c.WaitBytes }},
		{"hysteresis below one", func(c *Config) { c.Hysteresis = 0.5 }},
		{"empty extension", func(c *Config) { c.Extension = "" }},
		{"empty raw root", func(c *Config) { c.RawRoot = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filmkorn.json")
	if err := os.WriteFile(path, []byte(`{"scanTick":10}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() = nil error, want duration parse error")
	}
}
