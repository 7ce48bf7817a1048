// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the scanner's tunables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bus kinds
const (
	BusI2C    = "i2c"
	BusSerial = "serial"
)

// Config is the complete runtime configuration.
type Config struct {
	// Controller bus
	Bus        string `yaml:"bus"`
	I2CDevice  string `yaml:"i2cDevice"`
	SerialPort string `yaml:"serialPort"`
	BaudRate   int    `yaml:"baudRate"`
	Address    int    `yaml:"address"`

	// Capture output
	RawRoot   string `yaml:"rawRoot"`
	Extension string `yaml:"extension"`

	// Disk-space governor, in bytes
	WaitBytes  uint64  `yaml:"waitBytes"`
	AbortBytes uint64  `yaml:"abortBytes"`
	Hysteresis float64 `yaml:"hysteresis"`

	// Loop timing
	ScanTick      time.Duration `yaml:"scanTick"`
	IdleTick      time.Duration `yaml:"idleTick"`
	ScanDiskCheck time.Duration `yaml:"scanDiskCheck"`
	IdleDiskCheck time.Duration `yaml:"idleDiskCheck"`
	SwitchCheck   time.Duration `yaml:"switchCheck"`

	// Power
	IdleTimeout time.Duration `yaml:"idleTimeout"`
	SettleDelay time.Duration `yaml:"settleDelay"`
	SleepUnit   string        `yaml:"sleepUnit"`
	WakeUnit    string        `yaml:"wakeUnit"`
	GPIORoot    string        `yaml:"gpioRoot"`
	PowerLine   int           `yaml:"powerLine"`
	ButtonLine  int           `yaml:"buttonLine"`
	SwitchLine  int           `yaml:"switchLine"`
	LampLine    int           `yaml:"lampLine"`

	// Storage target
	LocalMount  string        `yaml:"localMount"`
	LocalConfig string        `yaml:"localConfig"`
	NetConfig   string        `yaml:"netConfig"`
	SyncLink    string        `yaml:"syncLink"`
	SyncUnit    string        `yaml:"syncUnit"`
	DrainPoll   time.Duration `yaml:"drainPoll"`

	// Overlay
	OverlayPath    string        `yaml:"overlayPath"`
	OverlayRetries int           `yaml:"overlayRetries"`
	OverlayDelay   time.Duration `yaml:"overlayDelay"`
	ScreenWidth    int           `yaml:"screenWidth"`
	ScreenHeight   int           `yaml:"screenHeight"`

	// Status feed
	StatusListen string `yaml:"statusListen"`
	Advertise    bool   `yaml:"advertise"`

	// Shutdown
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Default returns the configuration used on the production scanner.
func Default() Config {
	return Config{
		Bus:        BusI2C,
		I2CDevice:  "/dev/i2c-1",
		SerialPort: "/dev/ttyACM0",
		BaudRate:   115200,
		Address:    42,

		RawRoot:   "/home/pi/raw-intermediates",
		Extension: "jpg",

		WaitBytes:  4 << 30,
		AbortBytes: 1 << 30,
		Hysteresis: 2.0,

		ScanTick:      10 * time.Millisecond,
		IdleTick:      100 * time.Millisecond,
		ScanDiskCheck: time.Second,
		IdleDiskCheck: 3 * time.Second,
		SwitchCheck:   time.Second,

		IdleTimeout: 300 * time.Second,
		SettleDelay: 2 * time.Second,
		SleepUnit:   "filmkorn-sleep.service",
		WakeUnit:    "filmkorn-wake.service",
		GPIORoot:    "/sys/class/gpio",
		PowerLine:   17,
		ButtonLine:  26,
		SwitchLine:  27,
		LampLine:    -1,

		LocalMount:  "/mnt/filmkorn-ssd",
		LocalConfig: "/etc/filmkorn/sync-local.conf",
		NetConfig:   "/etc/filmkorn/sync-network.conf",
		SyncLink:    "/etc/filmkorn/sync.conf",
		SyncUnit:    "filmkorn-sync.service",
		DrainPoll:   2 * time.Second,

		OverlayPath:    "/run/filmkorn/overlay.png",
		OverlayRetries: 5,
		OverlayDelay:   time.Second,
		ScreenWidth:    800,
		ScreenHeight:   480,

		StatusListen: ":8088",
		Advertise:    true,

		ShutdownTimeout: 5 * time.Second,
	}
}

// Load reads a YAML file over the defaults. JSON is accepted as well, and
// durations are written as strings like "1.5s". A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Bus {
	case BusI2C, BusSerial:
	default:
		return fmt.Errorf("unknown bus %q (want %s or %s)", c.Bus, BusI2C, BusSerial)
	}
	if c.AbortBytes >= c.WaitBytes {
		return fmt.Errorf("abort threshold %d must be below wait threshold %d", c.AbortBytes, c.WaitBytes)
	}
	if c.Hysteresis < 1 {
		return fmt.Errorf("hysteresis %.2f must be at least 1", c.Hysteresis)
	}
	if c.Extension == "" {
		return errors.New("capture extension must not be empty")
	}
	if c.RawRoot == "" {
		return errors.New("raw root must not be empty")
	}
	return nil
}
