// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/filmkorn/internal/config"
	"github.com/Thermoquad/filmkorn/internal/logging"
	"github.com/spf13/cobra"
)

// Process exit codes
const (
	ExitOK        = 0
	ExitInterrupt = 1
	ExitUsage     = 2
	ExitDisk      = 3
	ExitBus       = 4
	ExitWatchdog  = 5
)

// ExitError carries the process exit code for an error returned by a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitUsage
}

var (
	configPath string
	logLevel   string
	logPretty  bool

	// Bus flags
	busKind    string
	i2cDevice  string
	portName   string
	baudRate   int
	busAddress int

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "filmkorn",
	Short: "Film scanner control core",
	Long: `Filmkorn - control core for a motorized film scanner.

Polls the scanner's microcontroller for operator intent (zoom, lamp, scan,
exposure) and drives the camera, the status overlay and the storage target
switch in response.

Controller bus:
  I2C:  --bus i2c --device /dev/i2c-1 [--address 42]
  UART: --bus serial --port /dev/ttyACM0 [--baud 115200]

Settings are read from --config (JSON) over the built-in defaults; flags given
on the command line override the file.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (JSON also accepted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", false, "Human-readable log output")

	rootCmd.PersistentFlags().StringVar(&busKind, "bus", config.BusI2C, "Controller bus (i2c or serial)")
	rootCmd.PersistentFlags().StringVarP(&i2cDevice, "device", "d", "", "I2C bus device")
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")
	rootCmd.PersistentFlags().IntVarP(&busAddress, "address", "a", 0, "Controller bus address")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := logging.Setup(logLevel, logPretty); err != nil {
		return exitWith(ExitUsage, err)
	}

	c, err := config.Load(configPath)
	if err != nil {
		return exitWith(ExitUsage, err)
	}

	flags := cmd.Flags()
	if flags.Changed("bus") {
		c.Bus = busKind
	}
	if flags.Changed("device") {
		c.I2CDevice = i2cDevice
	}
	if flags.Changed("port") {
		c.SerialPort = portName
		if !flags.Changed("bus") {
			c.Bus = config.BusSerial
		}
	}
	if flags.Changed("baud") {
		c.BaudRate = baudRate
	}
	if flags.Changed("address") {
		c.Address = busAddress
	}

	if err := c.Validate(); err != nil {
		return exitWith(ExitUsage, err)
	}
	cfg = c
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
