// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Thermoquad/filmkorn/internal/camera"
	"github.com/Thermoquad/filmkorn/internal/config"
	"github.com/Thermoquad/filmkorn/internal/core"
	"github.com/Thermoquad/filmkorn/internal/diskspace"
	"github.com/Thermoquad/filmkorn/internal/gpio"
	"github.com/Thermoquad/filmkorn/internal/logging"
	"github.com/Thermoquad/filmkorn/internal/overlay"
	"github.com/Thermoquad/filmkorn/internal/power"
	"github.com/Thermoquad/filmkorn/internal/scan"
	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/Thermoquad/filmkorn/internal/storage"
	"github.com/Thermoquad/filmkorn/internal/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	continueAt   int
	simulateGPIO bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scanner control core",
	Long: `Poll the controller and drive the camera, overlay and storage switch.

With --continue-at N the most recent session directory is reopened and frame
numbering continues at N instead of starting a new session on the next scan.

Signals:
  SIGTERM - graceful shutdown (exit 0)
  SIGINT  - interrupt (exit 1)

Exit codes:
  0 - Graceful shutdown
  1 - Interrupted
  2 - Usage or configuration error
  3 - Capture volume critically low
  4 - Controller bus unavailable
  5 - Shutdown watchdog fired`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&continueAt, "continue-at", -1, "Reopen the latest session and continue at this frame number")
	runCmd.Flags().BoolVar(&simulateGPIO, "simulate", false, "Use simulated GPIO lines instead of sysfs")
}

// gpioLines are the lines the core uses. lamp is nil when not wired.
type gpioLines struct {
	power, button, target, lamp gpio.Line
}

func openLines(c config.Config, simulate bool) (gpioLines, error) {
	if simulate {
		l := gpioLines{
			power:  gpio.NewSimulated(true),
			button: gpio.NewSimulated(true),
			target: gpio.NewSimulated(false),
		}
		if c.LampLine >= 0 {
			l.lamp = gpio.NewSimulated(false)
		}
		return l, nil
	}

	var (
		l   gpioLines
		err error
	)
	if l.power, err = openSysfs(c, c.PowerLine, gpio.Out); err != nil {
		return l, err
	}
	if l.button, err = openSysfs(c, c.ButtonLine, gpio.In); err != nil {
		return l, err
	}
	if l.target, err = openSysfs(c, c.SwitchLine, gpio.In); err != nil {
		return l, err
	}
	if c.LampLine >= 0 {
		if l.lamp, err = openSysfs(c, c.LampLine, gpio.Out); err != nil {
			return l, err
		}
	}
	return l, nil
}

// openSysfs avoids storing a typed nil pointer in the Line interface.
func openSysfs(c config.Config, n int, dir gpio.Direction) (gpio.Line, error) {
	line, err := gpio.OpenSysfs(c.GPIORoot, n, dir)
	if err != nil {
		return nil, err
	}
	return line, nil
}

// serviceManager is the systemd surface the core needs.
type serviceManager interface {
	StartUnit(ctx context.Context, name string) error
	RestartUnit(ctx context.Context, name string) error
	Close() error
}

func connectSystemd() serviceManager {
	m, err := systemd.Connect()
	if err != nil {
		log.Warn().Str("component", "systemd").Err(err).Msg("systemd unavailable, unit hand-offs disabled")
		return systemd.Noop{}
	}
	return m
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(port)
}

// signalExitCode maps a shutdown signal to the process exit code.
func signalExitCode(sig os.Signal) int {
	if sig == syscall.SIGINT {
		return ExitInterrupt
	}
	return ExitOK
}

// closeWithWatchdog runs closer and calls exit with ExitWatchdog if it has not
// returned within timeout.
func closeWithWatchdog(closer func() error, timeout time.Duration, exit func(int)) error {
	watchdog := time.AfterFunc(timeout, func() {
		log.Error().Str("component", "run").Dur("timeout", timeout).Msg("shutdown watchdog fired")
		exit(ExitWatchdog)
	})
	defer watchdog.Stop()
	return closer()
}

func runRun(cmd *cobra.Command, args []string) error {
	c := cfg

	link, connInfo, err := openBusOrExit(c)
	if err != nil {
		return err
	}

	runLog := logging.Component("run")

	lines, err := openLines(c, simulateGPIO)
	if err != nil {
		link.Close()
		return exitWith(ExitUsage, fmt.Errorf("gpio: %w", err))
	}

	runLog.Info().
		Str("bus", connInfo).
		Str("raw_root", c.RawRoot).
		Int("continue_at", continueAt).
		Msg("filmkorn starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services := connectSystemd()
	defer services.Close()

	cam := camera.NewController(camera.NewSimulated(), lines.lamp)
	machine := scan.New(scan.Options{Root: c.RawRoot, Extension: c.Extension}, cam)

	governor := diskspace.New(diskspace.Options{
		Path:         c.RawRoot,
		Wait:         c.WaitBytes,
		Abort:        c.AbortBytes,
		Hysteresis:   c.Hysteresis,
		ScanInterval: c.ScanDiskCheck,
		IdleInterval: c.IdleDiskCheck,
		PollInterval: time.Second,
	}, diskspace.Statfs{}, nil)

	presenter := overlay.NewPresenter(overlay.Options{
		Width:      c.ScreenWidth,
		Height:     c.ScreenHeight,
		Retries:    c.OverlayRetries,
		RetryDelay: c.OverlayDelay,
	}, overlay.FileSink{Path: c.OverlayPath})
	go presenter.Run(ctx)

	popts := power.DefaultOptions()
	popts.IdleTimeout = c.IdleTimeout
	popts.SettleDelay = c.SettleDelay
	popts.SleepUnit = c.SleepUnit
	popts.WakeUnit = c.WakeUnit
	pm := power.New(popts, lines.power, lines.button, machine, cam, presenter, services)

	switcher := storage.NewSwitcher(storage.Options{
		LocalMount:   c.LocalMount,
		LocalConfig:  c.LocalConfig,
		NetConfig:    c.NetConfig,
		Link:         c.SyncLink,
		Unit:         c.SyncUnit,
		PollInterval: c.SwitchCheck,
	}, lines.target, services)

	hub := status.NewHub()
	go func() {
		if err := status.Serve(ctx, c.StatusListen, hub); err != nil {
			log.Warn().Str("component", "status").Err(err).Msg("status feed stopped")
		}
	}()
	if c.Advertise {
		if port, err := listenPort(c.StatusListen); err != nil {
			log.Warn().Str("component", "status").Err(err).Msg("cannot advertise status feed")
		} else {
			instance, _ := os.Hostname()
			if srv, err := status.Advertise("filmkorn "+instance, port, rootCmd.Version); err != nil {
				log.Warn().Str("component", "status").Err(err).Msg("mDNS advertisement failed")
			} else {
				defer srv.Shutdown()
			}
		}
	}

	ctl := core.New(core.Options{
		RawRoot:         c.RawRoot,
		ScanTick:        c.ScanTick,
		IdleTick:        c.IdleTick,
		SwitchInterval:  c.SwitchCheck,
		PublishInterval: time.Second,
		ResumeAt:        continueAt,
	}, core.Components{
		Link:     link,
		Camera:   cam,
		Scan:     machine,
		Governor: governor,
		Power:    pm,
		Overlay:  presenter,
		Switcher: switcher,
		Drain:    storage.NewDrain(c.RawRoot, c.DrainPoll),
		Hub:      hub,
	})

	var exitCode atomic.Int32
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			exitCode.Store(int32(signalExitCode(sig)))
			runLog.Info().Str("signal", sig.String()).Msg("shutdown requested")
			ctl.Shutdown()
			// Unblocks a capture waiting for disk space.
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := ctl.Run(ctx)
	cancel()

	if err := closeWithWatchdog(ctl.Close, c.ShutdownTimeout, os.Exit); err != nil {
		runLog.Warn().Err(err).Msg("shutdown incomplete")
	}

	switch {
	case errors.Is(runErr, diskspace.ErrCritical):
		return exitWith(ExitDisk, runErr)
	case runErr != nil:
		// Only a failed --continue-at gets here.
		return exitWith(ExitUsage, runErr)
	}

	runLog.Info().Msg("filmkorn stopped")
	if code := int(exitCode.Load()); code != ExitOK {
		return exitWith(code, nil)
	}
	return nil
}
