// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/filmkorn/internal/diskspace"
	"github.com/Thermoquad/filmkorn/internal/overlay"
	"github.com/Thermoquad/filmkorn/internal/storage"
	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/Thermoquad/filmkorn/pkg/transport"
	"github.com/rs/zerolog/log"
)

// Run drives the scanner until Shutdown is called or ctx is cancelled. It
// returns diskspace.ErrCritical when the capture volume is exhausted.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	for {
		if c.shutdown.Load() || ctx.Err() != nil {
			log.Info().Str("component", "core").Msg("main loop stopping")
			return nil
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
		c.sleep(c.tickInterval())
	}
}

// Start resumes a session when asked to and requests the controller's
// state.
func (c *Controller) Start(ctx context.Context) error {
	if c.opts.ResumeAt >= 0 {
		if err := c.Scan.Resume(c.opts.ResumeAt); err != nil {
			return fmt.Errorf("continue at %d: %w", c.opts.ResumeAt, err)
		}
	}
	c.requestInitialValues()
	c.checkSwitch(ctx)
	c.refreshScreen()
	c.Power.Activity()
	return nil
}

func (c *Controller) tickInterval() time.Duration {
	if c.Scan.Scanning() {
		return c.opts.ScanTick
	}
	return c.opts.IdleTick
}

// Tick runs one pass of the main loop.
func (c *Controller) Tick(ctx context.Context) error {
	c.Power.Tick(ctx, c.screen.Idle() && !c.Scan.Scanning())
	if c.Power.Sleeping() {
		c.publish()
		return nil
	}

	if err := c.Governor.Check(ctx, c.Scan.Scanning()); err != nil {
		return c.governorError(err)
	}

	if c.now().Sub(c.lastSwitch) >= c.opts.SwitchInterval {
		c.checkSwitch(ctx)
	}
	if c.draining && c.Drain != nil && c.Drain.Drained() {
		c.draining = false
	}

	if err := c.poll(ctx); err != nil {
		return err
	}
	c.refreshScreen()
	c.publish()
	return nil
}

func (c *Controller) governorError(err error) error {
	if errors.Is(err, diskspace.ErrCritical) {
		return err
	}
	// Cancelled while waiting for space: the loop exits on its next check.
	return nil
}

// poll performs one request/response exchange and executes an accepted
// command.
func (c *Controller) poll(ctx context.Context) error {
	seq := c.seq.Current()
	if err := c.Link.Send(filmkorn.HostPoll, seq); err != nil {
		c.stats.RecordNoResponse()
		return nil
	}

	f, err := c.Link.Poll()
	switch {
	case errors.Is(err, transport.ErrNoResponse):
		c.stats.RecordNoResponse()
		return nil
	case errors.Is(err, transport.ErrEmptyResponse):
		c.stats.RecordEmpty()
		return nil
	case err != nil:
		c.stats.RecordDecodeError(err)
		log.Warn().Str("component", "core").Err(err).Msg("undecodable response ignored")
		return nil
	}

	v := c.seq.Match(f)
	c.stats.RecordVerdict(v)
	switch v {
	case filmkorn.VerdictIdle:
		return nil
	case filmkorn.VerdictStale:
		log.Debug().
			Str("component", "core").
			Stringer("command", f.Command).
			Uint8("got", f.Seq).
			Uint8("want", seq).
			Msg("stale response discarded")
		return nil
	case filmkorn.VerdictReset:
		log.Warn().Str("component", "core").Msg("controller reset, resynchronizing")
		c.seq.Reset()
		c.requestInitialValues()
		return nil
	}

	log.Debug().Str("component", "core").Str("frame", filmkorn.FormatFrame(f)).Msg("accepted")
	c.Power.Activity()
	err = c.dispatch(ctx, f)
	c.seq.Advance()
	return err
}

// dispatch executes an accepted command.
func (c *Controller) dispatch(ctx context.Context, f *filmkorn.Frame) error {
	var err error
	switch f.Command {
	case filmkorn.CmdSetZoom1x:
		err = c.Scan.SetZoom(filmkorn.Zoom1x)
	case filmkorn.CmdSetZoom3x:
		err = c.Scan.SetZoom(filmkorn.Zoom3x)
	case filmkorn.CmdSetZoom10x:
		err = c.Scan.SetZoom(filmkorn.Zoom10x)
	case filmkorn.CmdLampOn:
		err = c.Scan.SetLamp(true)
	case filmkorn.CmdLampOff:
		err = c.Scan.SetLamp(false)
	case filmkorn.CmdStartScan:
		c.startScan()
	case filmkorn.CmdCaptureFrame:
		return c.captureFrame(ctx)
	case filmkorn.CmdStopScan:
		c.stopScan(ctx)
	case filmkorn.CmdSetExposure:
		err = c.Camera.SetExposure(f.Exposure())
	case filmkorn.CmdShowInsertFilm, filmkorn.CmdShowReadyToScan:
		c.filmLoaded, _ = f.FilmLoaded()
		c.targetUnavailable = false
	case filmkorn.CmdReportInitialValues:
		err = c.applyInitialValues(f)
	}
	if err != nil {
		log.Error().Str("component", "core").Stringer("command", f.Command).Err(err).Msg("command failed")
	}
	return nil
}

func (c *Controller) startScan() {
	started, err := c.Scan.StartScan()
	if err != nil {
		log.Error().Str("component", "core").Err(err).Msg("scan not started")
		c.targetUnavailable = true
		c.refreshScreen()
		return
	}
	if !started {
		return
	}
	c.targetUnavailable = false
	c.draining = false
	c.updateTelemetry()
	c.refreshScreen()
	c.ready()
}

func (c *Controller) captureFrame(ctx context.Context) error {
	if c.Scan.Scanning() {
		if err := c.Governor.Ensure(ctx); err != nil {
			return c.governorError(err)
		}
	}
	path, err := c.Scan.CaptureFrame()
	if err != nil {
		log.Error().Str("component", "core").Err(err).Msg("capture failed, scan stopped")
		c.Overlay.UpdateTelemetry(overlay.Telemetry{})
		c.refreshScreen()
		return nil
	}
	log.Debug().Str("component", "core").Str("path", path).Msg("frame captured")
	c.updateTelemetry()
	c.ready()
	return nil
}

func (c *Controller) stopScan(ctx context.Context) {
	wasScanning, err := c.Scan.StopScan()
	if err != nil {
		log.Error().Str("component", "core").Err(err).Msg("lamp off failed")
	}
	c.Overlay.UpdateTelemetry(overlay.Telemetry{})
	c.requestInitialValues()
	if !wasScanning {
		return
	}
	n, err := storage.Undrained(c.opts.RawRoot)
	if err != nil {
		log.Warn().Str("component", "core").Err(err).Msg("drain check failed")
		return
	}
	if n > 0 && c.Drain != nil {
		log.Info().Str("component", "core").Int("files", n).Msg("waiting for sync to drain")
		c.draining = true
		c.Drain.Start(ctx)
	}
	c.refreshScreen()
}

func (c *Controller) applyInitialValues(f *filmkorn.Frame) error {
	iv, ok := f.InitialValues()
	if !ok {
		return nil
	}
	c.filmLoaded = iv.FilmLoaded
	if err := c.Camera.SetExposure(iv.Exposure); err != nil {
		return err
	}
	if c.Scan.Scanning() {
		return nil
	}
	if err := c.Scan.SetLamp(iv.Lamp); err != nil {
		return err
	}
	return c.Scan.SetZoom(iv.Zoom)
}

func (c *Controller) updateTelemetry() {
	_, avg := c.Camera.FrameRate()
	c.Overlay.UpdateTelemetry(overlay.Telemetry{
		FPS:        avg,
		Shutter:    c.Camera.Shutter(),
		Resolution: c.Camera.Resolution(),
	})
}

// ready acknowledges the command just accepted.
func (c *Controller) ready() {
	_ = c.Link.Send(filmkorn.HostReady, c.seq.Current())
}

func (c *Controller) requestInitialValues() {
	_ = c.Link.Send(filmkorn.HostRequestInitialValues, c.seq.Current())
}

func (c *Controller) checkSwitch(ctx context.Context) {
	c.lastSwitch = c.now()
	if c.Switcher == nil {
		return
	}
	c.Switcher.Check(ctx)
}

func (c *Controller) waitingForDrive() bool {
	return c.Switcher != nil && c.Switcher.WaitingForDrive()
}

// desiredScreen picks the status screen for the current state, most urgent
// first.
func (c *Controller) desiredScreen() overlay.Screen {
	switch {
	case c.Scan.Scanning():
		return overlay.ScreenNone
	case c.waitingForDrive():
		return overlay.ScreenNoDrive
	case c.targetUnavailable:
		return overlay.ScreenTargetUnavailable
	case c.draining:
		return overlay.ScreenWaitingForDrain
	case c.filmLoaded:
		return overlay.ScreenReadyToScan
	default:
		return overlay.ScreenInsertFilm
	}
}

func (c *Controller) refreshScreen() {
	s := c.desiredScreen()
	if c.screenShown && s == c.screen {
		return
	}
	c.screen = s
	c.screenShown = true
	c.Overlay.Show(s)
}

func (c *Controller) publish() {
	if c.Hub == nil {
		return
	}
	now := c.now()
	if now.Sub(c.lastPublish) < c.opts.PublishInterval {
		return
	}
	c.lastPublish = now
	if err := c.Hub.Publish(c.Snapshot()); err != nil {
		log.Debug().Str("component", "core").Err(err).Msg("snapshot not published")
	}
}

// publishNow publishes regardless of the interval. The main loop is blocked
// while waiting for space, so this is the only snapshot monitors get then.
func (c *Controller) publishNow() {
	c.lastPublish = time.Time{}
	c.publish()
}

// SpaceLow pauses capture exposure, shows the waiting screen and tells the
// status feed.
func (c *Controller) SpaceLow(diskspace.Budget) {
	if err := c.Camera.SetAutoExposure(true); err != nil {
		log.Warn().Str("component", "core").Err(err).Msg("auto exposure failed")
	}
	c.screen = overlay.ScreenWaitingForSpace
	c.Overlay.Show(overlay.ScreenWaitingForSpace)
	c.publishNow()
}

// SpaceRecovered restores the previous screen. Capture fixes the exposure
// again on its own. The next tick publishes without waiting for the interval.
func (c *Controller) SpaceRecovered(diskspace.Budget) {
	c.refreshScreen()
	c.lastPublish = time.Time{}
}
