// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/filmkorn/internal/config"
	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/cenkalti/backoff"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	monitorPlain bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [host[:port] | ws://host:port/status]",
	Short: "Live status view of a running scanner",
	Long: `Connect to a scanner's status feed and display its state.

Shows scan state, zoom, lamp, exposure, frame rate, disk headroom, storage
target and bus statistics. The connection is re-established automatically
when the scanner restarts.

Without an argument the local scanner is used. When stdout is not a terminal,
or with --plain, one line is printed per change instead of the TUI.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorPlain, "plain", false, "Print plain text lines instead of the TUI")
}

// Messages from the feed reader
type snapshotMsg struct {
	snap status.Snapshot
}
type feedConnectedMsg struct {
	url string
}
type feedLostMsg struct {
	err error
}

// feedReader keeps a status feed connection open and forwards what it reads.
type feedReader struct {
	target string
	cfg    config.Config
	send   func(tea.Msg)
}

func (f *feedReader) connect(ctx context.Context) (*status.Client, error) {
	var client *status.Client
	op := func() error {
		c, u, err := OpenFeed(ctx, f.target, f.cfg)
		if err != nil {
			return err
		}
		client = c
		f.send(feedConnectedMsg{url: u})
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		f.send(feedLostMsg{err: fmt.Errorf("%v (retry in %s)", err, wait.Round(100*time.Millisecond))})
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return client, nil
}

func (f *feedReader) run(ctx context.Context) {
	for ctx.Err() == nil {
		client, err := f.connect(ctx)
		if err != nil {
			return
		}
		stop := context.AfterFunc(ctx, func() { client.Close() })
		for {
			snap, err := client.Next()
			if err != nil {
				if ctx.Err() == nil {
					f.send(feedLostMsg{err: err})
				}
				break
			}
			f.send(snapshotMsg{snap: snap})
		}
		stop()
		client.Close()
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	target := "localhost"
	if len(args) == 1 {
		target = args[0]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if monitorPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlainMonitor(ctx, target)
	}

	m := initialMonitorModel(target)
	p := tea.NewProgram(m, tea.WithAltScreen())

	reader := &feedReader{target: target, cfg: cfg, send: p.Send}
	go reader.run(ctx)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

func runPlainMonitor(ctx context.Context, target string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var last string
	msgs := make(chan tea.Msg, 16)
	reader := &feedReader{target: target, cfg: cfg, send: func(m tea.Msg) {
		select {
		case msgs <- m:
		case <-ctx.Done():
		}
	}}
	go reader.run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			switch msg := msg.(type) {
			case feedConnectedMsg:
				fmt.Printf("connected: %s\n", msg.url)
			case feedLostMsg:
				fmt.Printf("disconnected: %v\n", msg.err)
			case snapshotMsg:
				line := summarizeSnapshot(msg.snap)
				if line != last {
					fmt.Printf("[%s] %s\n", msg.snap.Time.Format("15:04:05.000"), line)
					last = line
				}
			}
		}
	}
}

// summarizeSnapshot is the one-line form used by the plain monitor.
func summarizeSnapshot(s status.Snapshot) string {
	line := fmt.Sprintf("%s/%s zoom=%s lamp=%t film=%t shutter=%s frames=%d free=%s target=%s",
		s.State, s.Power, s.Zoom, s.Lamp, s.FilmLoaded, s.Shutter, s.Frames, formatBytes(s.FreeBytes), s.Target)
	if s.Screen != "" {
		line += " screen=" + s.Screen
	}
	if s.WaitingForSpace {
		line += " WAITING-FOR-SPACE"
	}
	if s.OverlayDisabled {
		line += " overlay=disabled"
	}
	return line
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
