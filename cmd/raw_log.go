// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/Thermoquad/filmkorn/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	rawLogInterval time.Duration
	rawLogIdle     bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display controller commands in human-readable format",
	Long: `Continuously poll the controller and display its responses as they arrive.

Each line shows the timestamp, command, sequence nibble and decoded arguments.
Matched responses advance the sequence exactly like the control core, so the
controller sees its commands acknowledged; nothing is executed.

Press Ctrl+C to exit and print bus statistics.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawLogInterval, "interval", 100*time.Millisecond, "Poll interval")
	rawLogCmd.Flags().BoolVar(&rawLogIdle, "idle", false, "Also print Idle responses")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	link, connInfo, err := openBusOrExit(cfg)
	if err != nil {
		return err
	}
	defer link.Close()

	fmt.Printf("Filmkorn - Raw Command Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	seq := filmkorn.NewSequencer()
	stats := filmkorn.NewStatistics()
	ticker := time.NewTicker(rawLogInterval)
	defer ticker.Stop()

	if err := link.Send(filmkorn.HostRequestInitialValues, seq.Current()); err != nil {
		fmt.Printf("[ERROR] %v\n", err)
	}

	for {
		select {
		case <-sigs:
			fmt.Print("\n" + stats.String())
			return nil
		case <-ticker.C:
		}

		f, err := link.Exchange(seq.Current())
		switch {
		case errors.Is(err, transport.ErrEmptyResponse):
			stats.RecordEmpty()
			continue
		case errors.Is(err, transport.ErrNoResponse):
			stats.RecordNoResponse()
			fmt.Printf("[ERROR] %v\n", err)
			continue
		case err != nil:
			stats.RecordDecodeError(err)
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}

		v := seq.Match(f)
		stats.RecordVerdict(v)
		switch v {
		case filmkorn.VerdictIdle:
			if rawLogIdle {
				fmt.Print(filmkorn.FormatFrame(f))
			}
		case filmkorn.VerdictStale:
			fmt.Printf("[STALE] %s", filmkorn.FormatFrame(f))
		case filmkorn.VerdictReset:
			fmt.Print(filmkorn.FormatFrame(f))
			seq.Reset()
			if err := link.Send(filmkorn.HostRequestInitialValues, seq.Current()); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			}
		default:
			fmt.Print(filmkorn.FormatFrame(f))
			seq.Advance()
		}
	}
}
