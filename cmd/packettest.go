// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/filmkorn/pkg/filmkorn"
	"github.com/Thermoquad/filmkorn/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	busTestTimeout int
)

var busTestCmd = &cobra.Command{
	Use:   "bus_test",
	Short: "Test the controller bus by waiting for a valid response",
	Long: `Poll the controller until it answers with a decodable response or the
timeout is reached.

Empty responses and bus errors are counted and ignored; any decodable block,
including Idle, counts as success.

Exit codes:
  0 - Response received before timeout
  1 - Timeout reached without a valid response
  2 - Connection error`,
	RunE: runBusTest,
}

func init() {
	rootCmd.AddCommand(busTestCmd)
	busTestCmd.Flags().IntVar(&busTestTimeout, "timeout", 10, "Timeout in seconds to wait for a response")
}

func runBusTest(cmd *cobra.Command, args []string) error {
	link, connInfo, err := OpenBus(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("Filmkorn - Bus Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", busTestTimeout)
	fmt.Printf("Waiting for a valid controller response...\n\n")

	frameChan := make(chan *filmkorn.Frame, 1)
	stop := make(chan struct{})
	defer close(stop)

	// Poller goroutine
	go func() {
		failures := 0
		for {
			select {
			case <-stop:
				return
			default:
			}

			f, err := link.Exchange(0)
			if err != nil {
				if !transport.IsNoData(err) {
					fmt.Printf("(ignored: %v)\n", err)
				}
				failures++
				time.Sleep(50 * time.Millisecond)
				continue
			}
			if failures > 0 {
				fmt.Printf("(%d empty or failed polls before the first response)\n", failures)
			}
			frameChan <- f
			return
		}
	}()

	select {
	case f := <-frameChan:
		c := link.Counters()
		fmt.Printf("SUCCESS: Received valid response\n")
		fmt.Printf("  Command: %s (0x%02X)\n", f.Command, uint8(f.Command))
		fmt.Printf("  Sequence: %d\n", f.Seq)
		fmt.Printf("  Arguments: %s\n", filmkorn.FormatBlock(f.Args[:]))
		fmt.Printf("  NACK retries: %d\n", c.NackRetries)
		os.Exit(0)

	case <-time.After(time.Duration(busTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response received within %d seconds\n", busTestTimeout)
		os.Exit(1)
	}

	return nil
}
