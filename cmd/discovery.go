// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/filmkorn/internal/status"
	"github.com/spf13/cobra"
)

var (
	discoveryTimeout int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover scanners on the local network",
	Long: `Browse mDNS for scanners advertising a status feed (_filmkorn._tcp).

Each scanner is listed with its host, address and feed URL, which can be passed
to the monitor command.

Examples:
  filmkorn discovery --timeout 3
  filmkorn monitor ws://192.168.1.40:8088/status

Exit codes:
  0 - Discovery successful (at least one scanner found)
  1 - No scanners answered before the timeout
  2 - mDNS error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 5, "Timeout in seconds for discovery")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	fmt.Printf("Filmkorn - Scanner Discovery\n")
	fmt.Printf("Service: %s\n", status.ServiceType)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	peers, err := status.Browse(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery error: %v\n", err)
		os.Exit(2)
	}

	for _, p := range peers {
		fmt.Printf("Scanner found:\n")
		fmt.Printf("  Instance: %s\n", p.Instance)
		fmt.Printf("  Host: %s\n", p.Host)
		if p.Addr != nil {
			fmt.Printf("  Address: %s\n", p.Addr)
		}
		fmt.Printf("  Feed: %s\n", p.URL())
		if len(p.Text) > 0 {
			fmt.Printf("  TXT: %s\n", strings.Join(p.Text, " "))
		}
		fmt.Println()
	}

	fmt.Printf("--- Discovery summary ---\n")
	fmt.Printf("Scanners found: %d\n", len(peers))
	if len(peers) == 0 {
		fmt.Printf("No scanners discovered. Check the scanner is running with advertising enabled.\n")
		os.Exit(1)
	}

	return nil
}
