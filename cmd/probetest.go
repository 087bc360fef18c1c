// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

var (
	probeTestTimeout int
)

var probeTestCmd = &cobra.Command{
	Use:   "probe_test",
	Short: "Test connection by waiting for the bootloader's discovery probe",
	Long: `Wait for the bootloader's 'R' discovery probe on the connection until timeout.

This command connects to a serial port or WebSocket and waits for the probe
byte the bootloader sends once per tick while it looks for a sender. Other
bytes are ignored. Nothing is sent, so the bootloader keeps probing and
eventually times out on its own.

Exit codes:
  0 - Probe received before timeout
  1 - Timeout reached without receiving a probe
  2 - Connection error

Useful for checking that a device is sitting in its bootloader.`,
	RunE: runProbeTest,
}

func init() {
	rootCmd.AddCommand(probeTestCmd)
	probeTestCmd.Flags().IntVar(&probeTestTimeout, "timeout", 10, "Timeout in seconds to wait for a probe")
}

func runProbeTest(cmd *cobra.Command, args []string) error {
	link, connInfo, err := OpenLink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.DeInit()

	fmt.Printf("Heliboot - Probe Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTestTimeout)
	fmt.Printf("Waiting for bootloader probe...\n\n")

	start := time.Now()
	skipped, err := waitForProbe(link, time.Duration(probeTestTimeout)*time.Second)
	if skipped > 0 {
		fmt.Printf("(skipped %d other bytes)\n", skipped)
	}

	switch {
	case err == nil:
		fmt.Printf("SUCCESS: Received %s after %s\n", ymodem.FormatControl(ymodem.Probe), time.Since(start).Round(time.Millisecond))
		os.Exit(0)
	case errors.Is(err, hal.ErrTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No probe received within %d seconds\n", probeTestTimeout)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	return nil
}

// waitForProbe reads until the discovery probe arrives and returns how
// many other bytes went by. hal.ErrTimeout means none came in time.
func waitForProbe(link hal.Serial, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	skipped := 0
	b := make([]byte, 1)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return skipped, hal.ErrTimeout
		}
		if err := link.Receive(b, remaining); err != nil {
			return skipped, err
		}
		if b[0] == ymodem.Probe {
			return skipped, nil
		}
		skipped++
	}
}
