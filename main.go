// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Heliboot - Helios Bootloader Tools
//
// Sends firmware to the Helios serial bootloader and runs the bootloader
// core on a host for testing.

package main

import (
	"os"

	"github.com/Thermoquad/heliboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
