// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heliboot/pkg/boot"
	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/image"
)

var (
	emuFlashFile      string
	emuBase           uint32
	emuSize           uint32
	emuPageSize       uint32
	emuTickMs         int
	emuRetries        uint32
	emuReceiveTimeout int
	emuMaxDesync      int
	emuNoCancel       bool
	emuReset          bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run the bootloader on this host with a simulated flash",
	Long: `Run the bootloader core against a serial port or WebSocket bridge.

The application flash is simulated (1 KiB pages by default, erased value
0xFF, words programmable only when erased) and persisted to a CBOR snapshot
file between runs. Use 'heliboot inspect' to examine the snapshot.

Exit codes:
  0 - Transfer complete, jumped to the application
  1 - Transfer failed, bootloader halted
  2 - Setup error (connection, snapshot, configuration)

Connect 'heliboot send' to the other end of the link to test a transfer
without hardware.`,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().StringVar(&emuFlashFile, "flash", "heliboot-flash.cbor", "Flash snapshot file")
	emulateCmd.Flags().Uint32Var(&emuBase, "base", boot.DefaultAppBase, "Application region base address")
	emulateCmd.Flags().Uint32Var(&emuSize, "size", boot.DefaultAppSize, "Application region size in bytes")
	emulateCmd.Flags().Uint32Var(&emuPageSize, "page-size", flash.DefaultPageSize, "Flash page size in bytes")
	emulateCmd.Flags().IntVar(&emuTickMs, "tick", int(boot.DefaultTickPeriod/time.Millisecond), "Discovery probe interval in milliseconds")
	emulateCmd.Flags().Uint32Var(&emuRetries, "retries", boot.DefaultMaxRetries, "Silent probe ticks before giving up")
	emulateCmd.Flags().IntVar(&emuReceiveTimeout, "receive-timeout", 0, "Seconds without data before a transfer stalls (0 waits forever)")
	emulateCmd.Flags().IntVar(&emuMaxDesync, "max-desync", boot.DefaultMaxDesync, "Consecutive stray bytes tolerated (0 disables the limit)")
	emulateCmd.Flags().BoolVar(&emuNoCancel, "no-cancel", false, "Do not send CAN CAN when a transfer fails")
	emulateCmd.Flags().BoolVar(&emuReset, "reset", false, "Start from a blank flash instead of the snapshot")
}

// cpuExit carries the emulated CPU's way out of Boot
type cpuExit struct {
	code    int
	message string
}

type emulatedCPU struct{}

func (emulatedCPU) Jump(entry uint32) {
	panic(cpuExit{code: 0, message: fmt.Sprintf("jump to application entry 0x%08X", entry)})
}

func (emulatedCPU) Halt(reason error) {
	panic(cpuExit{code: 1, message: fmt.Sprintf("halted: %v", reason)})
}

// runCPU boots and returns how the emulated CPU left
func runCPU(bl *boot.Bootloader) (exit cpuExit) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := r.(cpuExit)
		if !ok {
			panic(r)
		}
		exit = e
	}()
	bl.Boot()
	return cpuExit{code: 1, message: "boot returned"}
}

func runEmulate(cmd *cobra.Command, args []string) error {
	log := entry(cmd)

	region := flash.Region{Base: emuBase, Size: emuSize}
	mem, err := openFlash(emuFlashFile, region, emuPageSize, emuReset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flash error: %v\n", err)
		os.Exit(2)
	}

	cfg := boot.DefaultConfig()
	cfg.Region = region
	cfg.TickPeriod = time.Duration(emuTickMs) * time.Millisecond
	cfg.MaxRetries = emuRetries
	cfg.ReceiveTimeout = time.Duration(emuReceiveTimeout) * time.Second
	cfg.MaxDesync = emuMaxDesync
	cfg.CancelOnFailure = !emuNoCancel

	link, connInfo, err := OpenLink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.DeInit()

	bl, err := boot.New(boot.Device{
		Serial: link,
		Flash:  mem,
		CPU:    emulatedCPU{},
	},
		boot.WithConfig(cfg),
		boot.WithLogger(log),
		boot.WithProgress(func(p boot.Progress) {
			fmt.Printf("\r  0x%08X  %6d bytes written (%5.1f%% of region)",
				p.Addr, p.BytesWritten, percent(p.BytesWritten, p.RegionSize))
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Heliboot - Bootloader Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Region: %s, %d byte pages\n", region, emuPageSize)
	fmt.Printf("Flash: %s\n", emuFlashFile)
	fmt.Printf("Probing every %s, giving up after %d silent ticks\n\n", cfg.TickPeriod, cfg.MaxRetries)

	exit := runCPU(bl)
	fmt.Println()

	if err := mem.Save(emuFlashFile); err != nil {
		log.WithError(err).Error("failed to save flash snapshot")
	}

	if programmed := mem.ProgrammedImage(); programmed != nil {
		digest := image.Digest(programmed)
		fmt.Printf("Programmed: %d bytes, BLAKE2b-256 %s\n", len(programmed), hex.EncodeToString(digest[:]))
	}

	if exit.code == 0 {
		fmt.Printf("SUCCESS: %s\n", exit.message)
	} else {
		fmt.Fprintf(os.Stderr, "FAILED: %s\n", exit.message)
	}
	link.DeInit()
	os.Exit(exit.code)
	return nil
}

// openFlash restores the snapshot at path, or creates a blank flash when
// there is none
func openFlash(path string, region flash.Region, pageSize uint32, reset bool) (*flash.Memory, error) {
	if !reset {
		mem, err := flash.Load(path)
		switch {
		case err == nil:
			if mem.Region() != region || mem.PageSize() != pageSize {
				return nil, fmt.Errorf("snapshot %s holds %s with %d byte pages, use --reset to replace it",
					path, mem.Region(), mem.PageSize())
			}
			return mem, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	return flash.NewMemory(region, pageSize)
}
