// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heliboot/pkg/boot"
	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/image"
)

var inspectImage string

var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot>",
	Short: "Show the contents of an emulated flash snapshot",
	Long: `Print the region, page usage, vector table and digest of a flash snapshot
written by 'heliboot emulate'.

With --image, the programmed flash is compared against a firmware file.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectImage, "image", "", "Firmware file to compare against")
}

func runInspect(cmd *cobra.Command, args []string) error {
	mem, err := flash.Load(args[0])
	if err != nil {
		return err
	}

	region := mem.Region()
	erased, programmed := mem.PageCounts()
	total := int(region.Size / mem.PageSize())

	fmt.Printf("Heliboot - Flash Snapshot\n")
	fmt.Printf("File: %s\n", args[0])
	fmt.Printf("Region: %s\n", region)
	fmt.Printf("Pages: %d x %d bytes, %d erased, %d programmed\n", total, mem.PageSize(), erased, programmed)

	data := mem.ProgrammedImage()
	if data == nil {
		fmt.Printf("Image: (none)\n")
		return nil
	}

	img := &image.Image{Name: args[0], Base: region.Base, Data: data}
	digest := img.Digest()
	fmt.Printf("Image: %d bytes (programmed pages)\n", len(data))
	fmt.Printf("BLAKE2b-256: %s\n", hex.EncodeToString(digest[:]))

	if sp, entryAddr, err := img.Vectors(); err == nil {
		fmt.Printf("Initial SP: 0x%08X\n", sp)
		fmt.Printf("Entry (base+%d): 0x%08X\n", boot.EntryVectorOffset, entryAddr)
		if err := img.CheckEntry(); err != nil {
			fmt.Printf("  WARNING: %v\n", err)
		}
	}

	if inspectImage == "" {
		return nil
	}

	want, err := image.Load(inspectImage, region.Base)
	if err != nil {
		return err
	}
	if err := want.Fit(region); err != nil {
		return err
	}
	got, err := mem.Read(region.Base, want.Size())
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want.Data) {
		for i := range got {
			if got[i] != want.Data[i] {
				return fmt.Errorf("MISMATCH: %s differs from flash at 0x%08X", want.Name, region.Base+uint32(i))
			}
		}
	}
	fmt.Printf("MATCH: %s is programmed\n", want.Name)
	return nil
}
