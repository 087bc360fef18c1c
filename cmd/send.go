// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heliboot/pkg/boot"
	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/image"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

var (
	sendBase      uint32
	sendSize      uint32
	sendShort     bool
	sendRetries   int
	sendHandshake int
	sendTimeout   int
	sendForce     bool
	sendTUI       bool
)

var sendCmd = &cobra.Command{
	Use:   "send <image>",
	Short: "Send an application image to the bootloader",
	Long: `Wait for the bootloader's discovery probe and stream an image to it.

The image is a raw binary (.bin) placed at --base, or an Intel HEX file
(.hex) carrying its own load address. It must be linked for the
application region and fit inside it unless --force is given.

Transfer sequence:
  1. Wait for the 'R' probe and answer ACK
  2. Wait for 'C' (the bootloader has erased the region)
  3. Send the header block (file name and size), then the data packets
  4. EOT / NAK / EOT / ACK

Reset the device into the bootloader after starting this command; it waits
--handshake seconds for the probe.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint32Var(&sendBase, "base", boot.DefaultAppBase, "Application region base address")
	sendCmd.Flags().Uint32Var(&sendSize, "size", boot.DefaultAppSize, "Application region size in bytes")
	sendCmd.Flags().BoolVar(&sendShort, "short", false, "Use 128-byte packets instead of 1024-byte packets")
	sendCmd.Flags().IntVar(&sendRetries, "retries", 10, "Resends allowed per packet")
	sendCmd.Flags().IntVar(&sendHandshake, "handshake", 30, "Seconds to wait for the bootloader probe")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 10, "Seconds to wait for each response")
	sendCmd.Flags().BoolVar(&sendForce, "force", false, "Send even if the image does not fit the region")
	sendCmd.Flags().BoolVar(&sendTUI, "tui", false, "Show a progress UI")
}

func runSend(cmd *cobra.Command, args []string) error {
	log := entry(cmd)

	img, err := image.Load(args[0], sendBase)
	if err != nil {
		return err
	}

	region := flash.Region{Base: sendBase, Size: sendSize}
	if err := img.Fit(region); err != nil {
		if !sendForce {
			return err
		}
		log.WithError(err).Warn("sending anyway")
	}
	if err := img.CheckEntry(); err != nil {
		log.WithError(err).Warn("image may not start")
	}

	link, connInfo, err := OpenLink()
	if err != nil {
		return err
	}
	defer link.DeInit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kind := ymodem.KindLongData
	if sendShort {
		kind = ymodem.KindShortData
	}
	opts := []ymodem.SenderOption{
		ymodem.WithPacketKind(kind),
		ymodem.WithRetries(sendRetries),
		ymodem.WithHandshakeTimeout(time.Duration(sendHandshake) * time.Second),
		ymodem.WithResponseTimeout(time.Duration(sendTimeout) * time.Second),
		ymodem.WithSenderLogger(log),
	}

	if sendTUI {
		return runSendTUI(ctx, link, img, connInfo, opts)
	}

	digest := img.Digest()
	fmt.Printf("Heliboot - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Image: %s (%d bytes at 0x%08X)\n", img.Name, img.Size(), img.Base)
	fmt.Printf("BLAKE2b-256: %s\n", hex.EncodeToString(digest[:]))
	fmt.Printf("Waiting for bootloader probe (%ds)...\n\n", sendHandshake)

	opts = append(opts, ymodem.WithSendProgress(func(p ymodem.SendProgress) {
		fmt.Printf("\r  %6d / %d bytes (%5.1f%%)  seq=%-3d  retries=%d",
			p.BytesSent, p.TotalBytes, percent(p.BytesSent, p.TotalBytes), p.Seq, p.Retries)
	}))

	sender := ymodem.NewSender(link, opts...)
	err = sender.Send(ctx, img.Name, img.Data)
	fmt.Println()
	fmt.Println()
	fmt.Print(sender.Statistics().String())
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	fmt.Printf("SUCCESS: %s sent, the bootloader is starting the application\n", img.Name)
	return nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100.0 / float64(total)
}
