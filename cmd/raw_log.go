// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

var rawLogPayload int

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display bootloader traffic in human-readable format",
	Long: `Continuously decode and display YMODEM packets and control bytes as they
arrive.

Attach to a tap on either direction of the link: the sender's data packets
decode with sequence, length and CRC; the bootloader's probe, start
request, ACK and NAK bytes are shown by name. Packets failing the sequence
or CRC check are reported as errors.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogPayload, "payload", 64, "Payload bytes to hex dump per packet (0 for none)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	log := entry(cmd)

	link, connInfo, err := OpenLink()
	if err != nil {
		return err
	}
	defer link.DeInit()

	fmt.Printf("Heliboot - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := ymodem.NewDecoder()
	stats := ymodem.NewStatistics()
	b := make([]byte, 1)

	for {
		if err := link.Receive(b, 0); err != nil {
			// The reader is gone once the link drops; nothing more arrives
			fmt.Print(stats.String())
			if errors.Is(err, ErrBridgeClosed) || errors.Is(err, io.EOF) {
				log.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		packet, err := decoder.DecodeByte(b[0])
		switch {
		case errors.Is(err, ymodem.ErrUnexpectedByte):
			stats.StrayBytes++
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), ymodem.FormatControl(b[0]))
		case err != nil:
			stats.Update(nil, err)
			fmt.Printf("[ERROR] %v\n", err)
		case packet != nil && packet.Kind().IsData():
			stats.Update(packet, nil)
			printPacket(packet)
		case packet != nil:
			fmt.Print(ymodem.FormatPacket(packet))
		}
	}
}

func printPacket(p *ymodem.Packet) {
	if p.IsHeader() {
		fmt.Print(ymodem.FormatPacket(p))
		return
	}
	fmt.Printf("[%s] %s seq=%d len=%d crc=0x%04X\n",
		p.Timestamp().Format("15:04:05.000"), p.Kind(), p.Seq(), len(p.Payload()), p.CRC())
	if rawLogPayload > 0 {
		fmt.Print(ymodem.FormatPayload(p.Payload(), rawLogPayload))
	}
}
