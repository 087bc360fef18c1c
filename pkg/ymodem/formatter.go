// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")

	if !p.kind.IsData() {
		return fmt.Sprintf("[%s] %s\n", timestamp, FormatControl(p.kind.Header()))
	}

	result := fmt.Sprintf("[%s] %s seq=%d len=%d crc=0x%04X\n", timestamp, p.kind, p.seq, len(p.payload), p.crc)

	if p.IsHeader() {
		name, size, err := ParseHeader(p.payload)
		switch {
		case err != nil:
			result += fmt.Sprintf("  Header: %v\n", err)
		case name == "":
			result += "  Header: (end of batch)\n"
		default:
			result += fmt.Sprintf("  File: %q, Size: %d bytes\n", name, size)
		}
		return result
	}

	return result + FormatPayload(p.payload, 64)
}

// FormatControl returns the human-readable name for a control byte
func FormatControl(b byte) string {
	switch b {
	case SOH:
		return "SOH"
	case STX:
		return "STX"
	case EOT:
		return "EOT"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case CAN:
		return "CAN"
	case CRC16:
		return "START ('C')"
	case Probe:
		return "PROBE ('R')"
	default:
		return fmt.Sprintf("UNKNOWN (0x%02X)", b)
	}
}

// FormatPayload hex dumps up to limit bytes of a payload
func FormatPayload(payload []byte, limit int) string {
	var s strings.Builder
	s.WriteString("  Payload: ")

	shown := payload
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, b := range shown {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n           ")
		}
		s.WriteString(fmt.Sprintf("%02X ", b))
	}
	if len(shown) < len(payload) {
		s.WriteString(fmt.Sprintf("... (%d more)", len(payload)-len(shown)))
	}
	s.WriteString("\n")
	return s.String()
}
