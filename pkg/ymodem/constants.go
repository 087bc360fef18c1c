// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ymodem implements the YMODEM-derived wire protocol spoken by the
// Helios bootloader.
//
// The bootloader receives exactly one file streamed into one flash region.
// This package provides packet framing and validation, the CRC-16/XMODEM
// checksum, a byte-wise stream decoder for monitoring, and a host-side
// sender.
package ymodem

// Control bytes
const (
	SOH   = 0x01 // 128-byte data packet header
	STX   = 0x02 // 1024-byte data packet header
	EOT   = 0x04 // End of transmission
	ACK   = 0x06
	NAK   = 0x15
	CAN   = 0x18 // Cancel
	CRC16 = 0x43 // 'C', request CRC mode transfer start
	Probe = 0x52 // 'R', bootloader discovery probe (not standard YMODEM)
)

// Packet sizes
const (
	PacketSizeShort = 128
	PacketSizeLong  = 1024

	// PacketOverhead is sequence + complement + CRC, excluding the header byte
	PacketOverhead = 4

	// MaxFrameSize is a complete long packet including its header byte
	MaxFrameSize = 1 + PacketSizeLong + PacketOverhead
)

// PadByte fills the unused tail of the final data packet (CP/M EOF)
const PadByte = 0x1A

// CRC-16/XMODEM configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0x0000
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateSeq
	stateSeqComplement
	statePayload
	stateCRC1
	stateCRC2
)
