// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrSequenceMismatch is returned when sequence + complement != 255
	ErrSequenceMismatch = errors.New("sequence complement mismatch")

	// ErrCRCMismatch is returned when the payload CRC does not match the trailer
	ErrCRCMismatch = errors.New("CRC mismatch")
)

// Kind is the packet type selected by the leading framing byte
type Kind uint8

const (
	KindShortData Kind = iota + 1
	KindLongData
	KindEndOfTransmission
	KindCancel
)

// KindOf maps a framing byte to its packet kind
func KindOf(header byte) (Kind, bool) {
	switch header {
	case SOH:
		return KindShortData, true
	case STX:
		return KindLongData, true
	case EOT:
		return KindEndOfTransmission, true
	case CAN:
		return KindCancel, true
	}
	return 0, false
}

// Header returns the framing byte for the kind
func (k Kind) Header() byte {
	switch k {
	case KindShortData:
		return SOH
	case KindLongData:
		return STX
	case KindEndOfTransmission:
		return EOT
	case KindCancel:
		return CAN
	}
	return 0
}

// PayloadSize returns the fixed payload size, or 0 for kinds without payload
func (k Kind) PayloadSize() int {
	switch k {
	case KindShortData:
		return PacketSizeShort
	case KindLongData:
		return PacketSizeLong
	}
	return 0
}

// IsData reports whether the kind carries a payload
func (k Kind) IsData() bool {
	return k == KindShortData || k == KindLongData
}

func (k Kind) String() string {
	switch k {
	case KindShortData:
		return "SOH"
	case KindLongData:
		return "STX"
	case KindEndOfTransmission:
		return "EOT"
	case KindCancel:
		return "CAN"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Packet is one transfer unit as received on the wire
type Packet struct {
	kind          Kind
	seq           uint8
	seqComplement uint8
	payload       []byte
	crc           uint16
	timestamp     time.Time
}

// NewPacket builds a data packet for seq. The payload is padded with PadByte
// up to the kind's payload size; the complement and CRC are computed.
func NewPacket(kind Kind, seq uint8, payload []byte) (*Packet, error) {
	if !kind.IsData() {
		return &Packet{kind: kind, timestamp: time.Now()}, nil
	}
	size := kind.PayloadSize()
	if len(payload) > size {
		return nil, fmt.Errorf("payload too large for %s: %d bytes (max %d)", kind, len(payload), size)
	}

	buf := make([]byte, size)
	n := copy(buf, payload)
	for i := n; i < size; i++ {
		buf[i] = PadByte
	}

	return &Packet{
		kind:          kind,
		seq:           seq,
		seqComplement: 0xFF - seq,
		payload:       buf,
		crc:           CalculateCRC(buf),
		timestamp:     time.Now(),
	}, nil
}

// ParseBody parses everything after the framing byte of a data packet:
// [seq][~seq][payload][crc hi][crc lo]. The packet is not validated.
func ParseBody(kind Kind, body []byte) (*Packet, error) {
	if !kind.IsData() {
		return nil, fmt.Errorf("%s has no body", kind)
	}
	size := kind.PayloadSize()
	if len(body) != size+PacketOverhead {
		return nil, fmt.Errorf("invalid body length for %s: %d (expected %d)", kind, len(body), size+PacketOverhead)
	}

	payload := make([]byte, size)
	copy(payload, body[2:2+size])

	return &Packet{
		kind:          kind,
		seq:           body[0],
		seqComplement: body[1],
		payload:       payload,
		crc:           uint16(body[size+2])<<8 | uint16(body[size+3]),
		timestamp:     time.Now(),
	}, nil
}

// Validate checks the sequence complement and the payload CRC
func (p *Packet) Validate() error {
	if !p.kind.IsData() {
		return nil
	}
	if p.seq+p.seqComplement != 0xFF {
		return fmt.Errorf("%w: seq=0x%02X complement=0x%02X", ErrSequenceMismatch, p.seq, p.seqComplement)
	}
	if calculated := CalculateCRC(p.payload); calculated != p.crc {
		return fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, p.crc)
	}
	return nil
}

// Encode returns the packet in wire format, including the framing byte
func (p *Packet) Encode() []byte {
	if !p.kind.IsData() {
		return []byte{p.kind.Header()}
	}
	frame := make([]byte, 0, 1+len(p.payload)+PacketOverhead)
	frame = append(frame, p.kind.Header(), p.seq, p.seqComplement)
	frame = append(frame, p.payload...)
	return append(frame, byte(p.crc>>8), byte(p.crc&0xFF))
}

// Kind returns the packet kind
func (p *Packet) Kind() Kind {
	return p.kind
}

// Seq returns the sequence number as sent
func (p *Packet) Seq() uint8 {
	return p.seq
}

// SeqComplement returns the transmitted sequence complement
func (p *Packet) SeqComplement() uint8 {
	return p.seqComplement
}

// Payload returns the payload bytes
func (p *Packet) Payload() []byte {
	return p.payload
}

// CRC returns the transmitted CRC
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns the packet's decode timestamp
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsHeader reports whether this is the sequence 0 header block
func (p *Packet) IsHeader() bool {
	return p.kind.IsData() && p.seq == 0
}

// HeaderPayload builds the sequence 0 block contents: name NUL size NUL.
// The bootloader only acknowledges it, but standard senders always send one.
func HeaderPayload(name string, size int) []byte {
	var b bytes.Buffer
	b.WriteString(name)
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(size))
	b.WriteByte(0)
	return b.Bytes()
}

// ParseHeader extracts the file name and size from a header block payload.
// An empty name marks the end-of-batch block.
func ParseHeader(payload []byte) (name string, size int, err error) {
	nameEnd := bytes.IndexByte(payload, 0)
	if nameEnd < 0 {
		return "", 0, fmt.Errorf("header block: missing name terminator")
	}
	name = string(payload[:nameEnd])
	if name == "" {
		return "", 0, nil
	}

	rest := payload[nameEnd+1:]
	end := bytes.IndexAny(rest, "\x00 ")
	if end < 0 {
		end = len(rest)
	}
	if end == 0 {
		return name, 0, nil
	}
	size, err = strconv.Atoi(string(rest[:end]))
	if err != nil {
		return name, 0, fmt.Errorf("header block: invalid size: %w", err)
	}
	return name, size, nil
}
