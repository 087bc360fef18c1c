// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnexpectedByte is returned for bytes outside any packet frame
var ErrUnexpectedByte = errors.New("unexpected byte")

// Decoder implements a byte-wise YMODEM packet decoder state machine.
// It is used for passive monitoring; the bootloader itself reads whole
// packet bodies with blocking reads.
type Decoder struct {
	state       int
	kind        Kind
	buffer      []byte
	bufferIndex int
	rawBuffer   []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a new packet decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, PacketSizeLong+PacketOverhead),
		rawBuffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.kind = 0
	d.bufferIndex = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// Idle reports whether the decoder is between packets
func (d *Decoder) Idle() bool {
	return d.state == stateIdle
}

// GetRawBytes returns the accumulated raw bytes of the current packet
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the packet is incomplete.
// Returns an error for stray bytes and for packets failing validation.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	if d.state == stateIdle {
		d.rawBuffer = d.rawBuffer[:0]
	}
	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case stateIdle:
		kind, ok := KindOf(b)
		if !ok {
			d.Reset()
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnexpectedByte, b)
		}
		if !kind.IsData() {
			d.Reset()
			return &Packet{kind: kind, timestamp: time.Now()}, nil
		}
		d.kind = kind
		d.bufferIndex = 0
		d.state = stateSeq
		return nil, nil

	case stateSeq:
		d.push(b)
		d.state = stateSeqComplement
		return nil, nil

	case stateSeqComplement:
		d.push(b)
		d.state = statePayload
		return nil, nil

	case statePayload:
		d.push(b)
		if d.bufferIndex >= 2+d.kind.PayloadSize() {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.push(b)
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.push(b)
		packet, err := ParseBody(d.kind, d.buffer[:d.bufferIndex])
		d.Reset()
		if err != nil {
			return nil, err
		}
		if err := packet.Validate(); err != nil {
			return nil, fmt.Errorf("packet seq=%d: %w", packet.seq, err)
		}
		return packet, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}
