// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != 0x0000 {
		t.Errorf("CRC of empty data should be 0x0000, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x31C3, // CRC-16/XMODEM check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0x0000,
		},
		{
			name:     "single 'A'",
			data:     []byte("A"),
			expected: 0x58E5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	for _, size := range []int{1, PacketSizeShort, PacketSizeLong} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 31)
		}
		crc1 := CalculateCRC(data)
		crc2 := CalculateCRC(append([]byte(nil), data...))
		if crc1 != crc2 {
			t.Errorf("size %d: CRC should be deterministic: 0x%04X != 0x%04X", size, crc1, crc2)
		}
	}
}

func TestCalculateCRC_OrderSensitive(t *testing.T) {
	for _, size := range []int{PacketSizeShort, PacketSizeLong} {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}
		original := CalculateCRC(data)

		data[10], data[size-10] = data[size-10], data[10]
		if CalculateCRC(data) == original {
			t.Errorf("size %d: swapping two bytes should change the CRC", size)
		}
	}
}

// ============================================================
// Packet Tests
// ============================================================

func TestNewPacket_PadsPayload(t *testing.T) {
	p, err := NewPacket(KindShortData, 3, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}
	if len(p.Payload()) != PacketSizeShort {
		t.Fatalf("payload length = %d, want %d", len(p.Payload()), PacketSizeShort)
	}
	if p.Payload()[2] != PadByte || p.Payload()[PacketSizeShort-1] != PadByte {
		t.Error("payload should be padded with PadByte")
	}
	if p.SeqComplement() != 0xFC {
		t.Errorf("complement = 0x%02X, want 0xFC", p.SeqComplement())
	}
	if err := p.Validate(); err != nil {
		t.Errorf("new packet should validate: %v", err)
	}
}

func TestNewPacket_TooLarge(t *testing.T) {
	if _, err := NewPacket(KindShortData, 1, make([]byte, PacketSizeShort+1)); err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestPacket_EncodeLayout(t *testing.T) {
	p, err := NewPacket(KindLongData, 7, []byte("firmware"))
	if err != nil {
		t.Fatalf("NewPacket failed: %v", err)
	}
	frame := p.Encode()

	if len(frame) != 1+PacketSizeLong+PacketOverhead {
		t.Fatalf("frame length = %d", len(frame))
	}
	if frame[0] != STX || frame[1] != 7 || frame[2] != 0xF8 {
		t.Errorf("bad frame prefix: % X", frame[:3])
	}
	crc := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])
	if crc != CalculateCRC(frame[3:3+PacketSizeLong]) {
		t.Errorf("CRC should be big-endian over the payload")
	}
}

func TestPacket_SequenceComplement(t *testing.T) {
	payload := make([]byte, PacketSizeShort)
	body := make([]byte, PacketSizeShort+PacketOverhead)
	copy(body[2:], payload)
	crc := CalculateCRC(payload)
	body[len(body)-2] = byte(crc >> 8)
	body[len(body)-1] = byte(crc)

	for seq := 0; seq < 256; seq++ {
		for comp := 0; comp < 256; comp++ {
			body[0] = byte(seq)
			body[1] = byte(comp)
			p, err := ParseBody(KindShortData, body)
			if err != nil {
				t.Fatalf("ParseBody failed: %v", err)
			}
			err = p.Validate()
			valid := seq+comp == 255
			if valid && err != nil {
				t.Fatalf("seq=%d comp=%d should be valid: %v", seq, comp, err)
			}
			if !valid && !errors.Is(err, ErrSequenceMismatch) {
				t.Fatalf("seq=%d comp=%d should fail with ErrSequenceMismatch, got %v", seq, comp, err)
			}
		}
	}
}

// Every single bit flip in the payload or the checksum must be caught
func TestPacket_SingleBitFlips(t *testing.T) {
	for _, kind := range []Kind{KindShortData, KindLongData} {
		payload := make([]byte, kind.PayloadSize())
		for i := range payload {
			payload[i] = byte(i*13 + 5)
		}
		p, err := NewPacket(kind, 1, payload)
		if err != nil {
			t.Fatalf("NewPacket failed: %v", err)
		}
		frame := p.Encode()

		for i := 3; i < len(frame); i++ {
			for bit := 0; bit < 8; bit++ {
				corrupt := append([]byte(nil), frame...)
				corrupt[i] ^= 1 << bit
				parsed, err := ParseBody(kind, corrupt[1:])
				if err != nil {
					t.Fatalf("ParseBody failed: %v", err)
				}
				if !errors.Is(parsed.Validate(), ErrCRCMismatch) {
					t.Fatalf("%s: flip of byte %d bit %d not detected", kind, i, bit)
				}
			}
		}
	}
}

func TestParseBody_WrongLength(t *testing.T) {
	if _, err := ParseBody(KindLongData, make([]byte, PacketSizeShort+PacketOverhead)); err == nil {
		t.Error("expected error for short body")
	}
	if _, err := ParseBody(KindEndOfTransmission, nil); err == nil {
		t.Error("expected error for EOT body")
	}
}

func TestKindOf(t *testing.T) {
	for _, b := range []byte{SOH, STX, EOT, CAN} {
		kind, ok := KindOf(b)
		if !ok || kind.Header() != b {
			t.Errorf("KindOf(0x%02X) = %v, %v", b, kind, ok)
		}
	}
	for _, b := range []byte{0x00, ACK, NAK, CRC16, Probe, 0xFF} {
		if _, ok := KindOf(b); ok {
			t.Errorf("0x%02X should not be a framing byte", b)
		}
	}
}

// ============================================================
// Header Block Tests
// ============================================================

func TestHeaderRoundTrip(t *testing.T) {
	name, size, err := ParseHeader(HeaderPayload("helios.bin", 49152))
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if name != "helios.bin" || size != 49152 {
		t.Errorf("got %q %d", name, size)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantName string
		wantSize int
		wantErr  bool
	}{
		{"with mtime", []byte("a.bin\x001024 13774146440\x00"), "a.bin", 1024, false},
		{"padded", append([]byte("b.bin\x0064\x00"), bytes.Repeat([]byte{0}, 100)...), "b.bin", 64, false},
		{"end of batch", make([]byte, PacketSizeShort), "", 0, false},
		{"no size", []byte("c.bin\x00\x00"), "c.bin", 0, false},
		{"no terminator", []byte("c.bin"), "", 0, true},
		{"bad size", []byte("d.bin\x00abc\x00"), "d.bin", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, size, err := ParseHeader(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName || size != tt.wantSize {
				t.Errorf("got %q %d, want %q %d", name, size, tt.wantName, tt.wantSize)
			}
		})
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func decodeAll(d *Decoder, data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

func TestDecoder_Stream(t *testing.T) {
	header, _ := NewPacket(KindShortData, 0, HeaderPayload("x.bin", 10))
	data, _ := NewPacket(KindLongData, 1, []byte("0123456789"))

	var stream []byte
	stream = append(stream, header.Encode()...)
	stream = append(stream, data.Encode()...)
	stream = append(stream, EOT, EOT)

	d := NewDecoder()
	packets, errs := decodeAll(d, stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 4 {
		t.Fatalf("got %d packets, want 4", len(packets))
	}
	if !packets[0].IsHeader() {
		t.Error("first packet should be the header block")
	}
	if packets[1].Seq() != 1 || !bytes.Equal(packets[1].Payload()[:10], []byte("0123456789")) {
		t.Error("data packet mismatch")
	}
	if packets[2].Kind() != KindEndOfTransmission || packets[3].Kind() != KindEndOfTransmission {
		t.Error("expected two EOT packets")
	}
	if !d.Idle() {
		t.Error("decoder should be idle after a complete stream")
	}
}

func TestDecoder_StrayBytes(t *testing.T) {
	d := NewDecoder()
	_, errs := decodeAll(d, []byte{ACK, Probe, 0x00})
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3", len(errs))
	}
	for _, err := range errs {
		if !errors.Is(err, ErrUnexpectedByte) {
			t.Errorf("expected ErrUnexpectedByte, got %v", err)
		}
	}
}

func TestDecoder_CorruptPacketThenRecover(t *testing.T) {
	good, _ := NewPacket(KindShortData, 4, []byte("abc"))
	bad := good.Encode()
	bad[len(bad)-1] ^= 0xFF

	d := NewDecoder()
	packets, errs := decodeAll(d, append(bad, good.Encode()...))
	if len(errs) != 1 || !errors.Is(errs[0], ErrCRCMismatch) {
		t.Fatalf("expected one CRC error, got %v", errs)
	}
	if len(packets) != 1 || packets[0].Seq() != 4 {
		t.Fatalf("expected the retransmission to decode, got %d packets", len(packets))
	}
}

func TestDecoder_RawBytes(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(SOH)
	d.DecodeByte(0x01)
	if !bytes.Equal(d.GetRawBytes(), []byte{SOH, 0x01}) {
		t.Errorf("raw bytes = % X", d.GetRawBytes())
	}
	d.Reset()
	if len(d.GetRawBytes()) != 0 || !d.Idle() {
		t.Error("reset should clear the decoder")
	}
}

// ============================================================
// Formatter / Statistics Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	p, _ := NewPacket(KindShortData, 0, HeaderPayload("boot.bin", 512))
	out := FormatPacket(p)
	if !strings.Contains(out, "boot.bin") {
		t.Errorf("header formatting should include the file name: %s", out)
	}
	if FormatControl(Probe) != "PROBE ('R')" {
		t.Errorf("FormatControl(Probe) = %s", FormatControl(Probe))
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	header, _ := NewPacket(KindShortData, 0, nil)
	data, _ := NewPacket(KindShortData, 1, nil)

	s.Update(header, nil)
	s.Update(data, nil)
	s.Update(data, ErrCRCMismatch)
	s.Update(data, ErrSequenceMismatch)
	s.Update(nil, errors.New("other"))

	if s.TotalPackets != 5 || s.ValidPackets != 2 || s.HeaderPackets != 1 {
		t.Errorf("counters: %+v", s)
	}
	if s.Errors() != 3 {
		t.Errorf("Errors() = %d, want 3", s.Errors())
	}

	s.Reset()
	if s.TotalPackets != 0 || s.Errors() != 0 {
		t.Error("reset should clear counters")
	}
}
