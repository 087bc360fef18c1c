// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ymodem

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/heliboot/internal/logging"
	"github.com/Thermoquad/heliboot/pkg/hal"
)

var (
	// ErrCancelled is returned when the receiver sends CAN
	ErrCancelled = errors.New("transfer cancelled by receiver")

	// ErrTooManyRetries is returned when a packet is rejected more often than allowed
	ErrTooManyRetries = errors.New("too many retries")

	// ErrTimeout is returned by Port implementations when a receive times out
	ErrTimeout = hal.ErrTimeout
)

// Port is the byte transport used by the sender
type Port interface {
	// Transmit blocks until all of p has been sent
	Transmit(p []byte) error
	// Receive blocks until p is full or timeout elapses (ErrTimeout).
	// A timeout <= 0 waits forever.
	Receive(p []byte, timeout time.Duration) error
}

// SendProgress reports how far a transfer has come
type SendProgress struct {
	Seq        uint8
	BytesSent  int
	TotalBytes int
	Retries    int
}

// SendProgressFunc is called after every acknowledged data packet
type SendProgressFunc func(SendProgress)

// SenderConfig holds the sender configuration.
type SenderConfig struct {
	// PacketKind selects 128-byte (KindShortData) or 1024-byte (KindLongData) packets
	PacketKind Kind

	// Retries is the number of resends allowed per packet
	Retries int

	// HandshakeTimeout bounds the wait for the bootloader probe
	HandshakeTimeout time.Duration

	// ResponseTimeout bounds each wait for ACK/NAK. It has to cover the
	// region erase that happens between the handshake and the first 'C'.
	ResponseTimeout time.Duration

	Logger   log.FieldLogger
	Progress SendProgressFunc
}

func defaultSenderConfig() SenderConfig {
	return SenderConfig{
		PacketKind:       KindLongData,
		Retries:          10,
		HandshakeTimeout: 30 * time.Second,
		ResponseTimeout:  10 * time.Second,
	}
}

// SenderOption is a functional option for configuring the Sender.
type SenderOption func(*SenderConfig)

// WithPacketKind selects the data packet size
func WithPacketKind(kind Kind) SenderOption {
	return func(c *SenderConfig) {
		if kind.IsData() {
			c.PacketKind = kind
		}
	}
}

// WithRetries sets the number of resends allowed per packet
func WithRetries(retries int) SenderOption {
	return func(c *SenderConfig) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithHandshakeTimeout sets how long to wait for the bootloader probe
func WithHandshakeTimeout(timeout time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.HandshakeTimeout = timeout
	}
}

// WithResponseTimeout sets how long to wait for each response byte
func WithResponseTimeout(timeout time.Duration) SenderOption {
	return func(c *SenderConfig) {
		c.ResponseTimeout = timeout
	}
}

// WithSenderLogger sets the logger
func WithSenderLogger(logger log.FieldLogger) SenderOption {
	return func(c *SenderConfig) {
		c.Logger = logger
	}
}

// WithSendProgress sets a progress callback
func WithSendProgress(fn SendProgressFunc) SenderOption {
	return func(c *SenderConfig) {
		c.Progress = fn
	}
}

// Sender streams one file to the bootloader
type Sender struct {
	port  Port
	cfg   SenderConfig
	log   log.FieldLogger
	stats *Statistics
}

// NewSender creates a new Sender writing to port
func NewSender(port Port, opts ...SenderOption) *Sender {
	if port == nil {
		panic("port cannot be nil")
	}

	cfg := defaultSenderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Sender{
		port:  port,
		cfg:   cfg,
		log:   logger,
		stats: NewStatistics(),
	}
}

// Statistics returns the statistics of the last transfer
func (s *Sender) Statistics() *Statistics {
	return s.stats
}

// Send performs the complete transfer:
//  1. Wait for the discovery probe and answer ACK
//  2. Wait for 'C', send the header block, wait for ACK and 'C'
//  3. Stream data packets, resending on NAK
//  4. EOT, NAK, EOT, ACK
//
// The context is checked between packets.
func (s *Sender) Send(ctx context.Context, name string, data []byte) error {
	s.stats.Reset()

	if err := s.handshake(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	header, err := NewPacket(KindShortData, 0, HeaderPayload(name, len(data)))
	if err != nil {
		return err
	}
	if err := s.sendPacket(ctx, header); err != nil {
		return fmt.Errorf("header block: %w", err)
	}
	if err := s.await(ctx, CRC16); err != nil {
		return fmt.Errorf("header block: %w", err)
	}
	s.log.WithField("name", name).WithField("size", len(data)).Debug("header acknowledged")

	size := s.cfg.PacketKind.PayloadSize()
	seq := uint8(1)
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}

		packet, err := NewPacket(s.cfg.PacketKind, seq, data[offset:end])
		if err != nil {
			return err
		}
		if err := s.sendPacket(ctx, packet); err != nil {
			return fmt.Errorf("packet seq=%d offset=%d: %w", seq, offset, err)
		}

		s.stats.BytesWritten += uint64(len(packet.Payload()))
		if s.cfg.Progress != nil {
			s.cfg.Progress(SendProgress{
				Seq:        seq,
				BytesSent:  end,
				TotalBytes: len(data),
				Retries:    int(s.stats.NAKs),
			})
		}
		seq++
	}

	if err := s.finish(); err != nil {
		return fmt.Errorf("end of transmission: %w", err)
	}

	s.log.WithField("bytes", len(data)).Info("transfer complete")
	return nil
}

// handshake waits for the probe byte, answers ACK and waits for 'C'.
func (s *Sender) handshake(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("no bootloader probe within %s: %w", s.cfg.HandshakeTimeout, ErrTimeout)
		}

		b, err := s.readByte(remaining)
		if err != nil {
			return err
		}
		if b == Probe {
			s.stats.Probes++
			break
		}
		s.stats.StrayBytes++
	}

	s.log.Debug("bootloader probe received")
	if err := s.port.Transmit([]byte{ACK}); err != nil {
		return err
	}
	return s.await(ctx, CRC16)
}

// await reads until want arrives, skipping probes and stray bytes.
func (s *Sender) await(ctx context.Context, want byte) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.readByte(s.cfg.ResponseTimeout)
		if err != nil {
			return fmt.Errorf("waiting for %s: %w", FormatControl(want), err)
		}
		switch b {
		case want:
			return nil
		case CAN:
			return ErrCancelled
		case Probe:
			s.stats.Probes++
		default:
			s.stats.StrayBytes++
		}
	}
}

// sendPacket transmits packet until it is acknowledged.
func (s *Sender) sendPacket(ctx context.Context, packet *Packet) error {
	frame := packet.Encode()

	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.port.Transmit(frame); err != nil {
			return err
		}
		s.stats.TotalPackets++

		ok, err := s.response()
		if err != nil {
			return err
		}
		if ok {
			s.stats.ValidPackets++
			if packet.IsHeader() {
				s.stats.HeaderPackets++
			}
			return nil
		}

		s.log.WithField("seq", packet.Seq()).WithField("attempt", attempt+1).Warn("packet rejected, resending")
	}

	s.cancel()
	return fmt.Errorf("seq=%d rejected %d times: %w", packet.Seq(), s.cfg.Retries+1, ErrTooManyRetries)
}

// response waits for ACK (true) or NAK/timeout (false).
func (s *Sender) response() (bool, error) {
	b, err := s.reply()
	if err != nil {
		return false, err
	}
	if b == NAK {
		s.stats.NAKs++
	}
	return b == ACK, nil
}

// reply reads until ACK or NAK arrives. A timeout returns 0.
func (s *Sender) reply() (byte, error) {
	for {
		b, err := s.readByte(s.cfg.ResponseTimeout)
		if errors.Is(err, ErrTimeout) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		switch b {
		case ACK, NAK:
			return b, nil
		case CAN:
			return 0, ErrCancelled
		default:
			s.stats.StrayBytes++
		}
	}
}

// finish runs the EOT exchange. The bootloader NAKs the first EOT, which
// is not a retry.
func (s *Sender) finish() error {
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if err := s.port.Transmit([]byte{EOT}); err != nil {
			return err
		}
		b, err := s.reply()
		if err != nil {
			return err
		}
		if b == ACK {
			return nil
		}
	}
	return ErrTooManyRetries
}

// cancel aborts the transfer on the receiver side.
func (s *Sender) cancel() {
	if err := s.port.Transmit([]byte{CAN, CAN}); err != nil {
		s.log.WithError(err).Debug("failed to send cancel")
	}
}

func (s *Sender) readByte(timeout time.Duration) (byte, error) {
	var buf [1]byte
	if err := s.port.Receive(buf[:], timeout); err != nil {
		return 0, err
	}
	return buf[0], nil
}
