// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// session is one transfer attempt
type session struct {
	serial     hal.Serial
	timer      hal.Timer
	programmer *flash.Programmer
	cfg        Config
	log        log.FieldLogger
	progress   ProgressFunc

	state   State
	cursor  uint32
	written int
	lastSeq uint8
	desync  int
	stats   *ymodem.Statistics
	body    [ymodem.PacketSizeLong + ymodem.PacketOverhead]byte
}

func (s *session) run() error {
	s.state = StateDiscover
	s.cursor = s.cfg.Region.Base

	for {
		var (
			next State
			err  error
		)
		switch s.state {
		case StateDiscover:
			d := &discovery{
				serial:   s.serial,
				timer:    s.timer,
				governor: NewGovernor(s.cfg.MaxRetries),
				stats:    s.stats,
				log:      s.log,
			}
			next, err = d.run()
		case StateErase:
			next, err = s.erase()
		case StateReceive:
			next, err = s.receive()
		default:
			return fmt.Errorf("invalid state %s", s.state)
		}

		s.log.WithFields(log.Fields{
			"from": s.state,
			"to":   next,
		}).Debug("state transition")
		s.state = next

		if next.Terminal() {
			s.finish(err)
			return err
		}
	}
}

// erase clears the whole region before anything is written, then asks
// the sender to start streaming
func (s *session) erase() (State, error) {
	if err := s.programmer.Erase(s.cfg.Region.Base, s.cfg.Region.Size); err != nil {
		return StateFatalFlash, err
	}
	if err := s.transmit(ymodem.CRC16); err != nil {
		return StateLinkError, err
	}
	return StateReceive, nil
}

func (s *session) receive() (State, error) {
	for {
		header, err := s.readByte()
		if err != nil {
			return s.readFailure(err)
		}

		kind, ok := ymodem.KindOf(header)
		if !ok {
			s.desync++
			s.stats.StrayBytes++
			if s.cfg.MaxDesync > 0 && s.desync > s.cfg.MaxDesync {
				return StateDesync, fmt.Errorf("%w: %d consecutive stray bytes", ErrDesync, s.desync)
			}
			continue
		}
		s.desync = 0

		switch kind {
		case ymodem.KindShortData, ymodem.KindLongData:
			if next, err := s.packet(kind); next != StateReceive {
				return next, err
			}

		case ymodem.KindEndOfTransmission:
			return s.endOfTransmission()

		case ymodem.KindCancel:
			s.log.Info("sender cancelled transfer")
			return StateCancelled, ErrCancelled
		}
	}
}

// packet reads and handles one data packet whose framing byte has
// already been consumed
func (s *session) packet(kind ymodem.Kind) (State, error) {
	body := s.body[:kind.PayloadSize()+ymodem.PacketOverhead]
	if err := s.serial.Receive(body, s.cfg.ReceiveTimeout); err != nil {
		return s.readFailure(err)
	}

	packet, err := ymodem.ParseBody(kind, body)
	if err != nil {
		return StateLinkError, &LinkError{Op: "decode", Err: err}
	}

	verr := packet.Validate()
	s.stats.Update(packet, verr)
	if verr != nil {
		s.log.WithError(verr).WithField("seq", packet.Seq()).Debug("rejecting packet")
		s.stats.NAKs++
		if err := s.transmit(ymodem.NAK); err != nil {
			return StateLinkError, err
		}
		return StateReceive, nil
	}

	if s.isHeader(packet.Seq()) {
		s.log.Debug("header block acknowledged")
		if err := s.transmit(ymodem.ACK, ymodem.CRC16); err != nil {
			return StateLinkError, err
		}
		return StateReceive, nil
	}

	payload := packet.Payload()
	if !s.cfg.Region.Contains(s.cursor, len(payload)) {
		return StateFatalFlash, fmt.Errorf("%w: packet %d at 0x%08X, region %s",
			ErrImageTooLarge, packet.Seq(), s.cursor, s.cfg.Region)
	}
	if err := s.programmer.Write(s.cursor, payload); err != nil {
		return StateFatalFlash, err
	}

	addr := s.cursor
	s.cursor += uint32(len(payload))
	s.written += len(payload)
	s.lastSeq = packet.Seq()
	s.stats.BytesWritten += uint64(len(payload))

	if s.progress != nil {
		s.progress(Progress{
			Seq:          packet.Seq(),
			Addr:         addr,
			Size:         len(payload),
			BytesWritten: s.written,
			RegionSize:   int(s.cfg.Region.Size),
		})
	}

	if err := s.transmit(ymodem.ACK); err != nil {
		return StateLinkError, err
	}
	return StateReceive, nil
}

// isHeader reports whether seq marks the header block. Sequence numbers
// wrap, so 0 is data only when it directly follows a written packet 255.
func (s *session) isHeader(seq uint8) bool {
	if seq != 0 {
		return false
	}
	return s.written == 0 || s.lastSeq != 0xFF
}

// endOfTransmission runs the EOT exchange: NAK the first EOT, take the
// sender's repeat and acknowledge it. Whatever byte arrives second is
// accepted.
func (s *session) endOfTransmission() (State, error) {
	if err := s.transmit(ymodem.NAK); err != nil {
		return StateLinkError, err
	}
	if _, err := s.readByte(); err != nil {
		return s.readFailure(err)
	}
	if err := s.transmit(ymodem.ACK); err != nil {
		return StateLinkError, err
	}
	s.log.WithField("bytes", s.written).Info("transfer complete")
	return StateComplete, nil
}

// finish tells the sender to stop when the attempt failed after it had
// started streaming
func (s *session) finish(err error) {
	switch s.state {
	case StateFatalFlash, StateDesync, StateStalled:
	default:
		return
	}
	s.log.WithError(err).WithField("state", s.state).Error("transfer failed")
	if !s.cfg.CancelOnFailure {
		return
	}
	if terr := s.transmit(ymodem.CAN, ymodem.CAN); terr != nil {
		s.log.WithError(terr).Warn("failed to cancel sender")
	}
}

func (s *session) readByte() (byte, error) {
	var b [1]byte
	if err := s.serial.Receive(b[:], s.cfg.ReceiveTimeout); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *session) readFailure(err error) (State, error) {
	if errors.Is(err, hal.ErrTimeout) {
		return StateStalled, fmt.Errorf("%w: no data for %s", ErrStalled, s.cfg.ReceiveTimeout)
	}
	return StateLinkError, &LinkError{Op: "receive", Err: err}
}

func (s *session) transmit(b ...byte) error {
	if err := s.serial.Transmit(b); err != nil {
		return &LinkError{Op: "transmit", Err: err}
	}
	return nil
}

func (s *session) report() *Report {
	s.stats.CalculateRates()
	return &Report{
		State:       s.state,
		WriteCursor: s.cursor,
		Stats:       s.stats,
	}
}
