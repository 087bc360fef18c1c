// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// discovery waits for a sender. Tick and receive events arrive on two
// channels and are handled by a single goroutine, so the governor needs
// no locking.
type discovery struct {
	serial   hal.Serial
	timer    hal.Timer
	governor *Governor
	stats    *ymodem.Statistics
	log      log.FieldLogger
}

// run probes once per tick until the sender answers. The tick and the
// receive interrupt are both disabled again before it returns.
func (d *discovery) run() (State, error) {
	rx, err := d.serial.ReceiveIT()
	if err != nil {
		return StateLinkError, &LinkError{Op: "arm receive", Err: err}
	}
	defer d.serial.AbortReceiveIT()

	ticks := d.timer.Start()
	defer d.timer.Stop()

	for {
		select {
		case <-ticks:
			d.governor.Tick()
			if d.governor.Exceeded() {
				d.log.WithField("ticks", d.governor.TicksSinceActivity()).Warn("no sender detected")
				return StateTimeout, ErrNoSender
			}
			if err := d.serial.Transmit([]byte{ymodem.Probe}); err != nil {
				return StateLinkError, &LinkError{Op: "transmit probe", Err: err}
			}
			d.stats.Probes++
			d.log.WithField("tick", d.governor.TicksSinceActivity()).Debug("probe sent")

		case b, ok := <-rx:
			if !ok {
				d.log.Warn("link lost during discovery")
				return StateLinkError, &LinkError{Op: "receive", Err: hal.ErrClosed}
			}
			d.governor.Reset()
			switch b {
			case ymodem.ACK:
				d.log.Info("sender detected")
				return StateErase, nil
			case ymodem.CAN:
				d.log.Info("sender cancelled during discovery")
				return StateCancelled, ErrCancelled
			default:
				d.stats.StrayBytes++
				d.log.WithField("byte", ymodem.FormatControl(b)).Debug("ignoring byte during discovery")
			}
		}
	}
}
