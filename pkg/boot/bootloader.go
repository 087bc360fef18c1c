// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/heliboot/internal/logging"
	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/hal"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// Device bundles the peripherals the bootloader drives
type Device struct {
	Serial hal.Serial
	Timer  hal.Timer
	Flash  hal.Flash
	CPU    hal.CPU
}

// Bootloader receives one image and starts it
type Bootloader struct {
	dev        Device
	cfg        Config
	log        log.FieldLogger
	progress   ProgressFunc
	programmer *flash.Programmer
}

// New creates a bootloader for dev. The configuration is validated
// against the flash page size. Without a Timer the discovery tick comes
// from a ClockTimer running at Config.TickPeriod.
func New(dev Device, opts ...Option) (*Bootloader, error) {
	if dev.Serial == nil || dev.Flash == nil {
		return nil, errors.New("serial and flash are required")
	}

	b := &Bootloader{
		dev: dev,
		cfg: DefaultConfig(),
		log: logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.cfg.Validate(dev.Flash.PageSize()); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if b.dev.Timer == nil {
		b.dev.Timer = hal.NewClockTimer(b.cfg.TickPeriod)
	}
	b.programmer = flash.NewProgrammer(dev.Flash, b.log)
	return b, nil
}

// Config returns the active configuration
func (b *Bootloader) Config() Config {
	return b.cfg
}

// Run performs one transfer attempt and reports how it ended. The error
// is nil only for StateComplete.
func (b *Bootloader) Run() (*Report, error) {
	s := &session{
		serial:     b.dev.Serial,
		timer:      b.dev.Timer,
		programmer: b.programmer,
		cfg:        b.cfg,
		log:        b.log,
		progress:   b.progress,
		stats:      ymodem.NewStatistics(),
	}

	b.log.WithFields(log.Fields{
		"region":      b.cfg.Region,
		"max_retries": b.cfg.MaxRetries,
	}).Info("waiting for sender")

	err := s.run()
	return s.report(), err
}

// Boot runs the transfer and hands control to the new image. On failure
// the CPU is halted. Boot does not return.
func (b *Bootloader) Boot() {
	if b.dev.CPU == nil {
		panic("boot: no CPU")
	}

	report, err := b.Run()
	if err != nil {
		b.log.WithError(err).WithField("state", report.State).Error("update failed")
		b.halt(err)
	}

	if err := b.dev.Serial.DeInit(); err != nil {
		b.log.WithError(err).Warn("serial deinit failed")
	}

	b.log.WithField("base", fmt.Sprintf("0x%08X", b.cfg.Region.Base)).Info("starting application")
	if err := Handoff(b.programmer, b.cfg.Region.Base, b.dev.CPU); err != nil {
		b.halt(err)
	}
}

func (b *Bootloader) halt(reason error) {
	b.dev.CPU.Halt(reason)
	panic(fmt.Sprintf("boot: halt returned: %v", reason))
}
