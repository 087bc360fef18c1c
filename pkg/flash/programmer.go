// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flash erases and programs the application region through the
// flash controller, and provides a simulated controller for host runs.
package flash

import (
	"encoding/binary"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/heliboot/internal/logging"
	"github.com/Thermoquad/heliboot/pkg/hal"
)

// WordSize is the programming granularity in bytes
const WordSize = 4

// Programmer erases and writes flash. It is not safe for concurrent use;
// the controller must only ever see one operation at a time.
type Programmer struct {
	dev hal.Flash
	log log.FieldLogger
}

// NewProgrammer creates a Programmer for dev. A nil logger discards output.
func NewProgrammer(dev hal.Flash, logger log.FieldLogger) *Programmer {
	if dev == nil {
		panic("flash device cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Programmer{dev: dev, log: logger}
}

// PageSize returns the controller's erase page size
func (p *Programmer) PageSize() uint32 {
	return p.dev.PageSize()
}

// Erase erases the whole pages covering [base, base+size).
func (p *Programmer) Erase(base, size uint32) (err error) {
	pageSize := p.dev.PageSize()
	pages := int((uint64(size) + uint64(pageSize) - 1) / uint64(pageSize))

	if err := p.dev.Unlock(); err != nil {
		return &Error{Kind: ErrEraseFailed, Addr: base, Err: err}
	}
	defer func() {
		if lockErr := p.dev.Lock(); lockErr != nil && err == nil {
			err = &Error{Kind: ErrEraseFailed, Addr: base, Err: lockErr}
		}
	}()

	if err := p.dev.ErasePages(base, pages); err != nil {
		p.log.WithError(err).WithField("addr", hexAddr(base)).Error("page erase failed")
		return &Error{Kind: ErrEraseFailed, Addr: base, Err: err}
	}

	p.log.WithField("addr", hexAddr(base)).WithField("pages", pages).Debug("region erased")
	return nil
}

// Write programs data at addr one little-endian word at a time. The
// first failing word aborts the write.
func (p *Programmer) Write(addr uint32, data []byte) (err error) {
	if len(data)%WordSize != 0 {
		return &Error{Kind: ErrUnaligned, Addr: addr}
	}

	if err := p.dev.Unlock(); err != nil {
		return &Error{Kind: ErrProgramFailed, Addr: addr, Err: err}
	}
	defer func() {
		if lockErr := p.dev.Lock(); lockErr != nil && err == nil {
			err = &Error{Kind: ErrProgramFailed, Addr: addr, Err: lockErr}
		}
	}()

	for i := 0; i < len(data); i += WordSize {
		word := binary.LittleEndian.Uint32(data[i:])
		target := addr + uint32(i)
		if err := p.dev.ProgramWord(target, word); err != nil {
			p.log.WithError(err).WithField("addr", hexAddr(target)).Error("word program failed")
			return &Error{Kind: ErrProgramFailed, Addr: target, Err: err}
		}
	}
	return nil
}

// ReadWord reads back one word
func (p *Programmer) ReadWord(addr uint32) (uint32, error) {
	return p.dev.ReadWord(addr)
}

func hexAddr(addr uint32) string {
	return fmt.Sprintf("0x%08X", addr)
}
