// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal defines the hardware abstraction the bootloader core runs on.
//
// Peripheral initialisation, clocks and interrupt vectors live below this
// boundary. The core only sees a serial port, a periodic timer, the flash
// controller and the CPU's two irreversible exits: jumping into the
// application or halting.
package hal

import (
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Serial.Receive when the timeout elapses
	ErrTimeout = errors.New("receive timeout")

	// ErrBusy is returned by a blocking receive while an interrupt receive is armed
	ErrBusy = errors.New("interrupt receive armed")

	// ErrClosed is returned after the peripheral has been deinitialised
	ErrClosed = errors.New("peripheral deinitialised")
)

// Serial is the UART used for the transfer.
type Serial interface {
	// Transmit blocks until all of p has been sent
	Transmit(p []byte) error

	// Receive blocks until p is full or timeout elapses (ErrTimeout).
	// A timeout <= 0 waits forever.
	Receive(p []byte, timeout time.Duration) error

	// ReceiveIT arms interrupt-driven reception. Received bytes are
	// delivered on the returned channel until AbortReceiveIT is called.
	// The channel is closed if the link goes down.
	ReceiveIT() (<-chan byte, error)

	// AbortReceiveIT disarms interrupt-driven reception
	AbortReceiveIT() error

	// DeInit releases the peripheral before the application starts
	DeInit() error
}

// Timer delivers the periodic tick that paces discovery.
type Timer interface {
	// Start enables the periodic tick interrupt
	Start() <-chan time.Time

	// Stop disables the tick interrupt
	Stop()
}

// Flash is the flash controller.
type Flash interface {
	Unlock() error
	Lock() error

	// ErasePages erases count pages starting at the page-aligned addr
	ErasePages(addr uint32, count int) error

	// ProgramWord writes one 32-bit word at the word-aligned addr
	ProgramWord(addr uint32, word uint32) error

	// ReadWord reads the 32-bit word at addr
	ReadWord(addr uint32) (uint32, error)

	// PageSize returns the erase granularity in bytes
	PageSize() uint32
}

// CPU exposes the two ways the bootloader gives up control.
// Neither method returns.
type CPU interface {
	// Jump transfers execution to entry
	Jump(entry uint32)

	// Halt parks the processor after a failed update
	Halt(reason error)
}
