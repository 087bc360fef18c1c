// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flash

import (
	"errors"
	"fmt"
)

// Programmer failures
var (
	ErrEraseFailed   = errors.New("erase failed")
	ErrProgramFailed = errors.New("program failed")
	ErrUnaligned     = errors.New("length is not a multiple of the word size")
)

// Controller failures reported by Memory
var (
	ErrLocked     = errors.New("flash controller locked")
	ErrNotErased  = errors.New("target word not erased")
	ErrOutOfRange = errors.New("address outside flash")
	ErrFault      = errors.New("injected fault")
)

// Error is a failed flash operation. errors.Is matches both Kind
// (ErrEraseFailed, ErrProgramFailed, ErrUnaligned) and the controller error.
type Error struct {
	Kind error
	Addr uint32
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("flash: %v at 0x%08X", e.Kind, e.Addr)
	}
	return fmt.Sprintf("flash: %v at 0x%08X: %v", e.Kind, e.Addr, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
