// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// State is a phase of the transfer state machine
type State int

const (
	StateDiscover State = iota
	StateErase
	StateReceive

	// Terminal states
	StateComplete
	StateCancelled
	StateTimeout
	StateFatalFlash
	StateDesync
	StateStalled
	StateLinkError
)

func (s State) String() string {
	switch s {
	case StateDiscover:
		return "DISCOVER"
	case StateErase:
		return "ERASE"
	case StateReceive:
		return "RECEIVE"
	case StateComplete:
		return "COMPLETE"
	case StateCancelled:
		return "CANCELLED"
	case StateTimeout:
		return "TIMEOUT"
	case StateFatalFlash:
		return "FATAL_FLASH"
	case StateDesync:
		return "DESYNC"
	case StateStalled:
		return "STALLED"
	case StateLinkError:
		return "LINK_ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the state ends the attempt
func (s State) Terminal() bool {
	return s >= StateComplete
}

// Code returns the result code of a terminal state, or -1
func (s State) Code() int {
	if !s.Terminal() {
		return -1
	}
	return int(s - StateComplete)
}

var (
	// ErrNoSender is returned when discovery runs out of retries
	ErrNoSender = errors.New("no sender detected")

	// ErrCancelled is returned when the sender transmits CAN
	ErrCancelled = errors.New("sender cancelled")

	// ErrDesync is returned after too many consecutive stray bytes
	ErrDesync = errors.New("protocol desync")

	// ErrStalled is returned when the receive watchdog expires
	ErrStalled = errors.New("sender stalled")

	// ErrImageTooLarge is returned when a packet would be written past the region
	ErrImageTooLarge = errors.New("image exceeds flash region")
)

// LinkError is a serial failure. On hardware with infinite timeouts this
// cannot happen; host transports can drop.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

// Report describes how a transfer attempt ended
type Report struct {
	State       State
	WriteCursor uint32
	Stats       *ymodem.Statistics
}
