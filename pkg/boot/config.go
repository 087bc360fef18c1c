// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import (
	"fmt"
	"time"

	"github.com/Thermoquad/heliboot/pkg/flash"
	"github.com/Thermoquad/heliboot/pkg/ymodem"
)

// Defaults for the reference board: a 16 KiB bootloader followed by a
// 48 KiB application area.
const (
	DefaultAppBase    = 0x08004000
	DefaultAppSize    = 0xC000
	DefaultTickPeriod = time.Second
	DefaultMaxRetries = 3

	// DefaultMaxDesync tolerates one long packet worth of stray bytes,
	// which is what arrives when a packet's header byte is lost.
	DefaultMaxDesync = ymodem.MaxFrameSize
)

// Config is the device configuration for one run. It is immutable while
// a transfer is in progress.
type Config struct {
	// TickPeriod is the discovery probe interval
	TickPeriod time.Duration

	// MaxRetries is the number of silent ticks tolerated during discovery
	MaxRetries uint32

	// Region is the application flash area
	Region flash.Region

	// ReceiveTimeout bounds every blocking read after the handshake.
	// Zero waits forever.
	ReceiveTimeout time.Duration

	// MaxDesync is the number of consecutive stray bytes tolerated while
	// receiving. Zero disables the limit.
	MaxDesync int

	// CancelOnFailure sends CAN CAN when the transfer fails after the
	// handshake, so the sender stops instead of retrying forever
	CancelOnFailure bool
}

// DefaultConfig returns the reference board configuration
func DefaultConfig() Config {
	return Config{
		TickPeriod:      DefaultTickPeriod,
		MaxRetries:      DefaultMaxRetries,
		Region:          flash.Region{Base: DefaultAppBase, Size: DefaultAppSize},
		MaxDesync:       DefaultMaxDesync,
		CancelOnFailure: true,
	}
}

// Validate checks the configuration against the flash page size
func (c Config) Validate(pageSize uint32) error {
	if c.MaxRetries == 0 {
		return fmt.Errorf("max retries must be at least 1")
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive")
	}
	if c.ReceiveTimeout < 0 {
		return fmt.Errorf("receive timeout cannot be negative")
	}
	if c.MaxDesync < 0 {
		return fmt.Errorf("max desync cannot be negative")
	}
	if err := c.Region.Validate(pageSize); err != nil {
		return fmt.Errorf("flash region: %w", err)
	}
	return nil
}
