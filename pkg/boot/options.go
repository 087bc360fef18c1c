// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

import log "github.com/sirupsen/logrus"

// Progress is reported after every data packet written to flash
type Progress struct {
	Seq          uint8
	Addr         uint32
	Size         int
	BytesWritten int
	RegionSize   int
}

// ProgressFunc receives transfer progress. It runs on the transfer path
// and should return quickly.
type ProgressFunc func(Progress)

// Option is a functional option for configuring the Bootloader.
type Option func(*Bootloader)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(b *Bootloader) {
		b.cfg = cfg
	}
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(logger log.FieldLogger) Option {
	return func(b *Bootloader) {
		b.log = logger
	}
}

// WithProgress sets a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(b *Bootloader) {
		b.progress = fn
	}
}
