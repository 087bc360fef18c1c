// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging holds the logrus setup shared by the CLI and the libraries
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Discard returns a logger that drops everything. Library types use it
// when no logger is injected.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	l.SetLevel(log.PanicLevel)
	return l
}

// New creates a logger writing to stderr with the given level and format.
// Format is "text" or "json".
func New(level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := log.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)

	switch format {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format: %s (use text or json)", format)
	}

	return l, nil
}
