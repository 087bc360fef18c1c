// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import "time"

// ClockTimer implements Timer with a wall-clock ticker
type ClockTimer struct {
	period time.Duration
	ticker *time.Ticker
}

// NewClockTimer creates a timer ticking every period
func NewClockTimer(period time.Duration) *ClockTimer {
	return &ClockTimer{period: period}
}

// Period returns the tick interval
func (c *ClockTimer) Period() time.Duration {
	return c.period
}

// Start starts (or restarts) the ticker
func (c *ClockTimer) Start() <-chan time.Time {
	c.Stop()
	c.ticker = time.NewTicker(c.period)
	return c.ticker.C
}

// Stop stops the ticker
func (c *ClockTimer) Stop() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}
