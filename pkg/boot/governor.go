// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package boot

// Governor counts discovery ticks without sender activity
type Governor struct {
	ticks uint32
	max   uint32
}

// NewGovernor creates a governor that is exceeded after more than max ticks
func NewGovernor(max uint32) *Governor {
	return &Governor{max: max}
}

// Tick records one timer period without activity
func (g *Governor) Tick() {
	g.ticks++
}

// Reset is called whenever a byte arrives
func (g *Governor) Reset() {
	g.ticks = 0
}

// TicksSinceActivity returns the ticks counted since the last reset
func (g *Governor) TicksSinceActivity() uint32 {
	return g.ticks
}

// Exceeded reports whether the retry bound has been passed
func (g *Governor) Exceeded() bool {
	return g.ticks > g.max
}
