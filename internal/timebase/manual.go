// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timebase

import "sync/atomic"

// ManualClock is a Clock that only moves when told to. Simulation and
// tests drive it explicitly.
type ManualClock struct {
	now       atomic.Uint64 // microseconds since creation
	lastReset atomic.Uint64
}

// Advance moves the clock forward by us microseconds.
func (c *ManualClock) Advance(us uint32) {
	c.now.Add(uint64(us))
}

func (c *ManualClock) Microseconds() uint32 {
	return uint32(c.now.Load() - c.lastReset.Load())
}

func (c *ManualClock) MillisecondsUptime() uint32 {
	return uint32(c.now.Load() / 1000)
}

func (c *ManualClock) ResetMicroseconds() {
	c.lastReset.Store(c.now.Load())
}
