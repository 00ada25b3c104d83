// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timebase

import (
	"sync/atomic"
	"time"
)

// Clock is the time source beneath the PPS layer.
type Clock interface {
	// Microseconds returns the time since the last ResetMicroseconds call.
	Microseconds() uint32
	// MillisecondsUptime returns the time since the clock was created.
	MillisecondsUptime() uint32
	// ResetMicroseconds restarts the microsecond counter at zero.
	ResetMicroseconds()
}

// SystemClock implements Clock on the monotonic host clock.
type SystemClock struct {
	boot      time.Time
	lastReset atomic.Int64 // nanoseconds since boot
}

// NewSystemClock returns a clock whose uptime and microsecond counter
// both start now.
func NewSystemClock() *SystemClock {
	return &SystemClock{boot: time.Now()}
}

func (c *SystemClock) Microseconds() uint32 {
	since := time.Since(c.boot).Nanoseconds() - c.lastReset.Load()
	return uint32(since / int64(time.Microsecond))
}

func (c *SystemClock) MillisecondsUptime() uint32 {
	return uint32(time.Since(c.boot).Milliseconds())
}

func (c *SystemClock) ResetMicroseconds() {
	c.lastReset.Store(time.Since(c.boot).Nanoseconds())
}
