// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package timebase keeps the microsecond counter and the PPS-seconds epoch
// used to timestamp every captured entry.
package timebase

import (
	"sync/atomic"

	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

const (
	// NominalPeriodUs is the expected spacing of qualifying PPS ticks.
	NominalPeriodUs = 1_000_000
	// ToleranceUs is the 1% band a measured period must stay within.
	ToleranceUs = NominalPeriodUs / 100
	// WatchdogUs is how long the epoch may go without a qualifying tick.
	WatchdogUs = NominalPeriodUs * 11 / 10
)

// SubTickRates maps the PPS_CONFIG rate field to edges per nominal period.
var SubTickRates = [4]uint32{1, 10, 100, 1000}

// RateFromConfig decodes the two-bit sub-tick rate field.
func RateFromConfig(cfg uint16) uint32 {
	return SubTickRates[cfg&0x3]
}

// PPS counts external sync edges into a seconds epoch and watches the
// period for lock loss. Tick runs in the edge interrupt context, Poll in
// the dispatcher; the rest is configuration from the dispatcher.
type PPS struct {
	clock  Clock
	status *state.Status

	epoch   atomic.Uint32
	rate    atomic.Uint32
	enabled atomic.Bool

	// tick-path fields
	subTicks atomic.Uint32
	synced   atomic.Bool
	// enableMark is the microsecond count when the edge was enabled
	enableMark atomic.Uint32

	ticks atomic.Uint64
}

// NewPPS returns a disabled PPS counter running at one edge per second.
func NewPPS(clock Clock, status *state.Status) *PPS {
	p := &PPS{clock: clock, status: status}
	p.rate.Store(1)
	return p
}

// Enable turns on the edge interrupt with the given sub-tick rate. The
// epoch is left alone; the first qualifying tick afterwards only
// resynchronises the counter.
func (p *PPS) Enable(rate uint32) {
	if rate == 0 {
		rate = 1
	}
	p.rate.Store(rate)
	p.subTicks.Store(0)
	p.synced.Store(false)
	p.enableMark.Store(p.clock.Microseconds())
	p.enabled.Store(true)
}

// Disable turns off the edge interrupt. The epoch keeps its value.
func (p *PPS) Disable() {
	p.enabled.Store(false)
}

// Enabled reports whether edges are being counted.
func (p *PPS) Enabled() bool {
	return p.enabled.Load()
}

// Rate returns the sub-ticks per nominal period.
func (p *PPS) Rate() uint32 {
	return p.rate.Load()
}

// Tick handles one PPS edge. Every rate-th edge is a qualifying tick: the
// microsecond counter restarts, the epoch advances and the measured
// period is checked against the nominal one.
func (p *PPS) Tick() {
	if !p.enabled.Load() {
		return
	}
	if p.subTicks.Add(1) < p.rate.Load() {
		return
	}
	p.subTicks.Store(0)

	elapsed := p.clock.Microseconds()
	p.clock.ResetMicroseconds()
	p.epoch.Add(1)
	p.ticks.Add(1)

	if !p.synced.Swap(true) {
		return
	}
	if outOfTolerance(elapsed) {
		p.status.Set(state.StatusPPSUnlock)
	}
}

func outOfTolerance(elapsed uint32) bool {
	diff := int64(elapsed) - NominalPeriodUs
	if diff < 0 {
		diff = -diff
	}
	return diff > ToleranceUs
}

// Poll is the watchdog on the tick path itself, called once per dispatcher
// cycle. It raises PPS-unlock when no qualifying tick arrived within 1.1
// nominal periods.
func (p *PPS) Poll() {
	if !p.enabled.Load() {
		return
	}
	elapsed := p.clock.Microseconds()
	if mark := p.enableMark.Load(); !p.synced.Load() && elapsed >= mark {
		elapsed -= mark
	}
	if elapsed > WatchdogUs {
		p.status.Set(state.StatusPPSUnlock)
	}
}

// Epoch returns the PPS-seconds counter.
func (p *PPS) Epoch() uint32 {
	return p.epoch.Load()
}

// SetEpoch seeds the PPS-seconds counter.
func (p *PPS) SetEpoch(seconds uint32) {
	p.epoch.Store(seconds)
}

// SetEpochHalf replaces the lower or upper 16 bits of the epoch, as the
// UTC timestamp registers are written one half-word at a time.
func (p *PPS) SetEpochHalf(upper bool, half uint16) {
	for {
		old := p.epoch.Load()
		next := old&0xFFFF0000 | uint32(half)
		if upper {
			next = old&0x0000FFFF | uint32(half)<<16
		}
		if p.epoch.CompareAndSwap(old, next) {
			return
		}
	}
}

// Ticks returns the number of qualifying ticks seen since boot.
func (p *PPS) Ticks() uint64 {
	return p.ticks.Load()
}
