// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timebase

import (
	"testing"

	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

func newTestPPS() (*PPS, *ManualClock, *state.Status) {
	clock := &ManualClock{}
	status := &state.Status{}
	return NewPPS(clock, status), clock, status
}

// syncPPS enables the counter and delivers the first qualifying tick,
// which only resynchronises.
func syncPPS(p *PPS, clock *ManualClock) {
	p.Enable(1)
	clock.Advance(123_456)
	p.Tick()
}

func TestPPSPeriodTolerance(t *testing.T) {
	tests := []struct {
		name     string
		periodUs uint32
		unlock   bool
	}{
		{"nominal", 1_000_000, false},
		{"edge high", 1_010_000, false},
		{"edge low", 990_000, false},
		{"just over 1%", 1_010_001, true},
		{"just under 1%", 989_999, true},
		{"20% high", 1_200_000, true},
		{"20% low", 800_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, clock, status := newTestPPS()
			syncPPS(p, clock)
			if status.Peek() != 0 {
				t.Fatalf("sync tick raised status 0x%04X", status.Peek())
			}

			clock.Advance(tt.periodUs)
			p.Tick()

			got := status.Peek()&state.StatusPPSUnlock != 0
			if got != tt.unlock {
				t.Errorf("period %d us: unlock = %v, want %v", tt.periodUs, got, tt.unlock)
			}
		})
	}
}

func TestPPSEpochAdvancesOnQualifyingTicks(t *testing.T) {
	p, clock, status := newTestPPS()
	p.SetEpoch(1000)
	p.Enable(RateFromConfig(1)) // 10 sub-ticks per second

	for i := 0; i < 20; i++ {
		clock.Advance(100_000)
		p.Tick()
	}

	if got := p.Epoch(); got != 1002 {
		t.Errorf("epoch = %d, want 1002", got)
	}
	if status.Peek() != 0 {
		t.Errorf("status = 0x%04X, want 0", status.Peek())
	}
	if clock.Microseconds() != 0 {
		t.Errorf("microsecond counter not reset on qualifying tick: %d", clock.Microseconds())
	}
}

func TestPPSDisableKeepsEpoch(t *testing.T) {
	p, clock, _ := newTestPPS()
	p.SetEpoch(42)
	syncPPS(p, clock)
	p.Disable()

	clock.Advance(1_000_000)
	p.Tick()
	if got := p.Epoch(); got != 43 {
		t.Errorf("epoch after disable = %d, want 43", got)
	}

	p.Enable(1)
	if got := p.Epoch(); got != 43 {
		t.Errorf("epoch after re-enable = %d, want 43", got)
	}
}

func TestPPSWatchdog(t *testing.T) {
	p, clock, status := newTestPPS()
	syncPPS(p, clock)

	clock.Advance(WatchdogUs)
	p.Poll()
	if status.Peek() != 0 {
		t.Fatalf("watchdog fired at exactly 1.1 periods")
	}

	clock.Advance(1)
	p.Poll()
	if status.Peek()&state.StatusPPSUnlock == 0 {
		t.Error("watchdog did not fire past 1.1 periods")
	}
}

func TestPPSWatchdogCountsFromEnable(t *testing.T) {
	p, clock, status := newTestPPS()
	clock.Advance(5_000_000)
	p.Enable(1)

	clock.Advance(500_000)
	p.Poll()
	if status.Peek() != 0 {
		t.Errorf("watchdog fired 0.5 periods after enable")
	}
}

func TestPPSWatchdogIdleWhenDisabled(t *testing.T) {
	p, clock, status := newTestPPS()
	clock.Advance(10_000_000)
	p.Poll()
	if status.Peek() != 0 {
		t.Errorf("disabled watchdog raised 0x%04X", status.Peek())
	}
}

func TestPPSSetEpochHalf(t *testing.T) {
	p, _, _ := newTestPPS()
	p.SetEpochHalf(false, 0xBEEF)
	p.SetEpochHalf(true, 0xDEAD)
	if got := p.Epoch(); got != 0xDEADBEEF {
		t.Errorf("epoch = 0x%08X, want 0xDEADBEEF", got)
	}
}
