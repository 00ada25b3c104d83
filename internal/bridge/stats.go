// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"github.com/relabs-tech/imu_buffer_bridge/internal/capture"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

// Stats is a point-in-time view of the bridge for status surfaces. It is
// safe to build from any goroutine.
type Stats struct {
	UptimeMs     uint32        `json:"uptime_ms"`
	Page         uint8         `json:"page"`
	Capturing    bool          `json:"capturing"`
	CaptureState string        `json:"capture_state"`
	Capture      capture.Stats `json:"capture"`

	BufferCount    int `json:"buffer_count"`
	BufferCapacity int `json:"buffer_capacity"`
	PayloadWords   int `json:"payload_words"`

	Status       uint16     `json:"status"`
	PendingFlags state.Flag `json:"pending_flags"`
	PPSEnabled   bool       `json:"pps_enabled"`
	PPSEpoch     uint32     `json:"pps_epoch"`
	PPSTicks     uint64     `json:"pps_ticks"`

	Streaming  bool   `json:"streaming"`
	Passes     uint64 `json:"passes"`
	Dequeues   uint64 `json:"dequeues"`
	Streamed   uint64 `json:"streamed"`
	EpochSeeds uint64 `json:"epoch_seeds"`
}

// Stats snapshots the bridge. Status is peeked, never cleared.
func (d *Dispatcher) Stats() Stats {
	dev := d.dev
	return Stats{
		UptimeMs:       dev.Clock.MillisecondsUptime(),
		Page:           dev.Regs.Page(),
		Capturing:      dev.Capture.Enabled(),
		CaptureState:   dev.Capture.State().String(),
		Capture:        dev.Capture.Stats(),
		BufferCount:    dev.Buffer.Count(),
		BufferCapacity: dev.Buffer.Capacity(),
		PayloadWords:   dev.Buffer.PayloadWords(),
		Status:         dev.Status.Peek(),
		PendingFlags:   dev.Flags.Load(),
		PPSEnabled:     dev.PPS.Enabled(),
		PPSEpoch:       dev.PPS.Epoch(),
		PPSTicks:       dev.PPS.Ticks(),
		Streaming:      d.streaming.Load(),
		Passes:         d.passes.Load(),
		Dequeues:       d.dequeues.Load(),
		Streamed:       d.streamed.Load(),
		EpochSeeds:     d.seeds.Load(),
	}
}
