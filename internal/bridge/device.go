// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bridge ties the bridge core together: the device aggregate that
// owns all shared state, and the cyclic dispatcher that runs deferred work
// raised by register writes and interrupts.
package bridge

import (
	"fmt"
	"time"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
	"github.com/relabs-tech/imu_buffer_bridge/internal/capture"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

// Device is the whole bridge state. Each field has one owner context for
// writes; cross-context fields are atomics inside the components.
type Device struct {
	IMU     imu.Device
	Clock   timebase.Clock
	PPS     *timebase.PPS
	Buffer  *buffer.Buffer
	Status  *state.Status
	Flags   *state.Flags
	Regs    *regmap.Map
	Capture *capture.Machine
}

// NewDevice builds the core around an IMU driver and a clock. arenaBytes
// of zero selects the default arena.
func NewDevice(dev imu.Device, clock timebase.Clock, arenaBytes int, buildDate time.Time) (*Device, error) {
	if arenaBytes == 0 {
		arenaBytes = buffer.DefaultArenaBytes
	}
	buf, err := buffer.New(arenaBytes, int(regmap.Default(regmap.BufLen)))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	d := &Device{
		IMU:    dev,
		Clock:  clock,
		Buffer: buf,
		Status: &state.Status{},
		Flags:  &state.Flags{},
	}
	d.PPS = timebase.NewPPS(clock, d.Status)
	d.Regs = regmap.New(regmap.Deps{
		IMU:       dev,
		Clock:     clock,
		PPS:       d.PPS,
		Buffer:    buf,
		Status:    d.Status,
		Flags:     d.Flags,
		BuildDate: buildDate,
	})
	d.Capture = capture.New(buf, clock, d.PPS, dev, d.Status, d.Regs)
	return d, nil
}

// DataReady is the data-ready edge handler.
func (d *Device) DataReady() {
	d.Capture.DataReady()
}

// PPSEdge is the PPS edge handler.
func (d *Device) PPSEdge() {
	d.PPS.Tick()
}

// ApplyBufferConfig resizes the buffer to the current BUF_LEN and writes
// back the clamped length.
func (d *Device) ApplyBufferConfig() {
	d.Buffer.Resize(int(d.Regs.Get(regmap.BufLen)))
	d.Regs.Set(regmap.BufLen, uint16(d.Buffer.PayloadWords()))
}
