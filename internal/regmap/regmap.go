// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package regmap is the paged virtual register map the SPI master talks
// to. Pages below 252 pass straight through to the IMU. Pages 252 to 255
// are resolved locally: configuration, a staging window for burst
// transmit words, and the read page that exposes buffered entries.
//
// Read and Write run in the master's transaction context and never block
// on the dispatcher. Anything slow is raised as a deferred flag instead.
package regmap

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

// Deps are the collaborators a Map resolves accesses against.
type Deps struct {
	IMU    imu.Device
	Clock  timebase.Clock
	PPS    *timebase.PPS
	Buffer *buffer.Buffer
	Status *state.Status
	Flags  *state.Flags

	// BuildDate fills FW_DAY_MONTH and FW_YEAR; zero leaves them 0.
	BuildDate time.Time
}

// Map is the register map.
type Map struct {
	d Deps

	regs [NumRegisters]atomic.Uint32
	page atomic.Uint32

	// loaded is the entry copied out by the last dequeue, nil when none
	loaded atomic.Pointer[buffer.Entry]
}

// New returns a map holding boot defaults with the config page selected.
func New(d Deps) *Map {
	m := &Map{d: d}
	m.Defaults()
	m.page.Store(uint32(PageConfig))
	return m
}

// Defaults reloads every register with its boot value and unloads the
// current entry. The selected page is kept.
func (m *Map) Defaults() {
	for i := range m.regs {
		m.regs[i].Store(uint32(Default(i)))
	}
	if !m.d.BuildDate.IsZero() {
		bd := m.d.BuildDate
		m.regs[FWDayMonth].Store(uint32(bcd(bd.Day()) | bcd(int(bd.Month()))<<8))
		m.regs[FWYear].Store(uint32(bcd(bd.Year() % 100) | 0x2000))
	}
	m.loaded.Store(nil)
}

func bcd(v int) uint16 {
	return uint16(v/10)<<4 | uint16(v%10)
}

// Page returns the selected page.
func (m *Map) Page() uint8 {
	return uint8(m.page.Load())
}

// Get returns a stored register without side effects. Computed registers
// read through Get return their stored cell, not the live value.
func (m *Map) Get(idx int) uint16 {
	if idx < 0 || idx >= NumRegisters {
		return 0
	}
	return uint16(m.regs[idx].Load())
}

// Set stores a register directly. It bypasses write filtering and raises
// no flags; the dispatcher uses it to apply and clear configuration.
func (m *Map) Set(idx int, v uint16) {
	if idx < 0 || idx >= NumRegisters {
		return
	}
	m.regs[idx].Store(uint32(v))
}

// LoadEntry makes e visible through the read page entry window.
func (m *Map) LoadEntry(e buffer.Entry) {
	m.loaded.Store(&e)
}

// UnloadEntry empties the entry window.
func (m *Map) UnloadEntry() {
	m.loaded.Store(nil)
}

// LoadedEntry returns the entry in the window, or nil.
func (m *Map) LoadedEntry() buffer.Entry {
	if p := m.loaded.Load(); p != nil {
		return *p
	}
	return nil
}

// Read returns the register at addr on the selected page.
func (m *Map) Read(addr uint8) uint16 {
	page := m.Page()
	if page < PageBoundary {
		v, err := m.d.IMU.ReadRegister(addr)
		if err != nil {
			log.Printf("regmap: passthrough read 0x%02X: %v", addr, err)
			return 0
		}
		return v
	}
	idx, ok := Index(page, addr)
	if !ok {
		return 0
	}

	switch idx {
	case BufRetrieve:
		m.d.Flags.Raise(state.FlagDequeue)
		return 0
	case Status0, Status1:
		return m.ReadStatus()
	}
	return m.value(idx)
}

// Peek resolves a local register without read side effects. It reports
// false for IMU pages and out-of-range addresses.
func (m *Map) Peek(page, addr uint8) (uint16, bool) {
	idx, ok := Index(page, addr)
	if !ok {
		return 0, false
	}
	return m.value(idx), true
}

// ReadStatus is a read of either status register: latched bits are
// cleared, live bits are reported as they stand.
func (m *Map) ReadStatus() uint16 {
	return m.d.Status.ReadAndClear() | m.liveStatus()
}

// value resolves idx without read side effects.
func (m *Map) value(idx int) uint16 {
	switch {
	case idx == Status0 || idx == Status1:
		return m.d.Status.Peek() | m.liveStatus()
	case idx == BufRetrieve:
		return 0
	case idx >= BufEntry0:
		e := m.LoadedEntry()
		if i := idx - BufEntry0; i < len(e) {
			return e[i]
		}
		return 0
	}

	switch idx {
	case TimestampLwr:
		return uint16(m.d.Clock.Microseconds())
	case TimestampUpr:
		return uint16(m.d.Clock.Microseconds() >> 16)
	case UTCTimestampLwr:
		return uint16(m.d.PPS.Epoch())
	case UTCTimestampUpr:
		return uint16(m.d.PPS.Epoch() >> 16)
	case UptimeLwr:
		return uint16(m.d.Clock.MillisecondsUptime())
	case UptimeUpr:
		return uint16(m.d.Clock.MillisecondsUptime() >> 16)
	case BufCnt0, BufCnt1:
		return uint16(m.d.Buffer.Count())
	}
	return uint16(m.regs[idx].Load())
}

// liveStatus are the status bits derived from current state rather than
// latched.
func (m *Map) liveStatus() uint16 {
	var bits uint16
	if wm := int(m.regs[WaterIntConfig].Load()); wm > 0 && m.d.Buffer.Count() >= wm {
		bits |= state.StatusBufWatermark
	}
	return bits
}

// Write applies one byte and returns the addressed register afterwards so
// the master can verify it on its next transaction. A write to address 0
// selects the page.
func (m *Map) Write(addr, value uint8) uint16 {
	if addr == 0 {
		m.selectPage(value)
	}

	page := m.Page()
	if page < PageBoundary {
		v, err := m.d.IMU.WriteRegister(addr, value)
		if err != nil {
			log.Printf("regmap: passthrough write 0x%02X=0x%02X: %v", addr, value, err)
			return 0
		}
		return v
	}
	idx, ok := Index(page, addr)
	if !ok {
		return 0
	}
	if addr >= 2 {
		m.writeLocal(page, idx, addr&1 == 1, value)
	}
	return m.value(idx)
}

// selectPage moves the page selector. Entering the read page asks for
// capture to start, leaving it asks for capture to stop.
func (m *Map) selectPage(next uint8) {
	prev := uint8(m.page.Swap(uint32(next)))
	switch {
	case next == PageRead && prev != PageRead:
		m.d.Flags.Raise(state.FlagEnableCapture)
	case next != PageRead && prev == PageRead:
		m.d.Flags.Raise(state.FlagDisableCapture)
	}
}

// writeLocal filters the write for the page and applies it.
func (m *Map) writeLocal(page uint8, idx int, upper bool, value uint8) {
	switch page {
	case PageOutput:
	case PageConfig:
		if idx > lastConfigWritable {
			return
		}
		switch idx {
		case UTCTimestampLwr, UTCTimestampUpr:
			m.writeEpoch(idx == UTCTimestampUpr, upper, value)
			return
		case IMUSPIConfig:
			if upper {
				m.d.Flags.Raise(state.FlagIMUSPIConfig)
			}
		case DIOOutputConfig:
			if upper {
				m.d.Flags.Raise(state.FlagDIOOutputConfig)
			}
		case UserCommand:
			if upper {
				m.d.Flags.Raise(state.FlagUserCommand)
			}
		}
	case PageWrite:
		if idx < BufWrite0 || idx >= BufWrite0+bufWriteWords {
			return
		}
	case PageRead:
		if idx == BufCnt1 && value == 0 {
			m.d.Buffer.Reset()
		}
		return
	}

	m.storeByte(idx, upper, value)

	if upper && (idx == BufConfig || idx == BufLen) {
		m.d.Buffer.Resize(int(m.regs[BufLen].Load()))
		m.regs[BufLen].Store(uint32(m.d.Buffer.PayloadWords()))
	}
}

func (m *Map) storeByte(idx int, upper bool, value uint8) {
	old := m.regs[idx].Load()
	next := old&0xFF00 | uint32(value)
	if upper {
		next = old&0x00FF | uint32(value)<<8
	}
	m.regs[idx].Store(next)
}

// writeEpoch merges one byte into the PPS-seconds epoch and restarts the
// microsecond counter.
func (m *Map) writeEpoch(upperHalf, upperByte bool, value uint8) {
	cur := m.d.PPS.Epoch()
	half := uint16(cur)
	if upperHalf {
		half = uint16(cur >> 16)
	}
	if upperByte {
		half = half&0x00FF | uint16(value)<<8
	} else {
		half = half&0xFF00 | uint16(value)
	}
	m.d.PPS.SetEpochHalf(upperHalf, half)
	m.d.Clock.ResetMicroseconds()
}

// BurstTx returns the words a capture burst transmits: nil for the IMU's
// native burst, otherwise the staged BUF_WRITE words.
func (m *Map) BurstTx(dst []uint16) []uint16 {
	if uint16(m.regs[BufConfig].Load())&BufConfigIMUBurst != 0 {
		return nil
	}
	for i := range dst {
		dst[i] = 0
		if i < bufWriteWords {
			dst[i] = uint16(m.regs[BufWrite0+i].Load())
		}
	}
	return dst
}
