// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package capture is the producer side of the bridge: a data-ready edge
// reserves and timestamps a buffer entry and starts an IMU burst into it,
// and the burst completion commits the entry.
//
// DataReady and BurstComplete are interrupt handlers. They never block,
// never wait on each other and share state only through atomics.
package capture

import (
	"log"
	"sync/atomic"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

// State is the capture state.
type State uint32

const (
	Idle State = iota
	Armed
	Transferring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Transferring:
		return "transferring"
	}
	return "unknown"
}

// TxSource supplies the words sent during a burst. It returns nil for the
// IMU's native burst, or dst filled with staged words.
type TxSource interface {
	BurstTx(dst []uint16) []uint16
}

// Stats counts capture outcomes since boot.
type Stats struct {
	Accepted      uint64 `json:"accepted"`
	Committed     uint64 `json:"committed"`
	Overruns      uint64 `json:"overruns"`
	SkippedFull   uint64 `json:"skipped_full"`
	Discarded     uint64 `json:"discarded"`
	StartFailures uint64 `json:"start_failures"`
}

// session is the in-flight capture. Only DataReady creates one and only
// BurstComplete (or a failed start) retires it.
type session struct {
	handle   buffer.Handle
	entry    buffer.Entry
	checksum uint16
}

// Machine is the capture state machine.
type Machine struct {
	buf    *buffer.Buffer
	clock  timebase.Clock
	pps    *timebase.PPS
	dev    imu.Device
	status *state.Status
	tx     TxSource

	state   atomic.Uint32
	enabled atomic.Bool
	// completing masks BurstComplete against re-entry
	completing atomic.Bool
	session    atomic.Pointer[session]

	scratch []uint16

	accepted, committed, overruns      atomic.Uint64
	skippedFull, discarded, startFails atomic.Uint64
}

// New returns a disabled machine in Idle. tx may be nil, meaning native
// bursts only.
func New(buf *buffer.Buffer, clock timebase.Clock, pps *timebase.PPS, dev imu.Device, status *state.Status, tx TxSource) *Machine {
	return &Machine{
		buf:     buf,
		clock:   clock,
		pps:     pps,
		dev:     dev,
		status:  status,
		tx:      tx,
		scratch: make([]uint16, buffer.MaxPayloadWords),
	}
}

// SetEnabled allows or stops new sessions. A burst already in flight runs
// to completion either way.
func (m *Machine) SetEnabled(on bool) {
	m.enabled.Store(on)
}

// Enabled reports whether data-ready edges are accepted.
func (m *Machine) Enabled() bool {
	return m.enabled.Load()
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// DataReady handles one data-ready edge.
func (m *Machine) DataReady() {
	if !m.enabled.Load() {
		return
	}
	if !m.state.CompareAndSwap(uint32(Idle), uint32(Armed)) {
		// the running session is left alone
		m.status.Set(state.StatusOverrun)
		m.overruns.Add(1)
		return
	}

	if !m.buf.CanAdd(m.buf.EntryBytes()) {
		m.skippedFull.Add(1)
		m.state.Store(uint32(Idle))
		return
	}
	h, err := m.buf.AddElement()
	if err != nil {
		m.skippedFull.Add(1)
		m.state.Store(uint32(Idle))
		return
	}

	e := m.buf.Entry(h)
	seconds, micros := m.pps.Epoch(), m.clock.Microseconds()
	e.SetTimestamp(seconds, micros)
	m.session.Store(&session{
		handle:   h,
		entry:    e,
		checksum: buffer.TimestampChecksum(seconds, micros),
	})
	m.accepted.Add(1)
	m.state.Store(uint32(Transferring))

	var tx []uint16
	if m.tx != nil {
		tx = m.tx.BurstTx(m.scratch[:len(e.Payload())])
	}
	if err := m.dev.StartBurst(tx, e.Payload(), m.BurstComplete); err != nil {
		log.Printf("capture: burst start: %v", err)
		m.session.Store(nil)
		m.buf.Abandon(h)
		m.startFails.Add(1)
		m.state.Store(uint32(Idle))
	}
}

// BurstComplete finalises the in-flight session: the payload is added to
// the checksum and the entry is committed. Entries reserved before a
// buffer reset are dropped.
func (m *Machine) BurstComplete() {
	if !m.completing.CompareAndSwap(false, true) {
		return
	}
	defer m.completing.Store(false)

	s := m.session.Swap(nil)
	if s == nil {
		return
	}
	if s.handle.Generation == m.buf.Generation() {
		s.entry.SetChecksum(buffer.Checksum(s.checksum, s.entry.Payload()))
	}
	if m.buf.Commit(s.handle) {
		m.committed.Add(1)
	} else {
		m.discarded.Add(1)
	}
	m.state.Store(uint32(Idle))
}

// Stats returns a snapshot of the counters.
func (m *Machine) Stats() Stats {
	return Stats{
		Accepted:      m.accepted.Load(),
		Committed:     m.committed.Load(),
		Overruns:      m.overruns.Load(),
		SkippedFull:   m.skippedFull.Load(),
		Discarded:     m.discarded.Load(),
		StartFailures: m.startFails.Load(),
	}
}
