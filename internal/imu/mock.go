// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"math"
	"sync"
	"time"
)

// Access records one passthrough call seen by the Mock.
type Access struct {
	Write bool
	Addr  uint8
	Value uint8
}

// Mock is an in-memory IMU. Bursts return a synthetic native burst with a
// slowly turning gyro and a valid checksum.
type Mock struct {
	mu    sync.Mutex
	regs  [128]uint16
	start time.Time

	// Manual holds burst completions until Complete is called.
	Manual bool
	// Latency delays automatic completion; zero completes inside StartBurst.
	Latency time.Duration

	pending  []func()
	log      []Access
	counter  uint16
	bursts   int
	resets   int
	config   SPIConfig
	lastTx   []uint16
	burstErr error
}

// NewMock returns a mock with automatic completion.
func NewMock() *Mock {
	return &Mock{start: time.Now()}
}

func (m *Mock) ReadRegister(addr uint8) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, Access{Addr: addr})
	return m.regs[addr>>1&0x7F], nil
}

func (m *Mock) WriteRegister(addr, value uint8) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, Access{Write: true, Addr: addr, Value: value})

	i := addr >> 1 & 0x7F
	if addr&1 == 1 {
		m.regs[i] = m.regs[i]&0x00FF | uint16(value)<<8
	} else {
		m.regs[i] = m.regs[i]&0xFF00 | uint16(value)
	}
	return m.regs[i], nil
}

// SetRegister presets a register word.
func (m *Mock) SetRegister(addr uint8, v uint16) {
	m.mu.Lock()
	m.regs[addr>>1&0x7F] = v
	m.mu.Unlock()
}

// Accesses returns the passthrough calls seen so far.
func (m *Mock) Accesses() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Access(nil), m.log...)
}

// FailBursts makes the next StartBurst calls return err; nil clears it.
func (m *Mock) FailBursts(err error) {
	m.mu.Lock()
	m.burstErr = err
	m.mu.Unlock()
}

func (m *Mock) StartBurst(tx, rx []uint16, done func()) error {
	m.mu.Lock()
	if m.burstErr != nil {
		err := m.burstErr
		m.mu.Unlock()
		return err
	}
	m.bursts++
	m.counter++
	m.lastTx = append(m.lastTx[:0], tx...)
	if tx == nil {
		m.fillBurst(rx)
	} else {
		for i := range rx {
			rx[i] = 0
			if i < len(tx) {
				rx[i] = tx[i]
			}
		}
	}
	if m.Manual {
		m.pending = append(m.pending, done)
		m.mu.Unlock()
		return nil
	}
	latency := m.Latency
	m.mu.Unlock()

	if latency == 0 {
		done()
		return nil
	}
	go func() {
		time.Sleep(latency)
		done()
	}()
	return nil
}

// fillBurst writes as much of the native burst layout as rx holds.
func (m *Mock) fillBurst(rx []uint16) {
	t := time.Since(m.start).Seconds()
	burst := [BurstWords]uint16{
		0,
		uint16(int16(800 * math.Sin(t))),
		uint16(int16(600 * math.Cos(t*0.7))),
		uint16(int16(400 * math.Sin(t*0.3))),
		0,
		0,
		0xF060, // -4000: 1 g at 0.25 mg/LSB
		uint16(int16(250)),
		m.counter,
	}
	var sum uint16
	for _, w := range burst[:BurstWords-1] {
		sum += w&0xFF + w>>8
	}
	burst[BurstWords-1] = sum

	for i := range rx {
		rx[i] = 0
		if i < BurstWords {
			rx[i] = burst[i]
		}
	}
}

// Complete runs the oldest held completion. It reports false when none is
// pending.
func (m *Mock) Complete() bool {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return false
	}
	done := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()

	done()
	return true
}

// Bursts returns the number of bursts started.
func (m *Mock) Bursts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bursts
}

// LastTx returns the transmit words of the latest burst, nil for native.
func (m *Mock) LastTx() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lastTx) == 0 {
		return nil
	}
	return append([]uint16(nil), m.lastTx...)
}

func (m *Mock) Configure(cfg SPIConfig) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Config returns the last applied SPI configuration.
func (m *Mock) Config() SPIConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

func (m *Mock) Reset() error {
	m.mu.Lock()
	m.resets++
	m.regs = [128]uint16{}
	m.mu.Unlock()
	return nil
}

// Resets returns how many times Reset was called.
func (m *Mock) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}
