// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package state holds the two pieces of bridge state shared by every
// execution context: the sticky status word and the deferred-action flags.
// Both are plain atomics so interrupt handlers never block on them.
package state

import "sync/atomic"

// Status bits, as exposed through the STATUS_0 / STATUS_1 register pair.
const (
	StatusBufWatermark uint16 = 1 << 0 // live: committed entries >= watermark
	StatusOverrun      uint16 = 1 << 4 // data ready while a capture was in flight
	StatusPPSUnlock    uint16 = 1 << 6 // PPS period out of tolerance or missing
	StatusFlashError   uint16 = 1 << 10
	StatusFlashUpdate  uint16 = 1 << 11 // flash image written
)

// TransientMask selects the sticky bits cleared by a status read.
const TransientMask = StatusOverrun | StatusPPSUnlock | StatusFlashError | StatusFlashUpdate

// Status is the sticky status word. Producers only ever set bits; the
// register read path is the only place bits are cleared.
type Status struct {
	bits atomic.Uint32
}

// Set raises the given sticky bits.
func (s *Status) Set(bits uint16) {
	s.bits.Or(uint32(bits))
}

// Peek returns the sticky bits without clearing anything.
func (s *Status) Peek() uint16 {
	return uint16(s.bits.Load())
}

// ReadAndClear returns the value before the clear and drops every
// transient bit in the same atomic step.
func (s *Status) ReadAndClear() uint16 {
	return uint16(s.bits.And(^uint32(TransientMask)))
}
