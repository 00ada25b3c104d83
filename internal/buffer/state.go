// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package buffer

// snapshot is the packed shared state of a Buffer:
//
//	bits 48-63  generation
//	bits 42-47  payload words
//	bits 28-41  committed, not yet taken
//	bits 14-27  reserved, not yet committed
//	bits 0-13   taken, not yet released
type snapshot uint64

const (
	counterBits = 14
	maxCounter  = 1<<counterBits - 1

	outstandingShift = 0
	reservedShift    = counterBits
	countShift       = 2 * counterBits
	payloadShift     = 3 * counterBits
	generationShift  = 48

	payloadMask    = 0x3F
	generationMask = 0xFFFF

	// MaxArenaBytes keeps the smallest-entry capacity within a counter.
	MaxArenaBytes = maxCounter * (HeaderWords + MinPayloadWords) * 2
)

func pack(gen uint32, payload, count, reserved, outstanding int) snapshot {
	return snapshot(uint64(gen&generationMask)<<generationShift |
		uint64(payload&payloadMask)<<payloadShift |
		uint64(count&maxCounter)<<countShift |
		uint64(reserved&maxCounter)<<reservedShift |
		uint64(outstanding&maxCounter)<<outstandingShift)
}

func (s snapshot) generation() uint32 { return uint32(s>>generationShift) & generationMask }
func (s snapshot) payload() int { return int(s>>payloadShift) & payloadMask }
func (s snapshot) count() int { return int(s>>countShift) & maxCounter }
func (s snapshot) reserved() int { return int(s>>reservedShift) & maxCounter }
func (s snapshot) outstanding() int { return int(s>>outstandingShift) & maxCounter }

// used counts every slot that is not free.
func (s snapshot) used() int {
	return s.count() + s.reserved() + s.outstanding()
}
