// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package buffer

// Entry is one buffer entry viewed as words: the header followed by the
// payload. Entries returned by Buffer.Entry alias the arena.
type Entry []uint16

// Seconds returns the PPS-seconds timestamp.
func (e Entry) Seconds() uint32 {
	return uint32(e[OffsetSecondsLo]) | uint32(e[OffsetSecondsHi])<<16
}

// Micros returns the microsecond timestamp.
func (e Entry) Micros() uint32 {
	return uint32(e[OffsetMicrosLo]) | uint32(e[OffsetMicrosHi])<<16
}

// Checksum returns the stored checksum word.
func (e Entry) Checksum() uint16 {
	return e[OffsetChecksum]
}

// Committed reports whether the validity marker is set.
func (e Entry) Committed() bool {
	return e[OffsetMarker]&0xFF == MarkerCommitted
}

// Payload returns the captured words.
func (e Entry) Payload() []uint16 {
	return e[HeaderWords:]
}

// SetTimestamp writes both timestamp fields.
func (e Entry) SetTimestamp(seconds, micros uint32) {
	e[OffsetSecondsLo] = uint16(seconds)
	e[OffsetSecondsHi] = uint16(seconds >> 16)
	e[OffsetMicrosLo] = uint16(micros)
	e[OffsetMicrosHi] = uint16(micros >> 16)
}

// SetChecksum writes the checksum word.
func (e Entry) SetChecksum(sum uint16) {
	e[OffsetChecksum] = sum
}

// Clone copies the entry out of the arena.
func (e Entry) Clone() Entry {
	out := make(Entry, len(e))
	copy(out, e)
	return out
}

// TimestampChecksum is the 16-bit wrapping sum of the four timestamp
// half-words, the seed of every entry checksum.
func TimestampChecksum(seconds, micros uint32) uint16 {
	return uint16(seconds) + uint16(seconds>>16) + uint16(micros) + uint16(micros>>16)
}

// Checksum sums words into seed with 16-bit wrap.
func Checksum(seed uint16, words []uint16) uint16 {
	for _, w := range words {
		seed += w
	}
	return seed
}

// Valid recomputes the checksum over header timestamp and payload.
func (e Entry) Valid() bool {
	seed := TimestampChecksum(e.Seconds(), e.Micros())
	return Checksum(seed, e.Payload()) == e.Checksum()
}
