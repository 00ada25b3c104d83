// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package buffer implements the capture buffer: one fixed arena of 16-bit
// words holding a ring of equally sized, timestamped entries.
//
// The producer side (AddElement, Commit) runs in interrupt context and the
// consumer side (TakeElement, Release) in the dispatcher. Reset and Resize
// may come from either. The generation, entry size and slot counters share
// one atomic word so every decision sees a consistent view; each cursor has
// a single owner that rewinds it when it sees a new generation.
package buffer

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const (
	// DefaultArenaBytes is the arena size used when none is configured.
	DefaultArenaBytes = 0xA000

	// HeaderWords is the fixed entry header: seconds (2), microseconds (2),
	// checksum (1), validity marker (1).
	HeaderWords = 6
	// HeaderBytes is HeaderWords in bytes.
	HeaderBytes = HeaderWords * 2

	// MinPayloadWords and MaxPayloadWords bound the configurable payload.
	MinPayloadWords = 1
	MaxPayloadWords = 32
)

// Header word offsets within an entry.
const (
	OffsetSecondsLo = iota
	OffsetSecondsHi
	OffsetMicrosLo
	OffsetMicrosHi
	OffsetChecksum
	OffsetMarker
)

// Validity marker values held in the low byte of the marker word.
const (
	MarkerPending   uint16 = 0x00
	MarkerCommitted uint16 = 0xFF
)

// ErrFull is returned by AddElement when the arena has no free slot.
var ErrFull = errors.New("buffer: no free entry")

// Handle identifies a reserved or taken entry. It carries the buffer
// generation and the entry size of that generation, so entries reserved
// before a reset can be told apart and still addressed safely.
type Handle struct {
	Offset     int
	Generation uint32
	Words      int
}

// Buffer is the capture ring.
type Buffer struct {
	arena []uint16
	state atomic.Uint64

	// write cursor and the generation it belongs to, producer only
	head    atomic.Int32
	headGen atomic.Uint32
	// read cursor and the generation it belongs to, consumer only
	tail    atomic.Int32
	tailGen atomic.Uint32
}

// New allocates an arena of arenaBytes bytes (rounded down to whole words)
// holding entries of payloadWords words.
func New(arenaBytes, payloadWords int) (*Buffer, error) {
	if arenaBytes < HeaderBytes+2 {
		return nil, fmt.Errorf("buffer: arena of %d bytes is too small", arenaBytes)
	}
	if arenaBytes > MaxArenaBytes {
		return nil, fmt.Errorf("buffer: arena of %d bytes exceeds %d", arenaBytes, MaxArenaBytes)
	}
	b := &Buffer{arena: make([]uint16, arenaBytes/2)}
	b.Resize(payloadWords)
	return b, nil
}

// ClampPayload limits a configured payload length to the supported range.
func ClampPayload(words int) int {
	if words < MinPayloadWords {
		return MinPayloadWords
	}
	if words > MaxPayloadWords {
		return MaxPayloadWords
	}
	return words
}

// update applies fn to the shared state until the swap lands. fn returns
// false to leave the state alone; update then reports false too.
func (b *Buffer) update(fn func(snapshot) (snapshot, bool)) (snapshot, bool) {
	for {
		old := snapshot(b.state.Load())
		next, ok := fn(old)
		if !ok {
			return old, false
		}
		if b.state.CompareAndSwap(uint64(old), uint64(next)) {
			return next, true
		}
	}
}

// Resize starts a new generation with a different entry size.
func (b *Buffer) Resize(payloadWords int) {
	words := ClampPayload(payloadWords)
	b.update(func(s snapshot) (snapshot, bool) {
		return pack(s.generation()+1, words, 0, 0, 0), true
	})
}

// Reset empties the ring: the count goes back to zero and a new
// generation begins. Reservations and takes from the old generation are
// ignored when they come back.
func (b *Buffer) Reset() {
	b.update(func(s snapshot) (snapshot, bool) {
		return pack(s.generation()+1, s.payload(), 0, 0, 0), true
	})
}

// PayloadWords returns W for the current generation.
func (b *Buffer) PayloadWords() int {
	return b.load().payload()
}

// EntryWords is header plus payload.
func (b *Buffer) EntryWords() int {
	return HeaderWords + b.PayloadWords()
}

// EntryBytes is the size of one entry in the arena.
func (b *Buffer) EntryBytes() int {
	return b.EntryWords() * 2
}

// ArenaBytes returns the arena size.
func (b *Buffer) ArenaBytes() int {
	return len(b.arena) * 2
}

// Capacity is the number of entries the arena holds at the current size.
// Slots start at multiples of the entry size, so slack at the arena end
// is never used.
func (b *Buffer) Capacity() int {
	return b.capacity(b.load())
}

func (b *Buffer) capacity(s snapshot) int {
	return len(b.arena) / (HeaderWords + s.payload())
}

// Count returns the number of committed entries waiting to be taken.
func (b *Buffer) Count() int {
	return b.load().count()
}

// Generation returns the current reset generation.
func (b *Buffer) Generation() uint32 {
	return b.load().generation()
}

func (b *Buffer) load() snapshot {
	return snapshot(b.state.Load())
}

// CanAdd reports whether entryBytes more bytes fit. It is advisory: the
// producer checks it before every reservation and never waits on it.
func (b *Buffer) CanAdd(entryBytes int) bool {
	s := b.load()
	size := (HeaderWords + s.payload()) * 2
	return s.used()*size+entryBytes <= b.capacity(s)*size
}

// advance returns the slot for an entry of size words at cursor off and
// the cursor after it, wrapping to zero when an entry would not fit
// before the arena end.
func (b *Buffer) advance(off, size int) (int, int) {
	if off+size > len(b.arena) {
		off = 0
	}
	next := off + size
	if next+size > len(b.arena) {
		next = 0
	}
	return off, next
}

// cursor returns the owner's cursor, rewound to zero when it belongs to an
// older generation.
func cursor(pos *atomic.Int32, gen *atomic.Uint32, current uint32) int {
	if gen.Load() != current {
		gen.Store(current)
		pos.Store(0)
	}
	return int(pos.Load())
}

// AddElement reserves the slot at the write cursor and advances the
// cursor. The entry is not counted until Commit.
func (b *Buffer) AddElement() (Handle, error) {
	s, ok := b.update(func(s snapshot) (snapshot, bool) {
		if s.used() >= b.capacity(s) || s.reserved() >= maxCounter {
			return s, false
		}
		return pack(s.generation(), s.payload(), s.count(), s.reserved()+1, s.outstanding()), true
	})
	if !ok {
		return Handle{}, ErrFull
	}

	size := HeaderWords + s.payload()
	off, next := b.advance(cursor(&b.head, &b.headGen, s.generation()), size)
	b.head.Store(int32(next))

	h := Handle{Offset: off, Generation: s.generation(), Words: size}
	b.Entry(h)[OffsetMarker] = MarkerPending
	return h, nil
}

// Commit makes a reserved entry visible to the consumer. It returns false
// when the buffer was reset after the reservation; the entry is dropped.
func (b *Buffer) Commit(h Handle) bool {
	if h.Generation != b.Generation() {
		return false
	}
	b.Entry(h)[OffsetMarker] = MarkerCommitted
	_, ok := b.update(func(s snapshot) (snapshot, bool) {
		if s.generation() != h.Generation || s.reserved() == 0 {
			return s, false
		}
		return pack(s.generation(), s.payload(), s.count()+1, s.reserved()-1, s.outstanding()), true
	})
	return ok
}

// Abandon gives back a reservation that will never be committed.
func (b *Buffer) Abandon(h Handle) {
	_, ok := b.update(func(s snapshot) (snapshot, bool) {
		if s.generation() != h.Generation || s.reserved() == 0 {
			return s, false
		}
		return pack(s.generation(), s.payload(), s.count(), s.reserved()-1, s.outstanding()), true
	})
	// the slot is the last one handed out, so the cursor steps back to it
	if ok && b.headGen.Load() == h.Generation {
		b.head.Store(int32(h.Offset))
	}
}

// TakeElement hands the oldest committed entry to the caller and advances
// the read cursor. The slot stays owned by the caller until Release. The
// caller must not hold more than one take at a time.
func (b *Buffer) TakeElement() (Handle, bool) {
	s, ok := b.update(func(s snapshot) (snapshot, bool) {
		if s.count() == 0 {
			return s, false
		}
		return pack(s.generation(), s.payload(), s.count()-1, s.reserved(), s.outstanding()+1), true
	})
	if !ok {
		return Handle{}, false
	}

	size := HeaderWords + s.payload()
	off, next := b.advance(cursor(&b.tail, &b.tailGen, s.generation()), size)
	b.tail.Store(int32(next))
	return Handle{Offset: off, Generation: s.generation(), Words: size}, true
}

// Release frees a slot returned by TakeElement.
func (b *Buffer) Release(h Handle) {
	b.update(func(s snapshot) (snapshot, bool) {
		if s.generation() != h.Generation || s.outstanding() == 0 {
			return s, false
		}
		return pack(s.generation(), s.payload(), s.count(), s.reserved(), s.outstanding()-1), true
	})
}

// Entry returns the words of the entry at h. The slice aliases the arena.
func (b *Buffer) Entry(h Handle) Entry {
	return Entry(b.arena[h.Offset : h.Offset+h.Words])
}
