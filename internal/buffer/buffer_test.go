// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package buffer

import (
	"errors"
	"sync"
	"testing"
)

// fourEntryBuffer returns a buffer whose arena holds exactly four entries
// of ten payload words.
func fourEntryBuffer(t *testing.T) *Buffer {
	t.Helper()
	entryBytes := HeaderBytes + 10*2
	b, err := New(4*entryBytes, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func fill(t *testing.T, b *Buffer, seconds uint32) Handle {
	t.Helper()
	h, err := b.AddElement()
	if err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	e := b.Entry(h)
	e.SetTimestamp(seconds, seconds*10)
	for i := range e.Payload() {
		e.Payload()[i] = uint16(seconds)
	}
	if !b.Commit(h) {
		t.Fatalf("Commit returned false")
	}
	return h
}

func TestNewRejectsTinyArena(t *testing.T) {
	if _, err := New(4, 1); err == nil {
		t.Error("New(4, 1) succeeded, want error")
	}
}

func TestCapacityAndEntrySize(t *testing.T) {
	b := fourEntryBuffer(t)
	if b.EntryBytes() != 32 {
		t.Errorf("EntryBytes = %d, want 32", b.EntryBytes())
	}
	if b.Capacity() != 4 {
		t.Errorf("Capacity = %d, want 4", b.Capacity())
	}
}

func TestCanAddTracksUsedBytes(t *testing.T) {
	b := fourEntryBuffer(t)
	size := b.EntryBytes()

	for i := 0; i < 4; i++ {
		if !b.CanAdd(size) {
			t.Fatalf("CanAdd false with %d entries used", i)
		}
		fill(t, b, uint32(i))
	}
	if b.CanAdd(size) {
		t.Error("CanAdd true with arena full")
	}
	if _, err := b.AddElement(); !errors.Is(err, ErrFull) {
		t.Errorf("AddElement on full arena: err = %v, want ErrFull", err)
	}
}

func TestCountOnlyOnCommit(t *testing.T) {
	b := fourEntryBuffer(t)
	h, err := b.AddElement()
	if err != nil {
		t.Fatal(err)
	}
	if b.Count() != 0 {
		t.Errorf("Count after reserve = %d, want 0", b.Count())
	}
	if b.Entry(h).Committed() {
		t.Error("reserved entry already marked committed")
	}
	b.Commit(h)
	if b.Count() != 1 {
		t.Errorf("Count after commit = %d, want 1", b.Count())
	}
	if !b.Entry(h).Committed() {
		t.Error("committed entry not marked")
	}
}

func TestRingWrapsOnEntryBoundary(t *testing.T) {
	b := fourEntryBuffer(t)
	for i := 0; i < 4; i++ {
		fill(t, b, uint32(100+i))
	}

	// drain two, then add two: the new ones land in slots 0 and 1
	for i := 0; i < 2; i++ {
		h, ok := b.TakeElement()
		if !ok {
			t.Fatal("TakeElement failed")
		}
		if got := b.Entry(h).Seconds(); got != uint32(100+i) {
			t.Errorf("take %d seconds = %d, want %d", i, got, 100+i)
		}
		b.Release(h)
	}
	h := fill(t, b, 200)
	if h.Offset != 0 {
		t.Errorf("wrapped entry offset = %d, want 0", h.Offset)
	}
	fill(t, b, 201)

	want := []uint32{102, 103, 200, 201}
	for i, w := range want {
		h, ok := b.TakeElement()
		if !ok {
			t.Fatalf("take %d failed", i)
		}
		e := b.Entry(h)
		if e.Seconds() != w {
			t.Errorf("entry %d seconds = %d, want %d", i, e.Seconds(), w)
		}
		if e.Payload()[0] != uint16(w) {
			t.Errorf("entry %d payload = %d, want %d", i, e.Payload()[0], w)
		}
		b.Release(h)
	}
}

func TestWrapSkipsArenaSlack(t *testing.T) {
	entryBytes := HeaderBytes + 4*2
	// room for two entries plus a few spare words that never fit a third
	b, err := New(2*entryBytes+6, 4)
	if err != nil {
		t.Fatal(err)
	}
	if b.Capacity() != 2 {
		t.Fatalf("Capacity = %d, want 2", b.Capacity())
	}
	fill(t, b, 1)
	fill(t, b, 2)
	h, _ := b.TakeElement()
	b.Release(h)

	h = fill(t, b, 3)
	if h.Offset != 0 {
		t.Errorf("third entry offset = %d, want 0", h.Offset)
	}
}

func TestOutstandingTakeHoldsSlot(t *testing.T) {
	b := fourEntryBuffer(t)
	for i := 0; i < 4; i++ {
		fill(t, b, uint32(i))
	}
	h, _ := b.TakeElement()
	if b.CanAdd(b.EntryBytes()) {
		t.Error("slot reusable before Release")
	}
	b.Release(h)
	if !b.CanAdd(b.EntryBytes()) {
		t.Error("slot not reusable after Release")
	}
}

func TestResetDropsOldReservation(t *testing.T) {
	b := fourEntryBuffer(t)
	fill(t, b, 1)
	h, _ := b.AddElement()

	b.Reset()
	if b.Count() != 0 {
		t.Errorf("Count after reset = %d, want 0", b.Count())
	}
	if b.Commit(h) {
		t.Error("Commit of pre-reset reservation succeeded")
	}
	if b.Count() != 0 {
		t.Errorf("Count after stale commit = %d, want 0", b.Count())
	}
	if !b.CanAdd(4 * b.EntryBytes()) {
		t.Error("arena not fully free after reset")
	}
}

func TestResizeClamps(t *testing.T) {
	b := fourEntryBuffer(t)
	b.Resize(100)
	if b.PayloadWords() != MaxPayloadWords {
		t.Errorf("PayloadWords = %d, want %d", b.PayloadWords(), MaxPayloadWords)
	}
	b.Resize(0)
	if b.PayloadWords() != MinPayloadWords {
		t.Errorf("PayloadWords = %d, want %d", b.PayloadWords(), MinPayloadWords)
	}
}

func TestAbandonReturnsSlot(t *testing.T) {
	b := fourEntryBuffer(t)
	h, _ := b.AddElement()
	b.Abandon(h)
	h2, err := b.AddElement()
	if err != nil {
		t.Fatal(err)
	}
	if h2.Offset != h.Offset {
		t.Errorf("offset after abandon = %d, want %d", h2.Offset, h.Offset)
	}
}

func TestEntryChecksum(t *testing.T) {
	e := make(Entry, HeaderWords+3)
	e.SetTimestamp(0x00010002, 0x00030004)
	copy(e.Payload(), []uint16{5, 6, 0xFFFF})
	sum := Checksum(TimestampChecksum(e.Seconds(), e.Micros()), e.Payload())
	e.SetChecksum(sum)

	if want := uint16(20); sum != want { // 1+2+3+4+5+6+0xFFFF wraps to 20
		t.Errorf("checksum = 0x%04X, want 0x%04X", sum, want)
	}
	if !e.Valid() {
		t.Error("Valid() = false")
	}
	e.Payload()[0]++
	if e.Valid() {
		t.Error("Valid() = true after corruption")
	}
}

func TestNewRejectsOversizedArena(t *testing.T) {
	if _, err := New(MaxArenaBytes+2, 1); err == nil {
		t.Error("New accepted an arena past MaxArenaBytes")
	}
}

func TestResizeKeepsReservationAddressable(t *testing.T) {
	b := fourEntryBuffer(t)
	h, err := b.AddElement()
	if err != nil {
		t.Fatal(err)
	}
	b.Resize(MaxPayloadWords)

	if got := len(b.Entry(h)); got != HeaderWords+10 {
		t.Errorf("stale entry length = %d, want %d", got, HeaderWords+10)
	}
	if b.Commit(h) {
		t.Error("Commit after resize succeeded")
	}
	if b.Count() != 0 {
		t.Errorf("Count = %d, want 0", b.Count())
	}
}

func TestStaleTakeAndReleaseAfterReset(t *testing.T) {
	b := fourEntryBuffer(t)
	fill(t, b, 1)
	fill(t, b, 2)
	h, _ := b.TakeElement()

	b.Reset()
	b.Release(h)
	if b.Count() != 0 {
		t.Errorf("Count = %d, want 0", b.Count())
	}
	if !b.CanAdd(4 * b.EntryBytes()) {
		t.Error("stale release left a slot held")
	}
	// both cursors start over in the new generation
	h = fill(t, b, 3)
	if h.Offset != 0 {
		t.Errorf("first offset after reset = %d, want 0", h.Offset)
	}
	h, ok := b.TakeElement()
	if !ok || h.Offset != 0 || b.Entry(h).Seconds() != 3 {
		t.Errorf("take after reset = %+v, %v", h, ok)
	}
}

func TestResetConcurrentWithProducerAndConsumer(t *testing.T) {
	b := fourEntryBuffer(t)
	const rounds = 5000

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if h, err := b.AddElement(); err == nil {
				b.Commit(h)
			}
		}
	}()
	errs := make(chan string, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if n := b.Count(); n > b.Capacity() {
				select {
				case errs <- "count above capacity":
				default:
				}
			}
			if h, ok := b.TakeElement(); ok {
				b.Release(h)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds/10; i++ {
			b.Reset()
		}
	}()
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	for {
		h, ok := b.TakeElement()
		if !ok {
			break
		}
		b.Release(h)
	}
	if b.Count() != 0 || !b.CanAdd(4*b.EntryBytes()) {
		t.Errorf("slots leaked: count=%d", b.Count())
	}
}
