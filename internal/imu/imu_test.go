// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"testing"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
)

func TestFrames(t *testing.T) {
	if got := ReadFrame(0x72); got != 0x7200 {
		t.Errorf("ReadFrame(0x72) = 0x%04X, want 0x7200", got)
	}
	if got := ReadFrame(0x80); got != 0x0000 {
		t.Errorf("ReadFrame(0x80) = 0x%04X, want 0x0000", got)
	}
	if got := WriteFrame(0x68, 0x01); got != 0xE801 {
		t.Errorf("WriteFrame(0x68, 1) = 0x%04X, want 0xE801", got)
	}
}

func TestSPIConfigFromRegister(t *testing.T) {
	tests := []struct {
		reg   uint16
		hz    int64
		stall int
	}{
		{0x140A, 1_000_000, 20},
		{0x0514, 2_000_000, 5},
		{0x0000, 1_000_000, 20},
	}
	for _, tt := range tests {
		got := SPIConfigFromRegister(tt.reg)
		if got.ClockHz != tt.hz || got.StallMicros != tt.stall {
			t.Errorf("SPIConfigFromRegister(0x%04X) = %+v, want %d Hz / %d us", tt.reg, got, tt.hz, tt.stall)
		}
	}
}

func TestMockBurstDecodes(t *testing.T) {
	m := NewMock()
	rx := make([]uint16, BurstWords)
	done := 0
	if err := m.StartBurst(nil, rx, func() { done++ }); err != nil {
		t.Fatal(err)
	}
	if done != 1 {
		t.Fatalf("done called %d times, want 1", done)
	}
	if !BurstChecksumOK(rx) {
		t.Error("mock burst checksum invalid")
	}
	s, err := DecodeBurst(rx)
	if err != nil {
		t.Fatal(err)
	}
	if s.DataCounter != 1 {
		t.Errorf("DataCounter = %d, want 1", s.DataCounter)
	}
	if s.Az != -4000 {
		t.Errorf("Az = %d, want -4000", s.Az)
	}
}

func TestMockManualCompletion(t *testing.T) {
	m := NewMock()
	m.Manual = true
	done := false
	m.StartBurst([]uint16{0x7200}, make([]uint16, 2), func() { done = true })
	if done {
		t.Fatal("manual burst completed early")
	}
	if !m.Complete() || !done {
		t.Error("Complete did not run the pending callback")
	}
	if m.Complete() {
		t.Error("Complete with nothing pending returned true")
	}
}

func TestMockRegisterBytes(t *testing.T) {
	m := NewMock()
	m.WriteRegister(0x10, 0x34)
	got, _ := m.WriteRegister(0x11, 0x12)
	if got != 0x1234 {
		t.Errorf("echo = 0x%04X, want 0x1234", got)
	}
	if v, _ := m.ReadRegister(0x10); v != 0x1234 {
		t.Errorf("read = 0x%04X, want 0x1234", v)
	}
	if n := len(m.Accesses()); n != 3 {
		t.Errorf("accesses = %d, want 3", n)
	}
}

func TestNewRecordShortPayload(t *testing.T) {
	e := make(buffer.Entry, buffer.HeaderWords+2)
	e.SetTimestamp(7, 99)
	r := NewRecord(e)
	if r.Sample != nil {
		t.Error("Sample decoded from a 2-word payload")
	}
	if r.PPSSeconds != 7 || r.Micros != 99 || len(r.Words) != 2 {
		t.Errorf("record = %+v", r)
	}
}
