// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"testing"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakePort records the rates handed to it. Transfers run at the lower of
// the connect rate and the port limit, zero meaning no cap.
type fakePort struct {
	connectHz physic.Frequency
	limitHz   physic.Frequency
	conn      *fakeConn
}

// fakeConn keeps the last write and answers with reply.
type fakeConn struct {
	spi.Conn
	written []byte
	reply   []byte
}

func (c *fakeConn) Tx(w, r []byte) error {
	c.written = append([]byte(nil), w...)
	copy(r, c.reply)
	return nil
}

func (p *fakePort) String() string { return "fake" }
func (p *fakePort) Close() error   { return nil }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.connectHz = f
	p.conn = &fakeConn{}
	return p.conn, nil
}

func (p *fakePort) LimitSpeed(f physic.Frequency) error {
	p.limitHz = f
	return nil
}

func (p *fakePort) effective() physic.Frequency {
	f := p.limitHz
	if p.connectHz != 0 && (f == 0 || p.connectHz < f) {
		f = p.connectHz
	}
	return f
}

func TestConfigureRaisesClockAboveBootRate(t *testing.T) {
	port := &fakePort{}
	d := &ADIS{port: port}
	if err := d.connect(spi.Mode3, SPIConfigFromRegister(0)); err != nil {
		t.Fatal(err)
	}
	if got := port.effective(); got != physic.MegaHertz {
		t.Fatalf("boot rate = %v, want 1MHz", got)
	}

	// 0x14: 2 MHz, 0x0A00: 10 us stall
	if err := d.Configure(SPIConfigFromRegister(0x0A14)); err != nil {
		t.Fatal(err)
	}
	if got := port.effective(); got != 2*physic.MegaHertz {
		t.Errorf("rate after Configure = %v, want 2MHz", got)
	}
	if d.stall.Microseconds() != 10 {
		t.Errorf("stall = %v, want 10us", d.stall)
	}
}

func TestNativeBurstFraming(t *testing.T) {
	port := &fakePort{}
	d := &ADIS{port: port}
	if err := d.connect(spi.Mode3, SPIConfig{ClockHz: 1_000_000}); err != nil {
		t.Fatal(err)
	}
	port.conn.reply = []byte{0xFF, 0xFF, 0x12, 0x34, 0xF0, 0x60}

	rx := make([]uint16, 2)
	if err := d.nativeBurst(rx); err != nil {
		t.Fatal(err)
	}
	w := port.conn.written
	if len(w) != 6 || w[0] != 0x68 || w[1] != 0x00 {
		t.Errorf("burst frame = % X, want 68 00 then four zero bytes", w)
	}
	if rx[0] != 0x1234 || rx[1] != 0xF060 {
		t.Errorf("rx = %04X, want [1234 F060]", rx)
	}
}
