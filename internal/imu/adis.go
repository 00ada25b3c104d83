// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

const (
	resetPulse  = 10 * time.Millisecond
	resetSettle = 310 * time.Millisecond
)

// ADIS drives an ADIS-style IMU over a Linux SPI device with 16-bit frames.
// Chip select is toggled per frame when a CS pin is given, otherwise the
// controller's own CS is used.
type ADIS struct {
	port spi.PortCloser
	conn spi.Conn
	cs   gpio.PinOut // nil: hardware CS
	rst  gpio.PinOut // nil: no reset line

	// bus serialises passthrough frames against a running burst
	bus   sync.Mutex
	stall time.Duration
}

// NewADIS opens spiDev and resolves the optional CS and reset pins. The
// periph host must already be initialised.
func NewADIS(spiDev, csPin, resetPin string, cfg SPIConfig) (*ADIS, error) {
	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("adis: open %s: %w", spiDev, err)
	}

	mode := spi.Mode3
	d := &ADIS{port: port}
	if csPin != "" {
		pin := gpioreg.ByName(csPin)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("adis: CS pin %q not found", csPin)
		}
		if err := pin.Out(gpio.High); err != nil {
			port.Close()
			return nil, fmt.Errorf("adis: CS pin %s: %w", csPin, err)
		}
		d.cs = pin
		mode |= spi.NoCS
	}
	if resetPin != "" {
		pin := gpioreg.ByName(resetPin)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("adis: reset pin %q not found", resetPin)
		}
		if err := pin.Out(gpio.High); err != nil {
			port.Close()
			return nil, fmt.Errorf("adis: reset pin %s: %w", resetPin, err)
		}
		d.rst = pin
	}

	if err := d.connect(mode, cfg); err != nil {
		port.Close()
		return nil, fmt.Errorf("adis: connect %s: %w", spiDev, err)
	}
	log.Printf("adis: %s at %d Hz, stall %v", spiDev, cfg.ClockHz, d.stall)
	return d, nil
}

// connect opens the device with no per-device rate cap; the SCLK rate is
// carried by the port limit alone so Configure can raise it later.
func (d *ADIS) connect(mode spi.Mode, cfg SPIConfig) error {
	if err := d.port.LimitSpeed(physic.Frequency(cfg.ClockHz) * physic.Hertz); err != nil {
		return fmt.Errorf("set speed %d Hz: %w", cfg.ClockHz, err)
	}
	conn, err := d.port.Connect(0, mode, 8)
	if err != nil {
		return err
	}
	d.conn = conn
	d.stall = time.Duration(cfg.StallMicros) * time.Microsecond
	return nil
}

// Close releases the SPI port.
func (d *ADIS) Close() error {
	return d.port.Close()
}

// frames clocks out words, one CS window each, and returns what came back.
// The caller holds the bus.
func (d *ADIS) frames(tx []uint16, rx []uint16) error {
	var w, r [2]byte
	for i, word := range tx {
		w[0], w[1] = byte(word>>8), byte(word)
		if err := d.chipSelect(true); err != nil {
			return err
		}
		err := d.conn.Tx(w[:], r[:])
		if cerr := d.chipSelect(false); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("adis: frame %d: %w", i, err)
		}
		if rx != nil {
			rx[i] = uint16(r[0])<<8 | uint16(r[1])
		}
		time.Sleep(d.stall)
	}
	return nil
}

func (d *ADIS) chipSelect(active bool) error {
	if d.cs == nil {
		return nil
	}
	if active {
		return d.cs.Out(gpio.Low)
	}
	return d.cs.Out(gpio.High)
}

// ReadRegister sends the read frame then a dummy frame that clocks the
// answer back.
func (d *ADIS) ReadRegister(addr uint8) (uint16, error) {
	d.bus.Lock()
	defer d.bus.Unlock()

	var rx [2]uint16
	if err := d.frames([]uint16{ReadFrame(addr), 0}, rx[:]); err != nil {
		return 0, err
	}
	return rx[1], nil
}

// WriteRegister writes one byte and reads the word back.
func (d *ADIS) WriteRegister(addr, value uint8) (uint16, error) {
	d.bus.Lock()
	defer d.bus.Unlock()

	if err := d.frames([]uint16{WriteFrame(addr, value)}, nil); err != nil {
		return 0, err
	}
	var rx [2]uint16
	if err := d.frames([]uint16{ReadFrame(addr &^ 1), 0}, rx[:]); err != nil {
		return 0, err
	}
	return rx[1], nil
}

// StartBurst runs the transfer on its own goroutine and calls done when
// it ends, failed or not. A native burst is one continuous CS window: the
// command word followed by len(rx) words, the first response discarded.
// With tx set each word is its own frame and rx[i] receives the reply
// clocked out during frame i.
func (d *ADIS) StartBurst(tx, rx []uint16, done func()) error {
	if len(rx) == 0 {
		return fmt.Errorf("adis: empty burst")
	}
	go func() {
		defer done()
		d.bus.Lock()
		defer d.bus.Unlock()

		var err error
		if tx == nil {
			err = d.nativeBurst(rx)
		} else {
			out := make([]uint16, len(rx))
			copy(out, tx)
			err = d.frames(out, rx)
		}
		if err != nil {
			log.Printf("adis: burst: %v", err)
		}
	}()
	return nil
}

func (d *ADIS) nativeBurst(rx []uint16) error {
	n := (len(rx) + 1) * 2
	w := make([]byte, n)
	r := make([]byte, n)
	w[0], w[1] = byte(burstCommand>>8), byte(burstCommand&0xFF)

	if err := d.chipSelect(true); err != nil {
		return err
	}
	err := d.conn.Tx(w, r)
	if cerr := d.chipSelect(false); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	for i := range rx {
		rx[i] = uint16(r[2+2*i])<<8 | uint16(r[3+2*i])
	}
	time.Sleep(d.stall)
	return nil
}

// Configure changes the SCLK limit and stall time for later transfers.
func (d *ADIS) Configure(cfg SPIConfig) error {
	d.bus.Lock()
	defer d.bus.Unlock()

	if err := d.port.LimitSpeed(physic.Frequency(cfg.ClockHz) * physic.Hertz); err != nil {
		return fmt.Errorf("adis: set speed %d Hz: %w", cfg.ClockHz, err)
	}
	d.stall = time.Duration(cfg.StallMicros) * time.Microsecond
	log.Printf("adis: SPI reconfigured to %d Hz, stall %v", cfg.ClockHz, d.stall)
	return nil
}

// Reset holds the reset line low, then waits for the IMU to boot.
func (d *ADIS) Reset() error {
	if d.rst == nil {
		return fmt.Errorf("adis: no reset pin configured")
	}
	d.bus.Lock()
	defer d.bus.Unlock()

	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("adis: reset low: %w", err)
	}
	time.Sleep(resetPulse)
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("adis: reset high: %w", err)
	}
	time.Sleep(resetSettle)
	return nil
}
