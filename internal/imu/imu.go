// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu holds the IMU collaborator: the interface the bridge core
// drives, a periph.io SPI implementation for ADIS-style 16-bit IMUs, an
// in-memory mock, and decoding of burst words.
package imu

// Device is the IMU driver as seen by the bridge.
type Device interface {
	// ReadRegister reads one 16-bit register at a byte address.
	ReadRegister(addr uint8) (uint16, error)
	// WriteRegister writes one byte and returns the word the IMU echoed.
	WriteRegister(addr, value uint8) (uint16, error)
	// StartBurst begins an asynchronous burst into rx. tx holds the words
	// to transmit, or nil for the IMU's native burst command. done runs
	// exactly once, from the completion context, after both directions
	// finished. StartBurst itself never blocks on the transfer.
	StartBurst(tx, rx []uint16, done func()) error
	// Configure applies SPI clock and stall settings.
	Configure(cfg SPIConfig) error
	// Reset pulses the IMU hardware reset line.
	Reset() error
}

// SPIConfig is the decoded IMU_SPI_CONFIG register.
type SPIConfig struct {
	ClockHz     int64
	StallMicros int
}

const (
	clockUnitHz    = 100_000
	defaultClockHz = 1_000_000
	defaultStallUs = 20
)

// SPIConfigFromRegister decodes IMU_SPI_CONFIG: the low byte is the SCLK
// rate in 100 kHz units, the high byte the stall time in microseconds.
// Zero fields fall back to 1 MHz and 20 us.
func SPIConfigFromRegister(v uint16) SPIConfig {
	cfg := SPIConfig{
		ClockHz:     int64(v&0xFF) * clockUnitHz,
		StallMicros: int(v >> 8),
	}
	if cfg.ClockHz == 0 {
		cfg.ClockHz = defaultClockHz
	}
	if cfg.StallMicros == 0 {
		cfg.StallMicros = defaultStallUs
	}
	return cfg
}

// Frame encodings for 16-bit register access.
const (
	burstCommand uint16 = 0x6800
	writeBit     uint16 = 0x8000
)

// ReadFrame is the MOSI word that requests the register at addr.
func ReadFrame(addr uint8) uint16 {
	return uint16(addr)<<8&0x7FFF
}

// WriteFrame is the MOSI word that writes value to addr.
func WriteFrame(addr, value uint8) uint16 {
	return writeBit | uint16(addr)<<8 | uint16(value)
}
