// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package state

import "sync/atomic"

// Flag is one deferred action raised from register-write or interrupt
// context and serviced later by the dispatcher.
type Flag uint32

const (
	FlagDequeue Flag = 1 << iota
	FlagDisableCapture
	FlagEnableCapture
	FlagUserCommand
	FlagDIOOutputConfig
	FlagIMUSPIConfig
)

var flagNames = map[Flag]string{
	FlagDequeue:         "dequeue",
	FlagDisableCapture:  "disable-capture",
	FlagEnableCapture:   "enable-capture",
	FlagUserCommand:     "user-command",
	FlagDIOOutputConfig: "dio-output-config",
	FlagIMUSPIConfig:    "imu-spi-config",
}

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "unknown"
}

// Flags is the deferred-action bitmask. Register writes and interrupts
// raise bits; only the dispatcher takes them.
type Flags struct {
	bits atomic.Uint32
}

// Raise sets f. Enable and disable capture are mutually exclusive, so
// raising one drops the other.
func (fl *Flags) Raise(f Flag) {
	switch f {
	case FlagEnableCapture:
		fl.bits.And(^uint32(FlagDisableCapture))
	case FlagDisableCapture:
		fl.bits.And(^uint32(FlagEnableCapture))
	}
	fl.bits.Or(uint32(f))
}

// Pending reports whether f is raised.
func (fl *Flags) Pending(f Flag) bool {
	return fl.bits.Load()&uint32(f) != 0
}

// Take clears f and reports whether it was raised.
func (fl *Flags) Take(f Flag) bool {
	return fl.bits.And(^uint32(f))&uint32(f) != 0
}

// Load returns the raw bitmask.
func (fl *Flags) Load() Flag {
	return Flag(fl.bits.Load())
}
