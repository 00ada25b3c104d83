// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"errors"
	"io/fs"
	"log"

	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

type command struct {
	bit  uint16
	name string
	run  func(*Dispatcher)
}

// commands run in bit order when several are set in one write.
var commands = []command{
	{regmap.CmdClearBuffer, "clear buffer", (*Dispatcher).clearBuffer},
	{regmap.CmdFactoryReset, "factory reset", (*Dispatcher).factoryReset},
	{regmap.CmdFlashUpdate, "flash update", (*Dispatcher).flashUpdate},
	{regmap.CmdIMUReset, "IMU reset", (*Dispatcher).imuReset},
	{regmap.CmdPPSEnable, "PPS enable", (*Dispatcher).ppsEnable},
	{regmap.CmdPPSDisable, "PPS disable", (*Dispatcher).ppsDisable},
	{regmap.CmdSoftwareReset, "software reset", (*Dispatcher).softwareReset},
}

// userCommand executes USER_COMMAND and clears it.
func (d *Dispatcher) userCommand() {
	cmd := d.dev.Regs.Get(regmap.UserCommand)
	for _, c := range commands {
		if cmd&c.bit != 0 {
			log.Printf("bridge: command: %s", c.name)
			c.run(d)
		}
	}
	d.dev.Regs.Set(regmap.UserCommand, 0)
}

func (d *Dispatcher) clearBuffer() {
	d.dev.Buffer.Reset()
	d.dev.Regs.UnloadEntry()
}

func (d *Dispatcher) factoryReset() {
	d.dev.Regs.Defaults()
	d.dev.ApplyBufferConfig()
	d.dio.apply(d.dev.Regs.Get(regmap.DIOOutputConfig))
	d.applySPIConfig()
}

// flashUpdate persists the configuration page. The outcome is reported
// through the status register only.
func (d *Dispatcher) flashUpdate() {
	if d.opts.Store == nil {
		d.dev.Status.Set(state.StatusFlashError)
		return
	}
	img := d.dev.Regs.Snapshot()
	if err := d.opts.Store.Save(img); err != nil {
		log.Printf("bridge: flash update: %v", err)
		d.dev.Status.Set(state.StatusFlashError)
		return
	}
	d.dev.Regs.Set(regmap.FlashSig, regmap.Signature(img))
	d.dev.Status.Set(state.StatusFlashUpdate)
}

func (d *Dispatcher) imuReset() {
	if err := d.dev.IMU.Reset(); err != nil {
		log.Printf("bridge: IMU reset: %v", err)
	}
}

func (d *Dispatcher) ppsEnable() {
	rate := timebase.RateFromConfig(d.dev.Regs.Get(regmap.PPSConfig))
	d.dev.PPS.Enable(rate)
}

func (d *Dispatcher) ppsDisable() {
	d.dev.PPS.Disable()
}

// softwareReset restarts the core from the stored configuration. The PPS
// epoch survives.
func (d *Dispatcher) softwareReset() {
	d.dev.Capture.SetEnabled(false)
	d.dev.Regs.Defaults()
	d.Boot()
	d.applySPIConfig()
}

// loadStored restores the flash image when its signature checks out.
func (d *Dispatcher) loadStored() {
	if d.opts.Store == nil {
		return
	}
	img, err := d.opts.Store.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		log.Printf("bridge: flash load: %v", err)
		d.dev.Status.Set(state.StatusFlashError)
		return
	}
	n := d.dev.Regs.Restore(img)
	d.dev.Regs.Set(regmap.FlashSig, regmap.Signature(img))
	log.Printf("bridge: restored %d registers from flash", n)
}
