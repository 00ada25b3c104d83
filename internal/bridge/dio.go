// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"log"

	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

// DIOPins are the interrupt output lines. Nil pins are skipped.
type DIOPins struct {
	Watermark gpio.PinOut
	Overrun   gpio.PinOut
	Error     gpio.PinOut
}

type dioOutputs struct {
	pins   DIOPins
	config uint16 // DIO_OUTPUT_CONFIG as last applied
	levels [3]gpio.Level
}

// apply latches a new output configuration and drops every pin low.
func (o *dioOutputs) apply(cfg uint16) {
	o.config = cfg
	for i, p := range o.list() {
		o.drive(i, p, gpio.Low, true)
	}
}

func (o *dioOutputs) list() [3]gpio.PinOut {
	return [3]gpio.PinOut{o.pins.Watermark, o.pins.Overrun, o.pins.Error}
}

// refresh sets each enabled pin from the live buffer and status state.
func (o *dioOutputs) refresh(d *Device) {
	if o.config == 0 {
		return
	}
	status := d.Status.Peek()
	wm := int(d.Regs.Get(regmap.WaterIntConfig))
	want := [3]bool{
		o.config&regmap.DIOOutputWatermark != 0 && wm > 0 && d.Buffer.Count() >= wm,
		o.config&regmap.DIOOutputOverrun != 0 && status&state.StatusOverrun != 0,
		o.config&regmap.DIOOutputError != 0 && status&d.Regs.Get(regmap.ErrorIntConfig) != 0,
	}
	for i, p := range o.list() {
		o.drive(i, p, gpio.Level(want[i]), false)
	}
}

func (o *dioOutputs) drive(i int, p gpio.PinOut, l gpio.Level, force bool) {
	if p == nil || (!force && o.levels[i] == l) {
		return
	}
	if err := p.Out(l); err != nil {
		log.Printf("bridge: DIO %s: %v", p.Name(), err)
		return
	}
	o.levels[i] = l
}
