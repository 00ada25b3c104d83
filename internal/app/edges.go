// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
)

// edgePoll bounds WaitForEdge so watchers notice cancellation.
const edgePoll = 250 * time.Millisecond

// edgeWatcher turns GPIO edges into handler calls. Polarity is read from
// DIO_INPUT_CONFIG on every edge, so changes apply without a restart.
type edgeWatcher struct {
	name      string
	pin       gpio.PinIn
	regs      *regmap.Map
	risingBit uint16 // DIO_INPUT_CONFIG bit selecting the rising edge
	handler   func()
}

func newEdgeWatcher(name, pinName string, regs *regmap.Map, risingBit uint16, handler func()) (*edgeWatcher, error) {
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("%s: pin %q not found", name, pinName)
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("%s: configure %s: %w", name, pinName, err)
	}
	log.Printf("edges: %s on %s", name, pinName)
	return &edgeWatcher{name: name, pin: pin, regs: regs, risingBit: risingBit, handler: handler}, nil
}

// accept reports whether an edge that left the pin at level is the
// configured one.
func (w *edgeWatcher) accept(level gpio.Level) bool {
	rising := w.regs.Get(regmap.DIOInputConfig)&w.risingBit != 0
	return level == gpio.Level(rising)
}

func (w *edgeWatcher) run(ctx context.Context) {
	for ctx.Err() == nil {
		if !w.pin.WaitForEdge(edgePoll) {
			continue
		}
		if w.accept(w.pin.Read()) {
			w.handler()
		}
	}
	w.pin.Halt()
	log.Printf("edges: %s watcher stopped", w.name)
}

// startEdgeWatchers wires the data-ready and PPS inputs to dev.
func startEdgeWatchers(ctx context.Context, dev *bridge.Device, drPin, ppsPin string) error {
	dr, err := newEdgeWatcher("data-ready", drPin, dev.Regs, regmap.DIOInputDRRising, dev.DataReady)
	if err != nil {
		return err
	}
	go dr.run(ctx)

	if ppsPin == "" {
		log.Println("edges: no PPS pin configured")
		return nil
	}
	pps, err := newEdgeWatcher("pps", ppsPin, dev.Regs, regmap.DIOInputPPSRising, dev.PPSEdge)
	if err != nil {
		return err
	}
	go pps.run(ctx)
	return nil
}

// outPin resolves an optional output pin and drives it low.
func outPin(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("output pin %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("output pin %s: %w", name, err)
	}
	return pin, nil
}
