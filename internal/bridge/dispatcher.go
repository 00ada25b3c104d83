// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

// Transport is a host console whose requests run on the dispatcher.
// Service must not block: it handles what is queued and returns.
type Transport interface {
	Service(d *Dispatcher)
}

// Sink receives streamed entries.
type Sink interface {
	Publish(rec imu.Record) error
}

// EpochSource offers absolute PPS-seconds, e.g. from a GNSS receiver.
type EpochSource interface {
	TakeEpoch() (uint32, bool)
}

// Store persists the configuration registers.
type Store interface {
	Load() (map[string]uint16, error)
	Save(map[string]uint16) error
}

// Options configure a Dispatcher. Every field is optional.
type Options struct {
	Transports []Transport
	Sinks      []Sink
	Epoch      EpochSource
	Store      Store
	Pins       DIOPins
	// Idle is slept after every pass; zero spins.
	Idle time.Duration
}

// maxStreamBatch bounds entries moved per check-stream pass.
const maxStreamBatch = 64

type step struct {
	name string
	run  func(*Dispatcher)
}

// steps is the round robin, one per pass.
var steps = []step{
	{"check-flags", (*Dispatcher).checkFlags},
	{"check-pps", (*Dispatcher).checkPPS},
	{"reserved", func(*Dispatcher) {}},
	{"check-transport", (*Dispatcher).checkTransport},
	{"check-stream", (*Dispatcher).checkStream},
}

type flagHandler struct {
	flag state.Flag
	run  func(*Dispatcher)
}

// flagTable is in priority order; check-flags services the first pending.
var flagTable = []flagHandler{
	{state.FlagDisableCapture, (*Dispatcher).disableCapture},
	{state.FlagEnableCapture, (*Dispatcher).enableCapture},
	{state.FlagUserCommand, (*Dispatcher).userCommand},
	{state.FlagDIOOutputConfig, (*Dispatcher).applyDIOConfig},
	{state.FlagIMUSPIConfig, (*Dispatcher).applySPIConfig},
}

// Dispatcher is the single-threaded cyclic loop. Step and Run must only
// be called from one goroutine.
type Dispatcher struct {
	dev  *Device
	opts Options

	next int
	dio  dioOutputs

	streaming atomic.Bool
	passes    atomic.Uint64
	dequeues  atomic.Uint64
	streamed  atomic.Uint64
	seeds     atomic.Uint64
}

// NewDispatcher returns a dispatcher over dev.
func NewDispatcher(dev *Device, opts Options) *Dispatcher {
	return &Dispatcher{
		dev:  dev,
		opts: opts,
		dio:  dioOutputs{pins: opts.Pins},
	}
}

// Device returns the aggregate the dispatcher serves.
func (d *Dispatcher) Device() *Device {
	return d.dev
}

// Boot overlays the stored configuration on the defaults and sizes the
// buffer to match. A missing or damaged image leaves the defaults.
func (d *Dispatcher) Boot() {
	d.loadStored()
	d.dev.ApplyBufferConfig()
	d.dio.apply(d.dev.Regs.Get(regmap.DIOOutputConfig))
}

// SetStreaming turns the check-stream state on or off.
func (d *Dispatcher) SetStreaming(on bool) {
	d.streaming.Store(on)
}

// Streaming reports whether entries are being streamed.
func (d *Dispatcher) Streaming() bool {
	return d.streaming.Load()
}

// CurrentStep names the state the next pass will run.
func (d *Dispatcher) CurrentStep() string {
	return steps[d.next].name
}

// Step runs one pass: a pending dequeue first, then the DIO outputs,
// then the current state.
func (d *Dispatcher) Step() {
	if d.dev.Flags.Take(state.FlagDequeue) {
		d.dequeue()
	}
	d.dio.refresh(d.dev)

	s := steps[d.next]
	d.next = (d.next + 1) % len(steps)
	s.run(d)
	d.passes.Add(1)
}

// Run steps until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Printf("bridge: dispatcher running (idle %v)", d.opts.Idle)
	if d.opts.Idle <= 0 {
		for ctx.Err() == nil {
			d.Step()
		}
		return ctx.Err()
	}

	ticker := time.NewTicker(d.opts.Idle)
	defer ticker.Stop()
	for {
		d.Step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dequeue copies the oldest entry into the read page window and frees its
// slot. An empty buffer unloads the window.
func (d *Dispatcher) dequeue() {
	buf := d.dev.Buffer
	h, ok := buf.TakeElement()
	if !ok {
		d.dev.Regs.UnloadEntry()
		return
	}
	e := buf.Entry(h).Clone()
	buf.Release(h)
	d.dev.Regs.LoadEntry(e)
	d.dequeues.Add(1)
}

func (d *Dispatcher) checkFlags() {
	for _, h := range flagTable {
		if d.dev.Flags.Take(h.flag) {
			h.run(d)
			return
		}
	}
}

func (d *Dispatcher) disableCapture() {
	d.dev.Capture.SetEnabled(false)
	log.Printf("bridge: capture disabled")
}

func (d *Dispatcher) enableCapture() {
	d.dev.Capture.SetEnabled(true)
	log.Printf("bridge: capture enabled (%d words/entry, %d entries)",
		d.dev.Buffer.PayloadWords(), d.dev.Buffer.Capacity())
}

func (d *Dispatcher) applyDIOConfig() {
	d.dio.apply(d.dev.Regs.Get(regmap.DIOOutputConfig))
}

func (d *Dispatcher) applySPIConfig() {
	cfg := imu.SPIConfigFromRegister(d.dev.Regs.Get(regmap.IMUSPIConfig))
	if err := d.dev.IMU.Configure(cfg); err != nil {
		log.Printf("bridge: IMU SPI config: %v", err)
	}
}

func (d *Dispatcher) checkPPS() {
	d.dev.PPS.Poll()
	if d.opts.Epoch == nil {
		return
	}
	sec, ok := d.opts.Epoch.TakeEpoch()
	if !ok {
		return
	}
	cur := d.dev.PPS.Epoch()
	diff := int64(sec) - int64(cur)
	if diff > 1 || diff < -1 {
		d.dev.PPS.SetEpoch(sec)
		d.seeds.Add(1)
		log.Printf("bridge: PPS epoch seeded %d -> %d", cur, sec)
	}
}

func (d *Dispatcher) checkTransport() {
	for _, t := range d.opts.Transports {
		t.Service(d)
	}
}

// TakeRecord moves the oldest committed entry out of the buffer.
func (d *Dispatcher) TakeRecord() (imu.Record, bool) {
	buf := d.dev.Buffer
	h, ok := buf.TakeElement()
	if !ok {
		return imu.Record{}, false
	}
	rec := imu.NewRecord(buf.Entry(h))
	buf.Release(h)
	return rec, true
}

// Submit queues USER_COMMAND bits as if the master had written them.
func (d *Dispatcher) Submit(cmd uint16) {
	d.dev.Regs.Set(regmap.UserCommand, cmd)
	d.dev.Flags.Raise(state.FlagUserCommand)
}

func (d *Dispatcher) checkStream() {
	if !d.streaming.Load() || len(d.opts.Sinks) == 0 {
		return
	}
	for i := 0; i < maxStreamBatch; i++ {
		rec, ok := d.TakeRecord()
		if !ok {
			return
		}
		for _, s := range d.opts.Sinks {
			if err := s.Publish(rec); err != nil {
				log.Printf("bridge: stream publish: %v", err)
			}
		}
		d.streamed.Add(1)
	}
}
