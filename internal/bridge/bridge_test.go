// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bridge

import (
	"errors"
	"io/fs"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

type memStore struct {
	img   map[string]uint16
	err   error
	saves int
}

func (s *memStore) Load() (map[string]uint16, error) {
	if s.img == nil {
		return nil, fs.ErrNotExist
	}
	return s.img, nil
}

func (s *memStore) Save(img map[string]uint16) error {
	if s.err != nil {
		return s.err
	}
	s.img = img
	s.saves++
	return nil
}

type recSink struct{ recs []imu.Record }

func (s *recSink) Publish(r imu.Record) error {
	s.recs = append(s.recs, r)
	return nil
}

type fixedEpoch struct {
	sec  uint32
	used bool
}

func (f *fixedEpoch) TakeEpoch() (uint32, bool) {
	if f.used {
		return 0, false
	}
	f.used = true
	return f.sec, true
}

type rig struct {
	d     *Dispatcher
	dev   *Device
	imu   *imu.Mock
	clock *timebase.ManualClock
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	m := imu.NewMock()
	clock := &timebase.ManualClock{}
	dev, err := NewDevice(m, clock, 0, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(dev, opts)
	d.Boot()
	return &rig{d: d, dev: dev, imu: m, clock: clock}
}

// cycle runs one full round of the dispatcher states.
func (r *rig) cycle() {
	for range steps {
		r.d.Step()
	}
}

func (r *rig) writeWord(idx int, v uint16) {
	addr := uint8(idx%regmap.RegsPerPage) * 2
	r.dev.Regs.Write(addr, uint8(v))
	r.dev.Regs.Write(addr+1, uint8(v>>8))
}

func (r *rig) command(bits uint16) {
	r.dev.Regs.Write(0, regmap.PageConfig)
	r.writeWord(regmap.UserCommand, bits)
	r.cycle()
}

func TestStepOrder(t *testing.T) {
	r := newRig(t, Options{})
	want := []string{"check-flags", "check-pps", "reserved", "check-transport", "check-stream", "check-flags"}
	for i, w := range want {
		if got := r.d.CurrentStep(); got != w {
			t.Errorf("pass %d: step = %s, want %s", i, got, w)
		}
		r.d.Step()
	}
}

func TestCaptureAndRetrieve(t *testing.T) {
	r := newRig(t, Options{})
	r.dev.PPS.SetEpoch(77)

	r.dev.Regs.Write(0, regmap.PageRead)
	r.d.Step()
	if !r.dev.Capture.Enabled() {
		t.Fatal("capture not enabled after entering read page")
	}

	r.dev.DataReady()
	r.dev.DataReady()
	if r.dev.Buffer.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.dev.Buffer.Count())
	}

	if got := r.dev.Regs.Read(uint8(regmap.BufRetrieve%regmap.RegsPerPage) * 2); got != 0 {
		t.Errorf("retrieve = %d", got)
	}
	// the dequeue runs ahead of whatever state is current
	r.d.Step()

	base := uint8(regmap.BufEntry0%regmap.RegsPerPage) * 2
	if got := r.dev.Regs.Read(base); got != 77 {
		t.Errorf("window seconds = %d, want 77", got)
	}
	if r.dev.Buffer.Count() != 1 {
		t.Errorf("count after dequeue = %d, want 1", r.dev.Buffer.Count())
	}
	if !r.dev.Buffer.CanAdd(r.dev.Buffer.Capacity()*r.dev.Buffer.EntryBytes() - r.dev.Buffer.EntryBytes()) {
		t.Error("dequeued slot still held")
	}

	r.dev.Regs.Write(0, regmap.PageConfig)
	r.cycle()
	if r.dev.Capture.Enabled() {
		t.Error("capture still enabled after leaving read page")
	}
}

func TestDequeueEmptyUnloads(t *testing.T) {
	r := newRig(t, Options{})
	r.dev.Regs.LoadEntry(make([]uint16, 8))
	r.dev.Flags.Raise(state.FlagDequeue)
	r.d.Step()
	if r.dev.Regs.LoadedEntry() != nil {
		t.Error("window still loaded after empty dequeue")
	}
}

func TestFlagPriority(t *testing.T) {
	r := newRig(t, Options{})
	f := r.dev.Flags
	f.Raise(state.FlagIMUSPIConfig)
	f.Raise(state.FlagDIOOutputConfig)
	f.Raise(state.FlagUserCommand)
	f.Raise(state.FlagEnableCapture)

	want := []state.Flag{
		state.FlagEnableCapture,
		state.FlagUserCommand,
		state.FlagDIOOutputConfig,
		state.FlagIMUSPIConfig,
	}
	for _, w := range want {
		if !f.Pending(w) {
			t.Fatalf("%v serviced early", w)
		}
		r.cycle()
		if f.Pending(w) {
			t.Errorf("%v not serviced in its turn", w)
		}
	}
}

func TestDisableBeatsEnable(t *testing.T) {
	r := newRig(t, Options{})
	r.dev.Capture.SetEnabled(true)
	r.dev.Flags.Raise(state.FlagEnableCapture)
	r.dev.Flags.Raise(state.FlagDisableCapture)
	r.cycle()
	if r.dev.Capture.Enabled() {
		t.Error("capture enabled; disable should win")
	}
}

func TestSPIConfigAppliedOnUpperWrite(t *testing.T) {
	r := newRig(t, Options{})
	r.writeWord(regmap.IMUSPIConfig, 0x0514)
	r.cycle()
	if got := r.imu.Config(); got.ClockHz != 2_000_000 || got.StallMicros != 5 {
		t.Errorf("IMU config = %+v", got)
	}
}

func TestUserCommands(t *testing.T) {
	t.Run("clear buffer", func(t *testing.T) {
		r := newRig(t, Options{})
		r.dev.Capture.SetEnabled(true)
		r.dev.DataReady()
		r.command(regmap.CmdClearBuffer)
		if r.dev.Buffer.Count() != 0 {
			t.Errorf("count = %d", r.dev.Buffer.Count())
		}
		if r.dev.Regs.Get(regmap.UserCommand) != 0 {
			t.Error("USER_COMMAND not cleared")
		}
	})

	t.Run("pps enable latches rate", func(t *testing.T) {
		r := newRig(t, Options{})
		r.writeWord(regmap.PPSConfig, 2)
		r.command(regmap.CmdPPSEnable)
		if !r.dev.PPS.Enabled() || r.dev.PPS.Rate() != 100 {
			t.Errorf("pps enabled=%v rate=%d", r.dev.PPS.Enabled(), r.dev.PPS.Rate())
		}
		r.writeWord(regmap.PPSConfig, 3)
		if r.dev.PPS.Rate() != 100 {
			t.Error("rate followed PPS_CONFIG without re-enable")
		}
		r.command(regmap.CmdPPSDisable)
		if r.dev.PPS.Enabled() {
			t.Error("pps still enabled")
		}
	})

	t.Run("imu reset", func(t *testing.T) {
		r := newRig(t, Options{})
		r.command(regmap.CmdIMUReset)
		if r.imu.Resets() != 1 {
			t.Errorf("resets = %d", r.imu.Resets())
		}
	})

	t.Run("factory reset", func(t *testing.T) {
		r := newRig(t, Options{})
		r.writeWord(regmap.BufLen, 4)
		r.writeWord(regmap.WaterIntConfig, 3)
		r.command(regmap.CmdFactoryReset)
		if r.dev.Regs.Get(regmap.WaterIntConfig) != 32 || r.dev.Buffer.PayloadWords() != 10 {
			t.Errorf("watermark=%d words=%d", r.dev.Regs.Get(regmap.WaterIntConfig), r.dev.Buffer.PayloadWords())
		}
	})
}

func TestFlashUpdateAndBoot(t *testing.T) {
	store := &memStore{}
	r := newRig(t, Options{Store: store})
	r.writeWord(regmap.BufLen, 16)
	r.command(regmap.CmdFlashUpdate)

	if store.saves != 1 || store.img["BUF_LEN"] != 16 {
		t.Fatalf("saves=%d img=%v", store.saves, store.img)
	}
	if r.dev.Status.Peek()&state.StatusFlashUpdate == 0 {
		t.Error("flash update bit not set")
	}
	if r.dev.Regs.Get(regmap.FlashSig) != regmap.Signature(store.img) {
		t.Error("FLASH_SIG not updated")
	}

	r2 := newRig(t, Options{Store: store})
	if r2.dev.Buffer.PayloadWords() != 16 {
		t.Errorf("booted payload words = %d, want 16", r2.dev.Buffer.PayloadWords())
	}
}

func TestBootClampsStoredBufLen(t *testing.T) {
	store := &memStore{img: map[string]uint16{"BUF_LEN": 0x40}}
	r := newRig(t, Options{Store: store})
	if got := r.dev.Regs.Get(regmap.BufLen); got != 32 {
		t.Errorf("BUF_LEN after boot = %d, want 32", got)
	}
	if r.dev.Buffer.PayloadWords() != 32 {
		t.Errorf("payload words = %d, want 32", r.dev.Buffer.PayloadWords())
	}
}

func TestFlashUpdateError(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	r := newRig(t, Options{Store: store})
	r.command(regmap.CmdFlashUpdate)
	if r.dev.Status.Peek()&state.StatusFlashError == 0 {
		t.Error("flash error bit not set")
	}
}

func TestSoftwareResetReloadsStored(t *testing.T) {
	store := &memStore{img: map[string]uint16{"BUF_LEN": 12}}
	r := newRig(t, Options{Store: store})
	r.dev.Capture.SetEnabled(true)
	r.dev.PPS.SetEpoch(9)
	r.writeWord(regmap.BufLen, 20)

	r.command(regmap.CmdSoftwareReset)

	if r.dev.Buffer.PayloadWords() != 12 {
		t.Errorf("payload words = %d, want 12", r.dev.Buffer.PayloadWords())
	}
	if r.dev.Capture.Enabled() {
		t.Error("capture survived software reset")
	}
	if r.dev.PPS.Epoch() != 9 {
		t.Errorf("epoch = %d, want 9", r.dev.PPS.Epoch())
	}
}

func TestGNSSSeedsEpoch(t *testing.T) {
	src := &fixedEpoch{sec: 1_700_000_000}
	r := newRig(t, Options{Epoch: src})
	r.cycle()
	if got := r.dev.PPS.Epoch(); got != 1_700_000_000 {
		t.Errorf("epoch = %d", got)
	}
}

func TestGNSSSeedIgnoresOneSecondSkew(t *testing.T) {
	src := &fixedEpoch{sec: 101}
	r := newRig(t, Options{Epoch: src})
	r.dev.PPS.SetEpoch(100)
	r.cycle()
	if got := r.dev.PPS.Epoch(); got != 100 {
		t.Errorf("epoch = %d, want 100", got)
	}
}

func TestPPSWatchdogPolled(t *testing.T) {
	r := newRig(t, Options{})
	r.dev.PPS.Enable(1)
	r.clock.Advance(2_000_000)
	r.cycle()
	if r.dev.Status.Peek()&state.StatusPPSUnlock == 0 {
		t.Error("check-pps did not run the watchdog")
	}
}

func TestStreamToSinks(t *testing.T) {
	sink := &recSink{}
	r := newRig(t, Options{Sinks: []Sink{sink}})
	r.dev.Capture.SetEnabled(true)
	for i := 0; i < 3; i++ {
		r.dev.DataReady()
	}

	r.cycle()
	if len(sink.recs) != 0 {
		t.Fatal("streamed while streaming off")
	}

	r.d.SetStreaming(true)
	r.cycle()
	if len(sink.recs) != 3 || r.dev.Buffer.Count() != 0 {
		t.Fatalf("streamed %d, count %d", len(sink.recs), r.dev.Buffer.Count())
	}
	if !sink.recs[0].Valid || sink.recs[0].Sample == nil {
		t.Errorf("record = %+v", sink.recs[0])
	}
	if r.d.Stats().Streamed != 3 {
		t.Errorf("stats streamed = %d", r.d.Stats().Streamed)
	}
}

type countingTransport struct{ calls int }

func (c *countingTransport) Service(*Dispatcher) { c.calls++ }

func TestTransportsServicedOncePerCycle(t *testing.T) {
	tr := &countingTransport{}
	r := newRig(t, Options{Transports: []Transport{tr}})
	r.cycle()
	r.cycle()
	if tr.calls != 2 {
		t.Errorf("calls = %d, want 2", tr.calls)
	}
}

func TestDIOOutputs(t *testing.T) {
	wm := &gpiotest.Pin{N: "WM"}
	ovr := &gpiotest.Pin{N: "OVR"}
	errPin := &gpiotest.Pin{N: "ERR"}
	r := newRig(t, Options{Pins: DIOPins{Watermark: wm, Overrun: ovr, Error: errPin}})

	r.writeWord(regmap.WaterIntConfig, 1)
	r.writeWord(regmap.ErrorIntConfig, state.StatusPPSUnlock)
	r.writeWord(regmap.DIOOutputConfig, regmap.DIOOutputWatermark|regmap.DIOOutputOverrun|regmap.DIOOutputError)
	r.cycle()

	r.dev.Status.Set(state.StatusOverrun)
	r.d.Step()
	if wm.L != gpio.Low || ovr.L != gpio.High || errPin.L != gpio.Low {
		t.Errorf("levels wm=%v ovr=%v err=%v", wm.L, ovr.L, errPin.L)
	}

	r.dev.Capture.SetEnabled(true)
	r.dev.DataReady()
	r.dev.Status.Set(state.StatusPPSUnlock)
	r.d.Step()
	if wm.L != gpio.High || errPin.L != gpio.High {
		t.Errorf("levels wm=%v err=%v, want high", wm.L, errPin.L)
	}

	r.dev.Status.ReadAndClear()
	r.d.Step()
	if ovr.L != gpio.Low || errPin.L != gpio.Low {
		t.Errorf("levels after clear ovr=%v err=%v", ovr.L, errPin.L)
	}
}

func TestBuildDateRegisters(t *testing.T) {
	r := newRig(t, Options{})
	if got := r.dev.Regs.Get(regmap.FWDayMonth); got != 0x0314 {
		t.Errorf("FW_DAY_MONTH = 0x%04X, want 0x0314", got)
	}
	if got := r.dev.Regs.Get(regmap.FWYear); got != 0x2026 {
		t.Errorf("FW_YEAR = 0x%04X, want 0x2026", got)
	}
}

func TestStatsReportPendingFlags(t *testing.T) {
	r := newRig(t, Options{})
	r.dev.Regs.Write(0, regmap.PageRead)
	if got := r.d.Stats().PendingFlags; got != state.FlagEnableCapture {
		t.Errorf("pending flags = %v, want %v", got, state.FlagEnableCapture)
	}
	r.cycle()
	if got := r.d.Stats().PendingFlags; got != 0 {
		t.Errorf("pending flags after a cycle = %v", got)
	}
}
