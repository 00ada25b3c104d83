// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/cli"
	"github.com/relabs-tech/imu_buffer_bridge/internal/config"
	"github.com/relabs-tech/imu_buffer_bridge/internal/flash"
	"github.com/relabs-tech/imu_buffer_bridge/internal/gps"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
	"github.com/relabs-tech/imu_buffer_bridge/internal/regmap"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
	"github.com/relabs-tech/imu_buffer_bridge/internal/timebase"
)

// buildDate is the VCS commit time stamped into the binary, zero when
// the build carries none.
func buildDate() time.Time {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return time.Time{}
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.time" {
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// openIMU returns the IMU collaborator: the mock in simulation, the
// periph SPI driver otherwise.
func openIMU(cfg *config.Config) (imu.Device, func(), error) {
	if cfg.Simulate {
		m := imu.NewMock()
		m.Latency = 200 * time.Microsecond
		log.Println("bridge: simulated IMU")
		return m, func() {}, nil
	}
	spiCfg := imu.SPIConfigFromRegister(regmap.Default(regmap.IMUSPIConfig))
	d, err := imu.NewADIS(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUResetPin, spiCfg)
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

func dioPins(cfg *config.Config) (bridge.DIOPins, error) {
	var pins bridge.DIOPins
	var err error
	if pins.Watermark, err = outPin(cfg.DIOWatermarkPin); err != nil {
		return pins, err
	}
	if pins.Overrun, err = outPin(cfg.DIOOverrunPin); err != nil {
		return pins, err
	}
	if pins.Error, err = outPin(cfg.DIOErrorPin); err != nil {
		return pins, err
	}
	return pins, nil
}

// RunBridge runs the IMU buffer bridge until SIGINT or SIGTERM.
func RunBridge() error {
	log.Println("starting IMU SPI buffer bridge")
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Simulate {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("failed to initialize periph: %w", err)
		}
	}

	imuDev, closeIMU, err := openIMU(cfg)
	if err != nil {
		return err
	}
	defer closeIMU()

	dev, err := bridge.NewDevice(imuDev, timebase.NewSystemClock(), cfg.ArenaSize, buildDate())
	if err != nil {
		return err
	}

	opts := bridge.Options{
		Store: flash.File{Path: cfg.FlashFile},
		Idle:  time.Duration(cfg.DispatchIdleUs) * time.Microsecond,
	}
	if !cfg.Simulate {
		if opts.Pins, err = dioPins(cfg); err != nil {
			return err
		}
	}

	var receiver *gps.Receiver
	if cfg.GPSSerialPort != "" {
		port, err := gps.Open(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if err != nil {
			return err
		}
		defer port.Close()
		receiver = &gps.Receiver{}
		opts.Epoch = receiver
		go func() {
			if err := receiver.Run(port); err != nil && ctx.Err() == nil {
				log.Printf("gps: receiver stopped: %v", err)
			}
		}()
	}

	if cfg.CLISerialPort != "" {
		port, err := cli.Open(cfg.CLISerialPort, cfg.CLIBaudRate)
		if err != nil {
			return err
		}
		defer port.Close()
		console := cli.New(port)
		opts.Transports = append(opts.Transports, console)
		opts.Sinks = append(opts.Sinks, console)
		go func() {
			if err := console.Listen(port); err != nil && ctx.Err() == nil {
				log.Printf("cli: console stopped: %v", err)
			}
		}()
	}

	var regConsole *RegisterConsole
	if cfg.WebServerPort > 0 {
		regConsole = NewRegisterConsole()
		opts.Transports = append(opts.Transports, regConsole)
	}

	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		c, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDBridge)
		if err != nil {
			return err
		}
		defer c.Disconnect(250)
		client = c
		opts.Sinks = append(opts.Sinks, &entrySink{client: c, topic: cfg.TopicEntries})
	}

	d := bridge.NewDispatcher(dev, opts)
	d.Boot()
	// push the stored SPI settings to the IMU on the first pass
	dev.Flags.Raise(state.FlagIMUSPIConfig)
	d.SetStreaming(cfg.StreamOnBoot)

	if client != nil {
		interval := time.Duration(cfg.StatusPublishInterval) * time.Millisecond
		go publishStatus(ctx, client, cfg.TopicStatus, interval, d, receiver)
	}
	if regConsole != nil {
		mux := newWebMux(regConsole, d, receiver)
		go func() {
			if err := runWeb(ctx, cfg.WebServerPort, mux); err != nil {
				log.Printf("web: %v", err)
			}
		}()
	}

	if cfg.Simulate {
		go runSimulatedEdges(ctx, dev, cfg.SimDRRateHz)
	} else if err := startEdgeWatchers(ctx, dev, cfg.DRPin, cfg.PPSPin); err != nil {
		return err
	}

	log.Printf("bridge: buffer %d bytes, %d words/entry, %d entries",
		dev.Buffer.ArenaBytes(), dev.Buffer.PayloadWords(), dev.Buffer.Capacity())

	err = d.Run(ctx)
	log.Println("bridge: shutting down")
	if ctx.Err() != nil {
		return nil
	}
	return err
}
