// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/imu_buffer_bridge/internal/config"
	"github.com/relabs-tech/imu_buffer_bridge/internal/state"
)

// ssd1306DefaultAddr is the address the ssd1306 driver always uses.
const ssd1306DefaultAddr = 0x3C

// addrBus moves the display driver's fixed address to the configured one.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b *addrBus) Tx(addr uint16, w, r []byte) error {
	if addr == ssd1306DefaultAddr {
		addr = b.addr
	}
	return b.Bus.Tx(addr, w, r)
}

// displayData holds the latest status for the display.
type displayData struct {
	mu       sync.RWMutex
	status   StatusMessage
	have     bool
	received time.Time
}

func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(&addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, []string{"", "IMU buffer", "bridge", "Waiting..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	token := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m StatusMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("display: status unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.status = m
		data.have = true
		data.received = time.Now()
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicStatus)

	interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
	// a status older than this shows as stale
	staleAfter := 3 * time.Duration(cfg.StatusPublishInterval) * time.Millisecond

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for range ticker.C {
		data.mu.RLock()
		m, have, age := data.status, data.have, time.Since(data.received)
		data.mu.RUnlock()

		if err := drawLines(dev, statusLines(m, have, age > staleAfter)); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

// statusLines lays out a status message on four text rows.
func statusLines(m StatusMessage, have, stale bool) []string {
	if !have {
		return []string{"Bridge status", "Waiting..."}
	}
	b := m.Bridge
	head := fmt.Sprintf("P%d %s", b.Page, b.CaptureState)
	if stale {
		head = "STALE " + head
	}
	flags := ""
	if b.Status&state.StatusOverrun != 0 {
		flags += " OVR"
	}
	if b.Status&state.StatusPPSUnlock != 0 {
		flags += " UNLK"
	}
	if b.Status&state.StatusFlashError != 0 {
		flags += " FLSH"
	}
	pps := "PPS off"
	if b.PPSEnabled {
		pps = fmt.Sprintf("PPS %d", b.PPSEpoch)
	}
	return []string{
		head,
		fmt.Sprintf("Buf %d/%d", b.BufferCount, b.BufferCapacity),
		fmt.Sprintf("St %04X%s", b.Status, flags),
		pps,
	}
}

func drawLines(dev *ssd1306.Dev, lines []string) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return dev.Draw(dev.Bounds(), img, image.Point{})
}
