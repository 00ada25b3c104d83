// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/imu_buffer_bridge/internal/config"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
)

// formatEntry renders one streamed entry for the terminal.
func formatEntry(r imu.Record) string {
	mark := "ok"
	if !r.Valid {
		mark = "BAD"
	}
	if s := r.Sample; s != nil {
		return fmt.Sprintf("[ENTRY] t=%d.%06d %-3s  gx=%6d gy=%6d gz=%6d  ax=%6d ay=%6d az=%6d  temp=%5d cnt=%5d",
			r.PPSSeconds, r.Micros, mark, s.Gx, s.Gy, s.Gz, s.Ax, s.Ay, s.Az, s.Temp, s.DataCounter)
	}
	return fmt.Sprintf("[ENTRY] t=%d.%06d %-3s  words=%04X", r.PPSSeconds, r.Micros, mark, r.Words)
}

// formatStatus renders a status snapshot for the terminal.
func formatStatus(m StatusMessage) string {
	b := m.Bridge
	line := fmt.Sprintf("[STAT]  page=%d state=%s buf=%d/%d status=0x%04X pps=%v epoch=%d overruns=%d streamed=%d",
		b.Page, b.CaptureState, b.BufferCount, b.BufferCapacity, b.Status,
		b.PPSEnabled, b.PPSEpoch, b.Capture.Overruns, b.Streamed)
	if m.GPS != nil {
		line += fmt.Sprintf(" gps=%s %s %s", m.GPS.Date, m.GPS.Time, m.GPS.Validity)
	}
	return line
}

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	entryToken := client.Subscribe(cfg.TopicEntries, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r imu.Record
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: entry unmarshal error: %v", err)
			return
		}
		fmt.Println(formatEntry(r))
	})
	entryToken.Wait()
	if entryToken.Error() != nil {
		return entryToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicEntries)

	statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m StatusMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}
		fmt.Println(formatStatus(m))
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStatus)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
