// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/imu_buffer_bridge/internal/bridge"
	"github.com/relabs-tech/imu_buffer_bridge/internal/gps"
	"github.com/relabs-tech/imu_buffer_bridge/internal/imu"
)

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	log.Printf("mqtt: connected to %s as %s", broker, clientID)
	return client, nil
}

// entrySink publishes streamed entries as JSON. Publishing does not wait
// for the broker: the dispatcher must not block on the network.
type entrySink struct {
	client mqtt.Client
	topic  string
}

func (s *entrySink) Publish(rec imu.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("entry marshal: %w", err)
	}
	s.client.Publish(s.topic, 0, false, payload)
	return nil
}

// StatusMessage is what the bridge publishes on the status topic.
type StatusMessage struct {
	Time   string       `json:"time"`
	Bridge bridge.Stats `json:"bridge"`
	GPS    *gps.Fix     `json:"gps,omitempty"`
}

// publishStatus publishes a retained status snapshot every interval.
func publishStatus(ctx context.Context, client mqtt.Client, topic string, interval time.Duration,
	d *bridge.Dispatcher, rc *gps.Receiver) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			msg := StatusMessage{Time: t.UTC().Format(time.RFC3339), Bridge: d.Stats()}
			if rc != nil {
				fix := rc.Fix()
				msg.GPS = &fix
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Printf("mqtt: status marshal error: %v", err)
				continue
			}
			if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("mqtt: status publish error: %v", token.Error())
			}
		}
	}
}
