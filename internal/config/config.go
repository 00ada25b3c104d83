// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/imu_buffer_bridge/internal/buffer"
)

// Config holds all application configuration values.
type Config struct {
	// IMU hardware
	IMUSPIDevice string
	IMUCSPin     string // empty: controller chip select
	IMUResetPin  string

	// Edge inputs
	DRPin  string
	PPSPin string

	// DIO outputs (optional)
	DIOWatermarkPin string
	DIOOverrunPin   string
	DIOErrorPin     string

	// Core
	ArenaSize      int // bytes
	DispatchIdleUs int // sleep between dispatcher passes

	// Simulation: mock IMU with ticker-driven DR and PPS edges
	Simulate     bool
	SimDRRateHz  int
	StreamOnBoot bool

	// MQTT
	MQTTBroker          string
	MQTTClientIDBridge  string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicEntries string
	TopicStatus  string

	StatusPublishInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Serial CLI
	CLISerialPort string
	CLIBaudRate   int

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Flash image
	FlashFile string

	// Display
	DisplayI2CBus         string
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults are applied before the file is parsed.
func defaults() *Config {
	return &Config{
		IMUSPIDevice:          "/dev/spidev0.0",
		ArenaSize:             0xA000,
		SimDRRateHz:           2000,
		MQTTClientIDBridge:    "imu-bridge",
		MQTTClientIDConsole:   "imu-bridge-console",
		MQTTClientIDDisplay:   "imu-bridge-display",
		TopicEntries:          "imu_bridge/entries",
		TopicStatus:           "imu_bridge/status",
		StatusPublishInterval: 1000,
		CLIBaudRate:           115200,
		GPSBaudRate:           9600,
		FlashFile:             "imu_bridge_flash.yaml",
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// IMU hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_RESET_PIN":
		c.IMUResetPin = value
	case "DR_PIN":
		c.DRPin = value
	case "PPS_PIN":
		c.PPSPin = value
	case "DIO_WATERMARK_PIN":
		c.DIOWatermarkPin = value
	case "DIO_OVERRUN_PIN":
		c.DIOOverrunPin = value
	case "DIO_ERROR_PIN":
		c.DIOErrorPin = value

	// Core
	case "ARENA_SIZE":
		size, perr := strconv.ParseUint(value, 0, 32)
		if perr != nil {
			return fmt.Errorf("invalid ARENA_SIZE %q: %w", value, perr)
		}
		c.ArenaSize = int(size)
	case "DISPATCH_IDLE_US":
		c.DispatchIdleUs, err = atoi(key, value)

	// Simulation
	case "SIMULATE":
		c.Simulate, err = strconv.ParseBool(value)
	case "SIM_DR_RATE_HZ":
		c.SimDRRateHz, err = atoi(key, value)
	case "STREAM_ON_START":
		c.StreamOnBoot, err = strconv.ParseBool(value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BRIDGE":
		c.MQTTClientIDBridge = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ENTRIES":
		c.TopicEntries = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "STATUS_PUBLISH_INTERVAL":
		c.StatusPublishInterval, err = atoi(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = atoi(key, value)

	// Serial CLI
	case "CLI_SERIAL_PORT":
		c.CLISerialPort = value
	case "CLI_BAUD_RATE":
		c.CLIBaudRate, err = atoi(key, value)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = atoi(key, value)

	case "FLASH_FILE":
		c.FlashFile = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = atoi(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ArenaSize < 64 {
		return fmt.Errorf("ARENA_SIZE must be at least 64 bytes, got %d", c.ArenaSize)
	}
	if c.ArenaSize > buffer.MaxArenaBytes {
		return fmt.Errorf("ARENA_SIZE must be at most %d bytes, got %d", buffer.MaxArenaBytes, c.ArenaSize)
	}
	if !c.Simulate {
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required")
		}
		if c.DRPin == "" {
			return fmt.Errorf("DR_PIN is required")
		}
	}
	if c.Simulate && c.SimDRRateHz <= 0 {
		return fmt.Errorf("SIM_DR_RATE_HZ must be positive, got %d", c.SimDRRateHz)
	}
	if c.StatusPublishInterval <= 0 {
		return fmt.Errorf("STATUS_PUBLISH_INTERVAL must be positive, got %d", c.StatusPublishInterval)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
