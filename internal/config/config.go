// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Runtime
	AppEnv   string // "dev" or "prod"
	LogLevel slog.Level

	// Sensor source: "mpu9250", "serial" or "mock"
	SensorSource string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange      byte
	IMUSampleInterval int // milliseconds

	// Serial sensor feed
	SerialPort     string
	SerialBaudRate int

	// Radio: "bluetooth" or "loopback"
	Radio string
	// Authorization: "granted", "denied" or "prompt"
	BLEAuthorization string
	// Re-encode and restart while advertising; 0 keeps the start-time payload.
	BLERefreshInterval int // milliseconds

	// Web Server (port 0 disables it)
	WebServerPort   int
	WebPushInterval int // milliseconds

	// MQTT (empty broker disables the mirror)
	MQTTBroker           string
	MQTTClientIDBeacon   string
	MQTTClientIDConsole  string
	MQTTClientIDListener string
	MQTTPublishInterval  int // milliseconds

	// Topics
	TopicMotion      string
	TopicAdvertising string
	TopicFrames      string

	// Display (SSD1306 at the driver's fixed I2C address 0x3C)
	DisplayEnabled        bool
	DisplayUpdateInterval int // milliseconds

	// Toggle button GPIO (empty disables it)
	ButtonPin string
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
	initErr      error
)

// Default returns a configuration that runs without any hardware.
func Default() *Config {
	return &Config{
		AppEnv:                "dev",
		LogLevel:              slog.LevelInfo,
		SensorSource:          "mock",
		IMUCSPin:              "8",
		IMUSampleInterval:     20,
		SerialBaudRate:        115200,
		Radio:                 "bluetooth",
		BLEAuthorization:      "prompt",
		WebServerPort:         8080,
		WebPushInterval:       200,
		MQTTClientIDBeacon:    "motion-beacon",
		MQTTClientIDConsole:   "motion-beacon-console",
		MQTTClientIDListener:  "motion-beacon-listener",
		MQTTPublishInterval:   500,
		TopicMotion:           "beacon/motion",
		TopicAdvertising:      "beacon/advertising",
		TopicFrames:           "beacon/frames",
		DisplayUpdateInterval: 250,
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
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

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Runtime
	case "APP_ENV":
		c.AppEnv = strings.ToLower(value)
	case "LOG_LEVEL":
		c.LogLevel, err = parseLogLevel(value)

	case "SENSOR_SOURCE":
		c.SensorSource = strings.ToLower(value)

	// IMU Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var v int
		v, err = atoiRange(key, value, 0, 3)
		c.IMUAccelRange = byte(v)
	case "IMU_GYRO_RANGE":
		var v int
		v, err = atoiRange(key, value, 0, 3)
		c.IMUGyroRange = byte(v)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = atoiRange(key, value, 1, 60000)

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = atoiRange(key, value, 1, 4000000)

	// Radio
	case "RADIO":
		c.Radio = strings.ToLower(value)
	case "BLE_AUTHORIZATION":
		c.BLEAuthorization = strings.ToLower(value)
	case "BLE_REFRESH_INTERVAL":
		c.BLERefreshInterval, err = atoiRange(key, value, 0, 3600000)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = atoiRange(key, value, 0, 65535)
	case "WEB_PUSH_INTERVAL":
		c.WebPushInterval, err = atoiRange(key, value, 10, 60000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BEACON":
		c.MQTTClientIDBeacon = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_LISTENER":
		c.MQTTClientIDListener = value
	case "MQTT_PUBLISH_INTERVAL":
		c.MQTTPublishInterval, err = atoiRange(key, value, 10, 3600000)

	// Topics
	case "TOPIC_MOTION":
		c.TopicMotion = value
	case "TOPIC_ADVERTISING":
		c.TopicAdvertising = value
	case "TOPIC_FRAMES":
		c.TopicFrames = value

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = atoiRange(key, value, 10, 60000)

	case "BUTTON_PIN":
		c.ButtonPin = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks cross-field requirements.
func (c *Config) validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return fmt.Errorf("APP_ENV must be dev or prod, got %q", c.AppEnv)
	}

	switch c.SensorSource {
	case "mpu9250":
		if c.IMUSPIDevice == "" {
			return fmt.Errorf("IMU_SPI_DEVICE is required when SENSOR_SOURCE=mpu9250")
		}
		if c.IMUCSPin == "" {
			return fmt.Errorf("IMU_CS_PIN is required when SENSOR_SOURCE=mpu9250")
		}
	case "serial":
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SENSOR_SOURCE=serial")
		}
	case "mock":
	default:
		return fmt.Errorf("SENSOR_SOURCE must be mpu9250, serial or mock, got %q", c.SensorSource)
	}

	switch c.Radio {
	case "bluetooth", "loopback":
	default:
		return fmt.Errorf("RADIO must be bluetooth or loopback, got %q", c.Radio)
	}

	switch c.BLEAuthorization {
	case "granted", "denied", "prompt":
	default:
		return fmt.Errorf("BLE_AUTHORIZATION must be granted, denied or prompt, got %q", c.BLEAuthorization)
	}

	if c.MQTTBroker != "" && c.MQTTClientIDBeacon == "" {
		return fmt.Errorf("MQTT_CLIENT_ID_BEACON is required when MQTT_BROKER is set")
	}
	return nil
}

func atoiRange(key, value string, min, max int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, min, max, v)
	}
	return v, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return the first call's error.
func InitGlobal(configPath string) error {
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, initErr = Load(configPath)
	})
	return initErr
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
