// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/telemetry"
)

// RunConsoleMQTT prints the beacon's MQTT mirror until ctx is done.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("console: MQTT_BROKER is not set")
	}

	client := telemetry.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer client.Disconnect()

	w := &syncWriter{w: out}
	topics := telemetry.Topics{Motion: cfg.TopicMotion, Advertising: cfg.TopicAdvertising, Frames: cfg.TopicFrames}
	show := func(topic string, payload []byte) {
		line, err := formatMirror(topics, topic, payload)
		if err != nil {
			logger.Warn("console: unmarshal error", "topic", topic, "error", err)
			return
		}
		w.printf("%s\n", line)
	}

	for _, topic := range []string{topics.Motion, topics.Advertising, topics.Frames} {
		if err := client.Subscribe(topic, show); err != nil {
			return fmt.Errorf("console: %w", err)
		}
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}

func formatMirror(topics telemetry.Topics, topic string, payload []byte) (string, error) {
	switch topic {
	case topics.Motion:
		var m telemetry.MotionMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return fmt.Sprintf("[MOTION] A=%s G=%s", m.Accel, m.Gyro), nil

	case topics.Advertising:
		var m telemetry.AdvertisingMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		line := fmt.Sprintf("[ADV]    state=%s on=%t confirmed=%t", m.State, m.Advertising, m.Confirmed)
		if m.Payload != "" {
			line += " payload=" + m.Payload
		}
		if m.ErrorCode != 0 || m.Error != "" {
			line += fmt.Sprintf(" error=%q code=%d", m.Error, m.ErrorCode)
		}
		return line, nil

	case topics.Frames:
		var m telemetry.FrameMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return "", err
		}
		return fmt.Sprintf("[FRAME]  %s rssi=%d %s A=%s G=%s", m.Address, m.RSSI, m.Payload, m.Accel, m.Gyro), nil

	default:
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
}
