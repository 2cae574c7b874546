// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/observability"
	"github.com/relabs-tech/motion_beacon/internal/radio"
	"github.com/relabs-tech/motion_beacon/internal/telemetry"
)

// RunListener scans for motion frames, logs them decoded and, when a broker
// is configured, republishes them on TOPIC_FRAMES.
func RunListener(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("listener: metrics: %w", err)
	}

	var pub *telemetry.Publisher
	if cfg.MQTTBroker != "" {
		client := telemetry.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDListener, logger)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("listener: %w", err)
		}
		defer client.Disconnect()
		pub = telemetry.NewPublisher(client, telemetry.Topics{Frames: cfg.TopicFrames}, logger)
	}

	return radio.NewListener(nil, logger).Run(ctx, frameHandler(pub, metrics, logger))
}

func frameHandler(pub *telemetry.Publisher, metrics *observability.Collector, logger *slog.Logger) func(radio.Match) {
	return func(m radio.Match) {
		metrics.RecordObservedFrame()
		msg := telemetry.NewFrameMessage(m.Address, m.RSSI, m.Data, m.SeenAt)
		logger.Info("listener: frame",
			"address", msg.Address,
			"rssi", msg.RSSI,
			"accel", msg.Accel.String(),
			"gyro", msg.Gyro.String(),
		)
		if pub == nil {
			return
		}
		if err := pub.PublishFrame(msg); err != nil {
			logger.Warn("listener: publish failed", "error", err)
		}
	}
}
