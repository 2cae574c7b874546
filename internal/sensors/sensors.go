// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors provides the motion sources feeding the sample store.
package sensors

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// New builds the source selected by cfg.SensorSource.
func New(cfg *config.Config, logger *slog.Logger) (motion.Source, error) {
	switch cfg.SensorSource {
	case "mpu9250":
		src, err := NewIMUSource(cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "serial":
		return NewSerialSource(cfg, logger), nil
	case "mock":
		return NewMockSource(time.Duration(cfg.IMUSampleInterval) * time.Millisecond), nil
	default:
		return nil, fmt.Errorf("sensors: unknown source %q", cfg.SensorSource)
	}
}
