// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/relabs-tech/motion_beacon/internal/config"
)

// New builds the process logger: colored tint output in dev, JSON in prod.
func New(cfg *config.Config, appName string) *slog.Logger {
	return newWithWriter(os.Stdout, cfg, appName)
}

func newWithWriter(w io.Writer, cfg *config.Config, appName string) *slog.Logger {
	if cfg.AppEnv != "prod" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", appName)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"env", cfg.AppEnv,
	)
}
