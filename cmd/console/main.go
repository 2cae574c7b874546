// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/motion_beacon/internal/app"
	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/logging"
)

// The mock console needs no config file: it runs on a simulated sensor and
// a loopback radio.
func main() {
	cfg := config.Default()
	cfg.LogLevel = slog.LevelWarn

	logger := logging.New(cfg, "motion-console")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMockConsole(ctx, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}
