// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/motion_beacon/internal/app"
	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/logging"
)

func main() {
	configPath := flag.String("config", "beacon_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	logger := logging.New(cfg, "motion-console")
	slog.SetDefault(logger)
	logger.Info("starting motion beacon console (MQTT subscriber)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsoleMQTT(ctx, cfg, os.Stdout, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}
