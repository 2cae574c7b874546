// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/motion"
	"github.com/relabs-tech/motion_beacon/internal/observability"
	"github.com/relabs-tech/motion_beacon/internal/permission"
	"github.com/relabs-tech/motion_beacon/internal/radio"
	"github.com/relabs-tech/motion_beacon/internal/sensors"
	"github.com/relabs-tech/motion_beacon/internal/telemetry"
)

// Beacon ties the sample store to the broadcast controller and its
// collaborators. Presentations (web, OLED, console) drive it.
type Beacon struct {
	Store      *motion.Store
	Controller *broadcast.Controller
	// Prompt is nil unless authorization is answered by a person.
	Prompt  *permission.Prompt
	Metrics *observability.Collector

	logger *slog.Logger
}

// NewBeacon builds the controller around store. metrics may be nil.
func NewBeacon(store *motion.Store, tx broadcast.Transmitter, auth broadcast.Authorizer,
	metrics *observability.Collector, logger *slog.Logger) *Beacon {
	b := &Beacon{
		Store:      store,
		Controller: broadcast.NewController(store, tx, auth, logger),
		Metrics:    metrics,
		logger:     logger,
	}
	if p, ok := auth.(*permission.Prompt); ok {
		b.Prompt = p
	}
	if metrics != nil {
		b.Controller.OnChange(metrics.ObserveStatus)
	}
	return b
}

// Record stores a sensor event. It is the sensor source's emit callback.
func (b *Beacon) Record(e motion.Event) {
	b.Store.Record(e)
	b.Metrics.RecordSensorEvent(e.Kind)
}

// Toggle starts advertising when the flag is off and stops it when on.
func (b *Beacon) Toggle() {
	if b.Controller.Advertising() {
		b.Controller.RequestStop()
		return
	}
	b.Controller.RequestStart()
}

// RunSource feeds the store from src until ctx is done.
func (b *Beacon) RunSource(ctx context.Context, src motion.Source) error {
	b.logger.Info("beacon: sensor source started")
	defer b.logger.Info("beacon: sensor source stopped")
	return src.Run(ctx, b.Record)
}

// RunRefresh re-encodes the advertised payload every interval while advertising.
func (b *Beacon) RunRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Controller.Refresh()
		}
	}
}

func newTransmitter(cfg *config.Config, logger *slog.Logger) broadcast.Transmitter {
	if cfg.Radio == "loopback" {
		return radio.NewLoopback(20*time.Millisecond, logger)
	}
	return radio.NewTransmitter(nil, logger)
}

// RunBeacon runs the device application until ctx is cancelled.
func RunBeacon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("beacon: starting", "sensor", cfg.SensorSource, "radio", cfg.Radio, "authorization", cfg.BLEAuthorization)

	src, err := sensors.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("beacon: sensor source: %w", err)
	}
	auth, err := permission.Parse(cfg.BLEAuthorization)
	if err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	metrics, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("beacon: metrics: %w", err)
	}

	b := NewBeacon(motion.NewStore(), newTransmitter(cfg, logger), auth, metrics, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)
	goRun := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	// Sensors are registered for the lifetime of the application and
	// unregistered when it shuts down.
	goRun("sensors", func() error { return b.RunSource(ctx, src) })

	if cfg.BLERefreshInterval > 0 {
		goRun("refresh", func() error {
			b.RunRefresh(ctx, time.Duration(cfg.BLERefreshInterval)*time.Millisecond)
			return nil
		})
	}

	if cfg.MQTTBroker != "" {
		client := telemetry.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDBeacon, logger)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("beacon: %w", err)
		}
		defer client.Disconnect()

		pub := telemetry.NewPublisher(client, telemetry.Topics{
			Motion:      cfg.TopicMotion,
			Advertising: cfg.TopicAdvertising,
			Frames:      cfg.TopicFrames,
		}, logger)
		b.Controller.OnChange(pub.PublishAdvertising)
		pub.PublishAdvertising(b.Controller.Status())
		goRun("status", func() error {
			pub.RunAdvertising(ctx)
			return nil
		})
		goRun("telemetry", func() error {
			pub.RunMotion(ctx, b.Store, time.Duration(cfg.MQTTPublishInterval)*time.Millisecond)
			return nil
		})
	}

	if cfg.DisplayEnabled {
		goRun("display", func() error { return RunDisplay(ctx, cfg, b, logger) })
	}
	if cfg.ButtonPin != "" {
		goRun("button", func() error { return RunButton(ctx, cfg.ButtonPin, b, logger) })
	}

	if cfg.WebServerPort > 0 {
		web := NewWebServer(b, time.Duration(cfg.WebPushInterval)*time.Millisecond, logger)
		mux := web.Routes(metrics.Handler(), http.Dir("web"))
		addr := fmt.Sprintf(":%d", cfg.WebServerPort)
		goRun("web", func() error { return serveHTTP(ctx, addr, mux, logger) })
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("beacon: component failed", "error", runErr)
	}
	cancel()

	b.Controller.RequestStop()
	wg.Wait()
	logger.Info("beacon: stopped")
	return runErr
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("web: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
