// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
)

// Topics names the mirror topics.
type Topics struct {
	Motion      string
	Advertising string
	Frames      string
}

// jsonPublisher is satisfied by *Client.
type jsonPublisher interface {
	PublishJSON(topic string, retained bool, v any) error
}

// statusBuffer bounds the statuses waiting for RunAdvertising.
const statusBuffer = 16

// Publisher mirrors samples, controller status and frames.
type Publisher struct {
	client   jsonPublisher
	topics   Topics
	logger   *slog.Logger
	statuses chan broadcast.Status
}

func NewPublisher(client *Client, topics Topics, logger *slog.Logger) *Publisher {
	return newPublisher(client, topics, logger)
}

func newPublisher(client jsonPublisher, topics Topics, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:   client,
		topics:   topics,
		logger:   logger,
		statuses: make(chan broadcast.Status, statusBuffer),
	}
}

// PublishAdvertising queues s for RunAdvertising and returns at once, so it
// can observe a broadcast.Controller without stalling transitions. When the
// queue is full the oldest status is dropped: the newest always goes out.
func (p *Publisher) PublishAdvertising(s broadcast.Status) {
	for {
		select {
		case p.statuses <- s:
			return
		default:
		}
		select {
		case <-p.statuses:
			p.logger.Debug("telemetry: advertising status dropped")
		default:
		}
	}
}

// RunAdvertising publishes queued statuses retained, so late subscribers see
// the current state, until ctx is done. Errors are logged.
func (p *Publisher) RunAdvertising(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-p.statuses:
			if err := p.client.PublishJSON(p.topics.Advertising, true, NewAdvertisingMessage(s)); err != nil {
				p.logger.Warn("telemetry: advertising publish failed", "error", err)
			}
		}
	}
}

// PublishFrame publishes one observed frame.
func (p *Publisher) PublishFrame(m FrameMessage) error {
	return p.client.PublishJSON(p.topics.Frames, false, m)
}

// RunMotion publishes the store snapshot every interval until ctx is done.
func (p *Publisher) RunMotion(ctx context.Context, snap broadcast.Snapshotter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			accel, gyro := snap.Snapshot()
			msg := MotionMessage{Accel: accel, Gyro: gyro, Timestamp: t}
			if err := p.client.PublishJSON(p.topics.Motion, true, msg); err != nil {
				p.logger.Debug("telemetry: motion publish failed", "error", err)
			}
		}
	}
}
