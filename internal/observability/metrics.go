// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package observability exposes Prometheus metrics for the beacon.
package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// Collector bundles the beacon metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Advertising    prometheus.Gauge
	Transitions    *prometheus.CounterVec
	StartFailures  *prometheus.CounterVec
	SensorEvents   *prometheus.CounterVec
	FramesObserved prometheus.Counter

	mu        sync.Mutex
	lastState broadcast.State
}

// NewCollector registers the beacon metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	advertising, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_advertising",
		Help: "1 while the advertising flag is on, 0 otherwise.",
	}), "beacon_advertising")
	if err != nil {
		return nil, err
	}
	transitions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_state_transitions_total",
		Help: "Broadcast controller state transitions, labeled by from and to state.",
	}, []string{"from", "to"}), "beacon_state_transitions_total")
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_start_failures_total",
		Help: "Advertising start failures, labeled by transmitter failure code.",
	}, []string{"code"}), "beacon_start_failures_total")
	if err != nil {
		return nil, err
	}
	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_sensor_events_total",
		Help: "Sensor events recorded into the sample store, labeled by sensor kind.",
	}, []string{"kind"}), "beacon_sensor_events_total")
	if err != nil {
		return nil, err
	}
	observed, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beacon_frames_observed_total",
		Help: "Motion frames decoded by the passive listener.",
	}), "beacon_frames_observed_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Advertising:    advertising,
		Transitions:    transitions,
		StartFailures:  failures,
		SensorEvents:   events,
		FramesObserved: observed,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveStatus is a broadcast.Controller observer.
func (c *Collector) ObserveStatus(s broadcast.Status) {
	if c == nil {
		return
	}
	if s.Advertising {
		c.Advertising.Set(1)
	} else {
		c.Advertising.Set(0)
	}

	c.mu.Lock()
	from := c.lastState
	c.lastState = s.State
	c.mu.Unlock()

	if from == s.State {
		return
	}
	c.Transitions.WithLabelValues(from.String(), s.State.String()).Inc()
	// Failed is only entered through a transmitter start failure.
	if s.State == broadcast.Failed {
		c.StartFailures.WithLabelValues(strconv.Itoa(s.ErrorCode())).Inc()
	}
}

// RecordSensorEvent counts one sensor event.
func (c *Collector) RecordSensorEvent(kind motion.Kind) {
	if c == nil {
		return
	}
	c.SensorEvents.WithLabelValues(kind.String()).Inc()
}

// RecordObservedFrame counts one frame seen by the listener.
func (c *Collector) RecordObservedFrame() {
	if c == nil {
		return
	}
	c.FramesObserved.Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
