// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package radio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/frame"
)

// Loopback is an in-process transmitter for machines without a BLE adapter.
// It reports start outcomes after Delay and hands every advertised frame to
// the OnFrame hook.
type Loopback struct {
	delay  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	avail    error
	failNext int
	running  bool
	last     frame.Frame
	starts   int
	onFrame  func(frame.Frame)
}

// NewLoopback returns a loopback that reports after delay (0 = synchronously).
func NewLoopback(delay time.Duration, logger *slog.Logger) *Loopback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loopback{delay: delay, logger: logger}
}

// SetAvailable sets what Available returns (nil, ErrRadioUnavailable or ErrRadioDisabled).
func (l *Loopback) SetAvailable(err error) {
	l.mu.Lock()
	l.avail = err
	l.mu.Unlock()
}

// FailNext makes the next Start report failure code.
func (l *Loopback) FailNext(code int) {
	l.mu.Lock()
	l.failNext = code
	l.mu.Unlock()
}

// OnFrame registers a hook called with each successfully started payload.
func (l *Loopback) OnFrame(fn func(frame.Frame)) {
	l.mu.Lock()
	l.onFrame = fn
	l.mu.Unlock()
}

func (l *Loopback) Available() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.avail
}

func (l *Loopback) Start(p broadcast.Params, payload frame.Frame, report func(broadcast.StartResult)) {
	l.mu.Lock()
	l.starts++
	var result broadcast.StartResult
	switch {
	case l.failNext != 0:
		result.Code = l.failNext
		l.failNext = 0
	case l.running:
		result.Code = broadcast.FailureAlreadyStarted
	default:
		result.OK = true
		l.running = true
		l.last = payload
	}
	hook := l.onFrame
	l.mu.Unlock()

	l.logger.Debug("radio: loopback start", "payload", payload, "ok", result.OK, "code", result.Code,
		"company", p.ManufacturerID)

	deliver := func() {
		if result.OK && hook != nil {
			hook(payload)
		}
		report(result)
	}
	if l.delay <= 0 {
		deliver()
		return
	}
	time.AfterFunc(l.delay, deliver)
}

func (l *Loopback) Stop() error {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	return nil
}

// Running reports whether a started advertisement has not been stopped.
func (l *Loopback) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Last returns the most recent advertised payload.
func (l *Loopback) Last() frame.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Starts counts Start calls, failed ones included.
func (l *Loopback) Starts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}
