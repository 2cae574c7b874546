// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broadcast owns the advertising lifecycle: it gates on host
// authorization, snapshots and encodes the latest motion samples, hands the
// frame to the radio and reacts to the radio's asynchronous outcome.
//
// All transitions go through the Controller mutex. Collaborators
// (Authorizer, Transmitter, observers) are only called after the mutex is
// released, so they may call back synchronously. Transmitter calls are
// serialized on a second mutex and a start is only issued if its attempt is
// still current, so a stop can never be overtaken by an older start.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/frame"
)

// anyAttempt matches whatever attempt is current. Real attempts start at 1.
const anyAttempt uint64 = 0

// Controller is the advertising state machine.
type Controller struct {
	snap   Snapshotter
	tx     Transmitter
	auth   Authorizer
	params Params
	logger *slog.Logger
	now    func() time.Time

	// txMu orders Start and Stop on the transmitter. Lock order is txMu then
	// mu; observers never run with txMu held.
	txMu sync.Mutex

	mu          sync.Mutex
	state       State
	previous    State
	advertising bool
	confirmed   bool
	err         error
	payload     frame.Frame
	attempt     uint64
	since       time.Time

	obsMu     sync.RWMutex
	observers []func(Status)
}

// NewController builds a controller in Idle using DefaultParams.
func NewController(snap Snapshotter, tx Transmitter, auth Authorizer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		snap:   snap,
		tx:     tx,
		auth:   auth,
		params: DefaultParams(),
		logger: logger,
		now:    time.Now,
		state:  Idle,
		since:  time.Now(),
	}
}

// OnChange registers fn to receive the status after every transition.
func (c *Controller) OnChange(fn func(Status)) {
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
}

// Params returns the transmission parameters in use.
func (c *Controller) Params() Params {
	return c.params
}

// Status returns a consistent view of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Advertising returns the user-visible "on" flag. It turns true as soon
// as a start is requested, before the radio confirms.
func (c *Controller) Advertising() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advertising
}

// RequestStart begins advertising, or asks for authorization first.
// It is a no-op while Requesting or Advertising. Failed restarts from scratch.
func (c *Controller) RequestStart() {
	caps := RequiredCapabilities()
	granted := c.auth.Granted(caps)
	var avail error
	if granted {
		avail = c.tx.Available()
	}

	c.mu.Lock()
	if c.state == Requesting || c.state == Advertising {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("broadcast: start ignored", "state", state)
		return
	}

	c.attempt++
	c.advertising = true
	c.confirmed = false
	c.err = nil

	var effect func()
	if granted {
		effect = c.beginLocked(avail)
	} else {
		c.setStateLocked(Requesting)
		attempt := c.attempt
		c.logger.Info("broadcast: requesting authorization", "attempt", attempt, "capabilities", caps)
		effect = func() {
			c.auth.Request(caps, func(ok bool) { c.onAuthorization(attempt, ok) })
		}
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.notify(status)
	if effect != nil {
		effect()
	}
}

// RequestStop stops advertising and returns to Idle immediately. A pending
// authorization or start outcome that arrives later is ignored.
func (c *Controller) RequestStop() {
	// Holding txMu across the transition keeps a newer start from reaching
	// the radio before this stop does.
	c.txMu.Lock()
	c.mu.Lock()
	if c.state == Idle && !c.advertising {
		c.mu.Unlock()
		c.txMu.Unlock()
		return
	}
	prev := c.state
	c.attempt++
	c.advertising = false
	c.confirmed = false
	c.err = nil
	c.setStateLocked(Idle)
	status := c.statusLocked()
	c.mu.Unlock()

	// Failed is included: a start may have reached the radio before failing.
	var err error
	if prev == Advertising || prev == Failed {
		err = c.tx.Stop()
	}
	c.txMu.Unlock()

	if err != nil {
		c.logger.Warn("broadcast: stop failed", "error", err)
	}
	c.notify(status)
	c.logger.Info("broadcast: advertising stopped", "from", prev)
}

// Refresh re-encodes the current samples and restarts the transmitter.
// It only acts while Advertising and reports whether it did.
func (c *Controller) Refresh() bool {
	c.mu.Lock()
	if c.state != Advertising {
		c.mu.Unlock()
		return false
	}
	c.attempt++
	c.confirmed = false
	accel, gyro := c.snap.Snapshot()
	c.payload = frame.Encode(accel, gyro)
	attempt, params, payload := c.attempt, c.params, c.payload
	status := c.statusLocked()
	c.mu.Unlock()

	c.notify(status)
	c.startTransmitter(attempt, params, payload, true)
	c.logger.Debug("broadcast: payload refreshed", "attempt", attempt, "payload", payload)
	return true
}

// OnAuthorizationResult applies an authorization outcome to the current
// request. It is ignored unless the controller is Requesting.
func (c *Controller) OnAuthorizationResult(granted bool) {
	c.onAuthorization(anyAttempt, granted)
}

// OnTransmitterStart applies a start outcome to the current attempt.
// It is ignored unless the controller is Advertising.
func (c *Controller) OnTransmitterStart(success bool, code int) {
	c.onStart(anyAttempt, StartResult{OK: success, Code: code})
}

func (c *Controller) onAuthorization(attempt uint64, granted bool) {
	var avail error
	if granted {
		avail = c.tx.Available()
	}

	c.mu.Lock()
	if c.state != Requesting || (attempt != anyAttempt && attempt != c.attempt) {
		state, current := c.state, c.attempt
		c.mu.Unlock()
		c.logger.Debug("broadcast: authorization result dropped",
			"error", ErrStaleCallback, "state", state, "attempt", attempt, "current", current)
		return
	}

	var effect func()
	if granted {
		c.logger.Info("broadcast: authorization granted", "attempt", c.attempt)
		effect = c.beginLocked(avail)
	} else {
		c.advertising = false
		c.err = ErrAuthorizationDenied
		c.setStateLocked(Idle)
		c.logger.Warn("broadcast: authorization denied", "attempt", c.attempt)
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.notify(status)
	if effect != nil {
		effect()
	}
}

func (c *Controller) onStart(attempt uint64, r StartResult) {
	c.mu.Lock()
	if c.state != Advertising || (attempt != anyAttempt && attempt != c.attempt) {
		state, current := c.state, c.attempt
		c.mu.Unlock()
		c.logger.Debug("broadcast: start result dropped",
			"error", ErrStaleCallback, "state", state, "attempt", attempt, "current", current)
		return
	}

	if r.OK {
		c.advertising = true
		c.confirmed = true
		c.logger.Info("broadcast: advertising started", "attempt", c.attempt, "payload", c.payload)
	} else {
		c.advertising = false
		c.confirmed = false
		c.err = &StartError{Code: r.Code}
		c.setStateLocked(Failed)
		c.logger.Error("broadcast: advertising failed", "attempt", c.attempt, "code", r.Code, "reason", FailureReason(r.Code))
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.notify(status)
}

// beginLocked moves to Advertising and returns the transmitter call to run
// once the mutex is released. An unavailable radio ends the attempt in Idle.
func (c *Controller) beginLocked(avail error) func() {
	if avail != nil {
		c.advertising = false
		c.confirmed = false
		c.err = avail
		c.setStateLocked(Idle)
		level := slog.LevelError
		if errors.Is(avail, ErrRadioDisabled) {
			level = slog.LevelWarn
		}
		c.logger.Log(context.Background(), level, "broadcast: radio not ready", "error", avail)
		return nil
	}

	accel, gyro := c.snap.Snapshot()
	c.payload = frame.Encode(accel, gyro)
	c.advertising = true
	c.confirmed = false
	c.setStateLocked(Advertising)

	attempt, params, payload := c.attempt, c.params, c.payload
	return func() {
		c.startTransmitter(attempt, params, payload, false)
	}
}

// startTransmitter starts the radio for attempt unless a later operation
// has superseded it. With restart set the running advertisement is stopped
// first. A result reported before Start returns is applied after txMu is
// released, so observers reacting to it may stop the controller.
func (c *Controller) startTransmitter(attempt uint64, params Params, payload frame.Frame, restart bool) {
	var (
		heldMu sync.Mutex
		inline = true
		held   []StartResult
	)
	report := func(r StartResult) {
		heldMu.Lock()
		if inline {
			held = append(held, r)
			heldMu.Unlock()
			return
		}
		heldMu.Unlock()
		c.onStart(attempt, r)
	}

	c.txMu.Lock()
	if c.isCurrent(attempt) {
		if restart {
			if err := c.tx.Stop(); err != nil {
				c.logger.Debug("broadcast: stop before refresh failed", "error", err)
			}
		}
		c.tx.Start(params, payload, report)
	} else {
		c.logger.Debug("broadcast: start skipped", "error", ErrStaleCallback, "attempt", attempt)
	}
	heldMu.Lock()
	inline = false
	early := held
	heldMu.Unlock()
	c.txMu.Unlock()

	for _, r := range early {
		c.onStart(attempt, r)
	}
}

func (c *Controller) isCurrent(attempt uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Advertising && c.attempt == attempt
}

func (c *Controller) setStateLocked(s State) {
	if s == c.state {
		return
	}
	c.logger.Debug("broadcast: transition", "from", c.state, "to", s, "attempt", c.attempt)
	c.previous = c.state
	c.state = s
	c.since = c.now()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:       c.state,
		Previous:    c.previous,
		Advertising: c.advertising,
		Confirmed:   c.confirmed,
		Err:         c.err,
		Payload:     c.payload,
		Attempt:     c.attempt,
		Since:       c.since,
	}
}

func (c *Controller) notify(s Status) {
	c.obsMu.RLock()
	observers := make([]func(Status), len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()

	for _, fn := range observers {
		fn(s)
	}
}
