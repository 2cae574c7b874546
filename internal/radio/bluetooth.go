// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package radio binds the broadcast controller to a BLE adapter and provides
// a passive listener for the frames it emits.
package radio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/frame"
)

// Transmitter advertises frames through a tinygo bluetooth adapter.
// It satisfies broadcast.Transmitter.
type Transmitter struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	mu       sync.Mutex
	enabled  bool
	disabled bool // last start failed because the adapter is powered off
	adv      *bluetooth.Advertisement
	running  bool
}

// NewTransmitter wraps adapter. A nil adapter uses bluetooth.DefaultAdapter.
// The adapter is enabled lazily on the first Available call.
func NewTransmitter(adapter *bluetooth.Adapter, logger *slog.Logger) *Transmitter {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transmitter{adapter: adapter, logger: logger}
}

// Available enables the adapter if needed and reports whether advertising
// can be attempted.
func (t *Transmitter) Available() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		if err := t.adapter.Enable(); err != nil {
			return fmt.Errorf("%w: enable adapter: %v", broadcast.ErrRadioUnavailable, err)
		}
		t.enabled = true
		t.adv = t.adapter.DefaultAdvertisement()
		t.logger.Info("radio: adapter enabled")
	}
	if t.adv == nil {
		return fmt.Errorf("%w: no advertiser", broadcast.ErrRadioUnavailable)
	}
	if t.disabled {
		// Clear so a retry after the user powers the adapter back on goes through.
		t.disabled = false
		return broadcast.ErrRadioDisabled
	}
	return nil
}

// Start configures a single manufacturer data element carrying payload and
// starts advertising. The outcome is reported before Start returns.
func (t *Transmitter) Start(p broadcast.Params, payload frame.Frame, report func(broadcast.StartResult)) {
	result := t.start(p, payload)
	report(result)
}

func (t *Transmitter) start(p broadcast.Params, payload frame.Frame) broadcast.StartResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.adv == nil {
		return broadcast.StartResult{Code: broadcast.FailureInternalError}
	}
	if t.running {
		return broadcast.StartResult{Code: broadcast.FailureAlreadyStarted}
	}

	if err := t.adv.Configure(advertisementOptions(p, payload)); err != nil {
		return t.failLocked("configure", err)
	}
	if err := t.adv.Start(); err != nil {
		return t.failLocked("start", err)
	}
	t.running = true
	t.logger.Debug("radio: advertisement started", "payload", payload, "mode", p.Mode)
	return broadcast.StartResult{OK: true}
}

func (t *Transmitter) failLocked(step string, err error) broadcast.StartResult {
	if poweredOff(err) {
		t.disabled = true
	}
	code := FailureCode(err)
	t.logger.Warn("radio: advertisement "+step+" failed", "error", err, "code", code)
	return broadcast.StartResult{Code: code}
}

// Stop stops advertising. Stopping an idle transmitter is a no-op.
func (t *Transmitter) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || t.adv == nil {
		return nil
	}
	t.running = false
	if err := t.adv.Stop(); err != nil {
		return fmt.Errorf("radio: stop advertisement: %w", err)
	}
	return nil
}

func advertisementOptions(p broadcast.Params, payload frame.Frame) bluetooth.AdvertisementOptions {
	kind := bluetooth.AdvertisingTypeNonConnInd
	if p.Connectable {
		kind = bluetooth.AdvertisingTypeInd
	}
	return bluetooth.AdvertisementOptions{
		AdvertisementType: kind,
		Interval:          bluetooth.NewDuration(p.AdvertisingInterval()),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: p.ManufacturerID, Data: payload.Bytes()},
		},
	}
}

// FailureCode maps an adapter error onto the broadcast failure codes.
// Adapter stacks report these conditions as text (BlueZ over D-Bus), so the
// mapping matches on the message.
func FailureCode(err error) int {
	if err == nil {
		return 0
	}
	var se *broadcast.StartError
	if errors.As(err, &se) {
		return se.Code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "too large", "too big", "invalidlength", "invalid length"):
		return broadcast.FailureDataTooLarge
	case containsAny(msg, "maximum advertisements", "too many"):
		return broadcast.FailureTooManyAdvertisers
	case containsAny(msg, "alreadyexists", "already exists", "already advertising", "already started"):
		return broadcast.FailureAlreadyStarted
	case containsAny(msg, "notsupported", "not supported", "unsupported"):
		return broadcast.FailureFeatureUnsupported
	default:
		return broadcast.FailureInternalError
	}
}

func poweredOff(err error) bool {
	return containsAny(strings.ToLower(err.Error()), "notready", "not ready", "powered off", "not powered")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
