// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package radio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/motion_beacon/internal/frame"
)

// Match is one observed motion frame.
type Match struct {
	Address string
	RSSI    int16
	Data    frame.Frame
	SeenAt  time.Time
}

// Listener passively scans for motion frames.
type Listener struct {
	adapter   *bluetooth.Adapter
	companyID uint16
	logger    *slog.Logger
}

// NewListener scans on adapter (nil = bluetooth.DefaultAdapter) for frames
// tagged with frame.ManufacturerID.
func NewListener(adapter *bluetooth.Adapter, logger *slog.Logger) *Listener {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{adapter: adapter, companyID: frame.ManufacturerID, logger: logger}
}

// Run scans until ctx is cancelled, calling onMatch for every matching
// advertisement. Cancellation is a clean shutdown and returns nil.
func (l *Listener) Run(ctx context.Context, onMatch func(Match)) error {
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("radio: enable adapter: %w", err)
	}
	l.logger.Info("radio: scanning started", "company", fmt.Sprintf("0x%04X", l.companyID))

	stop := context.AfterFunc(ctx, func() {
		_ = l.adapter.StopScan()
	})
	defer stop()

	// Scan blocks until StopScan or error.
	err := l.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		for _, md := range r.ManufacturerData() {
			f, ok := l.accept(md.CompanyID, md.Data)
			if !ok {
				continue
			}
			onMatch(Match{
				Address: r.Address.String(),
				RSSI:    r.RSSI,
				Data:    f,
				SeenAt:  time.Now(),
			})
			return
		}
	})

	if ctx.Err() != nil {
		l.logger.Info("radio: scanning stopped (context canceled)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("radio: scan: %w", err)
	}
	l.logger.Info("radio: scanning stopped")
	return nil
}

func (l *Listener) accept(companyID uint16, data []byte) (frame.Frame, bool) {
	var f frame.Frame
	if companyID != l.companyID || len(data) != frame.Len {
		return f, false
	}
	copy(f[:], data)
	return f, true
}
