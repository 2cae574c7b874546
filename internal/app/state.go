// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/motion"
	"github.com/relabs-tech/motion_beacon/internal/permission"
)

// StateView is what presentations render: readouts, the advertising flag
// and any authorization prompt waiting for an answer.
type StateView struct {
	Accel       motion.Sample        `json:"accel"`
	Gyro        motion.Sample        `json:"gyro"`
	Advertising bool                 `json:"advertising"`
	State       broadcast.State      `json:"state"`
	Confirmed   bool                 `json:"confirmed"`
	ErrorCode   int                  `json:"error_code,omitempty"`
	Error       string               `json:"error,omitempty"`
	Payload     string               `json:"payload,omitempty"`
	Attempt     uint64               `json:"attempt"`
	Pending     []permission.Request `json:"pending_authorization,omitempty"`
}

// View captures the current StateView.
func (b *Beacon) View() StateView {
	accel, gyro := b.Store.Snapshot()
	st := b.Controller.Status()
	v := StateView{
		Accel:       accel,
		Gyro:        gyro,
		Advertising: st.Advertising,
		State:       st.State,
		Confirmed:   st.Confirmed,
		ErrorCode:   st.ErrorCode(),
		Error:       st.ErrorMessage(),
		Attempt:     st.Attempt,
	}
	if st.State == broadcast.Advertising {
		v.Payload = fmt.Sprintf("%X", st.Payload[:])
	}
	if b.Prompt != nil {
		v.Pending = b.Prompt.Pending()
	}
	return v
}

// ButtonLabel is the toggle control's caption for the current flag.
func (v StateView) ButtonLabel() string {
	if v.Advertising {
		return "Stop Advertising"
	}
	return "Start Advertising"
}
