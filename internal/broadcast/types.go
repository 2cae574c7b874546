// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package broadcast

import (
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/frame"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// State is the advertising lifecycle state owned by the Controller.
type State int

const (
	Idle State = iota
	Requesting
	Advertising
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Advertising:
		return "advertising"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capability is a host permission needed before advertising.
type Capability string

const (
	CapAdvertise Capability = "advertise"
	CapConnect   Capability = "connect"
	CapScan      Capability = "scan"
)

// RequiredCapabilities is the set requested before the first start.
func RequiredCapabilities() []Capability {
	return []Capability{CapAdvertise, CapConnect, CapScan}
}

// Mode is the discoverability/latency profile.
type Mode string

// ModeLowLatency advertises at the shortest interval the host allows.
const ModeLowLatency Mode = "low_latency"

// lowLatencyInterval is the advertising interval of ModeLowLatency.
const lowLatencyInterval = 100 * time.Millisecond

// TxPower is the transmit power level.
type TxPower string

// TxPowerMedium is the only power level used.
const TxPowerMedium TxPower = "medium"

// Params are the transmission parameters handed to the Transmitter.
//
// Mode reaches the radio through AdvertisingInterval. TxPower is
// informational only: the BLE adapter library has no transmit power
// control, so the host default applies.
type Params struct {
	Mode              Mode
	Connectable       bool
	TxPower           TxPower
	ManufacturerID    uint16
	IncludeDeviceName bool
	Interval          time.Duration
}

// DefaultParams returns the single fixed profile: low latency,
// non-connectable, no device name (12-byte payloads must fit).
func DefaultParams() Params {
	return Params{
		Mode:              ModeLowLatency,
		Connectable:       false,
		TxPower:           TxPowerMedium,
		ManufacturerID:    frame.ManufacturerID,
		IncludeDeviceName: false,
		Interval:          lowLatencyInterval,
	}
}

// AdvertisingInterval is Interval, or the Mode's interval when Interval is unset.
func (p Params) AdvertisingInterval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return lowLatencyInterval
}

// StartResult is the asynchronous outcome of Transmitter.Start.
type StartResult struct {
	OK   bool
	Code int
}

// Transmitter is the advertising radio.
type Transmitter interface {
	// Available reports nil, ErrRadioUnavailable or ErrRadioDisabled.
	Available() error
	// Start begins advertising payload and calls report exactly once.
	// report may run before Start returns. Start must not call back into
	// the Controller by any other route.
	Start(p Params, payload frame.Frame, report func(StartResult))
	// Stop is best effort.
	Stop() error
}

// Authorizer is the host permission workflow.
type Authorizer interface {
	Granted(caps []Capability) bool
	// Request asks for caps and calls report once. A partial grant is reported as false.
	Request(caps []Capability, report func(granted bool))
}

// Snapshotter supplies the samples encoded at start time.
type Snapshotter interface {
	Snapshot() (accel, gyro motion.Sample)
}

// Status is a point-in-time view of the controller for presentation.
type Status struct {
	State       State       `json:"state"`
	Previous    State       `json:"previous"`
	Advertising bool        `json:"advertising"`
	Confirmed   bool        `json:"confirmed"`
	Err         error       `json:"-"`
	Payload     frame.Frame `json:"-"`
	Attempt     uint64      `json:"attempt"`
	Since       time.Time   `json:"since"`
}

// ErrorCode returns the transmitter failure code, or 0.
func (s Status) ErrorCode() int {
	var se *StartError
	if errors.As(s.Err, &se) {
		return se.Code
	}
	return 0
}

// ErrorMessage returns Err as text, or "".
func (s Status) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}
