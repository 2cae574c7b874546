// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry mirrors beacon activity to an MQTT broker.
package telemetry

import (
	"fmt"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/frame"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// MotionMessage is the latest pair of samples.
type MotionMessage struct {
	Accel     motion.Sample `json:"accel"`
	Gyro      motion.Sample `json:"gyro"`
	Timestamp time.Time     `json:"timestamp"`
}

// AdvertisingMessage mirrors a broadcast.Status.
type AdvertisingMessage struct {
	State       string    `json:"state"`
	Advertising bool      `json:"advertising"`
	Confirmed   bool      `json:"confirmed"`
	ErrorCode   int       `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	Payload     string    `json:"payload,omitempty"`
	Attempt     uint64    `json:"attempt"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewAdvertisingMessage converts s. The payload is only included while advertising.
func NewAdvertisingMessage(s broadcast.Status) AdvertisingMessage {
	m := AdvertisingMessage{
		State:       s.State.String(),
		Advertising: s.Advertising,
		Confirmed:   s.Confirmed,
		ErrorCode:   s.ErrorCode(),
		Error:       s.ErrorMessage(),
		Attempt:     s.Attempt,
		Timestamp:   time.Now(),
	}
	if s.State == broadcast.Advertising {
		m.Payload = fmt.Sprintf("%X", s.Payload[:])
	}
	return m
}

// FrameMessage is one frame seen on air, decoded.
type FrameMessage struct {
	Address   string        `json:"address,omitempty"`
	RSSI      int16         `json:"rssi,omitempty"`
	Payload   string        `json:"payload"`
	Accel     motion.Sample `json:"accel"`
	Gyro      motion.Sample `json:"gyro"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewFrameMessage decodes f.
func NewFrameMessage(address string, rssi int16, f frame.Frame, seenAt time.Time) FrameMessage {
	// A Frame always has frame.Len bytes, so Decode cannot fail.
	accel, gyro, _ := frame.Decode(f[:])
	return FrameMessage{
		Address:   address,
		RSSI:      rssi,
		Payload:   fmt.Sprintf("%X", f[:]),
		Accel:     accel,
		Gyro:      gyro,
		Timestamp: seenAt,
	}
}
