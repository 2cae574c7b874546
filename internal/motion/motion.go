// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion holds the latest accelerometer and gyroscope readings.
package motion

import (
	"context"
	"fmt"
	"sync"
)

// Sample is one 3-axis reading in the sensor's native unit
// (m/s² for acceleration, rad/s for angular velocity).
type Sample struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (s Sample) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", s.X, s.Y, s.Z)
}

// Kind identifies which sensor produced an Event.
type Kind int

const (
	Accelerometer Kind = iota
	Gyroscope
)

func (k Kind) String() string {
	switch k {
	case Accelerometer:
		return "accelerometer"
	case Gyroscope:
		return "gyroscope"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single sensor delivery.
type Event struct {
	Kind   Kind
	Sample Sample
}

// Source is anything that delivers sensor events over time.
// Run blocks until ctx is done or the source fails.
type Source interface {
	Run(ctx context.Context, emit func(Event)) error
}

// Store keeps only the most recent sample per sensor. The zero value is
// ready to use and reports (0,0,0) for both sensors.
type Store struct {
	mu    sync.RWMutex
	accel Sample
	gyro  Sample
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// RecordAccel overwrites the latest accelerometer sample. Values are not validated.
func (s *Store) RecordAccel(v Sample) {
	s.mu.Lock()
	s.accel = v
	s.mu.Unlock()
}

// RecordGyro overwrites the latest gyroscope sample.
func (s *Store) RecordGyro(v Sample) {
	s.mu.Lock()
	s.gyro = v
	s.mu.Unlock()
}

// Record dispatches e by kind. Unknown kinds are ignored.
func (s *Store) Record(e Event) {
	switch e.Kind {
	case Accelerometer:
		s.RecordAccel(e.Sample)
	case Gyroscope:
		s.RecordGyro(e.Sample)
	}
}

// Snapshot returns the current (accel, gyro) pair. Each sample is read whole.
func (s *Store) Snapshot() (accel, gyro Sample) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accel, s.gyro
}
