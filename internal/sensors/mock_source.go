// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// MockSource generates smooth changing motion: a slow tilt around gravity
// and a gentle rotation.
type MockSource struct {
	start    time.Time
	interval time.Duration
}

// NewMockSource creates a mock source that ticks every interval.
func NewMockSource(interval time.Duration) *MockSource {
	return &MockSource{start: time.Now(), interval: interval}
}

// At returns the mock samples for the given elapsed time.
func (m *MockSource) At(elapsed time.Duration) (accel, gyro motion.Sample) {
	t := elapsed.Seconds()
	roll := 0.3 * math.Sin(t)
	pitch := 0.2 * math.Cos(t*0.7)

	accel = motion.Sample{
		X: float32(standardGravity * math.Sin(pitch)),
		Y: float32(-standardGravity * math.Sin(roll) * math.Cos(pitch)),
		Z: float32(standardGravity * math.Cos(roll) * math.Cos(pitch)),
	}
	// Derivatives of roll and pitch, plus a constant yaw rate.
	gyro = motion.Sample{
		X: float32(0.3 * math.Cos(t)),
		Y: float32(-0.14 * math.Sin(t*0.7)),
		Z: 0.05,
	}
	return accel, gyro
}

func (m *MockSource) Run(ctx context.Context, emit func(motion.Event)) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			accel, gyro := m.At(now.Sub(m.start))
			emit(motion.Event{Kind: motion.Accelerometer, Sample: accel})
			emit(motion.Event{Kind: motion.Gyroscope, Sample: gyro})
		}
	}
}
