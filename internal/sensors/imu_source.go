// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

const standardGravity = 9.80665

// LSB per g for accelerometer range codes 0..3 (±2g, ±4g, ±8g, ±16g).
var accelLSBPerG = [4]float64{16384, 8192, 4096, 2048}

// LSB per °/s for gyroscope range codes 0..3 (±250, ±500, ±1000, ±2000 °/s).
var gyroLSBPerDPS = [4]float64{131, 65.5, 32.8, 16.4}

// AccelToMS2 converts a raw accelerometer count to m/s².
func AccelToMS2(raw int16, rangeCode byte) float32 {
	return float32(float64(raw) / accelLSBPerG[rangeCode&3] * standardGravity)
}

// GyroToRadS converts a raw gyroscope count to rad/s.
func GyroToRadS(raw int16, rangeCode byte) float32 {
	return float32(float64(raw) / gyroLSBPerDPS[rangeCode&3] * math.Pi / 180)
}

// IMUSource polls an MPU9250 over SPI.
type IMUSource struct {
	imu        *mpu9250.MPU9250
	accelRange byte
	gyroRange  byte
	interval   time.Duration
	logger     *slog.Logger
}

// NewIMUSource initializes the MPU9250 described by cfg.
func NewIMUSource(cfg *config.Config, logger *slog.Logger) (*IMUSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("IMU: periph host init: %w", err)
	}

	cs := gpioreg.ByName(cfg.IMUCSPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU: CS pin %q not found", cfg.IMUCSPin)
	}

	tr, err := mpu9250.NewSpiTransport(cfg.IMUSPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU: SPI transport (%s): %w", cfg.IMUSPIDevice, err)
	}

	imu, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("IMU: device creation: %w", err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("IMU: initialization: %w", err)
	}

	if err := imu.SetAccelRange(cfg.IMUAccelRange); err != nil {
		return nil, fmt.Errorf("IMU: set accel range: %w", err)
	}
	if err := imu.SetGyroRange(cfg.IMUGyroRange); err != nil {
		return nil, fmt.Errorf("IMU: set gyro range: %w", err)
	}
	logger.Info("sensors: IMU ranges set",
		"accel_g", []int{2, 4, 8, 16}[cfg.IMUAccelRange],
		"gyro_dps", []int{250, 500, 1000, 2000}[cfg.IMUGyroRange])

	// Self-test failure is not fatal; values are still usable for broadcast.
	if res, err := imu.SelfTest(); err != nil {
		logger.Warn("sensors: IMU self-test failed", "error", err)
	} else {
		logger.Info("sensors: IMU self-test passed",
			"accel_dev", fmt.Sprintf("%.2f/%.2f/%.2f%%", res.AccelDeviation.X, res.AccelDeviation.Y, res.AccelDeviation.Z),
			"gyro_dev", fmt.Sprintf("%.2f/%.2f/%.2f%%", res.GyroDeviation.X, res.GyroDeviation.Y, res.GyroDeviation.Z))
	}

	return &IMUSource{
		imu:        imu,
		accelRange: cfg.IMUAccelRange,
		gyroRange:  cfg.IMUGyroRange,
		interval:   time.Duration(cfg.IMUSampleInterval) * time.Millisecond,
		logger:     logger,
	}, nil
}

// Run emits one accelerometer and one gyroscope event per tick.
// Read errors are logged and the tick is skipped.
func (s *IMUSource) Run(ctx context.Context, emit func(motion.Event)) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		accel, gyro, err := s.read()
		if err != nil {
			s.logger.Warn("sensors: IMU read failed", "error", err)
			continue
		}
		emit(motion.Event{Kind: motion.Accelerometer, Sample: accel})
		emit(motion.Event{Kind: motion.Gyroscope, Sample: gyro})
	}
}

func (s *IMUSource) read() (accel, gyro motion.Sample, err error) {
	var raw [6]int16
	reads := [6]struct {
		name string
		fn   func() (int16, error)
	}{
		{"acc X", s.imu.GetAccelerationX},
		{"acc Y", s.imu.GetAccelerationY},
		{"acc Z", s.imu.GetAccelerationZ},
		{"gyro X", s.imu.GetRotationX},
		{"gyro Y", s.imu.GetRotationY},
		{"gyro Z", s.imu.GetRotationZ},
	}
	for i, r := range reads {
		if raw[i], err = r.fn(); err != nil {
			return accel, gyro, fmt.Errorf("IMU %s: %w", r.name, err)
		}
	}

	accel = motion.Sample{
		X: AccelToMS2(raw[0], s.accelRange),
		Y: AccelToMS2(raw[1], s.accelRange),
		Z: AccelToMS2(raw[2], s.accelRange),
	}
	gyro = motion.Sample{
		X: GyroToRadS(raw[3], s.gyroRange),
		Y: GyroToRadS(raw[4], s.gyroRange),
		Z: GyroToRadS(raw[5], s.gyroRange),
	}
	return accel, gyro, nil
}
