// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame encodes motion samples into the 12-byte manufacturer data
// payload carried by the advertisement.
//
// Layout: six signed 16-bit big-endian integers in the order
// ax, ay, az, gx, gy, gz. Each value is the physical reading multiplied by
// Scale, rounded half away from zero and clamped to [-32768, 32767].
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/motion_beacon/internal/motion"
)

const (
	// Len is the exact payload size in bytes.
	Len = 12
	// Scale converts physical units into the integer wire value.
	Scale = 1000
	// ManufacturerID tags the manufacturer-specific data field.
	ManufacturerID uint16 = 0x1234
)

// ErrLength is returned by Decode when the payload is not Len bytes long.
var ErrLength = errors.New("frame: invalid payload length")

// Frame is one encoded payload.
type Frame [Len]byte

// Bytes returns a copy of the payload as a slice.
func (f Frame) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, f[:])
	return b
}

func (f Frame) String() string {
	return fmt.Sprintf("% X", f[:])
}

// Encode packs accel and gyro into a Frame. It never fails: out-of-range
// values clamp, NaN encodes as 0.
func Encode(accel, gyro motion.Sample) Frame {
	var f Frame
	axes := [6]float32{accel.X, accel.Y, accel.Z, gyro.X, gyro.Y, gyro.Z}
	for i, v := range axes {
		binary.BigEndian.PutUint16(f[i*2:], uint16(toWire(v)))
	}
	return f
}

// Decode unpacks a payload received from the air.
func Decode(b []byte) (accel, gyro motion.Sample, err error) {
	if len(b) != Len {
		return motion.Sample{}, motion.Sample{}, fmt.Errorf("%w: %d", ErrLength, len(b))
	}
	var axes [6]float32
	for i := range axes {
		axes[i] = fromWire(int16(binary.BigEndian.Uint16(b[i*2:])))
	}
	accel = motion.Sample{X: axes[0], Y: axes[1], Z: axes[2]}
	gyro = motion.Sample{X: axes[3], Y: axes[4], Z: axes[5]}
	return accel, gyro, nil
}

func toWire(v float32) int16 {
	scaled := float64(v) * Scale
	if math.IsNaN(scaled) {
		return 0
	}
	r := math.Round(scaled)
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}

func fromWire(n int16) float32 {
	return float32(n) / Scale
}
