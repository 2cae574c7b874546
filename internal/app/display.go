// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/frame"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// RunDisplay shows the beacon readouts on an SSD1306 OLED until ctx is done.
func RunDisplay(ctx context.Context, cfg *config.Config, b *Beacon, logger *slog.Logger) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	logger.Info("display: initialized", "addr", "0x3C")

	if err := draw(dev, renderSplash()); err != nil {
		logger.Warn("display: error showing splash", "error", err)
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := draw(dev, renderReadout(b.View())); err != nil {
				logger.Warn("display: error updating display", "error", err)
			}
		}
	}
}

func draw(dev *ssd1306.Dev, img *image1bit.VerticalLSB) error {
	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Motion Beacon"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte(fmt.Sprintf("BLE id 0x%04X", frame.ManufacturerID)))

	return img
}

// renderReadout draws accel and gyro (two decimals) and the advertising flag.
func renderReadout(v StateView) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	lines := []string{
		fmt.Sprintf("A%6.2f%6.2f", v.Accel.X, v.Accel.Y),
		fmt.Sprintf(" %6.2f G%6.2f", v.Accel.Z, v.Gyro.X),
		fmt.Sprintf("G%6.2f%6.2f", v.Gyro.Y, v.Gyro.Z),
		advertisingLine(v),
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func advertisingLine(v StateView) string {
	switch {
	case len(v.Pending) > 0:
		return "ADV ? (allow?)"
	case v.State == broadcast.Failed:
		return fmt.Sprintf("ADV FAIL %d", v.ErrorCode)
	case v.Advertising:
		return "ADV ON"
	default:
		return "ADV OFF"
	}
}

// RunButton toggles advertising on each falling edge of a push button
// wired between pin and ground.
func RunButton(ctx context.Context, pinName string, b *Beacon, logger *slog.Logger) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("button pin %q not found", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("button pin %s: %w", pinName, err)
	}
	defer pin.In(gpio.PullNoChange, gpio.NoEdge)
	logger.Info("button: waiting for presses", "pin", pinName)

	const debounce = 200 * time.Millisecond
	var last time.Time
	for ctx.Err() == nil {
		if !pin.WaitForEdge(500 * time.Millisecond) {
			continue
		}
		now := time.Now()
		if now.Sub(last) < debounce {
			continue
		}
		last = now
		b.Toggle()
		logger.Info("button: toggled advertising", "advertising", b.Controller.Advertising())
	}
	return nil
}
