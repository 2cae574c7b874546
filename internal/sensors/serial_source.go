// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/motion_beacon/internal/config"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

// Serial feed line formats, both in physical units (m/s², rad/s):
//
//	A,1.500,-2.000,9.810          plain CSV, A = accelerometer, G = gyroscope
//	$MBACC,1.500,-2.000,9.810*hh  NMEA 0183 framing with checksum (MBACC / MBGYR)
const (
	sentenceAccel = "ACC"
	sentenceGyro  = "GYR"
)

// ErrMalformedLine is returned by ParseLine for lines it cannot use.
var ErrMalformedLine = errors.New("sensors: malformed line")

type motionSentence struct {
	nmea.BaseSentence
	X, Y, Z float64
}

func parseMotionSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	m := motionSentence{
		BaseSentence: s,
		X:            p.Float64(0, "x"),
		Y:            p.Float64(1, "y"),
		Z:            p.Float64(2, "z"),
	}
	return m, p.Err()
}

var sentenceParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		sentenceAccel: parseMotionSentence,
		sentenceGyro:  parseMotionSentence,
	},
}

// ParseLine decodes one line of the serial feed.
func ParseLine(line string) (motion.Event, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "$") {
		return parseSentence(line)
	}
	return parseCSV(line)
}

func parseSentence(line string) (motion.Event, error) {
	s, err := sentenceParser.Parse(line)
	if err != nil {
		return motion.Event{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	m, ok := s.(motionSentence)
	if !ok {
		return motion.Event{}, fmt.Errorf("%w: unexpected sentence %s", ErrMalformedLine, s.DataType())
	}
	ev := motion.Event{Sample: motion.Sample{X: float32(m.X), Y: float32(m.Y), Z: float32(m.Z)}}
	switch m.DataType() {
	case sentenceAccel:
		ev.Kind = motion.Accelerometer
	case sentenceGyro:
		ev.Kind = motion.Gyroscope
	}
	return ev, nil
}

func parseCSV(line string) (motion.Event, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return motion.Event{}, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedLine, len(fields))
	}

	var ev motion.Event
	switch strings.TrimSpace(fields[0]) {
	case "A":
		ev.Kind = motion.Accelerometer
	case "G":
		ev.Kind = motion.Gyroscope
	default:
		return motion.Event{}, fmt.Errorf("%w: unknown sensor tag %q", ErrMalformedLine, fields[0])
	}

	var v [3]float32
	for i := range v {
		f, err := strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 32)
		if err != nil {
			return motion.Event{}, fmt.Errorf("%w: field %d: %v", ErrMalformedLine, i+1, err)
		}
		v[i] = float32(f)
	}
	ev.Sample = motion.Sample{X: v[0], Y: v[1], Z: v[2]}
	return ev, nil
}

// SerialSource reads motion lines from a UART.
type SerialSource struct {
	opts   serial.OpenOptions
	open   func(serial.OpenOptions) (io.ReadWriteCloser, error)
	logger *slog.Logger
}

// NewSerialSource prepares a source for cfg.SerialPort. The port is opened by Run.
func NewSerialSource(cfg *config.Config, logger *slog.Logger) *SerialSource {
	return &SerialSource{
		opts: serial.OpenOptions{
			PortName:              cfg.SerialPort,
			BaudRate:              uint(cfg.SerialBaudRate),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		open:   serial.Open,
		logger: logger,
	}
}

// Run reads until ctx is done or the port fails. Malformed lines are skipped.
func (s *SerialSource) Run(ctx context.Context, emit func(motion.Event)) error {
	port, err := s.open(s.opts)
	if err != nil {
		return fmt.Errorf("sensors: open serial %s: %w", s.opts.PortName, err)
	}
	s.logger.Info("sensors: serial port opened", "port", s.opts.PortName, "baud", s.opts.BaudRate)

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()
	defer port.Close()

	err = readLines(port, s.logger, emit)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func readLines(r io.Reader, logger *slog.Logger, emit func(motion.Event)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if ev, perr := ParseLine(line); perr != nil {
				logger.Debug("sensors: skipping line", "error", perr, "line", strings.TrimSpace(line))
			} else {
				emit(ev)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("sensors: serial read: %w", err)
		}
	}
}
