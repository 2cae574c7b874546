// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/motion"
	"github.com/relabs-tech/motion_beacon/internal/permission"
	"github.com/relabs-tech/motion_beacon/internal/radio"
	"github.com/relabs-tech/motion_beacon/internal/sensors"
)

const consoleHelp = "commands: start, stop, toggle, grant, deny, refresh, status, help, quit"

// RunMockConsole runs the beacon in a terminal with mock sensors, a loopback
// radio and interactive authorization. It returns when in is exhausted, the
// user types quit, or ctx is done.
func RunMockConsole(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	tx := radio.NewLoopback(50*time.Millisecond, logger)
	b := NewBeacon(motion.NewStore(), tx, permission.NewPrompt(), nil, logger)
	return runConsole(ctx, in, out, b, sensors.NewMockSource(100*time.Millisecond))
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func runConsole(ctx context.Context, in io.Reader, out io.Writer, b *Beacon, src motion.Source) error {
	w := &syncWriter{w: out}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if src != nil {
		go b.RunSource(ctx, src)
	}

	b.Controller.OnChange(func(s broadcast.Status) {
		line := fmt.Sprintf("[ADV]    state=%s on=%t confirmed=%t", s.State, s.Advertising, s.Confirmed)
		if s.Err != nil {
			line += " error=" + s.ErrorMessage()
		}
		w.printf("%s\n", line)
	})
	if b.Prompt != nil {
		b.Prompt.OnPrompt(func(r permission.Request) {
			names := make([]string, len(r.Capabilities))
			for i, c := range r.Capabilities {
				names[i] = string(c)
			}
			w.printf("[AUTH]   allow %s? type grant or deny\n", strings.Join(names, ", "))
		})
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	w.printf("%s\n", consoleHelp)
	for {
		select {
		case <-ctx.Done():
			b.Controller.RequestStop()
			return nil
		case line, ok := <-lines:
			if !ok {
				b.Controller.RequestStop()
				return nil
			}
			if quit := consoleCommand(w, b, strings.TrimSpace(strings.ToLower(line))); quit {
				b.Controller.RequestStop()
				return nil
			}
		}
	}
}

func consoleCommand(w *syncWriter, b *Beacon, cmd string) (quit bool) {
	c := b.Controller
	switch cmd {
	case "":
	case "start":
		c.RequestStart()
	case "stop":
		c.RequestStop()
	case "toggle":
		b.Toggle()
	case "grant", "deny":
		if b.Prompt == nil || b.Prompt.ResolveAll(cmd == "grant") == 0 {
			w.printf("no authorization request pending\n")
		}
	case "refresh":
		if !c.Refresh() {
			w.printf("refresh only applies while advertising\n")
		}
	case "status":
		v := b.View()
		w.printf("[MOTION] A=%s G=%s\n", v.Accel, v.Gyro)
		w.printf("[STATE]  %s on=%t payload=%s  (%s)\n", v.State, v.Advertising, v.Payload, v.ButtonLabel())
	case "help":
		w.printf("%s\n", consoleHelp)
	case "quit", "exit":
		return true
	default:
		w.printf("unknown command %q; %s\n", cmd, consoleHelp)
	}
	return false
}
