package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/permission"
)

func TestRunConsoleScript(t *testing.T) {
	b, tx := newTestBeacon(t, permission.NewPrompt())

	script := "start\ngrant\nstatus\nstop\ndeny\nrefresh\nbogus\nquit\nstart\n"
	var out bytes.Buffer
	if err := runConsole(context.Background(), strings.NewReader(script), &out, b, nil); err != nil {
		t.Fatalf("runConsole: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		consoleHelp,
		"[ADV]    state=requesting on=true confirmed=false",
		"[AUTH]   allow advertise, connect, scan? type grant or deny",
		"[ADV]    state=advertising on=true confirmed=true",
		"[MOTION] A=",
		"[STATE]  advertising on=true payload=000000000000000000000000  (Stop Advertising)",
		"[ADV]    state=idle on=false confirmed=false",
		"no authorization request pending",
		"refresh only applies while advertising",
		`unknown command "bogus"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}

	// Nothing after quit runs.
	if st := b.Controller.State(); st != broadcast.Idle {
		t.Errorf("state after quit = %s, want idle", st)
	}
	if tx.Starts() != 1 {
		t.Errorf("transmitter starts = %d, want 1", tx.Starts())
	}
}

func TestRunConsoleStopsOnEOF(t *testing.T) {
	b, tx := newTestBeacon(t, permission.NewStatic(true))

	var out bytes.Buffer
	if err := runConsole(context.Background(), strings.NewReader("toggle\n"), &out, b, nil); err != nil {
		t.Fatalf("runConsole: %v", err)
	}
	if b.Controller.Advertising() || tx.Running() {
		t.Error("advertising left on after input ended")
	}
	if !strings.Contains(out.String(), "[ADV]    state=idle") {
		t.Errorf("stop not reported:\n%s", out.String())
	}
}
