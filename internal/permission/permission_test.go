package permission

import (
	"testing"
	"time"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/frame"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

func waitAnswer(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no answer within 1s")
		return false
	}
}

func TestStaticAnswersAsynchronously(t *testing.T) {
	for _, granted := range []bool{true, false} {
		s := NewStatic(granted)
		if got := s.Granted(broadcast.RequiredCapabilities()); got != granted {
			t.Errorf("Granted() = %v, want %v", got, granted)
		}
		ch := make(chan bool, 1)
		s.Request(broadcast.RequiredCapabilities(), func(ok bool) { ch <- ok })
		if got := waitAnswer(t, ch); got != granted {
			t.Errorf("Request answer = %v, want %v", got, granted)
		}
	}
}

func TestPromptFullGrantIsRemembered(t *testing.T) {
	p := NewPrompt()
	caps := broadcast.RequiredCapabilities()
	if p.Granted(caps) {
		t.Fatal("Granted() = true before any prompt")
	}

	var prompted []Request
	p.OnPrompt(func(r Request) { prompted = append(prompted, r) })

	var answer *bool
	p.Request(caps, func(ok bool) { answer = &ok })
	if len(prompted) != 1 || prompted[0].ID != 1 {
		t.Fatalf("prompted = %+v, want one request with ID 1", prompted)
	}
	if got := len(p.Pending()); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}

	if n := p.ResolveAll(true); n != 1 {
		t.Fatalf("ResolveAll() = %d, want 1", n)
	}
	if answer == nil || !*answer {
		t.Fatal("request not granted")
	}
	if !p.Granted(caps) {
		t.Fatal("grant not remembered")
	}
	if got := len(p.Pending()); got != 0 {
		t.Fatalf("Pending() = %d after resolve, want 0", got)
	}

	p.Revoke()
	if p.Granted(caps) {
		t.Fatal("Granted() = true after Revoke")
	}
}

func TestPromptPartialGrantIsDenial(t *testing.T) {
	p := NewPrompt()
	caps := broadcast.RequiredCapabilities()

	var answer *bool
	p.Request(caps, func(ok bool) { answer = &ok })
	p.Resolve(map[broadcast.Capability]bool{
		broadcast.CapAdvertise: true,
		broadcast.CapConnect:   true,
		broadcast.CapScan:      false,
	})

	if answer == nil || *answer {
		t.Fatal("partial grant reported as granted")
	}
	if p.Granted(caps) {
		t.Fatal("Granted() = true after partial grant")
	}
	if !p.Granted([]broadcast.Capability{broadcast.CapAdvertise}) {
		t.Fatal("individually granted capability not remembered")
	}
}

func TestPromptMissingCapabilityIsDenial(t *testing.T) {
	p := NewPrompt()
	var answer *bool
	p.Request(broadcast.RequiredCapabilities(), func(ok bool) { answer = &ok })
	p.Resolve(map[broadcast.Capability]bool{broadcast.CapAdvertise: true})
	if answer == nil || *answer {
		t.Fatal("request with unanswered capabilities reported as granted")
	}
}

func TestPromptDrivesController(t *testing.T) {
	p := NewPrompt()
	c := broadcast.NewController(motion.NewStore(), nopTransmitter{}, p, nil)

	c.RequestStart()
	if got := c.State(); got != broadcast.Requesting {
		t.Fatalf("State() = %v, want %v", got, broadcast.Requesting)
	}
	p.ResolveAll(false)
	if got := c.State(); got != broadcast.Idle {
		t.Fatalf("State() = %v, want %v", got, broadcast.Idle)
	}
}

type nopTransmitter struct{}

func (nopTransmitter) Available() error { return nil }

func (nopTransmitter) Start(broadcast.Params, frame.Frame, func(broadcast.StartResult)) {}

func (nopTransmitter) Stop() error { return nil }

func TestParse(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"granted", false},
		{" Denied ", false},
		{"prompt", false},
		{"maybe", true},
	}
	for _, tt := range tests {
		_, err := Parse(tt.mode)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
		}
	}
}

func TestPromptHookMayRegisterHooks(t *testing.T) {
	p := NewPrompt()
	var first, second int
	p.OnPrompt(func(Request) {
		first++
		if first == 1 {
			p.OnPrompt(func(Request) { second++ })
		}
	})

	caps := broadcast.RequiredCapabilities()
	p.Request(caps, func(bool) {})
	if first != 1 || second != 0 {
		t.Fatalf("after first request: first=%d second=%d, want 1 0", first, second)
	}
	p.Request(caps, func(bool) {})
	if first != 2 || second != 1 {
		t.Fatalf("after second request: first=%d second=%d, want 2 1", first, second)
	}
}
