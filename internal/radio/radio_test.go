package radio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/frame"
	"github.com/relabs-tech/motion_beacon/internal/motion"
	"github.com/relabs-tech/motion_beacon/internal/permission"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFailureCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("org.bluez.Error.InvalidLength: advertising data too long"), broadcast.FailureDataTooLarge},
		{errors.New("advertisement packet too big"), broadcast.FailureDataTooLarge},
		{errors.New("org.bluez.Error.NotPermitted: Maximum advertisements reached"), broadcast.FailureTooManyAdvertisers},
		{errors.New("org.bluez.Error.AlreadyExists: Already Exists"), broadcast.FailureAlreadyStarted},
		{errors.New("org.bluez.Error.NotSupported"), broadcast.FailureFeatureUnsupported},
		{errors.New("dbus: connection closed"), broadcast.FailureInternalError},
		{fmt.Errorf("wrapped: %w", &broadcast.StartError{Code: 5}), 5},
	}
	for _, tt := range tests {
		if got := FailureCode(tt.err); got != tt.want {
			t.Errorf("FailureCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPoweredOff(t *testing.T) {
	if !poweredOff(errors.New("org.bluez.Error.NotReady: Resource Not Ready")) {
		t.Error("NotReady not recognized as powered off")
	}
	if poweredOff(errors.New("org.bluez.Error.Failed")) {
		t.Error("generic failure recognized as powered off")
	}
}

func TestAdvertisementOptions(t *testing.T) {
	f := frame.Encode(motion.Sample{X: 1}, motion.Sample{})
	opts := advertisementOptions(broadcast.DefaultParams(), f)

	if opts.AdvertisementType != bluetooth.AdvertisingTypeNonConnInd {
		t.Errorf("AdvertisementType = %v, want non-connectable", opts.AdvertisementType)
	}
	if opts.LocalName != "" {
		t.Errorf("LocalName = %q, want empty", opts.LocalName)
	}
	if opts.Interval != bluetooth.NewDuration(100*time.Millisecond) {
		t.Errorf("Interval = %v", opts.Interval)
	}
	if len(opts.ManufacturerData) != 1 {
		t.Fatalf("ManufacturerData has %d elements, want 1", len(opts.ManufacturerData))
	}
	md := opts.ManufacturerData[0]
	if md.CompanyID != 0x1234 {
		t.Errorf("CompanyID = %#x, want 0x1234", md.CompanyID)
	}
	if string(md.Data) != string(f[:]) {
		t.Errorf("Data = % X, want % X", md.Data, f[:])
	}
}

func TestAdvertisementIntervalFollowsMode(t *testing.T) {
	p := broadcast.DefaultParams()
	p.Interval = 0
	if got := advertisementOptions(p, frame.Frame{}).Interval; got != bluetooth.NewDuration(100*time.Millisecond) {
		t.Errorf("low latency Interval = %v, want 100ms", got)
	}

	p.Interval = 250 * time.Millisecond
	if got := advertisementOptions(p, frame.Frame{}).Interval; got != bluetooth.NewDuration(250*time.Millisecond) {
		t.Errorf("explicit Interval = %v, want 250ms", got)
	}
}

func TestListenerAccept(t *testing.T) {
	l := &Listener{companyID: frame.ManufacturerID, logger: discard}
	want := frame.Encode(motion.Sample{X: 1.5}, motion.Sample{Z: -0.05})

	tests := []struct {
		name    string
		company uint16
		data    []byte
		ok      bool
	}{
		{"match", 0x1234, want.Bytes(), true},
		{"other company", 0x004C, want.Bytes(), false},
		{"short", 0x1234, want.Bytes()[:11], false},
		{"long", 0x1234, append(want.Bytes(), 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := l.accept(tt.company, tt.data)
			if ok != tt.ok {
				t.Fatalf("accept ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != want {
				t.Fatalf("accept = %v, want %v", got, want)
			}
		})
	}
}

func TestLoopbackStartStop(t *testing.T) {
	l := NewLoopback(0, discard)
	var frames []frame.Frame
	l.OnFrame(func(f frame.Frame) { frames = append(frames, f) })

	payload := frame.Encode(motion.Sample{Y: 2}, motion.Sample{})
	var got broadcast.StartResult
	l.Start(broadcast.DefaultParams(), payload, func(r broadcast.StartResult) { got = r })
	if !got.OK || !l.Running() || l.Last() != payload {
		t.Fatalf("after start: result=%+v running=%v", got, l.Running())
	}
	if len(frames) != 1 || frames[0] != payload {
		t.Fatalf("OnFrame saw %v", frames)
	}

	l.Start(broadcast.DefaultParams(), payload, func(r broadcast.StartResult) { got = r })
	if got.OK || got.Code != broadcast.FailureAlreadyStarted {
		t.Fatalf("second start = %+v, want already started", got)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if l.Running() {
		t.Fatal("Running() = true after Stop")
	}

	l.FailNext(broadcast.FailureDataTooLarge)
	l.Start(broadcast.DefaultParams(), payload, func(r broadcast.StartResult) { got = r })
	if got.OK || got.Code != broadcast.FailureDataTooLarge {
		t.Fatalf("forced failure = %+v", got)
	}
	if l.Starts() != 3 {
		t.Fatalf("Starts() = %d, want 3", l.Starts())
	}
}

func TestLoopbackDrivesController(t *testing.T) {
	store := motion.NewStore()
	store.RecordAccel(motion.Sample{X: 1.5, Y: -2.0, Z: 9.81})
	l := NewLoopback(5*time.Millisecond, discard)
	c := broadcast.NewController(store, l, permission.NewStatic(true), discard)

	var (
		mu   sync.Mutex
		done = make(chan struct{})
	)
	c.OnChange(func(s broadcast.Status) {
		mu.Lock()
		defer mu.Unlock()
		if s.Confirmed {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})

	c.RequestStart()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("start never confirmed")
	}
	if l.Last() != frame.Encode(store.Snapshot()) {
		t.Fatalf("advertised %v", l.Last())
	}

	c.RequestStop()
	if l.Running() {
		t.Fatal("loopback still running after RequestStop")
	}
}

func TestLoopbackUnavailable(t *testing.T) {
	l := NewLoopback(0, discard)
	l.SetAvailable(broadcast.ErrRadioDisabled)
	c := broadcast.NewController(motion.NewStore(), l, permission.NewStatic(true), discard)
	c.RequestStart()

	st := c.Status()
	if st.State != broadcast.Idle || !errors.Is(st.Err, broadcast.ErrRadioDisabled) {
		t.Fatalf("status = %+v", st)
	}
	if l.Starts() != 0 {
		t.Fatal("loopback started while disabled")
	}
}
