package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/motion"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestObserveStatusTracksLifecycle(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveStatus(broadcast.Status{State: broadcast.Requesting, Advertising: true})
	if got := testutil.ToFloat64(c.Advertising); got != 1 {
		t.Fatalf("beacon_advertising = %v, want 1", got)
	}
	c.ObserveStatus(broadcast.Status{State: broadcast.Advertising, Advertising: true})
	// Confirmation repeats the state and must not count as a transition.
	c.ObserveStatus(broadcast.Status{State: broadcast.Advertising, Advertising: true, Confirmed: true})
	c.ObserveStatus(broadcast.Status{State: broadcast.Failed, Err: &broadcast.StartError{Code: 2}})

	if got := testutil.ToFloat64(c.Advertising); got != 0 {
		t.Fatalf("beacon_advertising = %v, want 0", got)
	}
	tests := []struct {
		from, to string
		want     float64
	}{
		{"idle", "requesting", 1},
		{"requesting", "advertising", 1},
		{"advertising", "advertising", 0},
		{"advertising", "failed", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(c.Transitions.WithLabelValues(tt.from, tt.to)); got != tt.want {
			t.Errorf("transitions{%s->%s} = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(c.StartFailures.WithLabelValues("2")); got != 1 {
		t.Fatalf("start failures{code=2} = %v, want 1", got)
	}
}

func TestRecordSensorEvent(t *testing.T) {
	c, _ := newTestCollector(t)
	c.RecordSensorEvent(motion.Accelerometer)
	c.RecordSensorEvent(motion.Accelerometer)
	c.RecordSensorEvent(motion.Gyroscope)

	if got := testutil.ToFloat64(c.SensorEvents.WithLabelValues("accelerometer")); got != 2 {
		t.Fatalf("accelerometer events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.SensorEvents.WithLabelValues("gyroscope")); got != 1 {
		t.Fatalf("gyroscope events = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveStatus(broadcast.Status{State: broadcast.Advertising})
	c.RecordSensorEvent(motion.Gyroscope)
	c.RecordObservedFrame()
}

func TestNewCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	second.RecordObservedFrame()
	if got := testutil.ToFloat64(first.FramesObserved); got != 1 {
		t.Fatalf("frames observed via first collector = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, reg := newTestCollector(t)
	c.ObserveStatus(broadcast.Status{State: broadcast.Advertising, Advertising: true})

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, name := range []string{"beacon_advertising 1", "beacon_state_transitions_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var gauge *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "beacon_advertising" {
			gauge = mf
		}
	}
	if gauge == nil || gauge.GetType() != dto.MetricType_GAUGE {
		t.Fatalf("beacon_advertising family = %v", gauge)
	}
}
