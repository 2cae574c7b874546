package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/permission"
)

// stateJSON mirrors the wire form of StateView.
type stateJSON struct {
	State       string            `json:"state"`
	Advertising bool              `json:"advertising"`
	Confirmed   bool              `json:"confirmed"`
	Payload     string            `json:"payload"`
	Error       string            `json:"error"`
	Pending     []json.RawMessage `json:"pending_authorization"`
}

func newTestServer(t *testing.T, auth broadcast.Authorizer) (*httptest.Server, *Beacon) {
	t.Helper()
	b, _ := newTestBeacon(t, auth)
	web := NewWebServer(b, 50*time.Millisecond, discard)
	srv := httptest.NewServer(web.Routes(b.Metrics.Handler(), nil))
	t.Cleanup(srv.Close)
	return srv, b
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestWebStateAndAdvertisingActions(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewStatic(true))

	var st stateJSON
	if code := doJSON(t, http.MethodGet, srv.URL+"/api/state", "", &st); code != http.StatusOK {
		t.Fatalf("GET /api/state = %d", code)
	}
	if st.State != "idle" || st.Advertising {
		t.Fatalf("initial state = %+v", st)
	}

	tests := []struct {
		action    string
		wantState string
		wantOn    bool
	}{
		{"start", "advertising", true},
		{"refresh", "advertising", true},
		{"stop", "idle", false},
		{"toggle", "advertising", true},
		{"toggle", "idle", false},
	}
	for _, tt := range tests {
		var st stateJSON
		code := doJSON(t, http.MethodPost, srv.URL+"/api/advertising/"+tt.action, "", &st)
		if code != http.StatusOK {
			t.Fatalf("POST %s = %d", tt.action, code)
		}
		if st.State != tt.wantState || st.Advertising != tt.wantOn {
			t.Fatalf("after %s: state=%s on=%t, want %s/%t", tt.action, st.State, st.Advertising, tt.wantState, tt.wantOn)
		}
	}
}

func TestWebRejectsUnknownActions(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewStatic(true))

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/advertising/launch", "", http.StatusNotFound},
		// grant only exists with an interactive authorizer
		{http.MethodPost, "/api/advertising/grant", "", http.StatusNotFound},
		{http.MethodPost, "/api/authorization", `{"granted":true}`, http.StatusConflict},
		{http.MethodGet, "/api/advertising/start", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		if code := doJSON(t, tt.method, srv.URL+tt.path, tt.body, nil); code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, code, tt.want)
		}
	}
}

func TestWebAuthorizationFlow(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewPrompt())

	var st stateJSON
	doJSON(t, http.MethodPost, srv.URL+"/api/advertising/start", "", &st)
	if st.State != "requesting" || !st.Advertising || len(st.Pending) != 1 {
		t.Fatalf("after start: %+v", st)
	}

	if code := doJSON(t, http.MethodPost, srv.URL+"/api/authorization", "not json", nil); code != http.StatusBadRequest {
		t.Fatalf("bad body = %d, want 400", code)
	}

	var resp struct {
		Answered int       `json:"answered"`
		State    stateJSON `json:"state"`
	}
	body := `{"advertise":true,"connect":true,"scan":true}`
	if code := doJSON(t, http.MethodPost, srv.URL+"/api/authorization", body, &resp); code != http.StatusOK {
		t.Fatalf("POST /api/authorization = %d", code)
	}
	if resp.Answered != 1 {
		t.Errorf("answered = %d, want 1", resp.Answered)
	}
	if resp.State.State != "advertising" || !resp.State.Confirmed || resp.State.Payload == "" {
		t.Fatalf("after grant: %+v", resp.State)
	}

	// Granted capabilities are remembered: a restart needs no prompt.
	doJSON(t, http.MethodPost, srv.URL+"/api/advertising/stop", "", nil)
	var restart stateJSON
	doJSON(t, http.MethodPost, srv.URL+"/api/advertising/start", "", &restart)
	if restart.State != "advertising" || len(restart.Pending) != 0 {
		t.Fatalf("restart: %+v", restart)
	}
}

func TestWebPartialGrantDenies(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewPrompt())

	doJSON(t, http.MethodPost, srv.URL+"/api/advertising/start", "", nil)

	var resp struct {
		State stateJSON `json:"state"`
	}
	doJSON(t, http.MethodPost, srv.URL+"/api/authorization", `{"advertise":true,"connect":true,"scan":false}`, &resp)
	if resp.State.State != "idle" || resp.State.Advertising || resp.State.Error == "" {
		t.Fatalf("after partial grant: %+v", resp.State)
	}
}

func TestWebHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewStatic(true))

	for path, want := range map[string]string{
		"/healthz": "ok",
		"/metrics": "beacon_advertising",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
			t.Errorf("GET %s = %d %q, want it to contain %q", path, resp.StatusCode, body, want)
		}
	}
}

func TestWebSocketPushesStateAndAcceptsCommands(t *testing.T) {
	srv, _ := newTestServer(t, permission.NewStatic(true))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first struct {
		Type  string    `json:"type"`
		State stateJSON `json:"state"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if first.Type != "state" || first.State.State != "idle" {
		t.Fatalf("first message = %+v", first)
	}

	if err := conn.WriteJSON(WSMessage{Action: "toggle"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := conn.WriteJSON(WSMessage{Action: "fly"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var sawAdvertising, sawError bool
	for !sawAdvertising || !sawError {
		var msg struct {
			Type    string    `json:"type"`
			State   stateJSON `json:"state"`
			Message string    `json:"message"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v (advertising=%t error=%t)", err, sawAdvertising, sawError)
		}
		switch msg.Type {
		case "state":
			if msg.State.State == "advertising" && msg.State.Confirmed {
				sawAdvertising = true
			}
		case "error":
			if !strings.Contains(msg.Message, "fly") {
				t.Errorf("error message = %q", msg.Message)
			}
			sawError = true
		}
	}
}
