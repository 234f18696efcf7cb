package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/hxctl/internal/device"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/testutil/fakeradio"
	"github.com/danmuck/hxctl/internal/testutil/testlog"
)

const radioDoc = `waypoints:
  - name: HARBOR
    lat: 47 36.1234 N
    lon: 122 20.5000 W
routes:
  - OUT: [HARBOR]
`

func newTestServer(t *testing.T) (*Server, *device.Manager) {
	t.Helper()
	m := device.NewManager(device.DefaultConfig())
	t.Cleanup(m.Disconnect)
	return New(Options{CorsOrigins: []string{"http://localhost:3000"}}, m), m
}

func connectImage(t *testing.T, m *device.Manager) {
	t.Helper()
	l, err := layout.ByModel("HX870")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	data := fakeradio.Blank(l.ImageLength)
	copy(data, l.ImageMagic)
	if err := m.ConnectImage(data, ""); err != nil {
		t.Fatalf("connect image: %v", err)
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return body
}

func TestHealthAndModels(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)

	rr := do(t, s, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeJSON(t, rr); body["status"] != "ok" || body["service"] != "hxctl" {
		t.Fatalf("unexpected health %v", body)
	}

	rr = do(t, s, http.MethodGet, "/models", "")
	if !strings.Contains(rr.Body.String(), "HX891BT") {
		t.Fatalf("models missing: %s", rr.Body.String())
	}
}

func TestCyclesRequireConnection(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)

	if rr := do(t, s, http.MethodPost, "/read", ""); rr.Code != http.StatusConflict {
		t.Fatalf("read while idle: expected 409, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodPost, "/write", radioDoc); rr.Code != http.StatusConflict {
		t.Fatalf("write while idle: expected 409, got %d", rr.Code)
	}
	if rr := do(t, s, http.MethodGet, "/image", ""); rr.Code != http.StatusConflict {
		t.Fatalf("image while idle: expected 409, got %d", rr.Code)
	}
	body := decodeJSON(t, do(t, s, http.MethodGet, "/config", ""))
	if body["state"] != "idle" {
		t.Fatalf("unexpected config %v", body)
	}
}

func TestWriteReadOverHTTP(t *testing.T) {
	testlog.Start(t)
	s, m := newTestServer(t)
	connectImage(t, m)

	status := decodeJSON(t, do(t, s, http.MethodGet, "/status", ""))
	if status["state"] != string(device.StateImageConnected) || status["model"] != "HX870" {
		t.Fatalf("unexpected status %v", status)
	}

	rr := do(t, s, http.MethodPost, "/write", radioDoc)
	if rr.Code != http.StatusOK {
		t.Fatalf("write: %d %s", rr.Code, rr.Body.String())
	}
	tables := decodeJSON(t, rr)["tables"].(map[string]any)
	if wp := tables["waypoints"].(map[string]any); wp["used"] != float64(1) {
		t.Fatalf("unexpected waypoint usage %v", wp)
	}

	rr = do(t, s, http.MethodPost, "/read", "")
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != yamlContentType {
		t.Fatalf("read: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if out := rr.Body.String(); !strings.Contains(out, "HARBOR") || !strings.Contains(out, "OUT:") {
		t.Fatalf("unexpected document:\n%s", out)
	}

	cfg := decodeJSON(t, do(t, s, http.MethodGet, "/config", ""))
	if cfg["state"] != "populated" {
		t.Fatalf("unexpected config %v", cfg)
	}
	if counts := cfg["tables"].(map[string]any); counts["routes"] != float64(1) || counts["waypoints"] != float64(1) {
		t.Fatalf("unexpected tables %v", counts)
	}

	rr = do(t, s, http.MethodGet, "/image", "")
	if rr.Code != http.StatusOK || rr.Body.Len() != 0x8000 {
		t.Fatalf("image: %d len=%d", rr.Code, rr.Body.Len())
	}

	rr = do(t, s, http.MethodPost, "/disconnect", "")
	if body := decodeJSON(t, rr); body["state"] != string(device.StateDisconnected) {
		t.Fatalf("unexpected disconnect body %v", body)
	}
}

func TestWriteRejectsBadDocuments(t *testing.T) {
	testlog.Start(t)
	s, m := newTestServer(t)
	connectImage(t, m)

	if rr := do(t, s, http.MethodPost, "/write", "- not\n- a mapping\n"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	rr := do(t, s, http.MethodPost, "/write", "routes:\n  - OUT: [NOWHERE]\n")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(decodeJSON(t, rr)["error"].(string), "routes") {
		t.Fatalf("error must name the module: %s", rr.Body.String())
	}
	img, err := m.Image()
	if err != nil || img.Dirty() {
		t.Fatalf("rejected write must not touch the image")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	do(t, s, http.MethodGet, "/health", "")
	rr := do(t, s, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "hxctl_http_requests_total") {
		t.Fatalf("metrics missing http counter: %d", rr.Code)
	}
}

func TestCorsPreflight(t *testing.T) {
	testlog.Start(t)
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/config", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
