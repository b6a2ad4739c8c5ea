package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"packet-intake/internal/observability"
	"packet-intake/pkg/nic"
	"packet-intake/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, opts RouterOptions) (*gin.Engine, *Handlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dev, err := nic.NewSynthetic(nic.SyntheticOptions{Ports: 2, QueuesPerPort: 1, RingSize: 8})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })
	popts := pipeline.DefaultOptions()
	popts.QueueCapacity = 16
	popts.Consumers = 1
	p, err := pipeline.New(dev, popts)
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	if _, err := dev.Inject(0, 0, make([]byte, 64), make([]byte, 64)); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	for _, r := range p.Receivers() {
		r.Poll()
	}

	h := &Handlers{
		Pipeline: p,
		Monitor:  observability.NewMonitor(observability.AlertsConfig{DropsThreshold: 1}, 10, nil, nil),
		Traces:   observability.NewTraces(10),
	}
	return NewRouter(h, opts), h
}

func get(r http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestGetStats(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	rr := get(r, "/api/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rep pipeline.Report
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Counters.Received != 2 || rep.QueueUsed != 2 || rep.QueueCap != 16 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(rep.Ports) != 2 || rep.Ports[0].Stats.Received != 2 {
		t.Fatalf("unexpected ports: %+v", rep.Ports)
	}
}

func TestGetPort(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	if rr := get(r, "/api/ports/0"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr := get(r, "/api/ports/9"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown port, got %d", rr.Code)
	}
	if rr := get(r, "/api/ports/x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad port id, got %d", rr.Code)
	}
}

func TestGetWorkers(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	rr := get(r, "/api/workers")
	var body struct {
		Receivers []struct {
			Port  uint16 `json:"port"`
			Queue uint16 `json:"queue"`
		} `json:"receivers"`
		Consumers int `json:"consumers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Receivers) != 2 || body.Consumers != 1 {
		t.Fatalf("unexpected workers: %+v", body)
	}
}

func TestHistoryAndAlerts(t *testing.T) {
	r, h := newTestRouter(t, RouterOptions{})
	h.Monitor.Observe(pipeline.Report{})
	h.Monitor.Observe(pipeline.Report{Counters: pipeline.Snapshot{DroppedQueueFull: 3}})

	var history []pipeline.Report
	if err := json.Unmarshal(get(r, "/api/history").Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(history))
	}
	var alerts []observability.Alert
	if err := json.Unmarshal(get(r, "/api/alerts").Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != observability.AlertDrops || alerts[0].Value != 3 {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
}

func TestMonitorDisabled(t *testing.T) {
	r, h := newTestRouter(t, RouterOptions{})
	h.Monitor = nil
	if rr := get(r, "/api/alerts"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHealthReportsShutdown(t *testing.T) {
	r, h := newTestRouter(t, RouterOptions{Token: "secret"})
	if rr := get(r, "/healthz"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 without token, got %d", rr.Code)
	}
	h.Pipeline.Stop()
	if rr := get(r, "/healthz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after stop, got %d", rr.Code)
	}
}

func TestRouterRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{Token: "secret"})
	if rr := get(r, "/api/stats"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := get(r, "/api/stats", "X-API-Key", "secret"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestTracesEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	get(r, "/api/stats")
	var traces []observability.Trace
	if err := json.Unmarshal(get(r, "/api/traces").Body.Bytes(), &traces); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(traces) == 0 || traces[0].Path != "/api/stats" {
		t.Fatalf("unexpected traces: %+v", traces)
	}
}

func TestPprofRegisteredWhenEnabled(t *testing.T) {
	r, _ := newTestRouter(t, RouterOptions{})
	if rr := get(r, "/debug/pprof/"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected pprof disabled, got %d", rr.Code)
	}
	r, _ = newTestRouter(t, RouterOptions{Pprof: true})
	rr := get(r, "/debug/pprof/")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "profile") {
		t.Fatalf("expected pprof index content")
	}
}
