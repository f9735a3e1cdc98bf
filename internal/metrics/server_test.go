package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/randomizedcoder/go-processjob/internal/logging"
)

func startTestServer(t *testing.T, c *Collector) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", c.Registry(), logging.NewLoggerWithWriter(io.Discard, "text", "error"))
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_Metrics(t *testing.T) {
	c := newTestCollector()
	c.CommandStarted(0)
	c.KillEscalated()
	s := startTestServer(t, c)

	resp := get(t, "http://"+s.Addr()+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("decode error: %v", err)
		}
		families[mf.GetName()] = &mf
	}

	tests := []struct {
		name string
		want float64
	}{
		{MetricCommandsStarted, 1},
		{MetricKillEscalations, 1},
		{MetricCancels, 0},
	}
	for _, tt := range tests {
		mf, ok := families[tt.name]
		if !ok {
			t.Errorf("metric %s missing", tt.name)
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
	if _, ok := families[MetricRunning]; !ok {
		t.Errorf("metric %s missing", MetricRunning)
	}
}

func TestServer_Health(t *testing.T) {
	s := startTestServer(t, newTestCollector())

	for _, path := range []string{"/health", "/healthz"} {
		resp := get(t, "http://"+s.Addr()+path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestServer_Ready(t *testing.T) {
	s := startTestServer(t, newTestCollector())
	url := "http://" + s.Addr() + "/ready"

	if resp := get(t, url); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status before SetReady = %d, want 503", resp.StatusCode)
	}

	s.SetReady(true)
	if resp := get(t, url); resp.StatusCode != http.StatusOK {
		t.Errorf("status after SetReady = %d, want 200", resp.StatusCode)
	}
}

func TestServer_StartError(t *testing.T) {
	first := startTestServer(t, newTestCollector())

	second := NewServer(first.Addr(), newTestCollector().Registry(), logging.Discard())
	if err := second.Start(); err == nil {
		second.Shutdown(context.Background())
		t.Fatal("expected error binding an address already in use")
	}
}

func TestServer_AddrBeforeStart(t *testing.T) {
	s := NewServer("127.0.0.1:17091", newTestCollector().Registry(), logging.Discard())
	if got := s.Addr(); got != "127.0.0.1:17091" {
		t.Errorf("Addr() = %q", got)
	}
}
