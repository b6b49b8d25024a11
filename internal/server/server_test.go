package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/itstheanurag/snipexec/internal/api"
	"github.com/itstheanurag/snipexec/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: "0", ReadTimeout: 5, WriteTimeout: 30, IdleTimeout: 30},
		Engine: config.EngineConfig{
			Sandbox:                "none",
			WorkspaceRoot:          t.TempDir(),
			RunTimeout:             2 * time.Second,
			CompileTimeout:         10 * time.Second,
			KillGrace:              200 * time.Millisecond,
			MaxOutputChars:         1500,
			IncludeStdoutOnFailure: true,
		},
		Workers: config.WorkersConfig{Count: 2, QueueCapacity: 8},
		Limiter: config.LimiterConfig{
			GlobalRPS:       100,
			PerIPRPS:        100,
			PerIPBurst:      100,
			MaxConcurrent:   10,
			CleanupInterval: time.Minute,
		},
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := zerolog.Nop()
	s, err := New(context.Background(), testConfig(t), &logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "snipexec_queue_depth") {
		t.Fatal("metrics endpoint does not expose snipexec metrics")
	}
}

func TestExecuteRouteRequiresPost(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/execute")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestExecuteEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	if _, err := exec.LookPath("chmod"); err != nil {
		t.Skip("chmod not available")
	}

	s, ts := newTestServer(t)
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("Start: %v", err)
		}
	})

	body := `{"language":"sh","code":"read line; echo \"got $line\"","stdin":"hello\n"}`
	resp, err := http.Post(ts.URL+"/execute", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out api.ExecutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "success" || out.Output != "got hello\n" {
		t.Fatalf("response = %+v", out)
	}
}

func TestTracingInstalledAndFlushedOnStop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	conf := testConfig(t)
	conf.Tracing = config.TracingConfig{Enabled: true, ServiceName: "snipexec-test", SampleRatio: 1}
	logger := zerolog.Nop()
	s, err := New(context.Background(), conf, &logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("global provider = %T", otel.GetTracerProvider())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
