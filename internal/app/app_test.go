package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/foxzi/numcheck/internal/api"
	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(config.EnvFile, filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config.Default() error = %v", err)
	}
	cfg.API.APIKey = ""
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "runs.db")
	cfg.Batch.Delay = 0
	cfg.Reachability.RatePerSecond = 1000
	cfg.Reachability.Burst = 100
	cfg.Reachability.Simulated.Seed = 7
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewWithLogger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewWithLogger() error = %v", err)
	}
	return a
}

func serve(a *App, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	return w
}

func TestNewFailsInterruptedRuns(t *testing.T) {
	cfg := testConfig(t)

	s, err := storage.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		t.Fatalf("NewBoltStorage() error = %v", err)
	}
	run := &storage.Run{Input: []string{"+242061234567"}, Total: 1}
	if err := s.Create(context.Background(), run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Close()

	a := newTestApp(t, cfg)
	defer a.Shutdown(context.Background())

	got, err := a.storage.Get(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != storage.StatusFailed || got.Error == "" {
		t.Errorf("interrupted run = %+v, want failed", got)
	}
}

func TestNewInvalidRulesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules.File = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := NewWithLogger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestAppProcessesRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Reachability.Quota.Enabled = true
	cfg.Reachability.Quota.Global = &quota.LimitConfig{PerDay: 100}

	a := newTestApp(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.processor.Start(ctx)
	defer a.Shutdown(context.Background())

	body, _ := json.Marshal(api.CreateRunRequest{
		Numbers: []string{"+242061234567", "+221771234567", "12345"},
	})
	w := serve(a, "POST", "/api/v1/runs", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create Status = %d, want %d. Body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var created storage.Run
	json.NewDecoder(w.Body).Decode(&created)

	var run storage.Run
	deadline := time.Now().Add(5 * time.Second)
	for {
		w = serve(a, "GET", "/api/v1/runs/"+created.ID, nil)
		run = storage.Run{}
		json.NewDecoder(w.Body).Decode(&run)
		if run.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish, last status %s", run.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if run.Status != storage.StatusCompleted {
		t.Fatalf("Status = %s, want completed (error %q)", run.Status, run.Error)
	}
	if run.Summary == nil || run.Summary.FormatValid != 2 || run.Summary.FormatInvalid != 1 {
		t.Errorf("Summary = %+v", run.Summary)
	}
	if run.Summary.APICallsMade != 2 {
		t.Errorf("APICallsMade = %d, want 2", run.Summary.APICallsMade)
	}

	w = serve(a, "GET", "/api/v1/quota?country=%2B242", nil)
	var q api.QuotaResponse
	json.NewDecoder(w.Body).Decode(&q)
	if !q.Enabled {
		t.Error("quota should be reported as enabled")
	}
	if q.Country == nil || !q.Country.Allowed || q.Country.CountryCode != "+242" {
		t.Errorf("Country = %+v, want an allowed +242 preview", q.Country)
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := SetupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Errorf("info line logged at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, out)
	}
	if line["msg"] != "shown" || line["key"] != "value" {
		t.Errorf("line = %v", line)
	}
}
