package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/events"
	"github.com/foxzi/numcheck/internal/queue"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/rules"
	"github.com/foxzi/numcheck/internal/storage"
)

// mockRuns implements RunStore for testing
type mockRuns struct {
	mu   sync.Mutex
	runs map[string]*storage.Run
}

func newMockRuns() *mockRuns {
	return &mockRuns{runs: make(map[string]*storage.Run)}
}

func (m *mockRuns) put(run *storage.Run) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
}

func (m *mockRuns) Get(ctx context.Context, id string) (*storage.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *run
	return &c, nil
}

func (m *mockRuns) List(ctx context.Context, filter storage.ListFilter) ([]*storage.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []*storage.Run{}
	for _, run := range m.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, run.Brief())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockRuns) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !run.Status.Terminal() {
		return storage.ErrRunActive
	}
	delete(m.runs, id)
	return nil
}

func (m *mockRuns) Stats(ctx context.Context) (*storage.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &storage.Stats{Total: int64(len(m.runs))}, nil
}

// mockQueue implements RunQueue for testing
type mockQueue struct {
	runs      *mockRuns
	submitted []batch.Options
	err       error
}

func (q *mockQueue) Submit(ctx context.Context, numbers []string, opts batch.Options, source string) (*storage.Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if q.err != nil {
		return nil, q.err
	}
	q.submitted = append(q.submitted, opts)
	run := &storage.Run{
		ID:      "run-" + string(rune('a'+len(q.submitted)-1)),
		Status:  storage.StatusPending,
		Source:  source,
		Options: opts,
		Total:   len(numbers),
	}
	q.runs.put(run)
	return run.Brief(), nil
}

func (q *mockQueue) Cancel(ctx context.Context, id string) error {
	run, err := q.runs.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return queue.ErrRunFinished
	}
	run.Status = storage.StatusCancelled
	q.runs.put(run)
	return nil
}

// mockQuota implements QuotaReporter for testing
type mockQuota struct{}

func (mockQuota) AllStats(ctx context.Context) []*quota.Stats {
	return []*quota.Stats{{Level: quota.LevelGlobal, Key: "*", HourlyCount: 3, DailyCount: 7}}
}

func (mockQuota) GetStats(ctx context.Context, level quota.Level, key string) (*quota.Stats, error) {
	return &quota.Stats{Level: level, Key: key, HourlyCount: 5}, nil
}

// Check denies "+242" and allows every other country
func (mockQuota) Check(ctx context.Context, req *quota.Request) (*quota.Result, error) {
	if req.CountryCode == "+242" {
		return &quota.Result{DeniedBy: quota.LevelCountry, DeniedKey: "+242", RetryAfter: 90 * time.Second}, nil
	}
	return &quota.Result{Allowed: true}, nil
}

type testEnv struct {
	server *Server
	runs   *mockRuns
	queue  *mockQueue
	broker *events.Broker
}

func setupTestServer(apiKey string, modify ...func(*config.APIConfig)) *testEnv {
	runs := newMockRuns()
	q := &mockQueue{runs: runs}
	broker := events.NewBroker()

	cfg := &config.APIConfig{
		ListenAddr:   ":8080",
		APIKey:       apiKey,
		MaxBodyBytes: 1 << 20,
		MaxNumbers:   100,
	}
	for _, fn := range modify {
		fn(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(cfg, Deps{
		Rules:    rules.NewStore(rules.Default()),
		Runs:     runs,
		Queue:    q,
		Events:   broker,
		Defaults: batch.DefaultOptions(),
	}, logger)

	return &testEnv{server: server, runs: runs, queue: q, broker: broker}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.server.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.server.config.APIKey)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestServer("secret")

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Rules != rules.Default().Len() {
		t.Errorf("Rules = %d, want %d", resp.Rules, rules.Default().Len())
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := setupTestServer("secret-key")

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "Bearer wrong-key", http.StatusUnauthorized},
		{"correct key", "Authorization", "Bearer secret-key", http.StatusOK},
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/rules", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()

			env.server.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	env := setupTestServer("")

	w := env.do("GET", "/api/v1/rules", "")
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d (no auth required)", w.Code, http.StatusOK)
	}
}

func TestRulesEndpoint(t *testing.T) {
	env := setupTestServer("key")

	w := env.do("GET", "/api/v1/rules", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var all RulesResponse
	json.NewDecoder(w.Body).Decode(&all)
	if all.Total != rules.Default().Len() || len(all.Rules) != all.Total {
		t.Errorf("Total = %d, rules = %d", all.Total, len(all.Rules))
	}

	w = env.do("GET", "/api/v1/rules?region=francophone", "")
	var franco RulesResponse
	json.NewDecoder(w.Body).Decode(&franco)
	if franco.Total == 0 || franco.Total >= all.Total {
		t.Errorf("francophone Total = %d, all = %d", franco.Total, all.Total)
	}
	for _, r := range franco.Rules {
		if r.Region != rules.RegionFrancophone {
			t.Errorf("rule %s has region %s", r.CountryCode, r.Region)
		}
	}

	w = env.do("GET", "/api/v1/rules?region=atlantis", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown region Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := setupTestServer("key")

	w := env.do("POST", "/api/v1/validate", `{"number": "+242 06 123 4567", "numbers": ["12345", "+22170000000"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp ValidateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Total != 3 || resp.Valid != 1 || resp.Invalid != 2 {
		t.Fatalf("counts = %d/%d/%d, want 3/1/2", resp.Total, resp.Valid, resp.Invalid)
	}

	first := resp.Results[0]
	if !first.Valid || first.E164 != "+242061234567" || first.Country == nil || first.Country.CountryCode != "+242" {
		t.Errorf("first result = %+v", first)
	}
	if first.Display != "+242 0 61 23 45 67" {
		t.Errorf("Display = %q", first.Display)
	}
	if resp.Results[1].Valid || len(resp.Results[1].Errors) == 0 {
		t.Errorf("second result = %+v", resp.Results[1])
	}
	if resp.Results[2].Valid || resp.Results[2].Display != "" {
		t.Errorf("third result = %+v", resp.Results[2])
	}
}

func TestValidateEndpointErrors(t *testing.T) {
	env := setupTestServer("key", func(c *config.APIConfig) {
		c.MaxNumbers = 2
		c.MaxBodyBytes = 256
	})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"invalid json", `{invalid}`, http.StatusBadRequest},
		{"unknown field", `{"phone": "+242061234567"}`, http.StatusBadRequest},
		{"no numbers", `{"numbers": []}`, http.StatusBadRequest},
		{"too many numbers", `{"numbers": ["1", "2", "3"]}`, http.StatusRequestEntityTooLarge},
		{"body too large", `{"numbers": ["` + strings.Repeat("1", 400) + `"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/validate", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer key")
			w := httptest.NewRecorder()

			env.server.router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d. Body: %s", w.Code, tt.want, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Errorf("expected JSON error body, got %q", w.Body.String())
			}
		})
	}
}

func TestQuotaEndpoint(t *testing.T) {
	env := setupTestServer("")

	w := env.do("GET", "/api/v1/quota", "")
	var disabled QuotaResponse
	json.NewDecoder(w.Body).Decode(&disabled)
	if disabled.Enabled || disabled.Stats == nil {
		t.Errorf("disabled quota response = %+v", disabled)
	}

	env.server.deps.Quota = mockQuota{}
	w = env.do("GET", "/api/v1/quota", "")
	var enabled QuotaResponse
	json.NewDecoder(w.Body).Decode(&enabled)
	if !enabled.Enabled || len(enabled.Stats) != 1 || enabled.Stats[0].DailyCount != 7 {
		t.Errorf("enabled quota response = %+v", enabled)
	}
	if enabled.Country != nil {
		t.Errorf("Country = %+v, want nil without a country parameter", enabled.Country)
	}
}

func TestQuotaEndpointCountryPreview(t *testing.T) {
	env := setupTestServer("")
	env.server.deps.Quota = mockQuota{}

	tests := []struct {
		query       string
		wantCode    string
		wantAllowed bool
		wantRetry   int
	}{
		{"%2B242", "+242", false, 90},
		{"242", "+242", false, 90},
		{"+221", "+221", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do("GET", "/api/v1/quota?country="+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d. Body: %s", w.Code, http.StatusOK, w.Body.String())
			}

			var resp QuotaResponse
			json.NewDecoder(w.Body).Decode(&resp)
			c := resp.Country
			if c == nil {
				t.Fatal("Country missing from response")
			}
			if c.CountryCode != tt.wantCode || c.Allowed != tt.wantAllowed || c.RetryAfterSeconds != tt.wantRetry {
				t.Errorf("Country = %+v", c)
			}
			if c.Stats == nil || c.Stats.Key != tt.wantCode || c.Stats.HourlyCount != 5 {
				t.Errorf("Stats = %+v", c.Stats)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	env := setupTestServer("", func(c *config.APIConfig) {
		c.RateLimit.RequestsPerSecond = 1
		c.RateLimit.Burst = 2
	})

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest("GET", "/api/v1/rules", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		w := httptest.NewRecorder()
		env.server.router.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// Another client has its own bucket
	req := httptest.NewRequest("GET", "/api/v1/rules", nil)
	req.RemoteAddr = "192.0.2.11:4000"
	w := httptest.NewRecorder()
	env.server.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("second client Status = %d, want 200", w.Code)
	}
}

func TestRateLimiterPrunesIdleVisitors(t *testing.T) {
	rl := newRateLimiter(1, 1, nil)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.get("192.0.2.1")
	now = now.Add(2 * visitorTTL)
	rl.get("192.0.2.2")

	if _, ok := rl.visitors["192.0.2.1"]; ok {
		t.Error("idle visitor should be pruned")
	}
	if len(rl.visitors) != 1 {
		t.Errorf("visitors = %d, want 1", len(rl.visitors))
	}
}

func TestIPFilter(t *testing.T) {
	env := setupTestServer("", func(c *config.APIConfig) {
		c.AllowedIPs = []string{"10.0.0.0/8"}
	})

	tests := []struct {
		remote string
		want   int
	}{
		{"10.1.2.3:5000", http.StatusOK},
		{"192.0.2.1:5000", http.StatusForbidden},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/v1/rules", nil)
		req.RemoteAddr = tt.remote
		w := httptest.NewRecorder()
		env.server.router.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: Status = %d, want %d", tt.remote, w.Code, tt.want)
		}
	}

	// Health stays reachable
	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	w := httptest.NewRecorder()
	env.server.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health Status = %d, want 200", w.Code)
	}
}
