package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"icsbusy/internal/busy"
	"icsbusy/internal/config"
	"icsbusy/internal/metrics"
)

// stubChecker answers from a table; URLs missing from it fail.
type stubChecker struct {
	mu      sync.Mutex
	answers map[string]bool
	seen    []string
}

func (s *stubChecker) IsBusy(_ context.Context, url string) (bool, error) {
	s.mu.Lock()
	s.seen = append(s.seen, url)
	s.mu.Unlock()
	v, ok := s.answers[url]
	if !ok {
		return false, busy.ErrTransport
	}
	return v, nil
}

type testServer struct {
	*httptest.Server
	checker *stubChecker
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	checker := &stubChecker{answers: map[string]bool{
		"https://example.com/busy.ics":  true,
		"https://example.com/free.ics":  false,
		"webcal://example.com/busy.ics": true,
	}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := NewServer(cfg, Options{
		Checker:  checker,
		Metrics:  m,
		Gatherer: reg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, checker: checker, metrics: m}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK || body != "Hello!" {
		t.Fatalf("GET / = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK || body != "OK" {
		t.Fatalf("GET /health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /nope = %d, want 404", resp.StatusCode)
	}
}

func TestByURL(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"urls":{"alice":"https://example.com/busy.ics","bob":"https://example.com/free.ics","carol":"https://example.com/down.ics"}}`
	resp, err := http.Post(ts.URL+"/by_url", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}

	var got map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || !got["alice"] || got["bob"] {
		t.Fatalf("unexpected result %v", got)
	}
	if _, ok := got["carol"]; ok {
		t.Fatal("failed feed must be omitted")
	}

	if v := testutil.ToFloat64(ts.metrics.FeedChecks.WithLabelValues(metrics.OutcomeError)); v != 1 {
		t.Errorf("error checks = %v, want 1", v)
	}
}

func TestByURL_EmptyMap(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/by_url", "application/json", strings.NewReader(`{"urls":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if body := strings.TrimSpace(readBody(t, resp)); resp.StatusCode != http.StatusOK || body != "{}" {
		t.Fatalf("got %d %q, want 200 {}", resp.StatusCode, body)
	}
}

func TestByURL_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"urls":`, "invalid JSON body"},
		{"missing urls", `{"feeds":{}}`, "missing"},
		{"wrong shape", `{"urls":["https://example.com/a.ics"]}`, "invalid JSON body"},
		{"relative url", `{"urls":{"a":"/etc/passwd"}}`, "invalid url for a"},
		{"file url", `{"urls":{"a":"file:///etc/passwd"}}`, "unsupported scheme"},
		{"no host", `{"urls":{"a":"https://"}}`, "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/by_url", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			body := readBody(t, resp)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}
			if !strings.Contains(body, tt.want) {
				t.Fatalf("expected error mentioning %q, got %s", tt.want, body)
			}
		})
	}

	if len(ts.checker.seen) != 0 {
		t.Fatalf("no feed should be fetched for a rejected request, saw %v", ts.checker.seen)
	}
}

func TestByURL_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/by_url")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestAPIBusy(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		url    string
		status int
		want   string
	}{
		{"https://example.com/busy.ics", http.StatusOK, `{"busy":true}`},
		{"https://example.com/free.ics", http.StatusOK, `{"busy":false}`},
		{"webcal://example.com/busy.ics", http.StatusOK, `{"busy":true}`},
		{"https://example.com/down.ics", http.StatusBadGateway, "feed could not be read"},
		{"", http.StatusBadRequest, "invalid url"},
	}

	for _, tt := range tests {
		resp, err := http.Get(ts.URL + "/api/busy?url=" + tt.url)
		if err != nil {
			t.Fatal(err)
		}
		body := strings.TrimSpace(readBody(t, resp))
		if resp.StatusCode != tt.status || !strings.Contains(body, tt.want) {
			t.Errorf("GET /api/busy?url=%s = %d %s, want %d %s", tt.url, resp.StatusCode, body, tt.status, tt.want)
		}
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected a WWW-Authenticate challenge")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a wrong password, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", resp.StatusCode)
	}

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		readBody(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s without credentials = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/busy?url=https://example.com/busy.ics")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body := readBody(t, resp)
	if !strings.Contains(body, `icsbusy_feed_checks_total{outcome="busy"} 1`) {
		t.Fatalf("expected the busy check to be exported, got:\n%s", body)
	}
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request ID")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	readBody(t, resp)
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected the incoming request ID to be echoed, got %q", got)
	}
}

func TestValidateFeedURL(t *testing.T) {
	for _, u := range []string{
		"https://example.com/a.ics",
		"http://example.com/a.ics",
		"webcal://example.com/a.ics",
		"WEBCALS://example.com/a.ics",
	} {
		if err := validateFeedURL(u); err != nil {
			t.Errorf("validateFeedURL(%q): unexpected error %v", u, err)
		}
	}
	for _, u := range []string{"", "example.com/a.ics", "ftp://example.com/a.ics", "https:///a.ics", "::"} {
		if err := validateFeedURL(u); err == nil {
			t.Errorf("validateFeedURL(%q): expected error", u)
		}
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s := NewServer(cfg, Options{
		Checker: &stubChecker{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	cancel()

	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewServer_NilConfig(t *testing.T) {
	s := NewServer(nil, Options{
		Checker: &stubChecker{answers: map[string]bool{"https://example.com/busy.ics": true}},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/by_url", "application/json",
		strings.NewReader(`{"urls":{"a":"https://example.com/busy.ics"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if body := strings.TrimSpace(readBody(t, resp)); resp.StatusCode != http.StatusOK || body != `{"a":true}` {
		t.Fatalf("got %d %s, want 200 {\"a\":true}", resp.StatusCode, body)
	}
	if s.batch.Concurrency != 10 {
		t.Fatalf("expected default concurrency, got %d", s.batch.Concurrency)
	}
}
