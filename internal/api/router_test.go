package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"serveturn/detector/internal/analysis"
	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/auth"
	"serveturn/detector/internal/config"
	"serveturn/detector/internal/feed"
	"serveturn/detector/internal/health"
	"serveturn/detector/internal/store"
	"serveturn/detector/internal/stream"
)

type fixture struct {
	srv *httptest.Server
	st  *store.Store
	det *stream.Detector
	cfg config.Config
}

func newFixture(t *testing.T, secret string, checks ...health.Check) *fixture {
	t.Helper()
	cfg := config.Load()
	cfg.Ingest.TokenSecret = secret
	cfg.Ingest.TokenTTLMin = 10

	scfg := stream.DefaultConfig()
	scfg.ChildThreshold = 250
	scfg.Heartbeat = time.Hour
	st := store.New()
	det, err := stream.New(scfg, st, feed.NewHub())
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	t.Cleanup(func() { det.Stop() })

	h := NewHandlers(cfg, st, det, analysis.DefaultConfig(), feed.NewRegistry(), checks...)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, st: st, det: det, cfg: cfg}
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, "")

	resp := post(t, f.srv.URL+"/api/start")
	var started map[string]any
	decode(t, resp, &started)
	if resp.StatusCode != http.StatusOK || started["status"] != "started" {
		t.Fatalf("unexpected start: %d %v", resp.StatusCode, started)
	}
	id, _ := started["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session id: %v", started)
	}

	resp = post(t, f.srv.URL+"/api/start")
	var again map[string]any
	decode(t, resp, &again)
	if again["message"] != "already listening" || again["session_id"] != id {
		t.Fatalf("expected already listening for %s, got %v", id, again)
	}

	resp, _ = http.Get(f.srv.URL + "/api/status")
	var status stream.Status
	decode(t, resp, &status)
	if !status.Listening {
		t.Fatalf("expected listening status")
	}

	resp = post(t, f.srv.URL+"/api/stop")
	var stopped struct {
		SessionID string         `json:"session_id"`
		Status    string         `json:"status"`
		Summary   map[string]any `json:"summary"`
		Stats     map[string]any `json:"stats"`
	}
	decode(t, resp, &stopped)
	if stopped.Status != "stopped" || stopped.SessionID != id {
		t.Fatalf("unexpected stop: %+v", stopped)
	}
	if _, ok := stopped.Summary["moments_per_hour"]; !ok {
		t.Fatalf("summary missing moments_per_hour: %v", stopped.Summary)
	}

	resp = post(t, f.srv.URL+"/api/stop")
	var idle map[string]any
	decode(t, resp, &idle)
	if resp.StatusCode != http.StatusOK || idle["message"] != "not listening" {
		t.Fatalf("expected not listening, got %d %v", resp.StatusCode, idle)
	}

	if sess := f.st.GetSession(id); sess == nil || sess.StoppedAt == nil {
		t.Fatalf("expected finished session in store, got %+v", sess)
	}
}

func TestSessionsEndpoints(t *testing.T) {
	f := newFixture(t, "")
	id, err := f.det.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, _ := http.Get(f.srv.URL + "/api/sessions")
	var list struct {
		Total int `json:"total"`
	}
	decode(t, resp, &list)
	if list.Total != 1 {
		t.Fatalf("expected 1 session, got %d", list.Total)
	}

	resp, _ = http.Get(f.srv.URL + "/api/sessions/" + id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(f.srv.URL + "/api/sessions/" + id + "/events")
	var evs struct {
		SessionID string            `json:"session_id"`
		Events    []json.RawMessage `json:"events"`
	}
	decode(t, resp, &evs)
	if evs.SessionID != id {
		t.Fatalf("expected events for %s, got %s", id, evs.SessionID)
	}

	resp, _ = http.Get(f.srv.URL + "/api/session")
	var view stream.SessionView
	decode(t, resp, &view)
	if view.SessionID != id || view.StartedAt == nil {
		t.Fatalf("unexpected session view: %+v", view)
	}
}

func TestUnknownSession404(t *testing.T) {
	f := newFixture(t, "secret")
	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/sessions/unknown"},
		{http.MethodGet, "/api/sessions/unknown/events"},
		{http.MethodPost, "/api/sessions/unknown/token"},
		{http.MethodGet, "/api/sessions/unknown/other"},
	} {
		req, _ := http.NewRequest(tc.method, f.srv.URL+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, "")
	resp, err := http.Get(f.srv.URL + "/api/start")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestMintToken(t *testing.T) {
	f := newFixture(t, "secret")
	id, err := f.det.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp := post(t, f.srv.URL+"/api/sessions/"+id+"/token")
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, err := auth.Verify("secret", out.Token, id, time.Now(), 0); err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if !out.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", out.ExpiresAt)
	}

	if _, err := f.det.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	resp = post(t, f.srv.URL+"/api/sessions/"+id+"/token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for stopped session, got %d", resp.StatusCode)
	}
}

func TestMintTokenWithoutSecret(t *testing.T) {
	f := newFixture(t, "")
	id, err := f.det.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp := post(t, f.srv.URL+"/api/sessions/"+id+"/token")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	f := newFixture(t, "")
	path := filepath.Join(t.TempDir(), "turn.wav")
	if err := audio.SaveWAV(path, audio.Compose(16000, audio.Scenarios["successful"]...), 16000); err != nil {
		t.Fatalf("save wav: %v", err)
	}
	body, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer body.Close()

	resp, err := http.Post(f.srv.URL+"/api/analyze?response_threshold=3", "audio/wav", body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var res analysis.Result
	decode(t, resp, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if res.Summary.TotalServes != 1 || res.Summary.TotalReturns != 1 {
		t.Fatalf("expected one serve and return, got %+v", res.Summary)
	}
}

func TestAnalyzeRejects(t *testing.T) {
	f := newFixture(t, "")
	cases := []struct {
		name  string
		query string
		body  string
	}{
		{"not wav", "", "definitely not audio"},
		{"bad threshold", "?missed_threshold=abc", ""},
		{"missed below response", "?response_threshold=6&missed_threshold=5", ""},
		{"bad age", "?age_months=young", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(f.srv.URL+"/api/analyze"+tc.query, "audio/wav", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			var out map[string]string
			decode(t, resp, &out)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if out["error"] == "" {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	ok := newFixture(t, "", health.Check{Name: "noop", Run: func(context.Context) error { return nil }})
	resp, _ := http.Get(ok.srv.URL + "/readyz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	bad := newFixture(t, "", health.Check{Name: "down", Run: func(context.Context) error { return context.DeadlineExceeded }})
	resp, _ = http.Get(bad.srv.URL + "/readyz")
	var st health.HealthStatus
	decode(t, resp, &st)
	if resp.StatusCode != http.StatusServiceUnavailable || st.OK {
		t.Fatalf("expected 503 not ok, got %d %+v", resp.StatusCode, st)
	}

	resp, _ = http.Get(ok.srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t, "")
	resp := post(t, f.srv.URL+"/api/reset")
	var out map[string]any
	decode(t, resp, &out)
	if out["status"] != "reset" {
		t.Fatalf("unexpected reset response: %v", out)
	}
}
