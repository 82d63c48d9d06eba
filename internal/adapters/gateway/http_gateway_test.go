package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/signup-guard/internal/adapters/store"
	"github.com/mikey/signup-guard/internal/core"
	"github.com/mikey/signup-guard/internal/email"
	"github.com/mikey/signup-guard/internal/name"
	"github.com/mikey/signup-guard/internal/reference"
	"github.com/mikey/signup-guard/internal/reputation"
	"github.com/mikey/signup-guard/internal/timing"
	"github.com/mikey/signup-guard/internal/utils"
)

type harness struct {
	engine *core.RiskEngine
	timing *timing.Analyzer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	tables, err := reference.LoadCompiled("")
	require.NoError(t, err)

	mem := store.NewMemoryStore(logger, 0)
	t.Cleanup(mem.Stop)

	tracker, err := reputation.NewTracker(mem, tables, 0, logger)
	require.NoError(t, err)
	ta := timing.NewAnalyzer(mem, timing.Config{}, logger)

	engine := core.NewRiskEngine(
		email.NewClassifier(tables),
		name.NewAnalyzer(tables, utils.NewTextProcessor(logger), logger),
		tracker,
		ta,
		nil,
		logger,
		time.Second,
	)
	return &harness{engine: engine, timing: ta}
}

func (h *harness) server(t *testing.T, cfg HTTPConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHTTPGateway(h.engine, cfg, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{MetricsEnabled: true, MetricsPath: "/metrics"})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsDisabled(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTokenThenEvaluate(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{IncludeReasons: true})

	resp, tok := do(t, http.MethodPost, srv.URL+"/v1/forms/registration/tokens", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "registration", tok["form"])
	require.NotEmpty(t, tok["token"])
	assert.NotEmpty(t, tok["expires_at"])

	// submitted instantly, so the timing signal fires
	resp, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", map[string]string{
		"email":        "jan.devries@gmail.com",
		"name":         "Jan de Vries",
		"ip":           "198.51.100.7",
		"timing_token": tok["token"].(string),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, verdict, "timing")
	timingOut := verdict["timing"].(map[string]interface{})
	assert.Equal(t, true, timingOut["is_bot"])
	assert.Contains(t, verdict, "reasons")
	assert.Equal(t, "review", verdict["recommendation"])
}

func TestTokenKeepsIssuingForm(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{IncludeReasons: true})

	resp, tok := do(t, http.MethodPost, srv.URL+"/v1/forms/login/tokens", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "login", tok["form"])

	resp, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", map[string]string{
		"email":        "jan.devries@gmail.com",
		"name":         "Jan de Vries",
		"timing_token": tok["token"].(string),
		"form":         "checkout",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	timingOut := verdict["timing"].(map[string]interface{})
	assert.Equal(t, float64(2000), timingOut["expected_minimum_ms"])
}

func TestEvaluateWithholdsReasons(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", map[string]string{
		"email": "ab12345@gmail.com",
		"name":  "Xvnwoeifnwef",
	}, map[string]string{SignupIPHeader: "198.51.100.7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "block", verdict["recommendation"])
	assert.Equal(t, true, verdict["should_block"])
	assert.NotContains(t, verdict, "reasons")
	assert.NotContains(t, verdict, "email")
}

func TestEvaluateHoneypot(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{IncludeReasons: true})

	_, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", map[string]string{
		"email":    "jan.devries@gmail.com",
		"name":     "Jan de Vries",
		"honeypot": "http://spam.example",
	}, nil)
	assert.Equal(t, true, verdict["honeypot_triggered"])
	assert.Equal(t, float64(100), verdict["overall_score"])
}

func TestQuickCheck(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/quick-check", map[string]string{
		"email": "user@10minutemail.com",
		"name":  "Jan de Vries",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "block", verdict["recommendation"])
}

func TestBadBody(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, err := http.Post(srv.URL+"/v1/signups/evaluate", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReputationLifecycle(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})
	base := srv.URL + "/v1/ips/198.51.100.7"

	resp, _ := do(t, http.MethodGet, base+"/reputation", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, rec := do(t, http.MethodPost, base+"/events", map[string]string{"event": "failed_registration"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), rec["failed_registrations"])

	resp, _ = do(t, http.MethodPost, base+"/events", map[string]string{"event": "password_reset"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, rec = do(t, http.MethodPost, base+"/spam", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, float64(2), rec["spam_accounts_created"])

	resp, out := do(t, http.MethodGet, base+"/reputation", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decision := out["decision"].(map[string]interface{})
	assert.Equal(t, true, decision["blocked"])
}

func TestListReputations(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, err := http.Get(srv.URL + "/v1/ips")
	require.NoError(t, err)
	var empty []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	resp.Body.Close()
	assert.Empty(t, empty)

	for _, ip := range []string{"198.51.100.7", "2001:db8::1"} {
		resp, _ := do(t, http.MethodPost, srv.URL+"/v1/ips/"+ip+"/spam", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/ips")
	require.NoError(t, err)
	defer resp.Body.Close()
	var records []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Len(t, records, 2)
}

func TestSpamMarkBlocksEverySpelling(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{IncludeReasons: true})

	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodPost, srv.URL+"/v1/ips/2001:DB8::1/spam", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	for _, ip := range []string{"2001:DB8::1", "2001:db8::1", "2001:0db8:0:0:0:0:0:1"} {
		resp, verdict := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", map[string]string{
			"email": "jan.devries@gmail.com",
			"name":  "Jan de Vries",
			"ip":    ip,
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "block", verdict["recommendation"], ip)
		block := verdict["ip_block"].(map[string]interface{})
		assert.Equal(t, true, block["blocked"], ip)
	}
}

func TestInvalidIP(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/v1/ips/not-an-ip/reputation", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimitRecordsHits(t *testing.T) {
	srv := newHarness(t).server(t, HTTPConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	headers := map[string]string{SignupIPHeader: "203.0.113.50"}
	body := map[string]string{"email": "jan.devries@gmail.com", "name": "Jan de Vries"}

	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", body, headers)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// a different candidate is unaffected
	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/signups/evaluate", body, map[string]string{SignupIPHeader: "203.0.113.51"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := do(t, http.MethodGet, srv.URL+"/v1/ips/203.0.113.50/reputation", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rep := out["reputation"].(map[string]interface{})
	assert.Equal(t, float64(1), rep["rate_limit_hits"])
}
