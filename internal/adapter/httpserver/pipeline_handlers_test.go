package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, h http.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&m))
	return m
}

func TestAnalyzeHandler_SafePost(t *testing.T) {
	srv, _ := newTestServer()
	w := postJSON(t, srv.AnalyzeHandler(), "/pipeline/analyze", map[string]any{
		"text":     "I keep struggling with staying organized and managing my time at work.",
		"platform": "reddit",
		"tenant_context": map[string]any{
			"app_name":   "WeAttuned",
			"value_prop": "emotional intelligence coaching",
		},
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["blocked"])

	sig, ok := body["signal"].(map[string]any)
	require.True(t, ok, "signal missing")
	assert.Equal(t, "personal_growth", sig["problem_category"])

	require.Contains(t, body, "responses")
	require.Contains(t, body, "cta")
	cts, ok := body["cts"].(map[string]any)
	require.True(t, ok, "cts missing")
	assert.Equal(t, true, cts["can_auto_post"])
}

func TestAnalyzeHandler_CrisisBlocked(t *testing.T) {
	srv, _ := newTestServer()
	w := postJSON(t, srv.AnalyzeHandler(), "/pipeline/analyze", map[string]any{
		"text":     "I can't do this anymore, I want to kill myself",
		"platform": "reddit",
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["blocked"])
	assert.NotContains(t, body, "responses")
	assert.NotContains(t, body, "cta")

	cts, ok := body["cts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, cts["can_auto_post"])
}

func TestAnalyzeHandler_Validation(t *testing.T) {
	srv, _ := newTestServer()

	t.Run("missing text", func(t *testing.T) {
		w := postJSON(t, srv.AnalyzeHandler(), "/pipeline/analyze", map[string]any{"platform": "reddit"})
		require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})
	t.Run("bad platform", func(t *testing.T) {
		w := postJSON(t, srv.AnalyzeHandler(), "/pipeline/analyze", map[string]any{
			"text": "hello", "platform": "myspace",
		})
		require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})
	t.Run("malformed json", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/pipeline/analyze", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		srv.AnalyzeHandler()(w, r)
		require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})
}

func TestSignalDetectionHandler(t *testing.T) {
	srv, _ := newTestServer()
	w := postJSON(t, srv.SignalDetectionHandler(), "/skills/signal-detection", map[string]any{
		"text":     "My partner and I keep fighting about chores",
		"platform": "reddit",
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	body := decodeBody(t, w)
	assert.Equal(t, "relationship_communication", body["problem_category"])
	assert.Contains(t, body, "raw_analysis")
}

func TestRiskScoringHandler(t *testing.T) {
	srv, _ := newTestServer()
	w := postJSON(t, srv.RiskScoringHandler(), "/skills/risk-scoring", map[string]any{
		"text":                "Thinking about talking to a divorce lawyer",
		"emotional_intensity": 0.8,
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	body := decodeBody(t, w)
	assert.Equal(t, "high", body["risk_level"])
}

func TestResponseGenerationHandler(t *testing.T) {
	srv, _ := newTestServer()
	w := postJSON(t, srv.ResponseGenerationHandler(), "/skills/response-generation", map[string]any{
		"text":       "I keep struggling with staying organized",
		"risk_level": "high",
		"platform":   "reddit",
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	body := decodeBody(t, w)
	// High risk only ever selects the value-first variant.
	assert.Equal(t, "value_first", body["selected_type"])
	assert.Equal(t, body["value_first_response"], body["selected_response"])
}

func TestCTAClassifierHandler(t *testing.T) {
	srv, _ := newTestServer()

	t.Run("direct", func(t *testing.T) {
		w := postJSON(t, srv.CTAClassifierHandler(), "/skills/cta-classifier", map[string]any{
			"response_text": "Sign up today at https://example.com for 20% off",
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, float64(3), body["cta_level"])
		analysis, ok := body["cta_analysis"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, analysis["link_present"])
	})

	t.Run("pure value", func(t *testing.T) {
		w := postJSON(t, srv.CTAClassifierHandler(), "/skills/cta-classifier", map[string]any{
			"response_text": "What helped me was starting with one small habit.",
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, float64(0), body["cta_level"])
	})
}

func TestCTSDecisionHandler(t *testing.T) {
	srv, _ := newTestServer()

	t.Run("auto-postable", func(t *testing.T) {
		w := postJSON(t, srv.CTSDecisionHandler(), "/skills/cts-decision", map[string]any{
			"signal_confidence": 0.9,
			"risk_level":        "low",
			"risk_score":        0.1,
			"cta_level":         1,
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["can_auto_post"])
		require.Contains(t, body, "cts_breakdown")
	})

	t.Run("blocked risk", func(t *testing.T) {
		w := postJSON(t, srv.CTSDecisionHandler(), "/skills/cts-decision", map[string]any{
			"signal_confidence": 0.9,
			"risk_level":        "blocked",
			"risk_score":        1.0,
			"cta_level":         0,
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["can_auto_post"])
		assert.Less(t, body["cts_score"].(float64), 0.7)
	})
}
