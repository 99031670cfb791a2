package httpserver_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/adapter/ai/stub"
	httpserver "github.com/reachby3cs/engage/internal/adapter/httpserver"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

func postingRouter(srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Post("/posting/post", srv.PostHandler())
	r.Post("/posting/queue", srv.QueueEnqueueHandler())
	r.Get("/posting/status/{response_id}", srv.QueueStatusHandler())
	r.Delete("/posting/queue/{item_id}", srv.QueueCancelHandler())
	r.Get("/posting/queue/stats", srv.QueueStatsHandler())
	r.Post("/posting/automation/enable", srv.AutomationEnableHandler())
	r.Post("/posting/automation/disable", srv.AutomationDisableHandler())
	r.Get("/posting/automation/status/{organization_id}", srv.AutomationStatusHandler())
	r.Put("/posting/automation/limits/{organization_id}", srv.AutomationLimitsHandler())
	r.Post("/posting/automation/eligibility", srv.AutomationEligibilityHandler())
	r.Post("/posting/automation/trigger", srv.AutomationTriggerHandler())
	return r
}

func enqueuePayload(responseID string) map[string]any {
	return map[string]any{
		"response_id":     responseID,
		"organization_id": "org-1",
		"platform":        "reddit",
		"target_url":      "https://reddit.com/r/productivity/comments/abc123",
		"response_text":   "What helped me was one small habit.",
		"priority":        50,
	}
}

func TestPostHandler(t *testing.T) {
	srv, fp := newTestServer()
	router := postingRouter(srv)

	t.Run("success records usage", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/posting/post", map[string]any{
			"response_id":     "resp-1",
			"response_text":   "What helped me was one small habit.",
			"target_url":      "https://reddit.com/r/productivity/comments/abc123",
			"platform":        "reddit",
			"organization_id": "org-1",
			"apply_delay":     false,
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "resp-1", body["response_id"])
		assert.Equal(t, "t1_posted", body["external_id"])
		assert.Equal(t, "api", body["method"])
		assert.Equal(t, 1, fp.posted)

		stats := srv.Limits.GetStats("org-1")
		assert.Equal(t, 1, stats.Usage.Hourly)
	})

	t.Run("unsupported platform", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/posting/post", map[string]any{
			"response_id":   "resp-2",
			"response_text": "hi",
			"target_url":    "https://quora.com/q/1",
			"platform":      "quora",
		})
		require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("failed post not recorded", func(t *testing.T) {
		fp.result = domain.PostResult{Success: false, Error: "session expired", ErrorCode: domain.PostErrAuthFailed}
		defer func() {
			fp.result = domain.PostResult{Success: true, ExternalID: "t1_posted", Platform: "reddit", Method: "api"}
		}()
		before := srv.Limits.GetStats("org-1").Usage.Hourly
		w := doJSON(t, router, http.MethodPost, "/posting/post", map[string]any{
			"response_id":     "resp-3",
			"response_text":   "hi",
			"target_url":      "https://reddit.com/r/productivity/comments/abc123",
			"platform":        "reddit",
			"organization_id": "org-1",
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, before, srv.Limits.GetStats("org-1").Usage.Hourly)
	})
}

func TestQueueEnqueueHandler(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	w := doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-1"))
	require.Equal(t, http.StatusAccepted, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.NotEmpty(t, body["queue_item_id"])
	assert.Equal(t, "resp-1", body["response_id"])
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(50), body["priority"])
	assert.Equal(t, float64(1), body["position"])
}

func TestQueueEnqueueHandler_Full(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	// Helper queue holds ten items.
	for i := 0; i < 10; i++ {
		w := doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload(fmt.Sprintf("resp-%d", i)))
		require.Equal(t, http.StatusAccepted, w.Result().StatusCode)
	}
	w := doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-overflow"))
	require.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode)
	body := decodeBody(t, w)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "QUEUE_FULL", errObj["code"])
}

func TestQueueStatusHandler(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-1"))

	w := doJSON(t, router, http.MethodGet, "/posting/status/resp-1", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.Equal(t, "resp-1", body["response_id"])
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, float64(0), body["retry_count"])
	assert.NotContains(t, body, "result")

	w = doJSON(t, router, http.MethodGet, "/posting/status/unknown", nil)
	require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
}

func TestQueueCancelHandler(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	t.Run("cancels queued item", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-1"))
		itemID := decodeBody(t, w)["queue_item_id"].(string)

		w = doJSON(t, router, http.MethodDelete, "/posting/queue/"+itemID, nil)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["cancelled"])
		assert.Equal(t, itemID, body["item_id"])
	})

	t.Run("unknown item", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/posting/queue/nope", nil)
		require.Equal(t, http.StatusNotFound, w.Result().StatusCode)
	})
}

func TestQueueCancelHandler_WhileProcessing(t *testing.T) {
	queue := posting.NewQueue(posting.Options{MaxQueueSize: 5, DequeueWait: 50 * time.Millisecond})
	entered := make(chan struct{})
	release := make(chan struct{})
	queue.SetPostCallback(func(_ context.Context, _ *posting.QueueItem) domain.PostResult {
		close(entered)
		<-release
		return domain.PostResult{Success: true}
	})
	require.NoError(t, queue.Start(1))
	defer func() {
		close(release)
		queue.Stop()
	}()

	srv := httpserver.NewServer(testConfig(), stub.New(), nil, queue, nil, nil, nil)
	router := postingRouter(srv)

	w := doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-1"))
	require.Equal(t, http.StatusAccepted, w.Result().StatusCode)
	itemID := decodeBody(t, w)["queue_item_id"].(string)

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never claimed the item")
	}

	w = doJSON(t, router, http.MethodDelete, "/posting/queue/"+itemID, nil)
	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestQueueStatsHandler(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-1"))
	doJSON(t, router, http.MethodPost, "/posting/queue", enqueuePayload("resp-2"))

	w := doJSON(t, router, http.MethodGet, "/posting/queue/stats", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["total_items"])
	assert.Equal(t, float64(2), body["queue_size"])
}

func TestAutomationEnableDisable(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	w := doJSON(t, router, http.MethodPost, "/posting/automation/enable", map[string]any{
		"organization_id":       "org-1",
		"max_daily_auto_posts":  25,
		"max_hourly_auto_posts": 5,
		"min_cts_score":         0.8,
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.Equal(t, "org-1", body["organization_id"])
	assert.Equal(t, true, body["auto_post_enabled"])
	limits, ok := body["limits"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), limits["max_hourly"])
	assert.Equal(t, float64(25), limits["max_daily"])
	assert.Equal(t, 0.8, limits["min_cts_score"])
	// No auto-post worker wired in this test server.
	assert.Equal(t, "not_started", body["worker_status"])

	w = doJSON(t, router, http.MethodPost, "/posting/automation/disable", map[string]any{
		"organization_id": "org-1",
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body = decodeBody(t, w)
	assert.Equal(t, false, body["auto_post_enabled"])

	w = doJSON(t, router, http.MethodGet, "/posting/automation/status/org-1", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, false, decodeBody(t, w)["auto_post_enabled"])
}

func TestAutomationLimitsHandler_PreservesEnabled(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	doJSON(t, router, http.MethodPost, "/posting/automation/enable", map[string]any{
		"organization_id": "org-1",
	})

	w := doJSON(t, router, http.MethodPut, "/posting/automation/limits/org-1", map[string]any{
		"min_cts_score": 0.9,
		"max_cta_level": 0,
	})
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["auto_post_enabled"])
	limits, ok := body["limits"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.9, limits["min_cts_score"])
	assert.Equal(t, float64(0), limits["max_cta_level"])
}

func TestAutomationEligibilityHandler(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	doJSON(t, router, http.MethodPost, "/posting/automation/enable", map[string]any{
		"organization_id": "org-1",
	})

	t.Run("eligible", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/posting/automation/eligibility", map[string]any{
			"response_id":     "resp-1",
			"organization_id": "org-1",
			"cts_score":       0.9,
			"risk_level":      "low",
			"cta_level":       0,
			"platform":        "reddit",
			"can_auto_post":   true,
			"target_url":      "https://reddit.com/r/productivity/comments/abc123",
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["eligible"])
		assert.Contains(t, body["checks_passed"], "cts_score")
	})

	t.Run("low cts requires review", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/posting/automation/eligibility", map[string]any{
			"response_id":     "resp-2",
			"organization_id": "org-1",
			"cts_score":       0.4,
			"risk_level":      "low",
			"cta_level":       0,
			"platform":        "reddit",
			"can_auto_post":   true,
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["eligible"])
		assert.Equal(t, true, body["requires_review"])
		assert.Contains(t, body["checks_failed"], "cts_score")
	})

	t.Run("disabled org", func(t *testing.T) {
		doJSON(t, router, http.MethodPost, "/posting/automation/disable", map[string]any{
			"organization_id": "org-2",
		})
		w := doJSON(t, router, http.MethodPost, "/posting/automation/eligibility", map[string]any{
			"response_id":     "resp-3",
			"organization_id": "org-2",
			"cts_score":       0.9,
			"risk_level":      "low",
			"cta_level":       0,
			"platform":        "reddit",
			"can_auto_post":   true,
		})
		require.Equal(t, http.StatusOK, w.Result().StatusCode)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["eligible"])
		assert.Contains(t, body["checks_failed"], "org_auto_post_enabled")
	})
}

func TestAutomationTriggerHandler_NoWorker(t *testing.T) {
	srv, _ := newTestServer()
	router := postingRouter(srv)

	w := doJSON(t, router, http.MethodPost, "/posting/automation/trigger", nil)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["triggered"])
	assert.NotEmpty(t, body["error"])
}
