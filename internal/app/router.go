// Package app wires configuration, adapters, and background loops into
// runnable processes. It owns the HTTP route table and the composition
// glue between the posting queue, the auto-post worker, and storage.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/reachby3cs/engage/internal/adapter/httpserver"
	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit mutating endpoints
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))

		wr.Post("/pipeline/analyze", srv.AnalyzeHandler())
		wr.Post("/skills/signal-detection", srv.SignalDetectionHandler())
		wr.Post("/skills/risk-scoring", srv.RiskScoringHandler())
		wr.Post("/skills/response-generation", srv.ResponseGenerationHandler())
		wr.Post("/skills/cta-classifier", srv.CTAClassifierHandler())
		wr.Post("/skills/cts-decision", srv.CTSDecisionHandler())

		wr.Post("/crawlers/{platform}/search", srv.CrawlerSearchHandler())
		wr.Post("/crawlers/{platform}/monitor", srv.CrawlerMonitorHandler())
		wr.Post("/crawlers/schedule", srv.CrawlerScheduleHandler())
		wr.Delete("/crawlers/schedule/{config_name}", srv.CrawlerUnscheduleHandler())
		wr.Post("/crawlers/scheduler/{action}", srv.SchedulerActionHandler())
		wr.Post("/crawlers/run/{config_name}", srv.CrawlerRunNowHandler())

		wr.Post("/posting/post", srv.PostHandler())
		wr.Post("/posting/queue", srv.QueueEnqueueHandler())
		wr.Delete("/posting/queue/{item_id}", srv.QueueCancelHandler())
		wr.Post("/posting/automation/enable", srv.AutomationEnableHandler())
		wr.Post("/posting/automation/disable", srv.AutomationDisableHandler())
		wr.Put("/posting/automation/limits/{organization_id}", srv.AutomationLimitsHandler())
		wr.Post("/posting/automation/eligibility", srv.AutomationEligibilityHandler())
		wr.Post("/posting/automation/trigger", srv.AutomationTriggerHandler())
	})

	// Read-only endpoints
	r.Get("/crawlers/schedules", srv.CrawlerSchedulesHandler())
	r.Get("/crawlers/status", srv.CrawlerStatusHandler())
	r.Get("/crawlers/health/{platform}", srv.CrawlerHealthHandler())
	r.Get("/posting/status/{response_id}", srv.QueueStatusHandler())
	r.Get("/posting/queue/stats", srv.QueueStatsHandler())
	r.Get("/posting/automation/status/{organization_id}", srv.AutomationStatusHandler())

	// Health and metrics
	r.Get("/health", srv.HealthHandler())
	r.Get("/health/live", srv.LivenessHandler())
	r.Get("/health/ready", srv.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
