// Package google crawls Google Search results through SerpAPI, used to
// discover discussions outside the directly crawled platforms.
package google

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/ratelimit"
)

const defaultBaseURL = "https://serpapi.com/search"

// Crawler queries SerpAPI. Plan limits vary; the limiter uses conservative
// defaults.
type Crawler struct {
	cfg     config.Config
	hc      *http.Client
	limiter *ratelimit.Limiter
	baseURL string
}

// New constructs a google crawler using the shared limiter manager.
func New(cfg config.Config, manager *ratelimit.Manager) *Crawler {
	return &Crawler{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: manager.GetOrCreate("google", ratelimit.Config{
			RequestsPerMinute: 10,
			RequestsPerHour:   100,
			MinDelay:          500 * time.Millisecond,
			MaxDelay:          time.Minute,
			BackoffMultiplier: 2.0,
		}),
		baseURL: defaultBaseURL,
	}
}

// Platform returns "google".
func (c *Crawler) Platform() string { return "google" }

// Close is a no-op.
func (c *Crawler) Close() error { return nil }

// Search pages through SerpAPI organic results. Sources are treated as
// site filters (e.g. "reddit.com").
func (c *Crawler) Search(ctx domain.Context, keywords []string, limit int, opts crawler.SearchOptions) (domain.CrawlResult, error) {
	startTime := time.Now()
	result := domain.CrawlResult{Platform: "google"}
	if c.cfg.SerpAPIKey == "" {
		result.Errors = append(result.Errors, "SerpAPI key not configured")
		c.observeRun(result)
		return result, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := crawler.BuildQuery(keywords)
	if len(opts.Sources) > 0 {
		query += " site:" + opts.Sources[0]
	}

	const pageSize = 10
	start := 0
	for len(result.Posts) < limit {
		params := url.Values{
			"api_key": {c.cfg.SerpAPIKey},
			"engine":  {"google"},
			"q":       {query},
			"hl":      {"en"},
			"gl":      {"us"},
			"num":     {fmt.Sprint(pageSize)},
			"start":   {fmt.Sprint(start)},
		}

		page, totalResults, err := c.fetchPage(ctx, params, keywords, start == 0)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error searching Google: %v", err), err)
			break
		}
		result.Posts = append(result.Posts, page...)
		if len(page) == 0 || start+pageSize >= totalResults {
			break
		}
		start += pageSize
	}

	if len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(startTime)
	c.observeRun(result)
	return result, nil
}

// GetRecent is search scoped to the last day.
func (c *Crawler) GetRecent(ctx domain.Context, sources []string, limit int) (domain.CrawlResult, error) {
	opts := crawler.SearchOptions{Sources: sources}
	return c.Search(ctx, []string{"recent discussions"}, limit, opts)
}

func (c *Crawler) fetchPage(ctx domain.Context, params url.Values, keywords []string, firstPage bool) ([]domain.CrawledPost, int, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("op=google.fetchPage: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		c.limiter.RecordFailure()
		return nil, 0, fmt.Errorf("op=google.fetchPage: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.RecordRateLimitHit()
		return nil, 0, fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	case resp.StatusCode == http.StatusUnauthorized:
		c.limiter.RecordFailure()
		return nil, 0, fmt.Errorf("%w: SerpAPI authentication failed", domain.ErrUpstreamAuth)
	case resp.StatusCode != http.StatusOK:
		c.limiter.RecordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("op=google.fetchPage: status %d: %s", resp.StatusCode, body)
	}

	var out serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.limiter.RecordFailure()
		return nil, 0, fmt.Errorf("op=google.fetchPage: %w", err)
	}
	c.limiter.RecordSuccess()

	if out.Error != "" {
		return nil, 0, fmt.Errorf("op=google.fetchPage: SerpAPI error: %s", out.Error)
	}

	posts := parseOrganicResults(out, keywords)
	if firstPage {
		posts = append(posts, parseRelatedQuestions(out, keywords)...)
	}
	return posts, out.SearchInformation.TotalResults, nil
}

func (c *Crawler) noteError(result *domain.CrawlResult, msg string, err error) {
	slog.Error("google crawl error", slog.String("error", msg))
	result.Errors = append(result.Errors, msg)
	if crawler.IsRateLimitError(err) {
		result.RateLimited = true
	}
}

func (c *Crawler) observeRun(result domain.CrawlResult) {
	status := "success"
	switch {
	case len(result.Errors) > 0 && len(result.Posts) == 0:
		status = "failed"
	case len(result.Errors) > 0:
		status = "partial"
	}
	observability.CrawlRunsTotal.WithLabelValues("google", status).Inc()
}

// HealthCheck reports key presence and limiter stats.
func (c *Crawler) HealthCheck(_ domain.Context) crawler.Health {
	h := crawler.Health{
		Platform:    "google",
		Initialized: c.cfg.SerpAPIKey != "",
		RateLimiter: c.limiter.Stats(),
	}
	if h.Initialized {
		h.Status = "healthy"
	} else {
		h.Status = "not_initialized"
		h.Detail = "SerpAPI key not configured"
	}
	return h
}
