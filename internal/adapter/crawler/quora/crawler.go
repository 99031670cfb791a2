// Package quora crawls Quora by scraping search and topic pages. There is
// no public API, so the limiter is deliberately conservative.
package quora

import (
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

const defaultBaseURL = "https://www.quora.com"

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Crawler scrapes quora question listings.
type Crawler struct {
	cfg     config.Config
	hc      *http.Client
	limiter *ratelimit.Limiter
	baseURL string
}

// New constructs a quora crawler using the shared limiter manager.
func New(cfg config.Config, manager *ratelimit.Manager) *Crawler {
	return &Crawler{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: manager.GetOrCreate("quora", ratelimit.Config{
			RequestsPerMinute: 10,
			MinDelay:          3 * time.Second,
			MaxDelay:          2 * time.Minute,
			BackoffMultiplier: 2.0,
		}),
		baseURL: defaultBaseURL,
	}
}

// Platform returns "quora".
func (c *Crawler) Platform() string { return "quora" }

// Close is a no-op.
func (c *Crawler) Close() error { return nil }

// Search scrapes the question search page once per keyword, deduplicating
// by external ID across keywords.
func (c *Crawler) Search(ctx domain.Context, keywords []string, limit int, _ crawler.SearchOptions) (domain.CrawlResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 100
	}
	result := domain.CrawlResult{Platform: "quora"}
	seen := map[string]struct{}{}

	for _, kw := range keywords {
		if len(result.Posts) >= limit {
			break
		}
		searchURL := fmt.Sprintf("%s/search?q=%s&type=question", c.baseURL, url.QueryEscape(kw))
		html, err := c.fetchPage(ctx, searchURL)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error searching Quora for %q: %v", kw, err), err)
			continue
		}
		posts, err := parseSearchResults(html, c.baseURL, []string{kw})
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error parsing Quora results for %q: %v", kw, err), err)
			continue
		}
		for _, p := range posts {
			if _, dup := seen[p.ExternalID]; dup {
				continue
			}
			seen[p.ExternalID] = struct{}{}
			result.Posts = append(result.Posts, p)
		}
	}

	if len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(start)
	c.observeRun(result)
	return result, nil
}

// GetRecent scrapes topic pages for fresh questions.
func (c *Crawler) GetRecent(ctx domain.Context, sources []string, limit int) (domain.CrawlResult, error) {
	start := time.Now()
	result := domain.CrawlResult{Platform: "quora"}
	if len(sources) == 0 {
		result.Errors = append(result.Errors, "No topics specified for get_recent")
		return result, nil
	}
	if limit <= 0 {
		limit = 100
	}
	seen := map[string]struct{}{}
	for _, topic := range sources {
		if len(result.Posts) >= limit {
			break
		}
		topicURL := fmt.Sprintf("%s/topic/%s", c.baseURL, url.PathEscape(topic))
		html, err := c.fetchPage(ctx, topicURL)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error fetching Quora topic %q: %v", topic, err), err)
			continue
		}
		posts, err := parseSearchResults(html, c.baseURL, nil)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error parsing Quora topic %q: %v", topic, err), err)
			continue
		}
		for _, p := range posts {
			if _, dup := seen[p.ExternalID]; dup {
				continue
			}
			seen[p.ExternalID] = struct{}{}
			result.Posts = append(result.Posts, p)
		}
	}

	if len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(start)
	c.observeRun(result)
	return result, nil
}

func (c *Crawler) fetchPage(ctx domain.Context, pageURL string) (string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("op=quora.fetchPage: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.limiter.RecordFailure()
		return "", fmt.Errorf("op=quora.fetchPage: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitHit()
		return "", fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	}
	if resp.StatusCode != http.StatusOK {
		c.limiter.RecordFailure()
		return "", fmt.Errorf("op=quora.fetchPage: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.limiter.RecordFailure()
		return "", fmt.Errorf("op=quora.fetchPage: %w", err)
	}
	c.limiter.RecordSuccess()
	return string(body), nil
}

func (c *Crawler) noteError(result *domain.CrawlResult, msg string, err error) {
	slog.Error("quora crawl error", slog.String("error", msg))
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
	observability.CrawlRunsTotal.WithLabelValues("quora", status).Inc()
}

// HealthCheck reports limiter stats. Scraping needs no credentials, so the
// crawler is always considered initialized.
func (c *Crawler) HealthCheck(_ domain.Context) crawler.Health {
	return crawler.Health{
		Platform:    "quora",
		Status:      "healthy",
		Initialized: true,
		RateLimiter: c.limiter.Stats(),
	}
}
