// Package twitter crawls X/Twitter through the v2 recent search API.
package twitter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/ratelimit"
)

const defaultAPIURL = "https://api.twitter.com/2"

// Crawler searches recent tweets. The free tier allows roughly 60 requests
// per 15 minutes, so the limiter runs at 4 per minute.
type Crawler struct {
	cfg     config.Config
	hc      *http.Client
	limiter *ratelimit.Limiter
	apiURL  string
}

// New constructs a twitter crawler using the shared limiter manager.
func New(cfg config.Config, manager *ratelimit.Manager) *Crawler {
	return &Crawler{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: manager.GetOrCreate("twitter", ratelimit.Config{
			RequestsPerMinute: 4,
			MinDelay:          time.Second,
			MaxDelay:          5 * time.Minute,
			BackoffMultiplier: 2.0,
		}),
		apiURL: defaultAPIURL,
	}
}

// Platform returns "twitter".
func (c *Crawler) Platform() string { return "twitter" }

// Close is a no-op; the crawler holds no connections.
func (c *Crawler) Close() error { return nil }

// Search runs a recent-search query built from the keywords. Retweets are
// excluded at the query level.
func (c *Crawler) Search(ctx domain.Context, keywords []string, limit int, _ crawler.SearchOptions) (domain.CrawlResult, error) {
	start := time.Now()
	result := domain.CrawlResult{Platform: "twitter"}
	if c.cfg.TwitterBearerToken == "" {
		result.Errors = append(result.Errors, "Twitter bearer token not configured")
		c.observeRun(result)
		return result, nil
	}
	if limit <= 0 {
		limit = 100
	}
	// v2 caps max_results at 100 per page, floor 10.
	maxResults := limit
	if maxResults > 100 {
		maxResults = 100
	}
	if maxResults < 10 {
		maxResults = 10
	}

	query := crawler.BuildQuery(keywords) + " -is:retweet lang:en"
	params := url.Values{
		"query":        {query},
		"max_results":  {fmt.Sprint(maxResults)},
		"tweet.fields": {"created_at,public_metrics,author_id,conversation_id,lang"},
		"expansions":   {"author_id"},
		"user.fields":  {"username,name"},
	}

	posts, cursor, err := c.page(ctx, params, keywords)
	if err != nil {
		c.noteError(&result, fmt.Sprintf("Error searching Twitter: %v", err), err)
	}
	result.Posts = posts
	result.NextCursor = cursor
	if len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(start)
	c.observeRun(result)
	return result, nil
}

// GetRecent searches tweets mentioning the given handles.
func (c *Crawler) GetRecent(ctx domain.Context, sources []string, limit int) (domain.CrawlResult, error) {
	if len(sources) == 0 {
		return domain.CrawlResult{Platform: "twitter"}, nil
	}
	mentions := make([]string, len(sources))
	for i, s := range sources {
		mentions[i] = "@" + strings.TrimPrefix(s, "@")
	}
	return c.Search(ctx, mentions, limit, crawler.SearchOptions{})
}

func (c *Crawler) page(ctx domain.Context, params url.Values, keywords []string) ([]domain.CrawledPost, string, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("op=twitter.page: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.TwitterBearerToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		c.limiter.RecordFailure()
		return nil, "", fmt.Errorf("op=twitter.page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.limiter.RecordRateLimitHit()
		return nil, "", fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.limiter.RecordFailure()
		return nil, "", fmt.Errorf("%w: twitter status %d", domain.ErrUpstreamAuth, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		c.limiter.RecordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("op=twitter.page: status %d: %s", resp.StatusCode, body)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.limiter.RecordFailure()
		return nil, "", fmt.Errorf("op=twitter.page: %w", err)
	}
	c.limiter.RecordSuccess()

	users := map[string]user{}
	for _, u := range out.Includes.Users {
		users[u.ID] = u
	}

	var posts []domain.CrawledPost
	for _, tw := range out.Data {
		matched := crawler.MatchKeywords(tw.Text, keywords)
		posts = append(posts, parseTweet(tw, users[tw.AuthorID], matched))
	}
	return posts, out.Meta.NextToken, nil
}

func (c *Crawler) noteError(result *domain.CrawlResult, msg string, err error) {
	slog.Error("twitter crawl error", slog.String("error", msg))
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
	observability.CrawlRunsTotal.WithLabelValues("twitter", status).Inc()
}

// HealthCheck reports token presence and limiter stats.
func (c *Crawler) HealthCheck(_ domain.Context) crawler.Health {
	h := crawler.Health{
		Platform:    "twitter",
		Initialized: c.cfg.TwitterBearerToken != "",
		RateLimiter: c.limiter.Stats(),
	}
	if h.Initialized {
		h.Status = "healthy"
	} else {
		h.Status = "not_initialized"
		h.Detail = "twitter bearer token not configured"
	}
	return h
}
