// Package reddit crawls Reddit through the OAuth JSON API.
package reddit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/ratelimit"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	defaultAPIURL  = "https://oauth.reddit.com"
)

// Crawler searches and monitors subreddits. Reddit allows about 60 OAuth
// requests per minute; the limiter runs at half that.
type Crawler struct {
	cfg     config.Config
	hc      *http.Client
	limiter *ratelimit.Limiter

	authURL string
	apiURL  string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New constructs a reddit crawler using the shared limiter manager.
func New(cfg config.Config, manager *ratelimit.Manager) *Crawler {
	return &Crawler{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: manager.GetOrCreate("reddit", ratelimit.Config{
			RequestsPerMinute: 30,
			MinDelay:          500 * time.Millisecond,
			MaxDelay:          120 * time.Second,
			BackoffMultiplier: 2.0,
		}),
		authURL: defaultAuthURL,
		apiURL:  defaultAPIURL,
	}
}

// Platform returns "reddit".
func (c *Crawler) Platform() string { return "reddit" }

// Close releases the cached token.
func (c *Crawler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	return nil
}

func (c *Crawler) accessToken(ctx domain.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	if c.cfg.RedditClientID == "" || c.cfg.RedditClientSecret == "" {
		return "", fmt.Errorf("%w: reddit credentials missing", domain.ErrUpstreamAuth)
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("op=reddit.accessToken: %w", err)
	}
	req.SetBasicAuth(c.cfg.RedditClientID, c.cfg.RedditClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.RedditUserAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=reddit.accessToken: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: reddit token status %d", domain.ErrUpstreamAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("op=reddit.accessToken: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=reddit.accessToken: %w", err)
	}
	c.token = out.AccessToken
	// Renew a minute early.
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return c.token, nil
}

// Search queries reddit for keyword matches. With sources set, each
// subreddit gets an equal share of the limit; failures per subreddit are
// collected, not fatal.
func (c *Crawler) Search(ctx domain.Context, keywords []string, limit int, opts crawler.SearchOptions) (domain.CrawlResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 100
	}
	timeFilter := opts.TimeFilter
	if timeFilter == "" {
		timeFilter = "week"
	}
	sort := opts.Sort
	if sort == "" {
		sort = "relevance"
	}

	query := crawler.BuildQuery(keywords)
	result := domain.CrawlResult{Platform: "reddit"}

	if len(opts.Sources) > 0 {
		perSub := limit / len(opts.Sources)
		if perSub == 0 {
			perSub = 1
		}
		for _, sub := range opts.Sources {
			posts, err := c.searchOne(ctx, "/r/"+sub+"/search", url.Values{
				"q":           {query},
				"restrict_sr": {"1"},
				"limit":       {fmt.Sprint(perSub)},
				"sort":        {sort},
				"t":           {timeFilter},
			}, keywords)
			if err != nil {
				c.noteError(&result, fmt.Sprintf("Error searching r/%s: %v", sub, err), err)
				continue
			}
			result.Posts = append(result.Posts, posts...)
		}
	} else {
		posts, err := c.searchOne(ctx, "/search", url.Values{
			"q":     {query},
			"limit": {fmt.Sprint(limit)},
			"sort":  {sort},
			"t":     {timeFilter},
		}, keywords)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error searching Reddit: %v", err), err)
		}
		result.Posts = append(result.Posts, posts...)
	}

	if len(result.Posts) > limit {
		result.Posts = result.Posts[:limit]
	}
	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(start)
	c.observeRun(result)
	return result, nil
}

// GetRecent monitors subreddits for new posts.
func (c *Crawler) GetRecent(ctx domain.Context, sources []string, limit int) (domain.CrawlResult, error) {
	return c.Monitor(ctx, sources, limit, "new")
}

// Monitor pulls a subreddit listing sorted by new, hot, rising, or top
// (top uses the day window).
func (c *Crawler) Monitor(ctx domain.Context, subreddits []string, limit int, sort string) (domain.CrawlResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = 100
	}
	switch sort {
	case "new", "hot", "rising", "top":
	default:
		sort = "new"
	}

	result := domain.CrawlResult{Platform: "reddit"}
	for _, sub := range subreddits {
		params := url.Values{"limit": {fmt.Sprint(limit)}}
		if sort == "top" {
			params.Set("t", "day")
		}
		posts, err := c.searchOne(ctx, "/r/"+sub+"/"+sort, params, nil)
		if err != nil {
			c.noteError(&result, fmt.Sprintf("Error monitoring r/%s: %v", sub, err), err)
			continue
		}
		result.Posts = append(result.Posts, posts...)
	}

	result.TotalFound = len(result.Posts)
	result.CrawlTime = time.Since(start)
	c.observeRun(result)
	return result, nil
}

// searchOne performs a single rate-limited listing request. When keywords
// are given, only posts matching at least one keyword are kept.
func (c *Crawler) searchOne(ctx domain.Context, path string, params url.Values, keywords []string) ([]domain.CrawledPost, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		c.limiter.RecordFailure()
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("op=reddit.searchOne: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.RedditUserAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		c.limiter.RecordFailure()
		return nil, fmt.Errorf("op=reddit.searchOne: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.RecordRateLimitHit()
		return nil, fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	}
	if resp.StatusCode != http.StatusOK {
		c.limiter.RecordFailure()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("op=reddit.searchOne: status %d: %s", resp.StatusCode, body)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		c.limiter.RecordFailure()
		return nil, fmt.Errorf("op=reddit.searchOne: %w", err)
	}
	c.limiter.RecordSuccess()

	var posts []domain.CrawledPost
	for _, child := range listing.Data.Children {
		sub := child.Data
		var matched []string
		if keywords != nil {
			matched = crawler.MatchKeywords(sub.Title+" "+sub.Selftext, keywords)
			if len(matched) == 0 {
				continue
			}
		}
		posts = append(posts, parseSubmission(sub, matched))
	}
	return posts, nil
}

func (c *Crawler) noteError(result *domain.CrawlResult, msg string, err error) {
	slog.Error("reddit crawl error", slog.String("error", msg))
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
	observability.CrawlRunsTotal.WithLabelValues("reddit", status).Inc()
}

// HealthCheck reports credential presence and limiter stats without
// touching the network.
func (c *Crawler) HealthCheck(_ domain.Context) crawler.Health {
	h := crawler.Health{
		Platform:    "reddit",
		Initialized: c.cfg.RedditClientID != "" && c.cfg.RedditClientSecret != "",
		RateLimiter: c.limiter.Stats(),
	}
	if h.Initialized {
		h.Status = "healthy"
	} else {
		h.Status = "not_initialized"
		h.Detail = "reddit credentials not configured"
	}
	return h
}
