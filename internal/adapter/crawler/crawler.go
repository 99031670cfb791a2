// Package crawler defines the contract platform crawlers implement and
// shared helpers for keyword matching and health reporting.
package crawler

import (
	"strings"

	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/ratelimit"
)

// SearchOptions tunes a search call. Zero values fall back to platform
// defaults.
type SearchOptions struct {
	// Sources scopes the search (subreddits, quora topics). Empty means
	// platform-wide.
	Sources []string
	// TimeFilter is reddit-style: hour, day, week, month, year, all.
	TimeFilter string
	// Sort order: relevance, new, hot, top.
	Sort string
}

// Crawler is implemented by every platform adapter. Search and GetRecent
// return partial results: per-source failures land in CrawlResult.Errors
// instead of aborting the whole call.
type Crawler interface {
	Platform() string
	Search(ctx domain.Context, keywords []string, limit int, opts SearchOptions) (domain.CrawlResult, error)
	GetRecent(ctx domain.Context, sources []string, limit int) (domain.CrawlResult, error)
	HealthCheck(ctx domain.Context) Health
	Close() error
}

// Health is the per-crawler health snapshot surfaced by the API.
type Health struct {
	Platform    string           `json:"platform"`
	Status      string           `json:"status"`
	Initialized bool             `json:"initialized"`
	Detail      string           `json:"detail,omitempty"`
	RateLimiter ratelimit.Stats `json:"rate_limiter"`
}

// BuildQuery joins keywords into a quoted OR search expression.
func BuildQuery(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = `"` + kw + `"`
	}
	return strings.Join(quoted, " OR ")
}

// MatchKeywords returns the subset of keywords present in text,
// case-insensitively.
func MatchKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// IsRateLimitError reports whether an error message looks like a platform
// rate limit rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}
