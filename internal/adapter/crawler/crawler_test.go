package crawler_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `"time management"`, crawler.BuildQuery([]string{"time management"}))
	assert.Equal(t, `"focus" OR "procrastination"`, crawler.BuildQuery([]string{"focus", "procrastination"}))
	assert.Equal(t, "", crawler.BuildQuery(nil))
}

func TestMatchKeywords(t *testing.T) {
	t.Parallel()
	matched := crawler.MatchKeywords(
		"I keep Procrastinating and losing focus at work",
		[]string{"procrastinating", "focus", "burnout"},
	)
	assert.Equal(t, []string{"procrastinating", "focus"}, matched)
	assert.Nil(t, crawler.MatchKeywords("nothing relevant", []string{"focus"}))
}

func TestIsRateLimitError(t *testing.T) {
	t.Parallel()
	assert.True(t, crawler.IsRateLimitError(errors.New("status 429")))
	assert.True(t, crawler.IsRateLimitError(errors.New("Rate Limit exceeded")))
	assert.False(t, crawler.IsRateLimitError(errors.New("connection refused")))
	assert.False(t, crawler.IsRateLimitError(nil))
}
