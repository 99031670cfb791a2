package posting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
)

func newTestTwitterPoster(t *testing.T, handler http.HandlerFunc) *TwitterPoster {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewTwitterPoster(config.Config{TwitterBearerToken: "bearer"})
	p.apiURL = srv.URL
	p.sleep = func(context.Context, time.Duration) {}
	return p
}

func TestParseTwitterURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		url      string
		username string
		tweetID  string
	}{
		{"https://twitter.com/sam_dev/status/1234567890", "sam_dev", "1234567890"},
		{"https://x.com/sam_dev/statuses/42", "sam_dev", "42"},
		{"https://twitter.com/sam_dev", "", ""},
	}
	for _, tt := range tests {
		username, tweetID := parseTwitterURL(tt.url)
		assert.Equal(t, tt.username, username, tt.url)
		assert.Equal(t, tt.tweetID, tweetID, tt.url)
	}
}

func TestTruncateTweet(t *testing.T) {
	t.Parallel()
	short := "fits fine"
	assert.Equal(t, short, truncateTweet(short))

	long := strings.Repeat("a", 300)
	got := truncateTweet(long)
	assert.Len(t, got, 280)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestTwitterPost_Success(t *testing.T) {
	var gotPayload map[string]any
	p := newTestTwitterPoster(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets", r.URL.Path)
		assert.Equal(t, "Bearer bearer", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"9001","text":"reply"}}`))
	})

	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev/status/1234",
		ApplyDelay:   true,
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "9001", result.ExternalID)
	assert.Equal(t, "https://twitter.com/i/status/9001", result.ExternalURL)
	assert.Equal(t, "1234", result.Metadata["reply_to"])
	assert.Equal(t, "sam_dev", result.Metadata["reply_to_user"])

	reply := gotPayload["reply"].(map[string]any)
	assert.Equal(t, "1234", reply["in_reply_to_tweet_id"])
}

func TestTwitterPost_InvalidURL(t *testing.T) {
	t.Parallel()
	p := NewTwitterPoster(config.Config{TwitterBearerToken: "bearer"})
	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev",
	})
	assert.Equal(t, domain.PostErrInvalidURL, result.ErrorCode)
	assert.False(t, result.Retryable)
}

func TestTwitterPost_MissingToken(t *testing.T) {
	t.Parallel()
	p := NewTwitterPoster(config.Config{})
	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev/status/1234",
	})
	assert.Equal(t, domain.PostErrMissingCredentials, result.ErrorCode)
}

func TestTwitterPost_RateLimited(t *testing.T) {
	p := newTestTwitterPoster(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev/status/1234",
	})
	assert.Equal(t, domain.PostErrRateLimit, result.ErrorCode)
	assert.True(t, result.Retryable)
	assert.Equal(t, "120", result.Metadata["retry_after"])
}

func TestTwitterPost_DuplicateTweet(t *testing.T) {
	p := newTestTwitterPoster(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"You are not allowed to create a Tweet with duplicate content."}`))
	})

	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev/status/1234",
	})
	assert.Equal(t, domain.PostErrDuplicateTweet, result.ErrorCode)
	assert.False(t, result.Retryable)
}

func TestTwitterPost_ServerErrorRetryable(t *testing.T) {
	p := newTestTwitterPoster(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	result := p.Post(context.Background(), PostRequest{
		ResponseText: "reply",
		TargetURL:    "https://twitter.com/sam_dev/status/1234",
	})
	assert.Equal(t, "HTTP_502", result.ErrorCode)
	assert.True(t, result.Retryable)
}
