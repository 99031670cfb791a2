package posting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
)

const (
	twitterAPIURL   = "https://api.twitter.com/2"
	tweetCharLimit  = 280
	tweetTruncateAt = 277
)

var tweetURLRe = regexp.MustCompile(`/([^/]+)/status(?:es)?/(\d+)`)

// parseTwitterURL extracts the handle and tweet ID from a status URL.
func parseTwitterURL(target string) (username, tweetID string) {
	u, err := url.Parse(target)
	if err != nil {
		return "", ""
	}
	if m := tweetURLRe.FindStringSubmatch(u.Path); m != nil {
		return m[1], m[2]
	}
	return "", ""
}

// truncateTweet caps text at the platform limit with an ellipsis.
func truncateTweet(text string) string {
	if len(text) <= tweetCharLimit {
		return text
	}
	return text[:tweetTruncateAt] + "..."
}

// TwitterPoster posts replies through the v2 tweets endpoint.
type TwitterPoster struct {
	cfg   config.Config
	hc    *http.Client
	sleep sleepFn

	apiURL string
}

func NewTwitterPoster(cfg config.Config) *TwitterPoster {
	return &TwitterPoster{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		sleep:  sleepCtx,
		apiURL: twitterAPIURL,
	}
}

// Platform returns "twitter".
func (p *TwitterPoster) Platform() string { return "twitter" }

// Close is a no-op; the poster holds no session state.
func (p *TwitterPoster) Close() error { return nil }

// Post replies to the tweet the target URL names.
func (p *TwitterPoster) Post(ctx context.Context, req PostRequest) domain.PostResult {
	username, tweetID := parseTwitterURL(req.TargetURL)
	if tweetID == "" {
		return domain.PostResult{
			Success:   false,
			Error:     "Could not parse Twitter URL - missing tweet ID",
			ErrorCode: domain.PostErrInvalidURL,
			Retryable: false,
			Platform:  "twitter",
		}
	}
	if p.cfg.TwitterBearerToken == "" {
		return domain.PostResult{
			Success:   false,
			Error:     "Twitter bearer token not configured",
			ErrorCode: domain.PostErrMissingCredentials,
			Retryable: false,
			Platform:  "twitter",
		}
	}

	text := truncateTweet(req.ResponseText)

	if req.ApplyDelay {
		origLen := req.OriginalTextLength
		if origLen == 0 {
			origLen = tweetCharLimit
		}
		p.sleep(ctx, Jitter(HumanLikeDelay(origLen, len(text), true), 0.15))
	}

	payload, err := json.Marshal(map[string]any{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": tweetID,
		},
	})
	if err != nil {
		return unknownError("twitter", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return unknownError("twitter", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.TwitterBearerToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(httpReq)
	if err != nil {
		return domain.PostResult{
			Success:   false,
			Error:     fmt.Sprintf("HTTP error: %v", err),
			ErrorCode: "HTTP_ERROR",
			Retryable: true,
			Platform:  "twitter",
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusCreated:
		var out struct {
			Data struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return unknownError("twitter", err)
		}
		postedAt := time.Now().UTC()
		return domain.PostResult{
			Success:     true,
			ExternalID:  out.Data.ID,
			ExternalURL: "https://twitter.com/i/status/" + out.Data.ID,
			PostedAt:    &postedAt,
			Platform:    "twitter",
			Method:      "api",
			Metadata: map[string]any{
				"reply_to":      tweetID,
				"reply_to_user": username,
			},
		}

	case http.StatusUnauthorized:
		return domain.PostResult{
			Success:   false,
			Error:     "Twitter authentication failed",
			ErrorCode: domain.PostErrAuthFailed,
			Retryable: false,
			Platform:  "twitter",
		}

	case http.StatusForbidden:
		var out struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if strings.Contains(strings.ToLower(out.Detail), "duplicate") {
			return domain.PostResult{
				Success:   false,
				Error:     "Duplicate tweet detected",
				ErrorCode: domain.PostErrDuplicateTweet,
				Retryable: false,
				Platform:  "twitter",
			}
		}
		detail := out.Detail
		if detail == "" {
			detail = "Forbidden"
		}
		return domain.PostResult{
			Success:   false,
			Error:     "Twitter forbidden: " + detail,
			ErrorCode: "FORBIDDEN",
			Retryable: false,
			Platform:  "twitter",
		}

	case http.StatusTooManyRequests:
		return domain.PostResult{
			Success:   false,
			Error:     "Twitter rate limit exceeded",
			ErrorCode: domain.PostErrRateLimit,
			Retryable: true,
			Platform:  "twitter",
			Metadata: map[string]any{
				"retry_after": resp.Header.Get("Retry-After"),
			},
		}

	default:
		return domain.PostResult{
			Success:   false,
			Error:     fmt.Sprintf("Twitter API error %d", resp.StatusCode),
			ErrorCode: fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
			Platform:  "twitter",
		}
	}
}

// VerifyPosted checks a tweet still exists.
func (p *TwitterPoster) VerifyPosted(ctx context.Context, externalID string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/tweets/"+url.PathEscape(externalID)+"?tweet.fields=id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.TwitterBearerToken)

	resp, err := p.hc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
