package posting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
)

const (
	redditAuthURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIURL  = "https://oauth.reddit.com"
)

// Subreddits with strict self-promotion rules. Auto-posting into these
// is refused outright.
var strictSelfPromoSubreddits = map[string]struct{}{
	"askreddit":           {},
	"askscience":          {},
	"iama":                {},
	"science":             {},
	"news":                {},
	"worldnews":           {},
	"politics":            {},
	"todayilearned":       {},
	"explainlikeimfive":   {},
	"askhistorians":       {},
	"legaladvice":         {},
	"personalfinance":     {},
	"relationships":       {},
	"relationship_advice": {},
	"advice":              {},
	"askdocs":             {},
	"medical_advice":      {},
	"nostupidquestions":   {},
	"outoftheloop":        {},
	"changemyview":        {},
}

// IsSubredditBlocked reports whether auto-posting is refused for a
// subreddit.
func IsSubredditBlocked(subreddit string) bool {
	_, blocked := strictSelfPromoSubreddits[strings.ToLower(subreddit)]
	return blocked
}

// SubredditFromURL extracts the subreddit name from a Reddit permalink,
// lowercased. Empty for non-Reddit URLs.
func SubredditFromURL(target string) string {
	sub, _, _ := parseRedditURL(target)
	return sub
}

var (
	subredditRe    = regexp.MustCompile(`/r/([^/]+)`)
	redditPostRe   = regexp.MustCompile(`/comments/([a-z0-9]+)`)
	redditCommRe   = regexp.MustCompile(`/comments/[a-z0-9]+/[^/]+/([a-z0-9]+)`)
	rateLimitWaits = regexp.MustCompile(`(\d+)\s*(minute|second)`)
)

// parseRedditURL extracts subreddit, post ID and comment ID from a
// Reddit permalink. Missing parts come back empty.
func parseRedditURL(target string) (subreddit, postID, commentID string) {
	u, err := url.Parse(target)
	if err != nil {
		return "", "", ""
	}
	path := u.Path
	if m := subredditRe.FindStringSubmatch(path); m != nil {
		subreddit = strings.ToLower(m[1])
	}
	if m := redditPostRe.FindStringSubmatch(path); m != nil {
		postID = m[1]
	}
	if m := redditCommRe.FindStringSubmatch(path); m != nil {
		commentID = m[1]
	}
	return subreddit, postID, commentID
}

// parseRateLimitWait extracts the wait the Reddit RATELIMIT message
// names, in seconds. Zero when absent.
func parseRateLimitWait(message string) int {
	m := rateLimitWaits.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	if m[2] == "minute" {
		n *= 60
	}
	return n
}

// RedditPoster replies to posts and comments through the OAuth comment
// API. Posting needs full credentials (username + password grant), not
// just the client pair the crawler uses.
type RedditPoster struct {
	cfg   config.Config
	hc    *http.Client
	sleep sleepFn

	authURL string
	apiURL  string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewRedditPoster(cfg config.Config) *RedditPoster {
	return &RedditPoster{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		sleep:   sleepCtx,
		authURL: redditAuthURL,
		apiURL:  redditAPIURL,
	}
}

// Platform returns "reddit".
func (p *RedditPoster) Platform() string { return "reddit" }

// Close drops the cached token.
func (p *RedditPoster) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.tokenExpiry = time.Time{}
	return nil
}

func (p *RedditPoster) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {p.cfg.RedditUsername},
		"password":   {p.cfg.RedditPassword},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("op=posting.reddit.accessToken: %w", err)
	}
	req.SetBasicAuth(p.cfg.RedditClientID, p.cfg.RedditClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.cfg.RedditUserAgent)

	resp, err := p.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=posting.reddit.accessToken: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: reddit token status %d", domain.ErrUpstreamAuth, resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("op=posting.reddit.accessToken: %w", err)
	}
	p.token = out.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return p.token, nil
}

type redditCommentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []struct {
				Data struct {
					ID        string `json:"id"`
					Permalink string `json:"permalink"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// Post replies to the post or comment the target URL names.
func (p *RedditPoster) Post(ctx context.Context, req PostRequest) domain.PostResult {
	subreddit, postID, commentID := parseRedditURL(req.TargetURL)
	if postID == "" {
		return domain.PostResult{
			Success:   false,
			Error:     "Could not parse Reddit URL - missing post ID",
			ErrorCode: domain.PostErrInvalidURL,
			Retryable: false,
			Platform:  "reddit",
		}
	}
	if subreddit != "" && IsSubredditBlocked(subreddit) {
		return domain.PostResult{
			Success:   false,
			Error:     fmt.Sprintf("Auto-posting blocked for r/%s due to strict self-promotion rules", subreddit),
			ErrorCode: domain.PostErrBlockedSubreddit,
			Retryable: false,
			Platform:  "reddit",
		}
	}
	if p.cfg.RedditClientID == "" || p.cfg.RedditClientSecret == "" {
		return domain.PostResult{
			Success:   false,
			Error:     "Reddit client credentials not configured",
			ErrorCode: domain.PostErrMissingCredentials,
			Retryable: false,
			Platform:  "reddit",
		}
	}
	if p.cfg.RedditUsername == "" || p.cfg.RedditPassword == "" {
		return domain.PostResult{
			Success:   false,
			Error:     "Authentication required for posting",
			ErrorCode: "AUTH_REQUIRED",
			Retryable: false,
			Platform:  "reddit",
		}
	}

	if req.ApplyDelay {
		origLen := req.OriginalTextLength
		if origLen == 0 {
			origLen = 500
		}
		p.sleep(ctx, Jitter(HumanLikeDelay(origLen, len(req.ResponseText), true), 0.15))
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return domain.PostResult{
			Success:   false,
			Error:     err.Error(),
			ErrorCode: domain.PostErrAuthFailed,
			Retryable: false,
			Platform:  "reddit",
		}
	}

	thingID := "t3_" + postID
	parentType := "post"
	parentID := postID
	if commentID != "" {
		thingID = "t1_" + commentID
		parentType = "comment"
		parentID = commentID
	}

	form := url.Values{
		"api_type": {"json"},
		"thing_id": {thingID},
		"text":     {req.ResponseText},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return unknownError("reddit", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", p.cfg.RedditUserAgent)

	resp, err := p.hc.Do(httpReq)
	if err != nil {
		return unknownError("reddit", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.PostResult{
			Success:   false,
			Error:     "Reddit rate limit: status 429",
			ErrorCode: domain.PostErrRateLimit,
			Retryable: true,
			Platform:  "reddit",
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.PostResult{
			Success:   false,
			Error:     fmt.Sprintf("Reddit auth rejected: status %d", resp.StatusCode),
			ErrorCode: domain.PostErrAuthFailed,
			Retryable: false,
			Platform:  "reddit",
		}
	case resp.StatusCode != http.StatusOK:
		return domain.PostResult{
			Success:   false,
			Error:     fmt.Sprintf("Reddit API error: status %d", resp.StatusCode),
			ErrorCode: fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
			Platform:  "reddit",
		}
	}

	var out redditCommentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return unknownError("reddit", err)
	}

	if len(out.JSON.Errors) > 0 {
		return p.classifyAPIError(out.JSON.Errors)
	}
	if len(out.JSON.Data.Things) == 0 {
		return unknownError("reddit", fmt.Errorf("empty comment response"))
	}

	thing := out.JSON.Data.Things[0].Data
	externalURL := req.TargetURL
	if thing.Permalink != "" {
		externalURL = "https://reddit.com" + thing.Permalink
	}
	postedAt := time.Now().UTC()
	return domain.PostResult{
		Success:     true,
		ExternalID:  strings.TrimPrefix(thing.ID, "t1_"),
		ExternalURL: externalURL,
		PostedAt:    &postedAt,
		Platform:    "reddit",
		Method:      "api",
		Metadata: map[string]any{
			"subreddit":   subreddit,
			"parent_type": parentType,
			"parent_id":   parentID,
		},
	}
}

// classifyAPIError maps reddit's [code, message, field] error triples to
// a PostResult.
func (p *RedditPoster) classifyAPIError(apiErrors [][]any) domain.PostResult {
	var codes []string
	var messages []string
	for _, e := range apiErrors {
		if len(e) > 0 {
			if code, ok := e[0].(string); ok {
				codes = append(codes, code)
			}
		}
		if len(e) > 1 {
			if msg, ok := e[1].(string); ok {
				messages = append(messages, msg)
			}
		}
	}
	joined := strings.Join(messages, "; ")

	for _, code := range codes {
		switch code {
		case "RATELIMIT":
			result := domain.PostResult{
				Success:   false,
				Error:     "Reddit rate limit: " + joined,
				ErrorCode: domain.PostErrRateLimit,
				Retryable: true,
				Platform:  "reddit",
				Metadata:  map[string]any{},
			}
			if wait := parseRateLimitWait(joined); wait > 0 {
				result.Metadata["wait_seconds"] = wait
			}
			return result
		case "DELETED_COMMENT", "THREAD_LOCKED":
			return domain.PostResult{
				Success:   false,
				Error:     "Target content unavailable: " + joined,
				ErrorCode: code,
				Retryable: false,
				Platform:  "reddit",
			}
		case "USER_REQUIRED":
			return domain.PostResult{
				Success:   false,
				Error:     "Authentication required for posting",
				ErrorCode: "AUTH_REQUIRED",
				Retryable: false,
				Platform:  "reddit",
			}
		}
	}

	code := domain.PostErrUnknown
	if len(codes) > 0 {
		code = codes[0]
	}
	return domain.PostResult{
		Success:   false,
		Error:     "Reddit API error: " + joined,
		ErrorCode: code,
		Retryable: true,
		Platform:  "reddit",
	}
}

// VerifyPosted checks a comment still exists.
func (p *RedditPoster) VerifyPosted(ctx context.Context, externalID string) bool {
	token, err := p.accessToken(ctx)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/api/info?id=t1_"+url.QueryEscape(externalID), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", p.cfg.RedditUserAgent)

	resp, err := p.hc.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		Data struct {
			Children []json.RawMessage `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false
	}
	return len(out.Data.Children) > 0
}

func unknownError(platform string, err error) domain.PostResult {
	return domain.PostResult{
		Success:   false,
		Error:     fmt.Sprintf("Unexpected error: %v", err),
		ErrorCode: domain.PostErrUnknown,
		Retryable: true,
		Platform:  platform,
	}
}
