package httpserver_test

import (
	"context"
	"time"

	httpserver "github.com/reachby3cs/engage/internal/adapter/httpserver"
	"github.com/reachby3cs/engage/internal/adapter/ai/stub"
	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/crawlsched"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

// fakeCrawler serves canned results for handler tests.
type fakeCrawler struct {
	platform string
	result   domain.CrawlResult
	err      error
}

func (f *fakeCrawler) Platform() string { return f.platform }

func (f *fakeCrawler) Search(_ domain.Context, _ []string, _ int, _ crawler.SearchOptions) (domain.CrawlResult, error) {
	return f.result, f.err
}

func (f *fakeCrawler) GetRecent(_ domain.Context, _ []string, _ int) (domain.CrawlResult, error) {
	return f.result, f.err
}

func (f *fakeCrawler) HealthCheck(domain.Context) crawler.Health {
	return crawler.Health{Platform: f.platform, Status: "healthy", Initialized: true}
}

func (f *fakeCrawler) Close() error { return nil }

// fakePoster acknowledges every post.
type fakePoster struct {
	platform string
	result   domain.PostResult
	posted   int
}

func (f *fakePoster) Platform() string { return f.platform }

func (f *fakePoster) Post(context.Context, posting.PostRequest) domain.PostResult {
	f.posted++
	return f.result
}

func (f *fakePoster) VerifyPosted(context.Context, string) bool { return true }

func (f *fakePoster) Close() error { return nil }

func fakeCrawlResult(platform string) domain.CrawlResult {
	now := time.Now().UTC()
	return domain.CrawlResult{
		Platform: platform,
		Posts: []domain.CrawledPost{{
			ExternalID:   "abc123",
			ExternalURL:  "https://reddit.com/r/productivity/comments/abc123",
			Content:      "I keep struggling with staying organized",
			ContentType:  domain.ContentPost,
			AuthorHandle: "u1",
			Platform:     platform,
			CrawledAt:    now,
		}},
		TotalFound: 1,
		CrawlTime:  120 * time.Millisecond,
	}
}

func testConfig() config.Config {
	return config.Config{
		Port:         8080,
		AppEnv:       "dev",
		DefaultOrgID: "org-default",
	}
}

// newTestServer wires a server with a fake reddit crawler and poster, an
// in-memory queue, and the deterministic AI stub.
func newTestServer() (*httpserver.Server, *fakePoster) {
	sched := crawlsched.New()
	fc := &fakeCrawler{platform: "reddit", result: fakeCrawlResult("reddit")}
	sched.RegisterCrawler("reddit", fc)

	queue := posting.NewQueue(posting.Options{MaxQueueSize: 10})
	limits := automation.NewRateLimitManager()

	srv := httpserver.NewServer(testConfig(), stub.New(), sched, queue, nil, nil, limits)
	srv.RegisterCrawler(fc)
	fp := &fakePoster{platform: "reddit", result: domain.PostResult{
		Success:     true,
		ExternalID:  "t1_posted",
		ExternalURL: "https://reddit.com/r/productivity/comments/abc123/c1",
		Platform:    "reddit",
		Method:      "api",
	}}
	srv.RegisterPoster(fp)
	return srv, fp
}
