package app

import (
	"context"
	"testing"
	"time"

	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

type recordingPoster struct {
	platform string
	lastReq  posting.PostRequest
	result   domain.PostResult
}

func (p *recordingPoster) Platform() string { return p.platform }
func (p *recordingPoster) Post(_ context.Context, req posting.PostRequest) domain.PostResult {
	p.lastReq = req
	return p.result
}
func (p *recordingPoster) VerifyPosted(context.Context, string) bool { return true }
func (p *recordingPoster) Close() error                              { return nil }

func TestBuildPostCallback_MissingPoster(t *testing.T) {
	cb := BuildPostCallback(map[string]posting.Poster{}, false)
	res := cb(context.Background(), &posting.QueueItem{Platform: "twitter"})
	if res.Success {
		t.Fatalf("expected failure for unconfigured platform")
	}
	if res.ErrorCode != domain.PostErrMissingCredentials {
		t.Fatalf("expected %s, got %s", domain.PostErrMissingCredentials, res.ErrorCode)
	}
	if res.Retryable {
		t.Fatalf("missing poster should not be retryable")
	}
}

func TestBuildPostCallback_Dispatch(t *testing.T) {
	p := &recordingPoster{platform: "reddit", result: domain.PostResult{Success: true, ExternalID: "t1_x"}}
	cb := BuildPostCallback(map[string]posting.Poster{"reddit": p}, true)

	res := cb(context.Background(), &posting.QueueItem{
		Platform:     "reddit",
		TargetURL:    "https://reddit.com/r/adhd/comments/xyz",
		ResponseText: "one small habit",
	})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if p.lastReq.TargetURL != "https://reddit.com/r/adhd/comments/xyz" {
		t.Fatalf("target url not forwarded: %q", p.lastReq.TargetURL)
	}
	if !p.lastReq.ApplyDelay {
		t.Fatalf("apply delay not forwarded")
	}
	if p.lastReq.OriginalTextLength != len("one small habit") {
		t.Fatalf("text length not forwarded: %d", p.lastReq.OriginalTextLength)
	}
}

type fakeEngagementRepo struct{ rows []domain.EngagementRow }

func (r *fakeEngagementRepo) Create(context.Context, domain.EngagementRow) error { return nil }
func (r *fakeEngagementRepo) Get(context.Context, string) (domain.EngagementRow, error) {
	return domain.EngagementRow{}, domain.ErrNotFound
}
func (r *fakeEngagementRepo) UpdateStatus(context.Context, string, string) error { return nil }
func (r *fakeEngagementRepo) ListPending(context.Context, int) ([]domain.EngagementRow, error) {
	return r.rows, nil
}

type fakePostRepo struct{ posts map[string]domain.Post }

func (r *fakePostRepo) Create(context.Context, domain.Post) error { return nil }
func (r *fakePostRepo) GetByExternalURL(context.Context, string) (domain.Post, error) {
	return domain.Post{}, domain.ErrNotFound
}
func (r *fakePostRepo) Get(_ context.Context, id string) (domain.Post, error) {
	p, ok := r.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeRiskRepo struct{ rows map[string]domain.RiskRow }

func (r *fakeRiskRepo) Create(context.Context, domain.RiskRow) error { return nil }
func (r *fakeRiskRepo) GetByPostID(_ context.Context, postID string) (domain.RiskRow, error) {
	row, ok := r.rows[postID]
	if !ok {
		return domain.RiskRow{}, domain.ErrNotFound
	}
	return row, nil
}

type fetcherResponseRepo struct{ rows map[string]domain.ResponseRow }

func (r *fetcherResponseRepo) Create(context.Context, domain.ResponseRow) error { return nil }
func (r *fetcherResponseRepo) Get(_ context.Context, id string) (domain.ResponseRow, error) {
	row, ok := r.rows[id]
	if !ok {
		return domain.ResponseRow{}, domain.ErrNotFound
	}
	return row, nil
}
func (r *fetcherResponseRepo) UpdateStatus(context.Context, string, domain.ResponseStatus) error {
	return nil
}
func (r *fetcherResponseRepo) ListByStatus(context.Context, domain.ResponseStatus, int) ([]domain.ResponseRow, error) {
	return nil, nil
}

func TestBuildCandidateFetcher_Joins(t *testing.T) {
	engagements := &fakeEngagementRepo{rows: []domain.EngagementRow{{
		ID:             "eng-1",
		OrganizationID: "org-1",
		PostID:         "post-1",
		ResponseID:     "resp-1",
		CTSScore:       0.82,
		RequiresReview: false,
	}}}
	responses := &fetcherResponseRepo{rows: map[string]domain.ResponseRow{
		"resp-1": {
			ID:      "resp-1",
			PostID:  "post-1",
			Content: "What helped me was one small habit.",
			Status:  domain.ResponsePending,
		},
	}}
	posts := &fakePostRepo{posts: map[string]domain.Post{
		"post-1": {
			ID:          "post-1",
			Platform:    "reddit",
			ExternalURL: "https://reddit.com/r/productivity/comments/abc",
		},
	}}
	risks := &fakeRiskRepo{rows: map[string]domain.RiskRow{
		"post-1": {PostID: "post-1", RiskLevel: domain.RiskLow, RiskScore: 0.1},
	}}

	fetch := BuildCandidateFetcher(engagements, responses, posts, risks)
	cands, err := fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	c := cands[0]
	if c.ResponseID != "resp-1" || c.OrganizationID != "org-1" {
		t.Fatalf("bad identity fields: %+v", c)
	}
	if c.RiskLevel != domain.RiskLow {
		t.Fatalf("risk level not joined: %s", c.RiskLevel)
	}
	if c.CTALevel != 0 {
		t.Fatalf("pure-value response should classify level 0, got %d", c.CTALevel)
	}
	if !c.CanAutoPost {
		t.Fatalf("review not required, candidate should be auto-postable")
	}
	if c.Subreddit != "productivity" {
		t.Fatalf("subreddit not derived: %q", c.Subreddit)
	}
}

func TestBuildCandidateFetcher_SkipsAndFailsClosed(t *testing.T) {
	engagements := &fakeEngagementRepo{rows: []domain.EngagementRow{
		{ID: "eng-1", PostID: "post-1", ResponseID: "missing"},
		{ID: "eng-2", PostID: "post-2", ResponseID: "resp-2", RequiresReview: true},
	}}
	responses := &fetcherResponseRepo{rows: map[string]domain.ResponseRow{
		"resp-2": {ID: "resp-2", PostID: "post-2", Content: "hi", Status: domain.ResponsePending},
	}}
	posts := &fakePostRepo{posts: map[string]domain.Post{
		"post-2": {ID: "post-2", Platform: "twitter", ExternalURL: "https://twitter.com/u/status/1"},
	}}
	risks := &fakeRiskRepo{rows: map[string]domain.RiskRow{}}

	fetch := BuildCandidateFetcher(engagements, responses, posts, risks)
	cands, err := fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected the broken join to be skipped, got %d candidates", len(cands))
	}
	c := cands[0]
	// Missing risk row must read as high, never as safe.
	if c.RiskLevel != domain.RiskHigh {
		t.Fatalf("missing risk should fail closed to high, got %s", c.RiskLevel)
	}
	if c.CanAutoPost {
		t.Fatalf("requires-review row must not be auto-postable")
	}
}

func TestBuildOrgLimitsFetcher(t *testing.T) {
	manager := automation.NewRateLimitManager()

	t.Run("repo miss falls back to manager", func(t *testing.T) {
		fetch := BuildOrgLimitsFetcher(nil, manager)
		got, err := fetch(context.Background(), "org-1")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if !got.AutoPostEnabled {
			t.Fatalf("default limits should have auto-post enabled")
		}
	})

	t.Run("repo hit hydrates manager", func(t *testing.T) {
		stored := automation.DefaultOrgLimits("org-2")
		stored.MinCTSScore = 0.95
		repo := &fakeOrgLimitsRepo{limits: map[string]domain.OrgLimits{"org-2": stored}}

		fetch := BuildOrgLimitsFetcher(repo, manager)
		got, err := fetch(context.Background(), "org-2")
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got.MinCTSScore != 0.95 {
			t.Fatalf("stored limits not returned: %+v", got)
		}
		if manager.OrgLimitsFor("org-2").MinCTSScore != 0.95 {
			t.Fatalf("manager not hydrated from store")
		}
	})
}

type fakeOrgLimitsRepo struct{ limits map[string]domain.OrgLimits }

func (r *fakeOrgLimitsRepo) Get(_ context.Context, organizationID string) (domain.OrgLimits, error) {
	l, ok := r.limits[organizationID]
	if !ok {
		return domain.OrgLimits{}, domain.ErrNotFound
	}
	return l, nil
}
func (r *fakeOrgLimitsRepo) Upsert(_ context.Context, l domain.OrgLimits) error {
	r.limits[l.OrganizationID] = l
	return nil
}

func TestWireQueueCallbacks_SuccessPath(t *testing.T) {
	q := posting.NewQueue(posting.Options{DequeueWait: 50 * time.Millisecond})
	q.SetPostCallback(func(context.Context, *posting.QueueItem) domain.PostResult {
		return domain.PostResult{Success: true, ExternalID: "t1_done"}
	})

	responses := &fakeResponseRepo{}
	limits := automation.NewRateLimitManager()
	WireQueueCallbacks(q, responses, limits)

	if err := q.Start(1); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	_, err := q.Enqueue(posting.EnqueueRequest{
		ResponseID:     "resp-1",
		OrganizationID: "org-1",
		Platform:       "reddit",
		TargetURL:      "https://reddit.com/r/adhd/comments/xyz",
		ResponseText:   "hello",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// RecordPost runs last in the success callback; once the usage shows
	// up the status update has already happened.
	deadline := time.After(5 * time.Second)
	for limits.GetStats("org-1").Usage.Hourly != 1 {
		select {
		case <-deadline:
			t.Fatalf("successful post never recorded against limits")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if len(responses.updateCalls) != 1 || responses.updateCalls[0].status != domain.ResponsePosted {
		t.Fatalf("response status not updated to posted: %+v", responses.updateCalls)
	}
}
