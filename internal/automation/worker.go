package automation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultBatchSize     = 10

	// AutoPostTaskName is the runner task registered by the worker.
	AutoPostTaskName = "auto_post_check"
)

// Candidate is one response row fetched for an auto-post pass.
type Candidate struct {
	ResponseID     string
	OrganizationID string
	CTSScore       float64
	RiskLevel      domain.RiskLevel
	CTALevel       int
	Platform       string
	CanAutoPost    bool
	Status         domain.ResponseStatus
	TargetURL      string
	Subreddit      string
	ResponseText   string
	CreatedAt      time.Time
}

// Host callbacks. The worker owns eligibility and queueing; the host
// owns the store.
type (
	FetchCandidatesFunc func(ctx domain.Context, limit int) ([]Candidate, error)
	FetchOrgLimitsFunc  func(ctx domain.Context, organizationID string) (domain.OrgLimits, error)
	UpdateResponseFunc  func(ctx domain.Context, responseID string, status domain.ResponseStatus, errMsg string) error
	AuditFunc           func(ctx domain.Context, organizationID, action, entityID string, data map[string]any)
)

// WorkerStats accumulates across auto-post passes.
type WorkerStats struct {
	TotalProcessed int        `json:"total_processed"`
	TotalQueued    int        `json:"total_queued"`
	TotalFailed    int        `json:"total_failed"`
	TotalSkipped   int        `json:"total_skipped"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastDurationMS int64      `json:"last_run_duration_ms"`
}

// WorkerOptions tune the auto-post worker.
type WorkerOptions struct {
	CheckInterval time.Duration
	BatchSize     int
}

func (o *WorkerOptions) withDefaults() {
	if o.CheckInterval <= 0 {
		o.CheckInterval = defaultCheckInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
}

// Worker periodically fetches candidate responses, checks eligibility,
// and enqueues the eligible ones for posting.
type Worker struct {
	opts        WorkerOptions
	queue       *posting.Queue
	limits      *RateLimitManager
	eligibility *Eligibility

	fetchCandidates FetchCandidatesFunc
	fetchOrgLimits  FetchOrgLimitsFunc
	updateResponse  UpdateResponseFunc
	audit           AuditFunc

	mu    sync.Mutex
	stats WorkerStats

	now func() time.Time
}

func NewWorker(queue *posting.Queue, limits *RateLimitManager, opts WorkerOptions) *Worker {
	opts.withDefaults()
	if limits == nil {
		limits = NewRateLimitManager()
	}
	return &Worker{
		opts:        opts,
		queue:       queue,
		limits:      limits,
		eligibility: NewEligibility(limits),
		now:         time.Now,
	}
}

func (w *Worker) SetFetchCandidates(fn FetchCandidatesFunc) { w.fetchCandidates = fn }
func (w *Worker) SetFetchOrgLimits(fn FetchOrgLimitsFunc)   { w.fetchOrgLimits = fn }
func (w *Worker) SetUpdateResponse(fn UpdateResponseFunc)   { w.updateResponse = fn }
func (w *Worker) SetAudit(fn AuditFunc)                     { w.audit = fn }

// Register adds the worker's periodic check to a runner.
func (w *Worker) Register(r *Runner) error {
	if w.fetchCandidates == nil {
		return fmt.Errorf("op=automation.Register: fetch candidates callback not set: %w", domain.ErrInvalidArgument)
	}
	_, err := r.RegisterTask(
		AutoPostTaskName,
		"Check for eligible responses and queue for auto-posting",
		w.opts.CheckInterval,
		false,
		func(ctx domain.Context) error {
			_, err := w.ProcessEligibleResponses(ctx)
			return err
		},
	)
	return err
}

// ProcessEligibleResponses runs one auto-post pass and returns how many
// candidates it looked at.
func (w *Worker) ProcessEligibleResponses(ctx domain.Context) (int, error) {
	if w.fetchCandidates == nil {
		return 0, fmt.Errorf("op=automation.ProcessEligibleResponses: fetch candidates callback not set: %w", domain.ErrInvalidArgument)
	}

	started := w.now()
	candidates, err := w.fetchCandidates(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("op=automation.ProcessEligibleResponses: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var queued, failed, skipped int
	for _, c := range candidates {
		switch w.processOne(ctx, c) {
		case "queued":
			queued++
		case "failed":
			failed++
		default:
			skipped++
		}
	}

	duration := w.now().Sub(started)

	w.mu.Lock()
	w.stats.TotalProcessed += len(candidates)
	w.stats.TotalQueued += queued
	w.stats.TotalFailed += failed
	w.stats.TotalSkipped += skipped
	w.stats.LastRunAt = &started
	w.stats.LastDurationMS = duration.Milliseconds()
	w.mu.Unlock()

	slog.Info("auto-post pass finished",
		slog.Int("processed", len(candidates)),
		slog.Int("queued", queued),
		slog.Int("failed", failed),
		slog.Int("skipped", skipped),
		slog.Duration("duration", duration))

	return len(candidates), nil
}

func (w *Worker) processOne(ctx domain.Context, c Candidate) string {
	orgLimits := DefaultOrgLimits(c.OrganizationID)
	if w.fetchOrgLimits != nil {
		fetched, err := w.fetchOrgLimits(ctx, c.OrganizationID)
		if err == nil {
			orgLimits = fetched
		} else {
			slog.Warn("org limits fetch failed, using defaults",
				slog.String("organization_id", c.OrganizationID),
				slog.String("error", err.Error()))
		}
	}

	response := ResponseData{
		ResponseID:  c.ResponseID,
		CTSScore:    c.CTSScore,
		RiskLevel:   c.RiskLevel,
		CTALevel:    c.CTALevel,
		Platform:    c.Platform,
		CanAutoPost: c.CanAutoPost,
		Status:      c.Status,
		TargetURL:   c.TargetURL,
		Subreddit:   c.Subreddit,
	}

	result := w.eligibility.Check(response, orgLimits)
	if !result.Eligible {
		slog.Debug("response not eligible",
			slog.String("response_id", c.ResponseID),
			slog.String("reason", result.Reason))
		if w.audit != nil {
			w.audit(ctx, c.OrganizationID, "auto_post.skipped", c.ResponseID, map[string]any{
				"reason":          result.Reason,
				"checks_failed":   result.ChecksFailed,
				"requires_review": result.RequiresReview,
			})
		}
		return "skipped"
	}

	item, err := w.queue.Enqueue(posting.EnqueueRequest{
		ResponseID:     c.ResponseID,
		OrganizationID: c.OrganizationID,
		Platform:       c.Platform,
		TargetURL:      c.TargetURL,
		ResponseText:   c.ResponseText,
		Priority:       w.CalculatePriority(c),
		Metadata: map[string]any{
			"cts_score":   c.CTSScore,
			"risk_level":  c.RiskLevel,
			"cta_level":   c.CTALevel,
			"subreddit":   c.Subreddit,
			"auto_posted": true,
		},
	})
	if err != nil {
		slog.Error("enqueue failed",
			slog.String("response_id", c.ResponseID),
			slog.String("error", err.Error()))
		if w.updateResponse != nil {
			_ = w.updateResponse(ctx, c.ResponseID, domain.ResponseFailed, err.Error())
		}
		if w.audit != nil {
			w.audit(ctx, c.OrganizationID, "auto_post.queue_failed", c.ResponseID, map[string]any{
				"error": err.Error(),
			})
		}
		return "failed"
	}

	if w.updateResponse != nil {
		_ = w.updateResponse(ctx, c.ResponseID, domain.ResponsePosting, "")
	}
	w.limits.RecordPost(c.OrganizationID, c.Platform, c.Subreddit)

	if w.audit != nil {
		w.audit(ctx, c.OrganizationID, "auto_post.queued", c.ResponseID, map[string]any{
			"queue_item_id": item.ID,
			"priority":      item.Priority,
			"eligibility":   result,
		})
	}

	slog.Info("response queued for auto-posting",
		slog.String("response_id", c.ResponseID),
		slog.Int("priority", item.Priority))
	return "queued"
}

// CalculatePriority maps a candidate to a 0-100 posting priority:
// base 50, plus CTS weight, plus a bonus for low CTA levels and for
// recently crawled posts.
func (w *Worker) CalculatePriority(c Candidate) int {
	priority := 50
	priority += int(c.CTSScore * 20)
	priority += (3 - c.CTALevel) * 5

	if !c.CreatedAt.IsZero() {
		age := w.now().Sub(c.CreatedAt)
		switch {
		case age < time.Hour:
			priority += 10
		case age < 6*time.Hour:
			priority += 5
		}
	}

	if priority > 100 {
		priority = 100
	}
	if priority < 0 {
		priority = 0
	}
	return priority
}

// GetStats returns a copy of the cumulative worker statistics.
func (w *Worker) GetStats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
