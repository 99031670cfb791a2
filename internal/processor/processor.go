// Package processor glues scheduler results to the analysis pipeline:
// dedupe, analyze, persist, enqueue for review.
package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
)

// DefaultOrganizationID receives crawls that carry no explicit org.
const DefaultOrganizationID = "aaaa1111-1111-1111-1111-111111111111"

const maxContentLength = 10000

// DefaultTenant is the tenant context used when an organization has no
// stored context.
func DefaultTenant() domain.TenantContext {
	return domain.TenantContext{
		AppName:        "WeAttuned",
		ValueProp:      "Emotional intelligence app that helps couples communicate better and strengthen their relationships",
		TargetAudience: "Couples and individuals seeking to improve relationship communication",
		KeyBenefits: []string{
			"Better communication skills",
			"Emotional awareness",
			"Conflict resolution",
			"Deeper connection",
		},
		WebsiteURL: "https://weattuned.com",
	}
}

// Analyzer runs one post through the analysis pipeline.
type Analyzer interface {
	Analyze(ctx domain.Context, text, platform string, tenant domain.TenantContext) (pipeline.Result, error)
}

// Repos bundles the stores the processor writes to.
type Repos struct {
	Posts       domain.PostRepository
	Signals     domain.SignalRepository
	Risks       domain.RiskRepository
	Responses   domain.ResponseRepository
	Engagements domain.EngagementRepository
}

// Stats summarizes one crawl's processing.
type Stats struct {
	TotalPosts int `json:"total_posts"`
	NewPosts   int `json:"new_posts"`
	Duplicates int `json:"duplicates"`
	Processed  int `json:"processed"`
	Errors     int `json:"errors"`
	Queued     int `json:"queued"`
}

// Processor deduplicates crawled posts, runs them through the pipeline,
// and persists post, signal, risk, response and queue rows.
type Processor struct {
	repos    Repos
	pipeline Analyzer
	dedup    *Deduper

	mu      sync.RWMutex
	tenants map[string]domain.TenantContext
}

func New(repos Repos, pl Analyzer, dedup *Deduper) *Processor {
	return &Processor{
		repos:    repos,
		pipeline: pl,
		dedup:    dedup,
		tenants:  make(map[string]domain.TenantContext),
	}
}

// SetTenantContext registers an organization's tenant context.
func (p *Processor) SetTenantContext(organizationID string, tenant domain.TenantContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[organizationID] = tenant
}

func (p *Processor) tenantFor(organizationID string) domain.TenantContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.tenants[organizationID]; ok {
		return t
	}
	return DefaultTenant()
}

// ProcessCrawlResults is the scheduler's result callback target. Per-post
// failures are counted, never fatal.
func (p *Processor) ProcessCrawlResults(ctx domain.Context, configName string, result domain.CrawlResult, organizationID string) Stats {
	if organizationID == "" {
		organizationID = DefaultOrganizationID
	}
	tenant := p.tenantFor(organizationID)

	stats := Stats{TotalPosts: len(result.Posts)}
	slog.Info("processing crawl results",
		slog.String("config", configName),
		slog.Int("posts", stats.TotalPosts))

	for _, post := range result.Posts {
		if post.ExternalURL == "" || post.Content == "" {
			continue
		}

		dup, err := p.isDuplicate(ctx, post.ExternalURL)
		if err != nil {
			stats.Errors++
			observability.CrawlPostsTotal.WithLabelValues(post.Platform, "error").Inc()
			slog.Error("dedup check failed",
				slog.String("url", post.ExternalURL),
				slog.String("error", err.Error()))
			continue
		}
		if dup {
			stats.Duplicates++
			observability.CrawlPostsTotal.WithLabelValues(post.Platform, "duplicate").Inc()
			continue
		}
		stats.NewPosts++

		platform := DetectPlatform(post.ExternalURL)

		res, err := p.pipeline.Analyze(ctx, post.Content, platform, tenant)
		if err != nil {
			stats.Errors++
			observability.CrawlPostsTotal.WithLabelValues(platform, "error").Inc()
			slog.Error("pipeline failed for post",
				slog.String("url", post.ExternalURL),
				slog.String("error", err.Error()))
			continue
		}
		if res.Blocked {
			observability.CrawlPostsTotal.WithLabelValues(platform, "blocked").Inc()
			slog.Info("post blocked by pipeline", slog.String("url", post.ExternalURL))
			continue
		}

		if err := p.save(ctx, post, platform, res, organizationID, configName); err != nil {
			stats.Errors++
			observability.CrawlPostsTotal.WithLabelValues(platform, "error").Inc()
			slog.Error("saving post failed",
				slog.String("url", post.ExternalURL),
				slog.String("error", err.Error()))
			continue
		}
		p.dedup.Mark(ctx, post.ExternalURL)
		observability.CrawlPostsTotal.WithLabelValues(platform, "new").Inc()
		stats.Processed++
		stats.Queued++
	}

	slog.Info("crawl processing complete",
		slog.String("config", configName),
		slog.Int("processed", stats.Processed),
		slog.Int("queued", stats.Queued),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("errors", stats.Errors))
	return stats
}

func (p *Processor) isDuplicate(ctx domain.Context, url string) (bool, error) {
	if p.dedup.Seen(ctx, url) {
		return true, nil
	}
	_, err := p.repos.Posts.GetByExternalURL(ctx, url)
	if err == nil {
		p.dedup.Mark(ctx, url)
		return true, nil
	}
	if errorsIsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("op=processor.isDuplicate: %w", err)
}

// save persists the five rows for one analyzed post.
func (p *Processor) save(ctx domain.Context, post domain.CrawledPost, platform string, res pipeline.Result, organizationID, configName string) error {
	now := time.Now().UTC()
	crawledAt := post.CrawledAt
	if crawledAt.IsZero() {
		crawledAt = now
	}

	postID := uuid.NewString()
	if err := p.repos.Posts.Create(ctx, domain.Post{
		ID:                postID,
		OrganizationID:    organizationID,
		Platform:          platform,
		ExternalID:        post.ExternalID,
		ExternalURL:       post.ExternalURL,
		Content:           truncateRunes(post.Content, maxContentLength),
		AuthorHandle:      post.AuthorHandle,
		AuthorDisplayName: post.AuthorDisplayName,
		CrawledAt:         crawledAt,
		CreatedAt:         now,
		UpdatedAt:         now,
		Metadata: map[string]any{
			"crawl_config":      configName,
			"keywords_matched":  post.KeywordsMatched,
			"platform_metadata": post.PlatformMetadata,
		},
	}); err != nil {
		return fmt.Errorf("op=processor.save: post: %w", err)
	}

	if err := p.repos.Signals.Create(ctx, domain.SignalRow{
		ID:                 uuid.NewString(),
		PostID:             postID,
		ProblemCategory:    res.Signal.ProblemCategory,
		EmotionalIntensity: res.Signal.EmotionalIntensity,
		Keywords:           res.Signal.Keywords,
		Confidence:         res.Signal.Confidence,
		CreatedAt:          now,
	}); err != nil {
		return fmt.Errorf("op=processor.save: signal: %w", err)
	}

	if err := p.repos.Risks.Create(ctx, domain.RiskRow{
		ID:           uuid.NewString(),
		PostID:       postID,
		RiskLevel:    res.Risk.Level,
		RiskScore:    res.Risk.Score,
		RiskFactors:  res.Risk.Factors,
		ContextFlags: res.Risk.ContextFlags,
		CreatedAt:    now,
	}); err != nil {
		return fmt.Errorf("op=processor.save: risk: %w", err)
	}

	responseID := uuid.NewString()
	if err := p.repos.Responses.Create(ctx, domain.ResponseRow{
		ID:                responseID,
		PostID:            postID,
		OrganizationID:    organizationID,
		ResponseType:      res.Responses.SelectedType,
		Content:           res.Responses.Selected,
		ValueFirstVariant: res.Responses.ValueFirst,
		SoftCTAVariant:    res.Responses.SoftCTA,
		ContextualVariant: res.Responses.Contextual,
		Status:            domain.ResponsePending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}); err != nil {
		return fmt.Errorf("op=processor.save: response: %w", err)
	}

	if err := p.repos.Engagements.Create(ctx, domain.EngagementRow{
		ID:              uuid.NewString(),
		OrganizationID:  organizationID,
		PostID:          postID,
		ResponseID:      responseID,
		Status:          "pending",
		Priority:        PriorityForCTS(res.CTS.Score),
		CTSScore:        res.CTS.Score,
		RequiresReview:  res.CTS.RequiresReview,
		DecisionFactors: res.CTS.DecisionFactors,
		CreatedAt:       now,
		UpdatedAt:       now,
	}); err != nil {
		return fmt.Errorf("op=processor.save: engagement: %w", err)
	}
	return nil
}

// DetectPlatform maps a URL to the platform tag used for analysis and
// rate accounting. Google search results resolve to the source site.
func DetectPlatform(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "reddit.com"):
		return "reddit"
	case strings.Contains(lower, "twitter.com"), strings.Contains(lower, "x.com"):
		return "twitter"
	case strings.Contains(lower, "quora.com"):
		return "quora"
	case strings.Contains(lower, "facebook.com"):
		return "facebook"
	case strings.Contains(lower, "linkedin.com"):
		return "linkedin"
	default:
		return "other"
	}
}

// PriorityForCTS buckets a CTS score into review priority 1..5, 1 highest.
func PriorityForCTS(score float64) int {
	switch {
	case score >= 0.8:
		return 1
	case score >= 0.6:
		return 2
	case score >= 0.4:
		return 3
	case score >= 0.2:
		return 4
	default:
		return 5
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func errorsIsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
