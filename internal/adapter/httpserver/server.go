package httpserver

import (
	"context"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/crawlsched"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
	"github.com/reachby3cs/engage/internal/posting"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg       config.Config
	Pipeline  *pipeline.Pipeline
	Scheduler *crawlsched.Scheduler
	Queue     *posting.Queue
	Runner    *automation.Runner
	AutoPost  *automation.Worker
	Limits    *automation.RateLimitManager

	// OrgLimits persists auto-post policy edits when configured; the
	// in-memory manager is authoritative either way.
	OrgLimits domain.OrgLimitsRepository

	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error

	crawlers    map[string]crawler.Crawler
	posters     map[string]posting.Poster
	eligibility *automation.Eligibility

	// Individual pipeline stages for the skill endpoints.
	signal *pipeline.SignalDetector
	risk   *pipeline.RiskScorer
	gen    *pipeline.ResponseGenerator
	cta    *pipeline.CTAClassifier
}

// NewServer constructs an HTTP server with all handlers wired. The skill
// endpoints share the same stage instances the full pipeline uses.
func NewServer(cfg config.Config, ai domain.AIClient, sched *crawlsched.Scheduler, queue *posting.Queue, runner *automation.Runner, autoPost *automation.Worker, limits *automation.RateLimitManager) *Server {
	if limits == nil {
		limits = automation.NewRateLimitManager()
	}
	return &Server{
		Cfg:         cfg,
		Pipeline:    pipeline.New(ai),
		Scheduler:   sched,
		Queue:       queue,
		Runner:      runner,
		AutoPost:    autoPost,
		Limits:      limits,
		crawlers:    make(map[string]crawler.Crawler),
		posters:     make(map[string]posting.Poster),
		eligibility: automation.NewEligibility(limits),
		signal:      pipeline.NewSignalDetector(ai),
		risk:        pipeline.NewRiskScorer(ai),
		gen:         pipeline.NewResponseGenerator(ai),
		cta:         pipeline.NewCTAClassifier(),
	}
}

// RegisterCrawler exposes a platform crawler on the crawler endpoints.
func (s *Server) RegisterCrawler(c crawler.Crawler) {
	s.crawlers[c.Platform()] = c
}

// RegisterPoster exposes a platform poster on the direct post endpoint.
func (s *Server) RegisterPoster(p posting.Poster) {
	s.posters[p.Platform()] = p
}
