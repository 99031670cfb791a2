// Command server starts the engage HTTP API: crawl scheduling, the
// analysis pipeline endpoints, and the posting queue live in this
// process. Deployments that run cmd/worker for posting should set
// AUTOMATION_ENABLED=false here so only one process auto-posts.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/reachby3cs/engage/internal/adapter/ai/openai"
	"github.com/reachby3cs/engage/internal/adapter/ai/stub"
	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/adapter/crawler/google"
	"github.com/reachby3cs/engage/internal/adapter/crawler/quora"
	"github.com/reachby3cs/engage/internal/adapter/crawler/reddit"
	"github.com/reachby3cs/engage/internal/adapter/crawler/twitter"
	"github.com/reachby3cs/engage/internal/adapter/httpserver"
	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
	"github.com/reachby3cs/engage/internal/app"
	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/crawlsched"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
	"github.com/reachby3cs/engage/internal/posting"
	"github.com/reachby3cs/engage/internal/processor"
	"github.com/reachby3cs/engage/internal/ratelimit"
)

// poolAdapter adapts *pgxpool.Pool to postgres.Beginner for the cleanup
// service.
type poolAdapter struct{ *pgxpool.Pool }

func (p poolAdapter) Begin(ctx context.Context) (postgres.Tx, error) {
	return p.Pool.Begin(ctx)
}

// redisAdapter narrows *redis.Client to the readiness ping interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return r.Client.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, pipeline, crawl, and posting instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Infra: DB pool. The API can run without Postgres (pipeline, crawl
	// and queue endpoints stay functional), it just persists nothing.
	var pool *pgxpool.Pool
	if dsn := cfg.DatabaseURL(); dsn != "" {
		pool, err = postgres.NewPool(ctx, dsn)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	} else {
		slog.Warn("no database configured, crawl results will not be persisted")
	}

	// Repositories
	var (
		postRepo       domain.PostRepository
		signalRepo     domain.SignalRepository
		riskRepo       domain.RiskRepository
		respRepo       domain.ResponseRepository
		engagementRepo domain.EngagementRepository
		orgRepo        domain.OrgLimitsRepository
	)
	if pool != nil {
		postRepo = postgres.NewPostRepo(pool)
		signalRepo = postgres.NewSignalRepo(pool)
		riskRepo = postgres.NewRiskRepo(pool)
		respRepo = postgres.NewResponseRepo(pool)
		engagementRepo = postgres.NewEngagementRepo(pool)
		orgRepo = postgres.NewOrgLimitsRepo(pool)
	}

	// Retention cleanup for crawled posts and their derived rows.
	if pool != nil && cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(poolAdapter{pool}, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Redis backs the crawl dedup cache; connections are lazy and every
	// dedup path degrades to the store lookup when it is down.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	// AI client. Without an API key the deterministic stub keeps the
	// whole pipeline usable in dev and tests.
	var aiClient domain.AIClient
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, using the deterministic stub AI client")
		aiClient = stub.New()
	} else {
		aiClient = openai.New(cfg)
	}

	// Crawlers share one rate-limit manager so per-platform budgets hold
	// across scheduled and ad-hoc crawls.
	rlm := ratelimit.NewManager()
	crawlers := []crawler.Crawler{
		reddit.New(cfg, rlm),
		twitter.New(cfg, rlm),
		quora.New(cfg, rlm),
		google.New(cfg, rlm),
	}

	sched := crawlsched.New()
	sched.SetJobTimeout(cfg.SchedulerJobTimeout)
	for _, c := range crawlers {
		sched.RegisterCrawler(c.Platform(), c)
	}

	// Crawl results flow through the processor: dedup, pipeline, five
	// persisted rows per post. Without a store there is nowhere to write,
	// so scheduled crawls only update job counters.
	if pool != nil {
		proc := processor.New(processor.Repos{
			Posts:       postRepo,
			Signals:     signalRepo,
			Risks:       riskRepo,
			Responses:   respRepo,
			Engagements: engagementRepo,
		}, pipeline.New(aiClient), processor.NewDeduper(rdb))
		sched.SetResultCallback(func(ctx context.Context, configName string, result domain.CrawlResult) {
			proc.ProcessCrawlResults(ctx, configName, result, cfg.DefaultOrgID)
		})
	}

	// Posting queue and platform posters. Posters are only registered
	// when their credentials are configured; the queue rejects platforms
	// without one at post time.
	queue := posting.NewQueue(posting.Options{
		MaxRetries:     cfg.PostingMaxRetries,
		BaseRetryDelay: cfg.PostingBaseDelay,
		MaxRetryDelay:  cfg.PostingMaxDelay,
		MaxQueueSize:   cfg.PostingQueueSize,
	})
	posters := make(map[string]posting.Poster)
	if cfg.RedditClientID != "" && cfg.RedditUsername != "" && cfg.RedditPassword != "" {
		posters["reddit"] = posting.NewRedditPoster(cfg)
	}
	if cfg.TwitterBearerToken != "" {
		posters["twitter"] = posting.NewTwitterPoster(cfg)
	}

	limits := automation.NewRateLimitManager()
	queue.SetPostCallback(app.BuildPostCallback(posters, cfg.ApplyHumanDelay))
	app.WireQueueCallbacks(queue, respRepo, limits)
	if err := queue.Start(cfg.PostingWorkers); err != nil {
		slog.Error("posting queue start failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Auto-post automation. Candidates come from the engagement queue
	// table, so the loop only runs with a database behind it.
	var (
		runner   *automation.Runner
		autoPost *automation.Worker
	)
	switch {
	case cfg.AutomationEnabled && pool != nil:
		runner = automation.NewRunner()
		autoPost = automation.NewWorker(queue, limits, automation.WorkerOptions{
			CheckInterval: cfg.AutoPostInterval,
			BatchSize:     cfg.AutoPostBatchSize,
		})
		autoPost.SetFetchCandidates(app.BuildCandidateFetcher(engagementRepo, respRepo, postRepo, riskRepo))
		autoPost.SetFetchOrgLimits(app.BuildOrgLimitsFetcher(orgRepo, limits))
		autoPost.SetUpdateResponse(func(ctx domain.Context, responseID string, status domain.ResponseStatus, errMsg string) error {
			return respRepo.UpdateStatus(ctx, responseID, status)
		})
		if err := autoPost.Register(runner); err != nil {
			slog.Error("auto-post worker registration failed", slog.Any("error", err))
			os.Exit(1)
		}
		runner.Start()
	case cfg.AutomationEnabled:
		slog.Warn("automation requires a database for candidate rows, auto-posting disabled")
	default:
		slog.Info("automation disabled, auto-posting handled elsewhere")
	}

	seedOrgLimits(ctx, orgRepo, limits, cfg.DefaultOrgID)
	if cfg.CrawlConfigFile != "" {
		jobs := crawlsched.Bootstrap(sched, cfg.CrawlConfigFile)
		slog.Info("crawl schedules bootstrapped",
			slog.String("file", cfg.CrawlConfigFile),
			slog.Int("scheduled", len(jobs)))
	}
	if cfg.SchedulerEnabled {
		sched.Start()
	} else {
		slog.Info("crawl scheduler disabled")
	}

	// HTTP server
	srv := httpserver.NewServer(cfg, aiClient, sched, queue, runner, autoPost, limits)
	for _, c := range crawlers {
		srv.RegisterCrawler(c)
	}
	for _, p := range posters {
		srv.RegisterPoster(p)
	}
	srv.OrgLimits = orgRepo

	var dbPinger app.Pinger
	if pool != nil {
		dbPinger = pool
	}
	srv.DBCheck, srv.RedisCheck = app.BuildReadinessChecks(dbPinger, redisAdapter{rdb})

	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	sched.Stop()
	if runner != nil {
		runner.Stop()
	}
	stopQueue(queue, cfg.WorkerStopTimeout)
}

// stopQueue waits for in-flight posts, bounded so a hung poster cannot
// wedge shutdown.
func stopQueue(queue *posting.Queue, timeout time.Duration) {
	stopped := make(chan struct{})
	go func() {
		queue.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		slog.Warn("posting workers still busy at shutdown deadline")
	}
}
