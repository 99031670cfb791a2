// Command worker runs the posting side of the platform on its own:
// queue workers, the periodic auto-post check, and the stuck-response
// sweeper. It exists so posting survives API restarts; run the API
// server with AUTOMATION_ENABLED=false when this process is deployed.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
	"github.com/reachby3cs/engage/internal/app"
	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/config"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register Prometheus metrics in the worker process and expose them
	// on a dedicated /metrics endpoint so queue depth and posting
	// attempts are scrapable here too.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	// The worker is nothing without the store: candidates come from the
	// engagement queue table.
	dsn := cfg.DatabaseURL()
	if dsn == "" {
		slog.Error("DB_URL or SUPABASE_URL must be set for the worker")
		os.Exit(1)
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	postRepo := postgres.NewPostRepo(pool)
	riskRepo := postgres.NewRiskRepo(pool)
	respRepo := postgres.NewResponseRepo(pool)
	engagementRepo := postgres.NewEngagementRepo(pool)
	orgRepo := postgres.NewOrgLimitsRepo(pool)

	// Posting queue and posters. A platform without credentials fails
	// its items with MISSING_CREDENTIALS instead of silently dropping.
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

	runner := automation.NewRunner()
	autoPost := automation.NewWorker(queue, limits, automation.WorkerOptions{
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

	// Responses stuck in "posting" (a crashed worker, a wedged poster)
	// eventually flip to failed so the queue view stays honest.
	ctx := context.Background()
	if sweeper := app.NewStuckResponseSweeper(respRepo, 0, 0); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("worker started, waiting for shutdown signal",
		slog.Int("posting_workers", cfg.PostingWorkers),
		slog.Duration("auto_post_interval", cfg.AutoPostInterval))
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))

	runner.Stop()
	stopQueue(queue, cfg.WorkerStopTimeout)
	slog.Info("worker stopped")
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
