package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the subset of pgx.Tx the cleanup service needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions; satisfied by *pgxpool.Pool via a thin
// adapter in the host.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// CleanupService enforces data retention on crawled posts and their
// derived rows.
type CleanupService struct {
	DB            Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays}
}

// CleanupOldData removes posts crawled before the retention cutoff along
// with their signal, risk, response, and queue rows.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	counts := map[string]int64{}
	// Derived rows first so the posts delete never orphans anything.
	steps := []struct {
		table string
		query string
	}{
		{"engagement_queue", `DELETE FROM engagement_queue WHERE post_id IN (SELECT id FROM posts WHERE crawled_at < $1)`},
		{"responses", `DELETE FROM responses WHERE post_id IN (SELECT id FROM posts WHERE crawled_at < $1)`},
		{"risk_scores", `DELETE FROM risk_scores WHERE post_id IN (SELECT id FROM posts WHERE crawled_at < $1)`},
		{"signals", `DELETE FROM signals WHERE post_id IN (SELECT id FROM posts WHERE crawled_at < $1)`},
		{"posts", `DELETE FROM posts WHERE crawled_at < $1`},
	}
	for _, step := range steps {
		tag, err := tx.Exec(ctx, step.query, cutoff)
		if err != nil {
			return fmt.Errorf("op=cleanup.delete table=%s: %w", step.table, err)
		}
		counts[step.table] = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_posts", counts["posts"]),
		slog.Int64("deleted_responses", counts["responses"]),
		slog.Int64("deleted_queue_rows", counts["engagement_queue"]),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs cleanup immediately and then on the given interval
// until the context is cancelled.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
