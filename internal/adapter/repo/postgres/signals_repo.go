package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/reachby3cs/engage/internal/domain"
)

// SignalRepo persists stage-1 signal rows.
type SignalRepo struct{ Pool PgxPool }

// NewSignalRepo constructs a SignalRepo with the given pool.
func NewSignalRepo(p PgxPool) *SignalRepo { return &SignalRepo{Pool: p} }

// Create inserts a signal row linked to a post.
func (r *SignalRepo) Create(ctx domain.Context, s domain.SignalRow) error {
	tracer := otel.Tracer("repo.signals")
	ctx, span := tracer.Start(ctx, "signals.Create")
	defer span.End()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	q := `INSERT INTO signals (id, post_id, problem_category, emotional_intensity, keywords, confidence, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, s.ID, s.PostID, s.ProblemCategory, s.EmotionalIntensity, s.Keywords, s.Confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=signal.create: %w", err)
	}
	return nil
}

// GetByPostID loads the signal row for a post.
func (r *SignalRepo) GetByPostID(ctx domain.Context, postID string) (domain.SignalRow, error) {
	tracer := otel.Tracer("repo.signals")
	ctx, span := tracer.Start(ctx, "signals.GetByPostID")
	defer span.End()
	q := `SELECT id, post_id, problem_category, emotional_intensity, keywords, confidence, created_at FROM signals WHERE post_id=$1 LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, postID)
	var s domain.SignalRow
	if err := row.Scan(&s.ID, &s.PostID, &s.ProblemCategory, &s.EmotionalIntensity, &s.Keywords, &s.Confidence, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SignalRow{}, fmt.Errorf("op=signal.get_by_post: %w", domain.ErrNotFound)
		}
		return domain.SignalRow{}, fmt.Errorf("op=signal.get_by_post: %w", err)
	}
	return s, nil
}
