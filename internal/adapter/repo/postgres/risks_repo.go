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

// RiskRepo persists stage-2 risk rows.
type RiskRepo struct{ Pool PgxPool }

// NewRiskRepo constructs a RiskRepo with the given pool.
func NewRiskRepo(p PgxPool) *RiskRepo { return &RiskRepo{Pool: p} }

// Create inserts a risk row linked to a post.
func (r *RiskRepo) Create(ctx domain.Context, row domain.RiskRow) error {
	tracer := otel.Tracer("repo.risks")
	ctx, span := tracer.Start(ctx, "risks.Create")
	defer span.End()
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	q := `INSERT INTO risk_scores (id, post_id, risk_level, risk_score, risk_factors, context_flags, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, row.ID, row.PostID, row.RiskLevel, row.RiskScore, row.RiskFactors, row.ContextFlags, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=risk.create: %w", err)
	}
	return nil
}

// GetByPostID loads the risk row for a post.
func (r *RiskRepo) GetByPostID(ctx domain.Context, postID string) (domain.RiskRow, error) {
	tracer := otel.Tracer("repo.risks")
	ctx, span := tracer.Start(ctx, "risks.GetByPostID")
	defer span.End()
	q := `SELECT id, post_id, risk_level, risk_score, risk_factors, context_flags, created_at FROM risk_scores WHERE post_id=$1 LIMIT 1`
	qr := r.Pool.QueryRow(ctx, q, postID)
	var row domain.RiskRow
	if err := qr.Scan(&row.ID, &row.PostID, &row.RiskLevel, &row.RiskScore, &row.RiskFactors, &row.ContextFlags, &row.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskRow{}, fmt.Errorf("op=risk.get_by_post: %w", domain.ErrNotFound)
		}
		return domain.RiskRow{}, fmt.Errorf("op=risk.get_by_post: %w", err)
	}
	return row, nil
}
