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

// EngagementRepo persists the review-queue rows.
type EngagementRepo struct{ Pool PgxPool }

// NewEngagementRepo constructs an EngagementRepo with the given pool.
func NewEngagementRepo(p PgxPool) *EngagementRepo { return &EngagementRepo{Pool: p} }

const engagementColumns = `id, organization_id, post_id, response_id, status, priority, cts_score, requires_review, decision_factors, created_at, updated_at`

// Create inserts a review-queue row.
func (r *EngagementRepo) Create(ctx domain.Context, e domain.EngagementRow) error {
	tracer := otel.Tracer("repo.engagements")
	ctx, span := tracer.Start(ctx, "engagements.Create")
	defer span.End()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	q := `INSERT INTO engagement_queue (` + engagementColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	now := time.Now().UTC()
	_, err := r.Pool.Exec(ctx, q, e.ID, e.OrganizationID, e.PostID, e.ResponseID, e.Status, e.Priority, e.CTSScore, e.RequiresReview, e.DecisionFactors, now, now)
	if err != nil {
		return fmt.Errorf("op=engagement.create: %w", err)
	}
	return nil
}

// Get loads a review-queue row by id.
func (r *EngagementRepo) Get(ctx domain.Context, id string) (domain.EngagementRow, error) {
	tracer := otel.Tracer("repo.engagements")
	ctx, span := tracer.Start(ctx, "engagements.Get")
	defer span.End()
	q := `SELECT ` + engagementColumns + ` FROM engagement_queue WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var e domain.EngagementRow
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.PostID, &e.ResponseID, &e.Status, &e.Priority, &e.CTSScore, &e.RequiresReview, &e.DecisionFactors, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EngagementRow{}, fmt.Errorf("op=engagement.get: %w", domain.ErrNotFound)
		}
		return domain.EngagementRow{}, fmt.Errorf("op=engagement.get: %w", err)
	}
	return e, nil
}

// UpdateStatus updates a review-queue row's status.
func (r *EngagementRepo) UpdateStatus(ctx domain.Context, id string, status string) error {
	tracer := otel.Tracer("repo.engagements")
	ctx, span := tracer.Start(ctx, "engagements.UpdateStatus")
	defer span.End()
	q := `UPDATE engagement_queue SET status=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=engagement.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=engagement.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// ListPending returns pending review-queue rows, highest priority first,
// oldest first within equal priority. The auto-post worker consumes this.
func (r *EngagementRepo) ListPending(ctx domain.Context, limit int) ([]domain.EngagementRow, error) {
	tracer := otel.Tracer("repo.engagements")
	ctx, span := tracer.Start(ctx, "engagements.ListPending")
	defer span.End()
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + engagementColumns + ` FROM engagement_queue WHERE status='pending' ORDER BY priority DESC, created_at ASC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=engagement.list_pending: %w", err)
	}
	defer rows.Close()
	var out []domain.EngagementRow
	for rows.Next() {
		var e domain.EngagementRow
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.PostID, &e.ResponseID, &e.Status, &e.Priority, &e.CTSScore, &e.RequiresReview, &e.DecisionFactors, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=engagement.list_pending: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=engagement.list_pending: rows: %w", err)
	}
	return out, nil
}
