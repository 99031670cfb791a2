package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reachby3cs/engage/internal/domain"
)

// ResponseRepo persists generated responses through review and posting.
type ResponseRepo struct{ Pool PgxPool }

// NewResponseRepo constructs a ResponseRepo with the given pool.
func NewResponseRepo(p PgxPool) *ResponseRepo { return &ResponseRepo{Pool: p} }

const responseColumns = `id, post_id, organization_id, response_type, content, value_first_variant, soft_cta_variant, contextual_variant, status, created_at, updated_at`

// Create inserts a response row with all three variants.
func (r *ResponseRepo) Create(ctx domain.Context, row domain.ResponseRow) error {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "responses"),
	)
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	q := `INSERT INTO responses (` + responseColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	now := time.Now().UTC()
	_, err := r.Pool.Exec(ctx, q, row.ID, row.PostID, row.OrganizationID, row.ResponseType, row.Content, row.ValueFirstVariant, row.SoftCTAVariant, row.ContextualVariant, row.Status, now, now)
	if err != nil {
		return fmt.Errorf("op=response.create: %w", err)
	}
	return nil
}

// Get loads a response by id.
func (r *ResponseRepo) Get(ctx domain.Context, id string) (domain.ResponseRow, error) {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.Get")
	defer span.End()
	q := `SELECT ` + responseColumns + ` FROM responses WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	resp, err := scanResponse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResponseRow{}, fmt.Errorf("op=response.get: %w", domain.ErrNotFound)
		}
		return domain.ResponseRow{}, fmt.Errorf("op=response.get: %w", err)
	}
	return resp, nil
}

// UpdateStatus moves a response through its review/posting lifecycle.
func (r *ResponseRepo) UpdateStatus(ctx domain.Context, id string, status domain.ResponseStatus) error {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.UpdateStatus")
	defer span.End()
	q := `UPDATE responses SET status=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=response.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=response.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// ListByStatus returns up to limit responses in the given status, oldest
// first so the auto-post worker drains fairly.
func (r *ResponseRepo) ListByStatus(ctx domain.Context, status domain.ResponseStatus, limit int) ([]domain.ResponseRow, error) {
	tracer := otel.Tracer("repo.responses")
	ctx, span := tracer.Start(ctx, "responses.ListByStatus")
	defer span.End()
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + responseColumns + ` FROM responses WHERE status=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, status, limit)
	if err != nil {
		return nil, fmt.Errorf("op=response.list_by_status: %w", err)
	}
	defer rows.Close()

	var out []domain.ResponseRow
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("op=response.list_by_status: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=response.list_by_status: %w", err)
	}
	return out, nil
}

func scanResponse(row pgx.Row) (domain.ResponseRow, error) {
	var resp domain.ResponseRow
	err := row.Scan(&resp.ID, &resp.PostID, &resp.OrganizationID, &resp.ResponseType, &resp.Content, &resp.ValueFirstVariant, &resp.SoftCTAVariant, &resp.ContextualVariant, &resp.Status, &resp.CreatedAt, &resp.UpdatedAt)
	return resp, err
}
