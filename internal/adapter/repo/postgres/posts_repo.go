// Package postgres provides PostgreSQL database adapters.
//
// It implements the domain repository interfaces for data persistence.
// The package provides type-safe database operations with
// connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reachby3cs/engage/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostRepo persists and loads crawled posts using a minimal pgx pool.
type PostRepo struct{ Pool PgxPool }

// NewPostRepo constructs a PostRepo with the given pool.
func NewPostRepo(p PgxPool) *PostRepo { return &PostRepo{Pool: p} }

// Create stores a new post (generates an id if empty).
func (r *PostRepo) Create(ctx domain.Context, p domain.Post) error {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "posts"),
	)
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	q := `INSERT INTO posts (id, organization_id, platform, external_id, external_url, content, author_handle, author_display_name, crawled_at, created_at, updated_at, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	now := time.Now().UTC()
	_, err := r.Pool.Exec(ctx, q, p.ID, p.OrganizationID, p.Platform, p.ExternalID, p.ExternalURL, p.Content, p.AuthorHandle, p.AuthorDisplayName, p.CrawledAt, now, now, p.Metadata)
	if err != nil {
		return fmt.Errorf("op=post.create: %w", err)
	}
	return nil
}

const postColumns = `id, organization_id, platform, external_id, external_url, content, COALESCE(author_handle,''), COALESCE(author_display_name,''), crawled_at, created_at, updated_at, metadata`

// GetByExternalURL loads the post crawled from the given URL; used for
// dedup before the pipeline runs.
func (r *PostRepo) GetByExternalURL(ctx domain.Context, url string) (domain.Post, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.GetByExternalURL")
	defer span.End()
	q := `SELECT ` + postColumns + ` FROM posts WHERE external_url=$1 LIMIT 1`
	return r.scanPost(r.Pool.QueryRow(ctx, q, url), "post.get_by_external_url")
}

// Get loads a post by id.
func (r *PostRepo) Get(ctx domain.Context, id string) (domain.Post, error) {
	tracer := otel.Tracer("repo.posts")
	ctx, span := tracer.Start(ctx, "posts.Get")
	defer span.End()
	q := `SELECT ` + postColumns + ` FROM posts WHERE id=$1`
	return r.scanPost(r.Pool.QueryRow(ctx, q, id), "post.get")
}

func (r *PostRepo) scanPost(row pgx.Row, op string) (domain.Post, error) {
	var p domain.Post
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Platform, &p.ExternalID, &p.ExternalURL, &p.Content, &p.AuthorHandle, &p.AuthorDisplayName, &p.CrawledAt, &p.CreatedAt, &p.UpdatedAt, &p.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Post{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.Post{}, fmt.Errorf("op=%s: %w", op, err)
	}
	return p, nil
}
