package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
	"github.com/reachby3cs/engage/internal/domain"
)

func TestPostRepo_Create_Success(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewPostRepo(pool)

	err := repo.Create(context.Background(), domain.Post{
		ID:             "p1",
		OrganizationID: "org-1",
		Platform:       "reddit",
		ExternalURL:    "https://reddit.com/r/x/comments/abc/t/",
		Content:        "text",
	})
	require.NoError(t, err)
	assert.Contains(t, pool.lastSQL, "INSERT INTO posts")
	assert.Equal(t, "p1", pool.lastArgs[0])
}

func TestPostRepo_Create_GeneratesID(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewPostRepo(pool)

	require.NoError(t, repo.Create(context.Background(), domain.Post{Platform: "reddit"}))
	assert.NotEmpty(t, pool.lastArgs[0])
}

func TestPostRepo_Create_DBError(t *testing.T) {
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewPostRepo(pool)

	err := repo.Create(context.Background(), domain.Post{ID: "p1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=post.create")
}

func TestPostRepo_GetByExternalURL_Success(t *testing.T) {
	fixed := time.Now().UTC()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "p1"
		*(dest[1].(*string)) = "org-1"
		*(dest[2].(*string)) = "reddit"
		*(dest[3].(*string)) = "abc"
		*(dest[4].(*string)) = "https://reddit.com/r/x/comments/abc/t/"
		*(dest[5].(*string)) = "text"
		*(dest[8].(*time.Time)) = fixed
		return nil
	}}}
	repo := postgres.NewPostRepo(pool)

	got, err := repo.GetByExternalURL(context.Background(), "https://reddit.com/r/x/comments/abc/t/")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "reddit", got.Platform)
	assert.Equal(t, fixed, got.CrawledAt)
}

func TestPostRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewPostRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostRepo_GetByExternalURL_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewPostRepo(pool)

	_, err := repo.GetByExternalURL(context.Background(), "https://nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
