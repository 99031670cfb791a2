package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
	"github.com/reachby3cs/engage/internal/domain"
)

func TestEngagementRepo_Create_Success(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewEngagementRepo(pool)

	err := repo.Create(context.Background(), domain.EngagementRow{
		ID:             "e1",
		OrganizationID: "org-1",
		PostID:         "p1",
		ResponseID:     "r1",
		Status:         "pending",
		Priority:       2,
		CTSScore:       0.72,
	})
	require.NoError(t, err)
	assert.Contains(t, pool.lastSQL, "INSERT INTO engagement_queue")
}

func TestEngagementRepo_Get_Success(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "e1"
		*(dest[4].(*string)) = "pending"
		*(dest[5].(*int)) = 2
		*(dest[6].(*float64)) = 0.72
		return nil
	}}}
	repo := postgres.NewEngagementRepo(pool)

	got, err := repo.Get(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, 0.72, got.CTSScore)
}

func TestEngagementRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewEngagementRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngagementRepo_UpdateStatus(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewEngagementRepo(pool)

	require.NoError(t, repo.UpdateStatus(context.Background(), "e1", "approved"))

	pool.execTag = pgconn.NewCommandTag("UPDATE 0")
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "missing", "approved"), domain.ErrNotFound)
}
