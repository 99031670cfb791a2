package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/adapter/repo/postgres"
	"github.com/reachby3cs/engage/internal/domain"
)

func TestOrgLimitsRepo_Get_Success(t *testing.T) {
	riskJSON, _ := json.Marshal([]domain.RiskLevel{domain.RiskLow})
	platformJSON, _ := json.Marshal(map[string]domain.PlatformLimits{
		"reddit": {PostsPerHour: 10, PostsPerDay: 50, MinGapSeconds: 60, SubredditGapSeconds: 300, Enabled: true},
	})

	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "org-1"
		*(dest[1].(*int)) = 50
		*(dest[2].(*int)) = 10
		*(dest[3].(*float64)) = 0.7
		*(dest[4].(*int)) = 1
		*(dest[5].(*[]byte)) = riskJSON
		*(dest[6].(*[]byte)) = platformJSON
		*(dest[7].(*bool)) = true
		*(dest[8].(*[]string)) = []string{"wallstreetbets"}
		return nil
	}}}
	repo := postgres.NewOrgLimitsRepo(pool)

	got, err := repo.Get(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.OrganizationID)
	assert.Equal(t, 0.7, got.MinCTSScore)
	assert.Equal(t, []domain.RiskLevel{domain.RiskLow}, got.AllowedRiskLevels)
	assert.Equal(t, 300, got.PlatformLimits["reddit"].SubredditGapSeconds)
	assert.Equal(t, []string{"wallstreetbets"}, got.BlacklistedSubreddits)
}

func TestOrgLimitsRepo_Get_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := postgres.NewOrgLimitsRepo(pool)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrgLimitsRepo_Upsert_Success(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewOrgLimitsRepo(pool)

	err := repo.Upsert(context.Background(), domain.OrgLimits{
		OrganizationID:     "org-1",
		MaxDailyAutoPosts:  50,
		MaxHourlyAutoPosts: 10,
		MinCTSScore:        0.7,
		MaxCTALevel:        1,
		AllowedRiskLevels:  []domain.RiskLevel{domain.RiskLow},
		AutoPostEnabled:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, pool.lastSQL, "INSERT INTO org_limits")
	assert.Contains(t, pool.lastSQL, "ON CONFLICT (organization_id) DO UPDATE")
	assert.Equal(t, "org-1", pool.lastArgs[0])
}

func TestOrgLimitsRepo_Upsert_DBError(t *testing.T) {
	pool := &poolStub{execErr: assert.AnError}
	repo := postgres.NewOrgLimitsRepo(pool)

	err := repo.Upsert(context.Background(), domain.OrgLimits{OrganizationID: "org-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=org_limits.upsert")
}
