package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/reachby3cs/engage/internal/domain"
)

// OrgLimitsRepo persists per-organization auto-posting policy. Platform
// limits and risk levels are stored as jsonb so the policy shape can
// evolve without migrations.
type OrgLimitsRepo struct{ Pool PgxPool }

// NewOrgLimitsRepo constructs an OrgLimitsRepo with the given pool.
func NewOrgLimitsRepo(p PgxPool) *OrgLimitsRepo { return &OrgLimitsRepo{Pool: p} }

// Get loads the stored policy for an organization.
func (r *OrgLimitsRepo) Get(ctx domain.Context, organizationID string) (domain.OrgLimits, error) {
	tracer := otel.Tracer("repo.org_limits")
	ctx, span := tracer.Start(ctx, "org_limits.Get")
	defer span.End()
	q := `SELECT organization_id, max_daily_auto_posts, max_hourly_auto_posts, min_cts_score, max_cta_level, allowed_risk_levels, platform_limits, auto_post_enabled, blacklisted_subreddits FROM org_limits WHERE organization_id=$1`
	row := r.Pool.QueryRow(ctx, q, organizationID)

	var limits domain.OrgLimits
	var riskLevels, platformLimits []byte
	err := row.Scan(&limits.OrganizationID, &limits.MaxDailyAutoPosts, &limits.MaxHourlyAutoPosts, &limits.MinCTSScore, &limits.MaxCTALevel, &riskLevels, &platformLimits, &limits.AutoPostEnabled, &limits.BlacklistedSubreddits)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrgLimits{}, fmt.Errorf("op=org_limits.get: %w", domain.ErrNotFound)
		}
		return domain.OrgLimits{}, fmt.Errorf("op=org_limits.get: %w", err)
	}
	if err := json.Unmarshal(riskLevels, &limits.AllowedRiskLevels); err != nil {
		return domain.OrgLimits{}, fmt.Errorf("op=org_limits.get: decode risk levels: %w", err)
	}
	if err := json.Unmarshal(platformLimits, &limits.PlatformLimits); err != nil {
		return domain.OrgLimits{}, fmt.Errorf("op=org_limits.get: decode platform limits: %w", err)
	}
	return limits, nil
}

// Upsert stores the policy, replacing any existing row for the org.
func (r *OrgLimitsRepo) Upsert(ctx domain.Context, limits domain.OrgLimits) error {
	tracer := otel.Tracer("repo.org_limits")
	ctx, span := tracer.Start(ctx, "org_limits.Upsert")
	defer span.End()

	riskLevels, err := json.Marshal(limits.AllowedRiskLevels)
	if err != nil {
		return fmt.Errorf("op=org_limits.upsert: encode risk levels: %w", err)
	}
	platformLimits, err := json.Marshal(limits.PlatformLimits)
	if err != nil {
		return fmt.Errorf("op=org_limits.upsert: encode platform limits: %w", err)
	}

	q := `INSERT INTO org_limits (organization_id, max_daily_auto_posts, max_hourly_auto_posts, min_cts_score, max_cta_level, allowed_risk_levels, platform_limits, auto_post_enabled, blacklisted_subreddits, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (organization_id) DO UPDATE SET
			max_daily_auto_posts=EXCLUDED.max_daily_auto_posts,
			max_hourly_auto_posts=EXCLUDED.max_hourly_auto_posts,
			min_cts_score=EXCLUDED.min_cts_score,
			max_cta_level=EXCLUDED.max_cta_level,
			allowed_risk_levels=EXCLUDED.allowed_risk_levels,
			platform_limits=EXCLUDED.platform_limits,
			auto_post_enabled=EXCLUDED.auto_post_enabled,
			blacklisted_subreddits=EXCLUDED.blacklisted_subreddits,
			updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q, limits.OrganizationID, limits.MaxDailyAutoPosts, limits.MaxHourlyAutoPosts, limits.MinCTSScore, limits.MaxCTALevel, riskLevels, platformLimits, limits.AutoPostEnabled, limits.BlacklistedSubreddits, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=org_limits.upsert: %w", err)
	}
	return nil
}
