package main

import (
	"errors"
	"log/slog"

	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/domain"
)

// seedOrgLimits hydrates the in-memory rate-limit manager with the
// default organization's stored policy, creating the row on first boot
// so the automation endpoints and the worker read the same limits.
func seedOrgLimits(ctx domain.Context, repo domain.OrgLimitsRepository, limits *automation.RateLimitManager, organizationID string) {
	if repo == nil || organizationID == "" {
		return
	}

	stored, err := repo.Get(ctx, organizationID)
	switch {
	case err == nil:
		limits.SetOrgLimits(organizationID, stored)
		slog.Info("org limits loaded",
			slog.String("organization_id", organizationID),
			slog.Bool("auto_post_enabled", stored.AutoPostEnabled))
		return
	case errors.Is(err, domain.ErrNotFound):
		defaults := automation.DefaultOrgLimits(organizationID)
		if err := repo.Upsert(ctx, defaults); err != nil {
			slog.Warn("default org limits not persisted", slog.Any("error", err))
		}
		limits.SetOrgLimits(organizationID, defaults)
		slog.Info("default org limits created", slog.String("organization_id", organizationID))
	default:
		slog.Warn("org limits load failed, using defaults",
			slog.String("organization_id", organizationID),
			slog.Any("error", err))
	}
}
