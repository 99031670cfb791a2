// Package automation enforces org posting policy and drives the
// auto-post worker that feeds the posting queue.
package automation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/reachby3cs/engage/internal/domain"
)

const historyWindow = 24 * time.Hour

// DefaultOrgLimits returns the policy applied to organizations with no
// stored limits row.
func DefaultOrgLimits(organizationID string) domain.OrgLimits {
	return domain.OrgLimits{
		OrganizationID:     organizationID,
		MaxDailyAutoPosts:  50,
		MaxHourlyAutoPosts: 10,
		MinCTSScore:        0.7,
		MaxCTALevel:        1,
		AllowedRiskLevels:  []domain.RiskLevel{domain.RiskLow},
		PlatformLimits: map[string]domain.PlatformLimits{
			"reddit": {
				PostsPerHour:        10,
				PostsPerDay:         50,
				MinGapSeconds:       60,
				SubredditGapSeconds: 300,
				Enabled:             true,
			},
			"twitter": {
				PostsPerHour:  15,
				PostsPerDay:   100,
				MinGapSeconds: 30,
				Enabled:       true,
			},
		},
		AutoPostEnabled: true,
	}
}

type postRecord struct {
	at       time.Time
	platform string
	target   string
}

// PlatformUsage counts posts on one platform within the rolling windows.
type PlatformUsage struct {
	Hourly int `json:"hourly"`
	Daily  int `json:"daily"`
}

// LimitsStats is the usage snapshot for one organization.
type LimitsStats struct {
	OrganizationID  string `json:"organization_id"`
	AutoPostEnabled bool   `json:"auto_post_enabled"`
	Limits          struct {
		MaxHourly   int     `json:"max_hourly"`
		MaxDaily    int     `json:"max_daily"`
		MinCTSScore float64 `json:"min_cts_score"`
		MaxCTALevel int     `json:"max_cta_level"`
	} `json:"limits"`
	Usage struct {
		Hourly          int `json:"hourly"`
		Daily           int `json:"daily"`
		HourlyRemaining int `json:"hourly_remaining"`
		DailyRemaining  int `json:"daily_remaining"`
	} `json:"usage"`
	ByPlatform map[string]PlatformUsage `json:"by_platform"`
}

// RateLimitManager tracks acknowledged posts per organization and
// answers whether another post is allowed right now.
type RateLimitManager struct {
	mu      sync.Mutex
	history map[string][]postRecord
	limits  map[string]domain.OrgLimits

	now func() time.Time
}

func NewRateLimitManager() *RateLimitManager {
	return &RateLimitManager{
		history: make(map[string][]postRecord),
		limits:  make(map[string]domain.OrgLimits),
		now:     time.Now,
	}
}

// SetOrgLimits overrides the stored policy for an organization.
func (m *RateLimitManager) SetOrgLimits(organizationID string, limits domain.OrgLimits) {
	limits.OrganizationID = organizationID
	m.mu.Lock()
	m.limits[organizationID] = limits
	m.mu.Unlock()
	slog.Info("org limits updated", slog.String("organization_id", organizationID))
}

// OrgLimitsFor returns the stored policy, or the defaults when none is set.
func (m *RateLimitManager) OrgLimitsFor(organizationID string) domain.OrgLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limits, ok := m.limits[organizationID]; ok {
		return limits
	}
	return DefaultOrgLimits(organizationID)
}

// RecordPost appends an acknowledged post to the request log. Entries
// older than 24h are dropped on every mutation.
func (m *RateLimitManager) RecordPost(organizationID, platform, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entries := append(m.history[organizationID], postRecord{at: now, platform: platform, target: target})

	cutoff := now.Add(-historyWindow)
	kept := entries[:0]
	for _, e := range entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.history[organizationID] = kept
}

// CheckLimits reports whether the organization may post to platform/target
// right now. The first failing check wins and names the observed vs.
// limit values.
func (m *RateLimitManager) CheckLimits(organizationID, platform, target string) (bool, string) {
	limits := m.OrgLimitsFor(organizationID)

	if !limits.AutoPostEnabled {
		return false, "Auto-posting is disabled for this organization"
	}

	platformLimits, hasPlatform := limits.PlatformLimits[platform]
	if hasPlatform && !platformLimits.Enabled {
		return false, fmt.Sprintf("Auto-posting is disabled for %s", platform)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.history[organizationID]
	now := m.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-historyWindow)

	var hourly, daily, platformHourly, platformDaily int
	var lastPlatformPost, lastTargetPost time.Time
	targetLower := strings.ToLower(target)
	for _, e := range history {
		inHour := e.at.After(hourAgo)
		inDay := e.at.After(dayAgo)
		if inHour {
			hourly++
		}
		if inDay {
			daily++
		}
		if e.platform != platform {
			continue
		}
		if inHour {
			platformHourly++
		}
		if inDay {
			platformDaily++
		}
		if e.at.After(lastPlatformPost) {
			lastPlatformPost = e.at
		}
		if targetLower != "" && strings.ToLower(e.target) == targetLower && e.at.After(lastTargetPost) {
			lastTargetPost = e.at
		}
	}

	if hourly >= limits.MaxHourlyAutoPosts {
		return false, fmt.Sprintf("Hourly auto-post limit reached (%d/%d)", hourly, limits.MaxHourlyAutoPosts)
	}
	if daily >= limits.MaxDailyAutoPosts {
		return false, fmt.Sprintf("Daily auto-post limit reached (%d/%d)", daily, limits.MaxDailyAutoPosts)
	}

	if hasPlatform {
		if platformHourly >= platformLimits.PostsPerHour {
			return false, fmt.Sprintf("%s hourly limit reached (%d/%d)", platform, platformHourly, platformLimits.PostsPerHour)
		}
		if platformDaily >= platformLimits.PostsPerDay {
			return false, fmt.Sprintf("%s daily limit reached (%d/%d)", platform, platformDaily, platformLimits.PostsPerDay)
		}
		if !lastPlatformPost.IsZero() {
			gap := now.Sub(lastPlatformPost)
			if gap < time.Duration(platformLimits.MinGapSeconds)*time.Second {
				return false, fmt.Sprintf("Minimum gap not met (%.0fs < %ds)", gap.Seconds(), platformLimits.MinGapSeconds)
			}
		}
		if target != "" && platform == "reddit" && platformLimits.SubredditGapSeconds > 0 && !lastTargetPost.IsZero() {
			gap := now.Sub(lastTargetPost)
			if gap < time.Duration(platformLimits.SubredditGapSeconds)*time.Second {
				return false, fmt.Sprintf("Subreddit gap not met for %s (%.0fs < %ds)", target, gap.Seconds(), platformLimits.SubredditGapSeconds)
			}
		}
	}

	if target != "" {
		for _, s := range limits.BlacklistedSubreddits {
			if strings.EqualFold(s, target) {
				return false, fmt.Sprintf("Subreddit %s is blacklisted", target)
			}
		}
	}

	return true, "OK"
}

// TimeUntilAllowed returns the smallest future wait among the gap and
// window resets, or zero when posting is already allowed.
func (m *RateLimitManager) TimeUntilAllowed(organizationID, platform, target string) time.Duration {
	allowed, _ := m.CheckLimits(organizationID, platform, target)
	if allowed {
		return 0
	}

	limits := m.OrgLimitsFor(organizationID)
	platformLimits, hasPlatform := limits.PlatformLimits[platform]

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.history[organizationID]
	now := m.now()

	var waits []time.Duration

	var lastPlatformPost, lastTargetPost time.Time
	targetLower := strings.ToLower(target)
	for _, e := range history {
		if e.platform != platform {
			continue
		}
		if e.at.After(lastPlatformPost) {
			lastPlatformPost = e.at
		}
		if targetLower != "" && strings.ToLower(e.target) == targetLower && e.at.After(lastTargetPost) {
			lastTargetPost = e.at
		}
	}

	if hasPlatform && !lastPlatformPost.IsZero() {
		wait := time.Duration(platformLimits.MinGapSeconds)*time.Second - now.Sub(lastPlatformPost)
		if wait > 0 {
			waits = append(waits, wait)
		}
	}
	if hasPlatform && target != "" && platform == "reddit" && !lastTargetPost.IsZero() {
		wait := time.Duration(platformLimits.SubredditGapSeconds)*time.Second - now.Sub(lastTargetPost)
		if wait > 0 {
			waits = append(waits, wait)
		}
	}

	hourAgo := now.Add(-time.Hour)
	var hourlyPosts []time.Time
	for _, e := range history {
		if e.at.After(hourAgo) {
			hourlyPosts = append(hourlyPosts, e.at)
		}
	}
	if len(hourlyPosts) >= limits.MaxHourlyAutoPosts {
		oldest := hourlyPosts[0]
		for _, ts := range hourlyPosts[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		if wait := oldest.Add(time.Hour).Sub(now); wait > 0 {
			waits = append(waits, wait)
		}
	}

	if len(waits) == 0 {
		return 0
	}
	shortest := waits[0]
	for _, w := range waits[1:] {
		if w < shortest {
			shortest = w
		}
	}
	return shortest
}

// GetStats returns the current usage snapshot for an organization.
func (m *RateLimitManager) GetStats(organizationID string) LimitsStats {
	limits := m.OrgLimitsFor(organizationID)

	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.history[organizationID]
	now := m.now()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-historyWindow)

	stats := LimitsStats{
		OrganizationID:  organizationID,
		AutoPostEnabled: limits.AutoPostEnabled,
		ByPlatform:      make(map[string]PlatformUsage),
	}
	stats.Limits.MaxHourly = limits.MaxHourlyAutoPosts
	stats.Limits.MaxDaily = limits.MaxDailyAutoPosts
	stats.Limits.MinCTSScore = limits.MinCTSScore
	stats.Limits.MaxCTALevel = limits.MaxCTALevel

	for _, e := range history {
		usage := stats.ByPlatform[e.platform]
		if e.at.After(hourAgo) {
			stats.Usage.Hourly++
			usage.Hourly++
		}
		if e.at.After(dayAgo) {
			stats.Usage.Daily++
			usage.Daily++
		}
		stats.ByPlatform[e.platform] = usage
	}
	stats.Usage.HourlyRemaining = max(0, limits.MaxHourlyAutoPosts-stats.Usage.Hourly)
	stats.Usage.DailyRemaining = max(0, limits.MaxDailyAutoPosts-stats.Usage.Daily)
	return stats
}
