package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/domain"
)

func newTestManager() (*RateLimitManager, *time.Time) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m := NewRateLimitManager()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestDefaultOrgLimits(t *testing.T) {
	t.Parallel()
	limits := DefaultOrgLimits("org-1")
	assert.Equal(t, "org-1", limits.OrganizationID)
	assert.Equal(t, 10, limits.MaxHourlyAutoPosts)
	assert.Equal(t, 50, limits.MaxDailyAutoPosts)
	assert.Equal(t, 0.7, limits.MinCTSScore)
	assert.Equal(t, 1, limits.MaxCTALevel)
	assert.Equal(t, []domain.RiskLevel{domain.RiskLow}, limits.AllowedRiskLevels)
	assert.True(t, limits.AutoPostEnabled)
	assert.Equal(t, 300, limits.PlatformLimits["reddit"].SubredditGapSeconds)
}

func TestCheckLimits_AllowedWhenIdle(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager()
	allowed, reason := m.CheckLimits("org-1", "reddit", "golang")
	assert.True(t, allowed)
	assert.Equal(t, "OK", reason)
}

func TestCheckLimits_AutoPostDisabled(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.AutoPostEnabled = false
	m.SetOrgLimits("org-1", limits)

	allowed, reason := m.CheckLimits("org-1", "reddit", "")
	assert.False(t, allowed)
	assert.Equal(t, "Auto-posting is disabled for this organization", reason)
}

func TestCheckLimits_PlatformDisabled(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager()
	limits := DefaultOrgLimits("org-1")
	pl := limits.PlatformLimits["twitter"]
	pl.Enabled = false
	limits.PlatformLimits["twitter"] = pl
	m.SetOrgLimits("org-1", limits)

	allowed, reason := m.CheckLimits("org-1", "twitter", "")
	assert.False(t, allowed)
	assert.Equal(t, "Auto-posting is disabled for twitter", reason)
}

func TestCheckLimits_HourlyCap(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.MaxHourlyAutoPosts = 5
	limits.PlatformLimits = nil
	m.SetOrgLimits("org-1", limits)

	t0 := *now
	for i := 0; i < 5; i++ {
		*now = t0.Add(time.Duration(i) * time.Minute)
		m.RecordPost("org-1", "reddit", "")
	}
	*now = t0.Add(10 * time.Minute)

	allowed, reason := m.CheckLimits("org-1", "reddit", "anything")
	assert.False(t, allowed)
	assert.Equal(t, "Hourly auto-post limit reached (5/5)", reason)

	// Oldest post ages out at t0+1h.
	assert.Equal(t, 50*time.Minute, m.TimeUntilAllowed("org-1", "reddit", "anything"))
}

func TestCheckLimits_MonotonicAcrossWindow(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.MaxHourlyAutoPosts = 3
	limits.PlatformLimits = nil
	m.SetOrgLimits("org-1", limits)

	t0 := *now
	for i := 0; i < 3; i++ {
		allowed, _ := m.CheckLimits("org-1", "reddit", "")
		require.True(t, allowed, "post %d should be allowed", i)
		m.RecordPost("org-1", "reddit", "")
		*now = (*now).Add(time.Second)
	}

	allowed, _ := m.CheckLimits("org-1", "reddit", "")
	assert.False(t, allowed)

	// Still blocked just before the first timestamp ages out.
	*now = t0.Add(time.Hour - time.Second)
	allowed, _ = m.CheckLimits("org-1", "reddit", "")
	assert.False(t, allowed)

	*now = t0.Add(time.Hour + time.Second)
	allowed, _ = m.CheckLimits("org-1", "reddit", "")
	assert.True(t, allowed)
}

func TestCheckLimits_DailyCap(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.MaxHourlyAutoPosts = 100
	limits.MaxDailyAutoPosts = 4
	limits.PlatformLimits = nil
	m.SetOrgLimits("org-1", limits)

	t0 := *now
	for i := 0; i < 4; i++ {
		*now = t0.Add(time.Duration(i) * 2 * time.Hour)
		m.RecordPost("org-1", "reddit", "")
	}
	*now = t0.Add(8 * time.Hour)

	allowed, reason := m.CheckLimits("org-1", "reddit", "")
	assert.False(t, allowed)
	assert.Equal(t, "Daily auto-post limit reached (4/4)", reason)
}

func TestCheckLimits_MinGap(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()

	m.RecordPost("org-1", "reddit", "golang")
	*now = (*now).Add(30 * time.Second)

	allowed, reason := m.CheckLimits("org-1", "reddit", "")
	assert.False(t, allowed)
	assert.Equal(t, "Minimum gap not met (30s < 60s)", reason)

	assert.Equal(t, 30*time.Second, m.TimeUntilAllowed("org-1", "reddit", ""))

	*now = (*now).Add(31 * time.Second)
	allowed, _ = m.CheckLimits("org-1", "reddit", "")
	assert.True(t, allowed)
}

func TestCheckLimits_SubredditGap(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()

	m.RecordPost("org-1", "reddit", "python")
	*now = (*now).Add(60 * time.Second)

	allowed, reason := m.CheckLimits("org-1", "reddit", "python")
	assert.False(t, allowed)
	assert.Equal(t, "Subreddit gap not met for python (60s < 300s)", reason)

	// Different subreddit only has to respect the platform min gap.
	allowed, _ = m.CheckLimits("org-1", "reddit", "golang")
	assert.True(t, allowed)

	assert.Equal(t, 240*time.Second, m.TimeUntilAllowed("org-1", "reddit", "python"))
}

func TestCheckLimits_SubredditGapCaseInsensitive(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()

	m.RecordPost("org-1", "reddit", "Python")
	*now = (*now).Add(90 * time.Second)

	allowed, _ := m.CheckLimits("org-1", "reddit", "python")
	assert.False(t, allowed)
}

func TestCheckLimits_BlacklistedSubreddit(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.BlacklistedSubreddits = []string{"AskReddit", "wallstreetbets"}
	m.SetOrgLimits("org-1", limits)

	allowed, reason := m.CheckLimits("org-1", "reddit", "askreddit")
	assert.False(t, allowed)
	assert.Equal(t, "Subreddit askreddit is blacklisted", reason)
}

func TestRecordPost_DropsEntriesPastWindow(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()

	m.RecordPost("org-1", "reddit", "golang")
	*now = (*now).Add(25 * time.Hour)
	m.RecordPost("org-1", "reddit", "golang")

	stats := m.GetStats("org-1")
	assert.Equal(t, 1, stats.Usage.Daily)
}

func TestTimeUntilAllowed_ZeroWhenAllowed(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager()
	assert.Equal(t, time.Duration(0), m.TimeUntilAllowed("org-1", "reddit", "golang"))
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	m, now := newTestManager()
	limits := DefaultOrgLimits("org-1")
	limits.MaxHourlyAutoPosts = 100
	limits.PlatformLimits = nil
	m.SetOrgLimits("org-1", limits)

	t0 := *now
	m.RecordPost("org-1", "reddit", "golang")
	*now = t0.Add(2 * time.Minute)
	m.RecordPost("org-1", "twitter", "")
	*now = t0.Add(4 * time.Minute)

	stats := m.GetStats("org-1")
	assert.Equal(t, "org-1", stats.OrganizationID)
	assert.True(t, stats.AutoPostEnabled)
	assert.Equal(t, 2, stats.Usage.Hourly)
	assert.Equal(t, 2, stats.Usage.Daily)
	assert.Equal(t, 98, stats.Usage.HourlyRemaining)
	assert.Equal(t, 48, stats.Usage.DailyRemaining)
	assert.Equal(t, PlatformUsage{Hourly: 1, Daily: 1}, stats.ByPlatform["reddit"])
	assert.Equal(t, PlatformUsage{Hourly: 1, Daily: 1}, stats.ByPlatform["twitter"])
}
