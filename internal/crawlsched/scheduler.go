// Package crawlsched schedules recurring crawls across the registered
// platform crawlers and dispatches results to a callback.
package crawlsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/domain"
)

// Frequency is a named crawl cadence.
type Frequency string

const (
	FreqHourly         Frequency = "hourly"
	FreqEvery6Hours    Frequency = "every_6_hours"
	FreqDaily          Frequency = "daily"
	FreqTwiceDaily     Frequency = "twice_daily"
	FreqFourTimesDaily Frequency = "four_times_daily"
	FreqWeekly         Frequency = "weekly"
)

// ParseFrequency validates a frequency string.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FreqHourly, FreqEvery6Hours, FreqDaily, FreqTwiceDaily, FreqFourTimesDaily, FreqWeekly:
		return f, nil
	default:
		return "", fmt.Errorf("op=crawlsched.ParseFrequency: unknown frequency %q: %w", s, domain.ErrInvalidArgument)
	}
}

// CrawlConfig is a named, repeatable crawl.
type CrawlConfig struct {
	Name        string
	Platform    string
	Keywords    []string
	Sources     []string
	Frequency   Frequency
	Limit       int
	Enabled     bool
	ExtraParams map[string]string

	LastRun    time.Time
	LastResult *domain.CrawlResult
}

// JobStatus tracks the run history of one scheduled crawl.
type JobStatus struct {
	JobID          string    `json:"job_id"`
	ConfigName     string    `json:"config_name"`
	Platform       string    `json:"platform"`
	NextRun        time.Time `json:"next_run"`
	LastRun        time.Time `json:"last_run"`
	LastStatus     string    `json:"last_status"`
	TotalRuns      int       `json:"total_runs"`
	SuccessfulRuns int       `json:"successful_runs"`
	FailedRuns     int       `json:"failed_runs"`
}

// Snapshot is the scheduler-wide status for the API.
type Snapshot struct {
	Running            bool        `json:"running"`
	Paused             bool        `json:"paused"`
	TotalJobs          int         `json:"total_jobs"`
	Jobs               []JobStatus `json:"jobs"`
	RegisteredCrawlers []string    `json:"registered_crawlers"`
}

// ResultCallback receives every completed crawl.
type ResultCallback func(ctx context.Context, configName string, result domain.CrawlResult)

// Scheduler owns the crawler registry, the config table, and the job
// table. A failing job never takes the scheduler down.
type Scheduler struct {
	mu       sync.Mutex
	crawlers map[string]crawler.Crawler
	configs  map[string]*CrawlConfig
	statuses map[string]*JobStatus
	callback ResultCallback

	running bool
	paused  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	tick       time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// New builds an empty scheduler. Crawlers and configs are registered
// before Start.
func New() *Scheduler {
	return &Scheduler{
		crawlers: make(map[string]crawler.Crawler),
		configs:  make(map[string]*CrawlConfig),
		statuses: make(map[string]*JobStatus),
		tick:     time.Minute,
		now:      time.Now,
	}
}

// RegisterCrawler makes a platform available for scheduling.
func (s *Scheduler) RegisterCrawler(platform string, c crawler.Crawler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawlers[platform] = c
	slog.Info("registered crawler", slog.String("platform", platform))
}

// SetJobTimeout bounds each scheduled crawl, result processing
// included. Zero means no limit.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobTimeout = d
}

// SetResultCallback registers the sink for crawl results.
func (s *Scheduler) SetResultCallback(cb ResultCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = cb
}

// AddConfig schedules a crawl and returns its job ID. The platform must
// have a registered crawler.
func (s *Scheduler) AddConfig(cfg CrawlConfig) (string, error) {
	if cfg.Name == "" {
		return "", fmt.Errorf("op=crawlsched.AddConfig: empty config name: %w", domain.ErrInvalidArgument)
	}
	if cfg.Frequency == "" {
		cfg.Frequency = FreqEvery6Hours
	}
	if _, err := ParseFrequency(string(cfg.Frequency)); err != nil {
		return "", err
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.crawlers[cfg.Platform]; !ok {
		return "", fmt.Errorf("op=crawlsched.AddConfig: no crawler registered for platform %q: %w", cfg.Platform, domain.ErrInvalidArgument)
	}

	jobID := "crawl_" + cfg.Name
	s.configs[cfg.Name] = &cfg
	s.statuses[jobID] = &JobStatus{
		JobID:      jobID,
		ConfigName: cfg.Name,
		Platform:   cfg.Platform,
		NextRun:    nextRunAfter(cfg.Frequency, s.now()),
		LastStatus: "pending",
	}

	slog.Info("scheduled crawl job",
		slog.String("job_id", jobID),
		slog.String("platform", cfg.Platform),
		slog.String("frequency", string(cfg.Frequency)))
	return jobID, nil
}

// RemoveConfig unschedules a crawl. Returns false when the name is
// unknown.
func (s *Scheduler) RemoveConfig(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.configs[name]
	delete(s.configs, name)
	delete(s.statuses, "crawl_"+name)
	if ok {
		slog.Info("removed crawl job", slog.String("job_id", "crawl_"+name))
	}
	return ok
}

// UpdateConfig replaces an existing config, resetting its run counters.
func (s *Scheduler) UpdateConfig(cfg CrawlConfig) (string, error) {
	s.RemoveConfig(cfg.Name)
	return s.AddConfig(cfg)
}

// Start begins firing jobs on their schedule. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.run(ctx)
	slog.Info("crawl scheduler started")
}

// Stop cancels the scheduler loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	slog.Info("crawl scheduler stopped")
}

// Pause holds all jobs without dropping their schedules.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	slog.Info("crawl scheduler paused")
}

// Resume lifts a pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	slog.Info("crawl scheduler resumed")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return
	}
	now := s.now()
	timeout := s.jobTimeout
	var due []string
	for name, cfg := range s.configs {
		status := s.statuses["crawl_"+name]
		if status == nil || status.NextRun.After(now) {
			continue
		}
		status.NextRun = nextRunAfter(cfg.Frequency, now)
		due = append(due, name)
	}
	s.mu.Unlock()

	for _, name := range due {
		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()
			jctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				jctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if _, err := s.runJob(jctx, name); err != nil {
				slog.Error("crawl failed",
					slog.String("config", name),
					slog.String("error", err.Error()))
			}
		}(name)
	}
}

// RunJobNow executes a config immediately, outside its schedule.
func (s *Scheduler) RunJobNow(ctx context.Context, name string) (domain.CrawlResult, error) {
	return s.runJob(ctx, name)
}

func (s *Scheduler) runJob(ctx context.Context, name string) (domain.CrawlResult, error) {
	s.mu.Lock()
	cfg, ok := s.configs[name]
	if !ok {
		s.mu.Unlock()
		return domain.CrawlResult{}, fmt.Errorf("op=crawlsched.runJob: config %q: %w", name, domain.ErrNotFound)
	}
	if !cfg.Enabled {
		s.mu.Unlock()
		slog.Debug("crawl disabled", slog.String("config", name))
		return domain.CrawlResult{}, nil
	}
	c := s.crawlers[cfg.Platform]
	status := s.statuses["crawl_"+name]
	keywords := cfg.Keywords
	limit := cfg.Limit
	opts := crawler.SearchOptions{
		Sources:    cfg.Sources,
		TimeFilter: cfg.ExtraParams["time_filter"],
		Sort:       cfg.ExtraParams["sort"],
	}
	cb := s.callback
	s.mu.Unlock()

	if c == nil {
		return domain.CrawlResult{}, fmt.Errorf("op=crawlsched.runJob: no crawler for platform %q: %w", cfg.Platform, domain.ErrNotFound)
	}

	slog.Info("executing crawl", slog.String("config", name), slog.String("platform", cfg.Platform))

	result, err := c.Search(ctx, keywords, limit, opts)

	s.mu.Lock()
	cfg.LastRun = s.now()
	if status != nil {
		status.LastRun = cfg.LastRun
		status.TotalRuns++
		switch {
		case err != nil:
			status.LastStatus = "error"
			status.FailedRuns++
		case len(result.Errors) > 0 && len(result.Posts) == 0:
			status.LastStatus = "failed"
			status.FailedRuns++
		case len(result.Errors) > 0:
			status.LastStatus = "partial"
			status.SuccessfulRuns++
		default:
			status.LastStatus = "success"
			status.SuccessfulRuns++
		}
	}
	if err == nil {
		cfg.LastResult = &result
	}
	s.mu.Unlock()

	if err != nil {
		return domain.CrawlResult{}, fmt.Errorf("op=crawlsched.runJob: config %q: %w", name, err)
	}

	slog.Info("crawl completed",
		slog.String("config", name),
		slog.Int("posts", len(result.Posts)),
		slog.Duration("crawl_time", result.CrawlTime))

	if cb != nil {
		cb(ctx, name, result)
	}
	return result, nil
}

// Status returns the scheduler-wide snapshot.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Running:   s.running,
		Paused:    s.paused,
		TotalJobs: len(s.statuses),
	}
	for _, st := range s.statuses {
		snap.Jobs = append(snap.Jobs, *st)
	}
	for platform := range s.crawlers {
		snap.RegisteredCrawlers = append(snap.RegisteredCrawlers, platform)
	}
	return snap
}

// JobStatus returns one job's counters, or false when unknown.
func (s *Scheduler) JobStatus(jobID string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[jobID]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Config returns a registered config by name.
func (s *Scheduler) Config(name string) (CrawlConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[name]
	if !ok {
		return CrawlConfig{}, false
	}
	return *cfg, true
}

// ListConfigs returns all registered configs.
func (s *Scheduler) ListConfigs() []CrawlConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CrawlConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		out = append(out, *cfg)
	}
	return out
}

// nextRunAfter computes the next fire time for a frequency. Interval
// frequencies run relative to now; daily, four_times_daily and weekly
// align to fixed UTC boundaries.
func nextRunAfter(freq Frequency, from time.Time) time.Time {
	from = from.UTC()
	switch freq {
	case FreqHourly:
		return from.Add(time.Hour)
	case FreqTwiceDaily:
		return from.Add(12 * time.Hour)
	case FreqDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		return next
	case FreqFourTimesDaily:
		// Fires on the 00/06/12/18 UTC boundaries.
		boundary := from.Truncate(6 * time.Hour).Add(6 * time.Hour)
		return boundary
	case FreqWeekly:
		// Next Monday 00:00 UTC.
		next := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		for {
			next = next.AddDate(0, 0, 1)
			if next.Weekday() == time.Monday {
				return next
			}
		}
	default:
		return from.Add(6 * time.Hour)
	}
}
