package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/crawlsched"
	"github.com/reachby3cs/engage/internal/domain"
)

type crawledPostBody struct {
	ExternalID        string         `json:"external_id"`
	ExternalURL       string         `json:"external_url"`
	Content           string         `json:"content"`
	ContentType       string         `json:"content_type"`
	AuthorHandle      string         `json:"author_handle"`
	AuthorDisplayName string         `json:"author_display_name,omitempty"`
	Platform          string         `json:"platform"`
	KeywordsMatched   []string       `json:"keywords_matched,omitempty"`
	EngagementMetrics map[string]int `json:"engagement_metrics,omitempty"`
	PlatformMetadata  map[string]any `json:"platform_metadata,omitempty"`
	ExternalCreatedAt *time.Time     `json:"external_created_at,omitempty"`
	CrawledAt         time.Time      `json:"crawled_at"`
	ParentID          string         `json:"parent_id,omitempty"`
}

type crawlResultBody struct {
	Platform         string            `json:"platform"`
	Posts            []crawledPostBody `json:"posts"`
	TotalFound       int               `json:"total_found"`
	CrawlTimeSeconds float64           `json:"crawl_time_seconds"`
	Errors           []string          `json:"errors"`
	RateLimited      bool              `json:"rate_limited"`
	NextCursor       string            `json:"next_cursor,omitempty"`
}

func crawlResultToBody(res domain.CrawlResult) crawlResultBody {
	posts := make([]crawledPostBody, 0, len(res.Posts))
	for _, p := range res.Posts {
		posts = append(posts, crawledPostBody{
			ExternalID:        p.ExternalID,
			ExternalURL:       p.ExternalURL,
			Content:           p.Content,
			ContentType:       string(p.ContentType),
			AuthorHandle:      p.AuthorHandle,
			AuthorDisplayName: p.AuthorDisplayName,
			Platform:          p.Platform,
			KeywordsMatched:   p.KeywordsMatched,
			EngagementMetrics: p.EngagementMetrics,
			PlatformMetadata:  p.PlatformMetadata,
			ExternalCreatedAt: p.ExternalCreatedAt,
			CrawledAt:         p.CrawledAt,
			ParentID:          p.ParentID,
		})
	}
	errs := res.Errors
	if errs == nil {
		errs = []string{}
	}
	return crawlResultBody{
		Platform:         res.Platform,
		Posts:            posts,
		TotalFound:       res.TotalFound,
		CrawlTimeSeconds: res.CrawlTime.Seconds(),
		Errors:           errs,
		RateLimited:      res.RateLimited,
		NextCursor:       res.NextCursor,
	}
}

func (s *Server) lookupCrawler(platform string) (crawler.Crawler, error) {
	c, ok := s.crawlers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported platform %q", domain.ErrInvalidArgument, platform)
	}
	return c, nil
}

// CrawlerSearchHandler runs a one-off keyword search on one platform.
func (s *Server) CrawlerSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.lookupCrawler(chi.URLParam(r, "platform"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req struct {
			Keywords   []string `json:"keywords" validate:"required,min=1,dive,required"`
			Limit      int      `json:"limit" validate:"gte=0,lte=1000"`
			Sources    []string `json:"sources"`
			Subreddits []string `json:"subreddits"`
			TimeFilter string   `json:"time_filter"`
			Sort       string   `json:"sort"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if req.Limit == 0 {
			req.Limit = 100
		}
		sources := req.Sources
		if len(sources) == 0 {
			sources = req.Subreddits
		}
		res, err := c.Search(r.Context(), req.Keywords, req.Limit, crawler.SearchOptions{
			Sources:    sources,
			TimeFilter: req.TimeFilter,
			Sort:       req.Sort,
		})
		if err != nil {
			writeError(w, r, fmt.Errorf("crawler search: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, crawlResultToBody(res))
	}
}

// subredditMonitor is the optional fast path for source monitoring with
// an explicit sort order; the reddit crawler implements it.
type subredditMonitor interface {
	Monitor(ctx domain.Context, subreddits []string, limit int, sort string) (domain.CrawlResult, error)
}

// CrawlerMonitorHandler fetches recent posts from the given sources
// without keyword filtering.
func (s *Server) CrawlerMonitorHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.lookupCrawler(chi.URLParam(r, "platform"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		var req struct {
			Sources    []string `json:"sources"`
			Subreddits []string `json:"subreddits"`
			Limit      int      `json:"limit" validate:"gte=0,lte=1000"`
			Sort       string   `json:"sort"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sources := req.Sources
		if len(sources) == 0 {
			sources = req.Subreddits
		}
		if len(sources) == 0 {
			writeError(w, r, fmt.Errorf("%w: sources required", domain.ErrInvalidArgument), nil)
			return
		}
		if req.Limit == 0 {
			req.Limit = 100
		}
		var res domain.CrawlResult
		if m, ok := c.(subredditMonitor); ok && req.Sort != "" {
			res, err = m.Monitor(r.Context(), sources, req.Limit, req.Sort)
		} else {
			res, err = c.GetRecent(r.Context(), sources, req.Limit)
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("crawler monitor: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, crawlResultToBody(res))
	}
}

// CrawlerScheduleHandler registers a recurring crawl.
func (s *Server) CrawlerScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name        string            `json:"name" validate:"required,max=100"`
			Platform    string            `json:"platform" validate:"required"`
			Keywords    []string          `json:"keywords" validate:"required,min=1,dive,required"`
			Sources     []string          `json:"sources"`
			Frequency   string            `json:"frequency"`
			Limit       int               `json:"limit" validate:"gte=0,lte=1000"`
			Enabled     *bool             `json:"enabled"`
			ExtraParams map[string]string `json:"extra_params"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if err := validateConfigName(req.Name); err != nil {
			writeError(w, r, err, nil)
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		jobID, err := s.Scheduler.AddConfig(crawlsched.CrawlConfig{
			Name:        req.Name,
			Platform:    req.Platform,
			Keywords:    req.Keywords,
			Sources:     req.Sources,
			Frequency:   crawlsched.Frequency(req.Frequency),
			Limit:       req.Limit,
			Enabled:     enabled,
			ExtraParams: req.ExtraParams,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		body := map[string]any{
			"job_id":  jobID,
			"message": fmt.Sprintf("Crawl scheduled: %s", req.Name),
		}
		if st, ok := s.Scheduler.JobStatus(jobID); ok && !st.NextRun.IsZero() {
			body["next_run"] = st.NextRun.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusCreated, body)
	}
}

// CrawlerUnscheduleHandler removes a recurring crawl.
func (s *Server) CrawlerUnscheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "config_name")
		if err := validateConfigName(name); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !s.Scheduler.RemoveConfig(name) {
			writeError(w, r, fmt.Errorf("%w: crawl schedule %q", domain.ErrNotFound, name), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Crawl schedule removed: %s", name)})
	}
}

// CrawlerSchedulesHandler lists all registered crawl configs.
func (s *Server) CrawlerSchedulesHandler() http.HandlerFunc {
	type scheduleBody struct {
		Name      string     `json:"name"`
		Platform  string     `json:"platform"`
		Keywords  []string   `json:"keywords"`
		Sources   []string   `json:"sources,omitempty"`
		Frequency string     `json:"frequency"`
		Limit     int        `json:"limit"`
		Enabled   bool       `json:"enabled"`
		LastRun   *time.Time `json:"last_run,omitempty"`
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		configs := s.Scheduler.ListConfigs()
		out := make([]scheduleBody, 0, len(configs))
		for _, c := range configs {
			b := scheduleBody{
				Name:      c.Name,
				Platform:  c.Platform,
				Keywords:  c.Keywords,
				Sources:   c.Sources,
				Frequency: string(c.Frequency),
				Limit:     c.Limit,
				Enabled:   c.Enabled,
			}
			if !c.LastRun.IsZero() {
				lr := c.LastRun
				b.LastRun = &lr
			}
			out = append(out, b)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CrawlerStatusHandler reports the scheduler-wide snapshot.
func (s *Server) CrawlerStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Scheduler.Status())
	}
}

// CrawlerHealthHandler checks one platform crawler.
func (s *Server) CrawlerHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.lookupCrawler(chi.URLParam(r, "platform"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, c.HealthCheck(r.Context()))
	}
}

// SchedulerActionHandler starts, stops, pauses, or resumes the crawl
// scheduler.
func (s *Server) SchedulerActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg string
		switch action := chi.URLParam(r, "action"); action {
		case "start":
			s.Scheduler.Start()
			msg = "Scheduler started"
		case "stop":
			s.Scheduler.Stop()
			msg = "Scheduler stopped"
		case "pause":
			s.Scheduler.Pause()
			msg = "Scheduler paused"
		case "resume":
			s.Scheduler.Resume()
			msg = "Scheduler resumed"
		default:
			writeError(w, r, fmt.Errorf("%w: unknown scheduler action %q", domain.ErrInvalidArgument, action), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msg})
	}
}

// CrawlerRunNowHandler executes a scheduled crawl immediately.
func (s *Server) CrawlerRunNowHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "config_name")
		if err := validateConfigName(name); err != nil {
			writeError(w, r, err, nil)
			return
		}
		if _, ok := s.Scheduler.Config(name); !ok {
			writeError(w, r, fmt.Errorf("%w: crawl configuration %q", domain.ErrNotFound, name), nil)
			return
		}
		res, err := s.Scheduler.RunJobNow(r.Context(), name)
		if err != nil {
			writeError(w, r, fmt.Errorf("run crawl: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, crawlResultToBody(res))
	}
}
