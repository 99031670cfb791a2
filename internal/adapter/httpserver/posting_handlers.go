package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/posting"
)

type postResultBody struct {
	Success     bool       `json:"success"`
	ExternalID  string     `json:"external_id,omitempty"`
	ExternalURL string     `json:"external_url,omitempty"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Method      string     `json:"method,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	Retryable   bool       `json:"retryable"`
}

func postResultToBody(r domain.PostResult) *postResultBody {
	return &postResultBody{
		Success:     r.Success,
		ExternalID:  r.ExternalID,
		ExternalURL: r.ExternalURL,
		PostedAt:    r.PostedAt,
		Platform:    r.Platform,
		Method:      r.Method,
		Error:       r.Error,
		ErrorCode:   r.ErrorCode,
		Retryable:   r.Retryable,
	}
}

// PostHandler posts a response to a platform immediately, bypassing the
// queue. Successful posts are recorded against the organization's
// rate-limit windows.
func (s *Server) PostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseID         string `json:"response_id" validate:"required"`
			ResponseText       string `json:"response_text" validate:"required"`
			TargetURL          string `json:"target_url" validate:"required"`
			Platform           string `json:"platform" validate:"required"`
			OrganizationID     string `json:"organization_id"`
			ApplyDelay         *bool  `json:"apply_delay"`
			OriginalTextLength int    `json:"original_text_length" validate:"gte=0"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		poster, ok := s.posters[req.Platform]
		if !ok {
			writeError(w, r, fmt.Errorf("%w: unsupported platform %q", domain.ErrInvalidArgument, req.Platform), nil)
			return
		}
		applyDelay := s.Cfg.ApplyHumanDelay
		if req.ApplyDelay != nil {
			applyDelay = *req.ApplyDelay
		}
		result := poster.Post(r.Context(), posting.PostRequest{
			ResponseText:       req.ResponseText,
			TargetURL:          req.TargetURL,
			ApplyDelay:         applyDelay,
			OriginalTextLength: req.OriginalTextLength,
		})
		if result.Success {
			org := req.OrganizationID
			if org == "" {
				org = s.Cfg.DefaultOrgID
			}
			s.Limits.RecordPost(org, req.Platform, posting.SubredditFromURL(req.TargetURL))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      result.Success,
			"response_id":  req.ResponseID,
			"external_id":  result.ExternalID,
			"external_url": result.ExternalURL,
			"error":        result.Error,
			"method":       result.Method,
		})
	}
}

// QueueEnqueueHandler adds a response to the posting queue.
func (s *Server) QueueEnqueueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseID     string         `json:"response_id" validate:"required"`
			OrganizationID string         `json:"organization_id" validate:"required"`
			Platform       string         `json:"platform" validate:"required"`
			TargetURL      string         `json:"target_url" validate:"required"`
			ResponseText   string         `json:"response_text" validate:"required"`
			Priority       int            `json:"priority" validate:"gte=0,lte=100"`
			ScheduledFor   *time.Time     `json:"scheduled_for"`
			Metadata       map[string]any `json:"metadata"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		item, err := s.Queue.Enqueue(posting.EnqueueRequest{
			ResponseID:     req.ResponseID,
			OrganizationID: req.OrganizationID,
			Platform:       req.Platform,
			TargetURL:      req.TargetURL,
			ResponseText:   req.ResponseText,
			Priority:       req.Priority,
			ScheduledFor:   req.ScheduledFor,
			Metadata:       req.Metadata,
		})
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"queue_item_id": item.ID,
			"response_id":   item.ResponseID,
			"status":        string(item.Status),
			"priority":      item.Priority,
			"position":      s.Queue.GetStats().QueueSize,
		})
	}
}

// QueueStatusHandler reports queue state for a response.
func (s *Server) QueueStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseID := chi.URLParam(r, "response_id")
		item, ok := s.Queue.StatusForResponse(responseID)
		if !ok {
			writeError(w, r, fmt.Errorf("%w: response %s not in queue", domain.ErrNotFound, responseID), nil)
			return
		}
		body := map[string]any{
			"response_id":   responseID,
			"queue_item_id": item.ID,
			"status":        string(item.Status),
			"retry_count":   item.RetryCount,
		}
		if item.LastError != "" {
			body["last_error"] = item.LastError
		}
		if item.Result != nil {
			body["result"] = postResultToBody(*item.Result)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// QueueCancelHandler cancels a queued item. Items already claimed by a
// worker or in a terminal state refuse with a conflict.
func (s *Server) QueueCancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID := chi.URLParam(r, "item_id")
		if _, ok := s.Queue.Item(itemID); !ok {
			writeError(w, r, fmt.Errorf("%w: queue item %s", domain.ErrNotFound, itemID), nil)
			return
		}
		if !s.Queue.Cancel(itemID) {
			writeError(w, r, fmt.Errorf("%w: queue item %s is processing or finished", domain.ErrConflict, itemID), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "item_id": itemID})
	}
}

// QueueStatsHandler reports queue-wide statistics.
func (s *Server) QueueStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Queue.GetStats())
	}
}

// automationLimitsBody carries the tunable auto-post policy fields.
// Absent fields keep their defaults.
type automationLimitsBody struct {
	OrganizationID     string   `json:"organization_id"`
	MaxDailyAutoPosts  *int     `json:"max_daily_auto_posts" validate:"omitempty,gte=0"`
	MaxHourlyAutoPosts *int     `json:"max_hourly_auto_posts" validate:"omitempty,gte=0"`
	MinCTSScore        *float64 `json:"min_cts_score" validate:"omitempty,gte=0,lte=1"`
	MaxCTALevel        *int     `json:"max_cta_level" validate:"omitempty,gte=0,lte=3"`
	AllowedRiskLevels  []string `json:"allowed_risk_levels" validate:"omitempty,dive,oneof=low medium high"`
}

func (b automationLimitsBody) apply(limits domain.OrgLimits) domain.OrgLimits {
	if b.MaxDailyAutoPosts != nil {
		limits.MaxDailyAutoPosts = *b.MaxDailyAutoPosts
	}
	if b.MaxHourlyAutoPosts != nil {
		limits.MaxHourlyAutoPosts = *b.MaxHourlyAutoPosts
	}
	if b.MinCTSScore != nil {
		limits.MinCTSScore = *b.MinCTSScore
	}
	if b.MaxCTALevel != nil {
		limits.MaxCTALevel = *b.MaxCTALevel
	}
	if len(b.AllowedRiskLevels) > 0 {
		levels := make([]domain.RiskLevel, 0, len(b.AllowedRiskLevels))
		for _, l := range b.AllowedRiskLevels {
			levels = append(levels, domain.RiskLevel(l))
		}
		limits.AllowedRiskLevels = levels
	}
	return limits
}

func (s *Server) automationStatus(organizationID string) map[string]any {
	lim := s.Limits.OrgLimitsFor(organizationID)
	stats := s.Limits.GetStats(organizationID)
	workerStatus := "not_started"
	if s.AutoPost != nil {
		workerStatus = "idle"
		if s.Runner != nil {
			if task, ok := s.Runner.Task(automation.AutoPostTaskName); ok && task.Enabled {
				workerStatus = "running"
			}
		}
	}
	var schedulerStatus any = map[string]any{}
	if s.Runner != nil {
		schedulerStatus = s.Runner.GetStats()
	}
	return map[string]any{
		"organization_id":   organizationID,
		"auto_post_enabled": lim.AutoPostEnabled,
		"limits":            stats.Limits,
		"usage":             stats.Usage,
		"by_platform":       stats.ByPlatform,
		"worker_status":     workerStatus,
		"scheduler_status":  schedulerStatus,
	}
}

// persistOrgLimits writes the policy through to storage when a
// repository is configured. The in-memory manager stays authoritative,
// so persistence failures only log.
func (s *Server) persistOrgLimits(ctx context.Context, r *http.Request, limits domain.OrgLimits) {
	if s.OrgLimits == nil {
		return
	}
	if err := s.OrgLimits.Upsert(ctx, limits); err != nil {
		LoggerFrom(r).Warn("org limits persist failed",
			"organization_id", limits.OrganizationID, "error", err)
	}
}

// AutomationEnableHandler turns auto-posting on for an organization and
// applies the supplied limits.
func (s *Server) AutomationEnableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req automationLimitsBody
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if req.OrganizationID == "" {
			writeError(w, r, fmt.Errorf("%w: organization_id required", domain.ErrInvalidArgument), nil)
			return
		}
		limits := req.apply(automation.DefaultOrgLimits(req.OrganizationID))
		limits.AutoPostEnabled = true
		s.Limits.SetOrgLimits(req.OrganizationID, limits)
		s.persistOrgLimits(r.Context(), r, limits)
		LoggerFrom(r).Info("auto-posting enabled", "organization_id", req.OrganizationID)
		writeJSON(w, http.StatusOK, s.automationStatus(req.OrganizationID))
	}
}

// AutomationDisableHandler turns auto-posting off for an organization.
func (s *Server) AutomationDisableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrganizationID string `json:"organization_id" validate:"required"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		limits := s.Limits.OrgLimitsFor(req.OrganizationID)
		limits.AutoPostEnabled = false
		s.Limits.SetOrgLimits(req.OrganizationID, limits)
		s.persistOrgLimits(r.Context(), r, limits)
		LoggerFrom(r).Info("auto-posting disabled", "organization_id", req.OrganizationID)
		writeJSON(w, http.StatusOK, map[string]any{
			"organization_id":   req.OrganizationID,
			"auto_post_enabled": false,
		})
	}
}

// AutomationStatusHandler reports limits, usage, and worker state for an
// organization.
func (s *Server) AutomationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.automationStatus(chi.URLParam(r, "organization_id")))
	}
}

// AutomationLimitsHandler updates the auto-post policy without touching
// the enabled flag.
func (s *Server) AutomationLimitsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		organizationID := chi.URLParam(r, "organization_id")
		var req automationLimitsBody
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		current := s.Limits.OrgLimitsFor(organizationID)
		limits := req.apply(automation.DefaultOrgLimits(organizationID))
		limits.AutoPostEnabled = current.AutoPostEnabled
		s.Limits.SetOrgLimits(organizationID, limits)
		s.persistOrgLimits(r.Context(), r, limits)
		writeJSON(w, http.StatusOK, s.Limits.GetStats(organizationID))
	}
}

// AutomationEligibilityHandler runs the auto-post eligibility checks for
// a single response without queueing it.
func (s *Server) AutomationEligibilityHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseID     string  `json:"response_id" validate:"required"`
			OrganizationID string  `json:"organization_id" validate:"required"`
			CTSScore       float64 `json:"cts_score" validate:"gte=0,lte=1"`
			RiskLevel      string  `json:"risk_level" validate:"required,oneof=low medium high blocked"`
			CTALevel       int     `json:"cta_level" validate:"gte=0,lte=3"`
			Platform       string  `json:"platform" validate:"required"`
			CanAutoPost    bool    `json:"can_auto_post"`
			Status         string  `json:"status" validate:"omitempty,oneof=pending approved posting posted failed rejected"`
			TargetURL      string  `json:"target_url"`
			Subreddit      string  `json:"subreddit"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		if req.Status == "" {
			req.Status = string(domain.ResponsePending)
		}
		subreddit := req.Subreddit
		if subreddit == "" && req.Platform == "reddit" {
			subreddit = posting.SubredditFromURL(req.TargetURL)
		}
		result := s.eligibility.Check(automation.ResponseData{
			ResponseID:  req.ResponseID,
			CTSScore:    req.CTSScore,
			RiskLevel:   domain.RiskLevel(req.RiskLevel),
			CTALevel:    req.CTALevel,
			Platform:    req.Platform,
			CanAutoPost: req.CanAutoPost,
			Status:      domain.ResponseStatus(req.Status),
			TargetURL:   req.TargetURL,
			Subreddit:   subreddit,
		}, s.Limits.OrgLimitsFor(req.OrganizationID))
		writeJSON(w, http.StatusOK, result)
	}
}

// AutomationTriggerHandler fires an auto-post pass outside the normal
// interval.
func (s *Server) AutomationTriggerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Runner == nil || s.AutoPost == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"triggered": false,
				"error":     "auto-post worker not initialized",
			})
			return
		}
		// The pass runs in the background; a full batch can take longer
		// than a request should.
		go func() {
			if err := s.Runner.TriggerTask(context.Background(), automation.AutoPostTaskName); err != nil {
				LoggerFrom(r).Warn("auto-post trigger failed", "error", err)
			}
		}()
		writeJSON(w, http.StatusOK, map[string]any{
			"triggered": true,
			"message":   "Auto-post check triggered",
		})
	}
}
