package automation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/reachby3cs/engage/internal/domain"
)

// ResponseData carries the fields of a generated response that the
// eligibility checks evaluate.
type ResponseData struct {
	ResponseID  string
	CTSScore    float64
	RiskLevel   domain.RiskLevel
	CTALevel    int
	Platform    string
	CanAutoPost bool
	Status      domain.ResponseStatus
	TargetURL   string
	Subreddit   string
}

// EligibilityResult is the outcome of one eligibility check.
// RequiresReview means a human reviewer could still approve the post;
// pure rate-limit failures are retry-later instead, with
// retry_after_seconds in Metadata.
type EligibilityResult struct {
	Eligible        bool           `json:"eligible"`
	Reason          string         `json:"reason"`
	ChecksPassed    []string       `json:"checks_passed"`
	ChecksFailed    []string       `json:"checks_failed"`
	RequiresReview  bool           `json:"requires_review"`
	SuggestedAction string         `json:"suggested_action"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Eligibility evaluates whether a response may be auto-posted under an
// organization's policy and current rate-limit state.
type Eligibility struct {
	limits *RateLimitManager
}

func NewEligibility(limits *RateLimitManager) *Eligibility {
	if limits == nil {
		limits = NewRateLimitManager()
	}
	return &Eligibility{limits: limits}
}

// Check runs the eligibility checks in fixed order. The first two gates
// return immediately; the rest accumulate so the result names every
// failing check.
func (e *Eligibility) Check(response ResponseData, orgLimits domain.OrgLimits) EligibilityResult {
	var passed, failed []string
	metadata := make(map[string]any)

	if !orgLimits.AutoPostEnabled {
		return EligibilityResult{
			Eligible:        false,
			Reason:          "Auto-posting is disabled for this organization",
			ChecksFailed:    []string{"org_auto_post_enabled"},
			SuggestedAction: "Enable auto-posting in organization settings",
			Metadata:        metadata,
		}
	}
	passed = append(passed, "org_auto_post_enabled")

	if response.Status != domain.ResponsePending && response.Status != domain.ResponseApproved {
		return EligibilityResult{
			Eligible:        false,
			Reason:          fmt.Sprintf("Response status is '%s', must be 'pending' or 'approved'", response.Status),
			ChecksPassed:    passed,
			ChecksFailed:    []string{"response_status"},
			SuggestedAction: "Approve the response first",
			Metadata:        metadata,
		}
	}
	passed = append(passed, "response_status")

	if response.CanAutoPost {
		passed = append(passed, "pipeline_can_auto_post")
	} else {
		failed = append(failed, "pipeline_can_auto_post")
		metadata["pipeline_decision"] = "not_eligible"
	}

	metadata["cts_score"] = response.CTSScore
	if response.CTSScore < orgLimits.MinCTSScore {
		failed = append(failed, "cts_score")
		metadata["min_cts_score"] = orgLimits.MinCTSScore
	} else {
		passed = append(passed, "cts_score")
	}

	if slices.Contains(orgLimits.AllowedRiskLevels, response.RiskLevel) {
		passed = append(passed, "risk_level")
	} else {
		failed = append(failed, "risk_level")
		metadata["risk_level"] = response.RiskLevel
		metadata["allowed_risk_levels"] = orgLimits.AllowedRiskLevels
	}

	if response.CTALevel > orgLimits.MaxCTALevel {
		failed = append(failed, "cta_level")
		metadata["cta_level"] = response.CTALevel
		metadata["max_cta_level"] = orgLimits.MaxCTALevel
	} else {
		passed = append(passed, "cta_level")
	}

	rateAllowed, rateReason := e.limits.CheckLimits(orgLimits.OrganizationID, response.Platform, response.Subreddit)
	retryAfter := 0.0
	if rateAllowed {
		passed = append(passed, "rate_limits")
	} else {
		failed = append(failed, "rate_limits")
		metadata["rate_limit_reason"] = rateReason
		retryAfter = e.limits.TimeUntilAllowed(orgLimits.OrganizationID, response.Platform, response.Subreddit).Seconds()
		metadata["retry_after_seconds"] = retryAfter
	}

	blacklisted := false
	if response.Subreddit != "" {
		for _, s := range orgLimits.BlacklistedSubreddits {
			if strings.EqualFold(s, response.Subreddit) {
				blacklisted = true
				break
			}
		}
	}
	if blacklisted {
		failed = append(failed, "subreddit_blacklist")
		metadata["blacklisted_subreddit"] = response.Subreddit
	} else {
		passed = append(passed, "subreddit_not_blacklisted")
	}

	if len(failed) == 0 {
		return EligibilityResult{
			Eligible:        true,
			Reason:          "All eligibility checks passed",
			ChecksPassed:    passed,
			SuggestedAction: "Auto-post",
			Metadata:        metadata,
		}
	}

	requiresReview := slices.Contains(failed, "cts_score") ||
		slices.Contains(failed, "cta_level") ||
		slices.Contains(failed, "pipeline_can_auto_post")

	var suggested string
	switch {
	case requiresReview:
		suggested = "Send to human review queue"
	case slices.Contains(failed, "rate_limits"):
		suggested = fmt.Sprintf("Retry after %.0f seconds", retryAfter)
	default:
		suggested = "Cannot auto-post - requires manual posting"
	}

	var reasons []string
	if slices.Contains(failed, "cts_score") {
		reasons = append(reasons, fmt.Sprintf("CTS score %.2f below threshold %v", response.CTSScore, orgLimits.MinCTSScore))
	}
	if slices.Contains(failed, "risk_level") {
		reasons = append(reasons, fmt.Sprintf("Risk level '%s' not in allowed levels %v", response.RiskLevel, orgLimits.AllowedRiskLevels))
	}
	if slices.Contains(failed, "cta_level") {
		reasons = append(reasons, fmt.Sprintf("CTA level %d exceeds max %d", response.CTALevel, orgLimits.MaxCTALevel))
	}
	if slices.Contains(failed, "rate_limits") {
		reasons = append(reasons, fmt.Sprintf("Rate limit: %s", rateReason))
	}
	if slices.Contains(failed, "subreddit_blacklist") {
		reasons = append(reasons, fmt.Sprintf("Subreddit %s is blacklisted", response.Subreddit))
	}
	if slices.Contains(failed, "pipeline_can_auto_post") {
		reasons = append(reasons, "Pipeline marked as not eligible for auto-post")
	}

	return EligibilityResult{
		Eligible:        false,
		Reason:          strings.Join(reasons, "; "),
		ChecksPassed:    passed,
		ChecksFailed:    failed,
		RequiresReview:  requiresReview,
		SuggestedAction: suggested,
		Metadata:        metadata,
	}
}
