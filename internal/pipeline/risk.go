package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/reachby3cs/engage/internal/crisis"
	"github.com/reachby3cs/engage/internal/domain"
)

// recommendedActions maps a risk level to the operator guidance attached to
// every scoring result.
var recommendedActions = map[domain.RiskLevel]string{
	domain.RiskBlocked: "DO NOT ENGAGE. Crisis content detected. Route to crisis intervention protocol.",
	domain.RiskHigh:    "Requires manual review before any engagement. Escalate to senior moderator.",
	domain.RiskMedium:  "Queue for review. Consider tone adjustment before engagement.",
	domain.RiskLow:     "Safe for automated engagement with standard brand voice.",
}

// sensitiveCategoryWeights bumps the fallback heuristic score for categories
// where a wrong automated reply is costlier. Keys follow the signal
// detection vocabulary; absent categories contribute nothing.
var sensitiveCategoryWeights = map[string]float64{
	"health_chronic":           0.15,
	"health_lifestyle":         0.15,
	"financial_stress":         0.15,
	"financial_planning":       0.15,
	"relationship_trust":       0.1,
	"workplace_conflict":       0.1,
	"workplace_management":     0.1,
	"mental_health_anxiety":    0.1,
	"mental_health_depression": 0.1,
}

// RiskScorer runs the crisis pre-filter and, for safe content, an LLM risk
// analysis. Crisis matches block immediately without any provider call.
type RiskScorer struct {
	ai       domain.AIClient
	detector *crisis.Detector
}

// NewRiskScorer constructs a scorer with a fresh crisis detector.
func NewRiskScorer(ai domain.AIClient) *RiskScorer {
	return &RiskScorer{ai: ai, detector: crisis.NewDetector()}
}

// Score assesses engagement risk for text given its signal. Blocked results
// always carry Score 1.0. Provider failures degrade to a heuristic score
// derived from emotional intensity and category sensitivity.
func (s *RiskScorer) Score(ctx domain.Context, text string, sig domain.Signal) (domain.Risk, error) {
	if text == "" {
		return domain.Risk{}, fmt.Errorf("%w: empty text", domain.ErrInvalidArgument)
	}

	if res := s.detector.Detect(text); res.IsCrisis {
		slog.Warn("crisis content blocked",
			slog.String("category", res.Category),
			slog.Float64("confidence", res.Confidence))
		return domain.Risk{
			Level:   domain.RiskBlocked,
			Score:   1.0,
			Factors: res.MatchedPatterns,
			ContextFlags: []string{
				"crisis_category:" + res.Category,
				"requires_immediate_attention",
				"do_not_engage",
			},
			RecommendedAction: recommendedActions[domain.RiskBlocked],
		}, nil
	}

	raw, err := s.ai.ChatJSON(ctx, riskSystemPrompt, formatRiskPrompt(text, sig), 0)
	if err != nil {
		slog.Warn("risk scoring degraded to heuristic", slog.String("op", "risk.Score"), slog.Any("error", err))
		return s.heuristic(sig), nil
	}

	var parsed struct {
		RiskScore                float64  `json:"risk_score"`
		RiskFactors              []string `json:"risk_factors"`
		ContextFlags             []string `json:"context_flags"`
		Sentiment                string   `json:"sentiment"`
		EngagementRecommendation string   `json:"engagement_recommendation"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("risk scoring got invalid JSON", slog.String("op", "risk.Score"), slog.Any("error", err))
		return s.heuristic(sig), nil
	}

	score := clamp01(parsed.RiskScore)
	level := levelForScore(score)
	action, ok := recommendedActions[level]
	if !ok {
		action = parsed.EngagementRecommendation
	}
	return domain.Risk{
		Level:             level,
		Score:             score,
		Factors:           parsed.RiskFactors,
		ContextFlags:      parsed.ContextFlags,
		RecommendedAction: action,
	}, nil
}

// IsSafe exposes the crisis pre-filter for callers that only need the gate.
func (s *RiskScorer) IsSafe(text string) bool {
	return s.detector.IsSafe(text)
}

func (s *RiskScorer) heuristic(sig domain.Signal) domain.Risk {
	score := math.Min(sig.EmotionalIntensity+sensitiveCategoryWeights[sig.ProblemCategory], 0.99)
	score = math.Round(score*100) / 100
	level := levelForScore(score)

	var flags []string
	if sig.ProblemCategory != "" {
		flags = []string{sig.ProblemCategory}
	}
	return domain.Risk{
		Level: level,
		Score: score,
		Factors: []string{
			fmt.Sprintf("Emotional intensity: %.2f", sig.EmotionalIntensity),
			"Heuristic fallback scoring",
		},
		ContextFlags:      flags,
		RecommendedAction: "Review recommended. " + recommendedActions[level],
	}
}

// levelForScore buckets a score: below 0.3 is low, below 0.7 medium,
// otherwise high. Blocked is never derived from a score.
func levelForScore(score float64) domain.RiskLevel {
	switch {
	case score < 0.3:
		return domain.RiskLow
	case score < 0.7:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
