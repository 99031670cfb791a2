// Package pipeline implements the five-stage analysis pipeline: signal
// detection, risk scoring, response generation, CTA classification, and the
// CTS (confidence-to-send) decision. Blocked content short-circuits after
// risk scoring.
package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/reachby3cs/engage/internal/domain"
)

// validCategories is the closed vocabulary signal detection may emit.
// Anything outside it is coerced to "other".
var validCategories = map[string]struct{}{
	"relationship_communication": {},
	"relationship_trust":         {},
	"relationship_boundaries":    {},
	"family_conflict":            {},
	"family_dynamics":            {},
	"workplace_conflict":         {},
	"workplace_career":           {},
	"workplace_management":       {},
	"financial_stress":           {},
	"financial_planning":         {},
	"mental_health_anxiety":      {},
	"mental_health_depression":   {},
	"mental_health_stress":       {},
	"social_isolation":           {},
	"social_confidence":          {},
	"parenting_discipline":       {},
	"parenting_development":      {},
	"health_chronic":             {},
	"health_lifestyle":           {},
	"personal_growth":            {},
	"decision_making":            {},
	"other":                      {},
}

// SignalDetector classifies the problem a post expresses.
type SignalDetector struct {
	ai domain.AIClient
}

// NewSignalDetector constructs a detector over the given AI client.
func NewSignalDetector(ai domain.AIClient) *SignalDetector {
	return &SignalDetector{ai: ai}
}

// Detect analyzes text and returns the signal. On provider failure it
// degrades to a neutral "other" signal with zero confidence rather than
// failing the whole pipeline.
func (d *SignalDetector) Detect(ctx domain.Context, text, platform string) (domain.Signal, error) {
	if text == "" {
		return domain.Signal{}, fmt.Errorf("%w: empty text", domain.ErrInvalidArgument)
	}

	raw, err := d.ai.ChatJSON(ctx, signalSystemPrompt, formatSignalPrompt(text, platform), 0)
	if err != nil {
		slog.Warn("signal detection degraded to fallback", slog.String("op", "signal.Detect"), slog.Any("error", err))
		return fallbackSignal(text, platform, err), nil
	}

	var parsed struct {
		ProblemCategory    string   `json:"problem_category"`
		EmotionalIntensity float64  `json:"emotional_intensity"`
		Keywords           []string `json:"keywords"`
		Confidence         float64  `json:"confidence"`
		Reasoning          string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("signal detection got invalid JSON", slog.String("op", "signal.Detect"), slog.Any("error", err))
		return fallbackSignal(text, platform, err), nil
	}

	category := parsed.ProblemCategory
	if _, ok := validCategories[category]; !ok {
		slog.Warn("unknown problem category, defaulting to other", slog.String("category", category))
		category = "other"
	}

	return domain.Signal{
		ProblemCategory:    category,
		EmotionalIntensity: clamp01(parsed.EmotionalIntensity),
		Keywords:           parsed.Keywords,
		Confidence:         clamp01(parsed.Confidence),
		RawAnalysis: map[string]any{
			"reasoning": parsed.Reasoning,
			"platform":  platform,
		},
	}, nil
}

func fallbackSignal(text, platform string, cause error) domain.Signal {
	return domain.Signal{
		ProblemCategory:    "other",
		EmotionalIntensity: 0.5,
		Keywords:           []string{},
		Confidence:         0.0,
		RawAnalysis: map[string]any{
			"error":         cause.Error(),
			"original_text": truncate(text, 500),
			"platform":      platform,
		},
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
