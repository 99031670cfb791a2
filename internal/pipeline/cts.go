package pipeline

import (
	"fmt"
	"math"

	"github.com/reachby3cs/engage/internal/domain"
)

// CTS weights and auto-post gates.
const (
	signalWeight = 0.4
	riskWeight   = 0.3
	ctaWeight    = 0.3

	ctsAutoPostThreshold   = 0.7
	maxCTALevelForAutoPost = 1
)

// CalculateCTS combines signal confidence (40%), inverse risk (30%), and
// inverse CTA level (30%) into the confidence-to-send score, rounded to four
// decimals along with its breakdown.
func CalculateCTS(signalConfidence, riskScore float64, ctaLevel int) (float64, domain.CTSBreakdown, error) {
	if signalConfidence < 0 || signalConfidence > 1 {
		return 0, domain.CTSBreakdown{}, fmt.Errorf("%w: signal_confidence must be between 0.0 and 1.0, got %v", domain.ErrInvalidArgument, signalConfidence)
	}
	if riskScore < 0 || riskScore > 1 {
		return 0, domain.CTSBreakdown{}, fmt.Errorf("%w: risk_score must be between 0.0 and 1.0, got %v", domain.ErrInvalidArgument, riskScore)
	}
	if ctaLevel < 0 || ctaLevel > 3 {
		return 0, domain.CTSBreakdown{}, fmt.Errorf("%w: cta_level must be between 0 and 3, got %d", domain.ErrInvalidArgument, ctaLevel)
	}

	signalComponent := signalConfidence * signalWeight
	riskComponent := (1 - riskScore) * riskWeight
	ctaComponent := (1 - float64(ctaLevel)/3) * ctaWeight

	score := round4(signalComponent + riskComponent + ctaComponent)
	breakdown := domain.CTSBreakdown{
		SignalComponent: round4(signalComponent),
		RiskComponent:   round4(riskComponent),
		CTAComponent:    round4(ctaComponent),
	}
	return score, breakdown, nil
}

// DetermineAutoPost gates automatic posting: the score must reach 0.7, risk
// must be low, and the CTA level must not exceed 1.
func DetermineAutoPost(ctsScore float64, riskLevel domain.RiskLevel, ctaLevel int) (bool, string) {
	var against []string
	if ctsScore < ctsAutoPostThreshold {
		against = append(against, fmt.Sprintf("CTS score (%.2f) below %v threshold", ctsScore, ctsAutoPostThreshold))
	}
	if riskLevel != domain.RiskLow {
		against = append(against, fmt.Sprintf("Risk level is '%s' (must be 'low')", riskLevel))
	}
	if ctaLevel > maxCTALevelForAutoPost {
		against = append(against, fmt.Sprintf("CTA level (%d) exceeds maximum (%d)", ctaLevel, maxCTALevelForAutoPost))
	}

	if len(against) == 0 {
		return true, fmt.Sprintf("CTS score (%.2f) meets threshold, risk is low, and CTA level (%d) is acceptable.", ctsScore, ctaLevel)
	}
	reason := against[0]
	for _, r := range against[1:] {
		reason += "; " + r
	}
	return false, reason + "."
}

// Decide assembles the full CTS output for a scored post, including the
// operator-facing decision factors.
func Decide(sig domain.Signal, risk domain.Risk, ctaLevel int) (domain.CTS, error) {
	score, breakdown, err := CalculateCTS(sig.Confidence, risk.Score, ctaLevel)
	if err != nil {
		return domain.CTS{}, fmt.Errorf("op=cts.Decide: %w", err)
	}
	canAutoPost, reason := DetermineAutoPost(score, risk.Level, ctaLevel)

	factors := []string{
		fmt.Sprintf("Signal component: %.2f", breakdown.SignalComponent),
		fmt.Sprintf("Risk component: %.2f", breakdown.RiskComponent),
		fmt.Sprintf("CTA component: %.2f", breakdown.CTAComponent),
		reason,
	}

	action := "Queue for team review"
	switch {
	case canAutoPost:
		action = "Safe for auto-posting"
	case risk.Level == domain.RiskHigh:
		action = "Requires senior review before posting"
	}

	return domain.CTS{
		Score:             math.Round(score*100) / 100,
		CanAutoPost:       canAutoPost,
		AutoPostReason:    reason,
		RequiresReview:    !canAutoPost,
		RecommendedAction: action,
		Breakdown:         breakdown,
		DecisionFactors:   factors,
	}, nil
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
