package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
)

func TestCalculateCTS_WeightedFormula(t *testing.T) {
	t.Parallel()
	score, breakdown, err := pipeline.CalculateCTS(0.85, 0.15, 1)
	require.NoError(t, err)

	// 0.4*0.85 + 0.3*0.85 + 0.3*(2/3) = 0.795
	assert.InDelta(t, 0.795, score, 1e-9)
	assert.InDelta(t, 0.34, breakdown.SignalComponent, 1e-9)
	assert.InDelta(t, 0.255, breakdown.RiskComponent, 1e-9)
	assert.InDelta(t, 0.2, breakdown.CTAComponent, 1e-9)
}

func TestCalculateCTS_Bounds(t *testing.T) {
	t.Parallel()
	score, _, err := pipeline.CalculateCTS(1.0, 0.0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	score, _, err = pipeline.CalculateCTS(0.0, 1.0, 3)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCalculateCTS_InvalidInputs(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name       string
		confidence float64
		risk       float64
		cta        int
	}{
		{"confidence above one", 1.2, 0.5, 0},
		{"negative risk", 0.5, -0.1, 0},
		{"cta out of range", 0.5, 0.5, 4},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := pipeline.CalculateCTS(tc.confidence, tc.risk, tc.cta)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestDetermineAutoPost_AllGatesPass(t *testing.T) {
	t.Parallel()
	ok, reason := pipeline.DetermineAutoPost(0.85, domain.RiskLow, 1)
	assert.True(t, ok)
	assert.Contains(t, reason, "meets threshold")
}

func TestDetermineAutoPost_FailureReasons(t *testing.T) {
	t.Parallel()

	ok, reason := pipeline.DetermineAutoPost(0.6, domain.RiskLow, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "below 0.7 threshold")

	ok, reason = pipeline.DetermineAutoPost(0.9, domain.RiskMedium, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "Risk level is 'medium'")

	ok, reason = pipeline.DetermineAutoPost(0.9, domain.RiskLow, 2)
	assert.False(t, ok)
	assert.Contains(t, reason, "CTA level (2) exceeds maximum (1)")
}

func TestDetermineAutoPost_CombinedReasons(t *testing.T) {
	t.Parallel()
	ok, reason := pipeline.DetermineAutoPost(0.2, domain.RiskHigh, 3)
	assert.False(t, ok)
	assert.Contains(t, reason, "below 0.7 threshold")
	assert.Contains(t, reason, "Risk level is 'high'")
	assert.Contains(t, reason, "exceeds maximum")
}

func TestDecide_FactorsAndActions(t *testing.T) {
	t.Parallel()
	sig := domain.Signal{Confidence: 0.9}
	risk := domain.Risk{Level: domain.RiskLow, Score: 0.1}

	cts, err := pipeline.Decide(sig, risk, 0)
	require.NoError(t, err)
	assert.True(t, cts.CanAutoPost)
	assert.False(t, cts.RequiresReview)
	assert.Equal(t, "Safe for auto-posting", cts.RecommendedAction)
	require.Len(t, cts.DecisionFactors, 4)
	assert.Equal(t, "Signal component: 0.36", cts.DecisionFactors[0])
	assert.Equal(t, "Risk component: 0.27", cts.DecisionFactors[1])
	assert.Equal(t, "CTA component: 0.30", cts.DecisionFactors[2])

	highRisk := domain.Risk{Level: domain.RiskHigh, Score: 0.8}
	cts, err = pipeline.Decide(sig, highRisk, 0)
	require.NoError(t, err)
	assert.False(t, cts.CanAutoPost)
	assert.True(t, cts.RequiresReview)
	assert.Equal(t, "Requires senior review before posting", cts.RecommendedAction)

	mediumRisk := domain.Risk{Level: domain.RiskMedium, Score: 0.5}
	cts, err = pipeline.Decide(sig, mediumRisk, 0)
	require.NoError(t, err)
	assert.Equal(t, "Queue for team review", cts.RecommendedAction)
}
