package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/domain"
)

// Result is the full pipeline output for one post. Responses and CTA are
// zero-valued when Blocked is true.
type Result struct {
	Signal    domain.Signal
	Risk      domain.Risk
	Responses domain.Responses
	CTA       domain.CTA
	CTS       domain.CTS
	Blocked   bool
}

// Pipeline wires the stages together. All stages degrade internally, so
// Analyze only fails on invalid input or context cancellation.
type Pipeline struct {
	signal    *SignalDetector
	risk      *RiskScorer
	responses *ResponseGenerator
	cta       *CTAClassifier
}

// New builds a pipeline over the given AI client.
func New(ai domain.AIClient) *Pipeline {
	return &Pipeline{
		signal:    NewSignalDetector(ai),
		risk:      NewRiskScorer(ai),
		responses: NewResponseGenerator(ai),
		cta:       NewCTAClassifier(),
	}
}

// Analyze runs signal detection, risk scoring, response generation, CTA
// classification, and the CTS decision in order. Blocked risk terminates
// after stage two with a zero score and no drafts.
func (p *Pipeline) Analyze(ctx domain.Context, text, platform string, tenant domain.TenantContext) (Result, error) {
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty text", domain.ErrInvalidArgument)
	}
	if platform == "" {
		platform = "other"
	}

	start := time.Now()
	sig, err := p.signal.Detect(ctx, text, platform)
	observability.ObserveStage("signal", start)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("op=pipeline.Analyze: %w", err)
	}

	start = time.Now()
	risk, err := p.risk.Score(ctx, text, sig)
	observability.ObserveStage("risk", start)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("op=pipeline.Analyze: %w", err)
	}

	if risk.Level == domain.RiskBlocked {
		slog.Warn("pipeline terminated early, content blocked",
			slog.String("platform", platform))
		observability.PipelineRunsTotal.WithLabelValues("blocked").Inc()
		return Result{
			Signal:  sig,
			Risk:    risk,
			Blocked: true,
			CTS: domain.CTS{
				Score:             0.0,
				CanAutoPost:       false,
				RequiresReview:    false,
				DecisionFactors:   []string{"Content blocked due to crisis indicators"},
				RecommendedAction: "Do not engage - route to crisis protocol",
			},
		}, nil
	}

	start = time.Now()
	responses, err := p.responses.Generate(ctx, text, platform, sig.ProblemCategory, risk.Level, tenant)
	observability.ObserveStage("response", start)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("op=pipeline.Analyze: %w", err)
	}

	start = time.Now()
	cta := p.cta.Classify(responses.Selected)
	observability.ObserveStage("cta", start)

	start = time.Now()
	cts, err := Decide(sig, risk, cta.Level)
	observability.ObserveStage("cts", start)
	if err != nil {
		observability.PipelineRunsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("op=pipeline.Analyze: %w", err)
	}
	observability.ObserveCTS(cts.Score)
	observability.PipelineRunsTotal.WithLabelValues("completed").Inc()

	slog.Info("pipeline complete",
		slog.String("platform", platform),
		slog.String("category", sig.ProblemCategory),
		slog.String("risk_level", string(risk.Level)),
		slog.Int("cta_level", cta.Level),
		slog.Float64("cts_score", cts.Score),
		slog.Bool("can_auto_post", cts.CanAutoPost))

	return Result{
		Signal:    sig,
		Risk:      risk,
		Responses: responses,
		CTA:       cta,
		CTS:       cts,
	}, nil
}
