package httpserver

import (
	"fmt"
	"net/http"

	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
)

type tenantContextBody struct {
	AppName        string   `json:"app_name"`
	ValueProp      string   `json:"value_prop"`
	TargetAudience string   `json:"target_audience"`
	KeyBenefits    []string `json:"key_benefits"`
	WebsiteURL     string   `json:"website_url"`
}

func (t *tenantContextBody) toDomain() domain.TenantContext {
	if t == nil {
		return domain.TenantContext{}
	}
	return domain.TenantContext{
		AppName:        t.AppName,
		ValueProp:      t.ValueProp,
		TargetAudience: t.TargetAudience,
		KeyBenefits:    t.KeyBenefits,
		WebsiteURL:     t.WebsiteURL,
	}
}

type signalBody struct {
	ProblemCategory    string         `json:"problem_category"`
	EmotionalIntensity float64        `json:"emotional_intensity"`
	Keywords           []string       `json:"keywords"`
	Confidence         float64        `json:"confidence"`
	RawAnalysis        map[string]any `json:"raw_analysis,omitempty"`
}

func signalToBody(sig domain.Signal, includeRaw bool) *signalBody {
	b := &signalBody{
		ProblemCategory:    sig.ProblemCategory,
		EmotionalIntensity: sig.EmotionalIntensity,
		Keywords:           sig.Keywords,
		Confidence:         sig.Confidence,
	}
	if includeRaw {
		b.RawAnalysis = sig.RawAnalysis
	}
	return b
}

type riskBody struct {
	RiskLevel         string   `json:"risk_level"`
	RiskScore         float64  `json:"risk_score"`
	RiskFactors       []string `json:"risk_factors"`
	ContextFlags      []string `json:"context_flags"`
	RecommendedAction string   `json:"recommended_action"`
}

func riskToBody(r domain.Risk) *riskBody {
	return &riskBody{
		RiskLevel:         string(r.Level),
		RiskScore:         r.Score,
		RiskFactors:       r.Factors,
		ContextFlags:      r.ContextFlags,
		RecommendedAction: r.RecommendedAction,
	}
}

type responsesBody struct {
	ValueFirstResponse string `json:"value_first_response"`
	SoftCTAResponse    string `json:"soft_cta_response"`
	ContextualResponse string `json:"contextual_response"`
	SelectedResponse   string `json:"selected_response"`
	SelectedType       string `json:"selected_type"`
}

func responsesToBody(r domain.Responses) *responsesBody {
	return &responsesBody{
		ValueFirstResponse: r.ValueFirst,
		SoftCTAResponse:    r.SoftCTA,
		ContextualResponse: r.Contextual,
		SelectedResponse:   r.Selected,
		SelectedType:       string(r.SelectedType),
	}
}

type ctaAnalysisBody struct {
	Reasoning          string   `json:"reasoning"`
	PromotionalPhrases []string `json:"promotional_phrases"`
	ProductMentions    bool     `json:"product_mentions"`
	LinkPresent        bool     `json:"link_present"`
	SignupLanguage     bool     `json:"signup_language"`
	ValueRatio         float64  `json:"value_ratio"`
}

type ctaSummaryBody struct {
	CTALevel int    `json:"cta_level"`
	CTAType  string `json:"cta_type"`
}

type ctsSummaryBody struct {
	CTSScore          float64  `json:"cts_score"`
	CanAutoPost       bool     `json:"can_auto_post"`
	RequiresReview    bool     `json:"requires_review"`
	DecisionFactors   []string `json:"decision_factors"`
	RecommendedAction string   `json:"recommended_action"`
}

type analyzeResponseBody struct {
	Signal    *signalBody     `json:"signal,omitempty"`
	Risk      *riskBody       `json:"risk,omitempty"`
	Responses *responsesBody  `json:"responses,omitempty"`
	CTA       *ctaSummaryBody `json:"cta,omitempty"`
	CTS       *ctsSummaryBody `json:"cts,omitempty"`
	Blocked   bool            `json:"blocked"`
	Error     string          `json:"error,omitempty"`
}

// AnalyzeHandler runs the full five-stage pipeline on one post.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text          string             `json:"text" validate:"required,max=10000"`
			Platform      string             `json:"platform" validate:"required,oneof=reddit twitter quora"`
			TenantContext *tenantContextBody `json:"tenant_context"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		res, err := s.Pipeline.Analyze(r.Context(), req.Text, req.Platform, req.TenantContext.toDomain())
		if err != nil {
			writeError(w, r, fmt.Errorf("analyze: %w", err), nil)
			return
		}
		body := analyzeResponseBody{
			Signal:  signalToBody(res.Signal, false),
			Risk:    riskToBody(res.Risk),
			Blocked: res.Blocked,
			CTS: &ctsSummaryBody{
				CTSScore:          res.CTS.Score,
				CanAutoPost:       res.CTS.CanAutoPost,
				RequiresReview:    res.CTS.RequiresReview,
				DecisionFactors:   res.CTS.DecisionFactors,
				RecommendedAction: res.CTS.RecommendedAction,
			},
		}
		if !res.Blocked {
			body.Responses = responsesToBody(res.Responses)
			body.CTA = &ctaSummaryBody{CTALevel: res.CTA.Level, CTAType: string(res.CTA.Type)}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// SignalDetectionHandler exposes stage one as a standalone skill.
func (s *Server) SignalDetectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text     string `json:"text" validate:"required,max=10000"`
			Platform string `json:"platform" validate:"required"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sig, err := s.signal.Detect(r.Context(), req.Text, req.Platform)
		if err != nil {
			writeError(w, r, fmt.Errorf("signal detection: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, signalToBody(sig, true))
	}
}

// RiskScoringHandler exposes stage two as a standalone skill.
func (s *Server) RiskScoringHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text               string   `json:"text" validate:"required,max=10000"`
			EmotionalIntensity float64  `json:"emotional_intensity" validate:"gte=0,lte=1"`
			ProblemCategory    string   `json:"problem_category"`
			Keywords           []string `json:"keywords"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sig := domain.Signal{
			ProblemCategory:    req.ProblemCategory,
			EmotionalIntensity: req.EmotionalIntensity,
			Keywords:           req.Keywords,
		}
		risk, err := s.risk.Score(r.Context(), req.Text, sig)
		if err != nil {
			writeError(w, r, fmt.Errorf("risk scoring: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, riskToBody(risk))
	}
}

// ResponseGenerationHandler exposes stage three as a standalone skill.
func (s *Server) ResponseGenerationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text            string             `json:"text" validate:"required,max=10000"`
			ProblemCategory string             `json:"problem_category"`
			RiskLevel       string             `json:"risk_level" validate:"required,oneof=low medium high"`
			Platform        string             `json:"platform" validate:"required"`
			TenantContext   *tenantContextBody `json:"tenant_context"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := s.gen.Generate(r.Context(), req.Text, req.Platform, req.ProblemCategory, domain.RiskLevel(req.RiskLevel), req.TenantContext.toDomain())
		if err != nil {
			writeError(w, r, fmt.Errorf("response generation: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, responsesToBody(out))
	}
}

// CTAClassifierHandler exposes the rule-based stage four as a skill.
func (s *Server) CTAClassifierHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseText string `json:"response_text" validate:"required"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		res := s.cta.Classify(req.ResponseText)
		writeJSON(w, http.StatusOK, map[string]any{
			"cta_level": res.Level,
			"cta_type":  string(res.Type),
			"cta_analysis": ctaAnalysisBody{
				Reasoning:          res.Analysis.Reasoning,
				PromotionalPhrases: res.Analysis.PromotionalPhrases,
				ProductMentions:    res.Analysis.ProductMentions,
				LinkPresent:        res.Analysis.LinkPresent,
				SignupLanguage:     res.Analysis.SignupLanguage,
				ValueRatio:         res.Analysis.ValueRatio,
			},
		})
	}
}

// CTSDecisionHandler exposes the stage-five scoring rule as a skill.
func (s *Server) CTSDecisionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SignalConfidence   float64 `json:"signal_confidence" validate:"gte=0,lte=1"`
			RiskLevel          string  `json:"risk_level" validate:"required,oneof=low medium high blocked"`
			RiskScore          float64 `json:"risk_score" validate:"gte=0,lte=1"`
			CTALevel           int     `json:"cta_level" validate:"gte=0,lte=3"`
			EmotionalIntensity float64 `json:"emotional_intensity" validate:"gte=0,lte=1"`
		}
		if details, err := decodeValid(r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sig := domain.Signal{Confidence: req.SignalConfidence, EmotionalIntensity: req.EmotionalIntensity}
		risk := domain.Risk{Level: domain.RiskLevel(req.RiskLevel), Score: req.RiskScore}
		cts, err := pipeline.Decide(sig, risk, req.CTALevel)
		if err != nil {
			writeError(w, r, fmt.Errorf("cts decision: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cts_score":        cts.Score,
			"can_auto_post":    cts.CanAutoPost,
			"auto_post_reason": cts.AutoPostReason,
			"cts_breakdown": map[string]float64{
				"signal_component": cts.Breakdown.SignalComponent,
				"risk_component":   cts.Breakdown.RiskComponent,
				"cta_component":    cts.Breakdown.CTAComponent,
			},
		})
	}
}
