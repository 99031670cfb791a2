package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/reachby3cs/engage/internal/domain"
)

// allowedResponseTypes lists which variants each risk level may use. The
// first entry is the default selection.
var allowedResponseTypes = map[domain.RiskLevel][]domain.ResponseType{
	domain.RiskLow:    {domain.ResponseContextual, domain.ResponseSoftCTA, domain.ResponseValueFirst},
	domain.RiskMedium: {domain.ResponseSoftCTA, domain.ResponseValueFirst},
	domain.RiskHigh:   {domain.ResponseValueFirst},
}

// ResponseGenerator produces the three response variants and selects one
// based on risk level. Provider failures fall back to canned per-platform
// templates so a post is never left without a reviewable draft.
type ResponseGenerator struct {
	ai   domain.AIClient
	tone *ToneAdapter
}

// NewResponseGenerator constructs a generator.
func NewResponseGenerator(ai domain.AIClient) *ResponseGenerator {
	return &ResponseGenerator{ai: ai, tone: NewToneAdapter()}
}

// Generate builds value_first, soft_cta, and contextual variants for text,
// adapts their tone to the platform, and selects by risk level: high risk
// only ever sees value_first, medium defaults to soft_cta, low to contextual.
func (g *ResponseGenerator) Generate(ctx domain.Context, text, platform, problemCategory string, riskLevel domain.RiskLevel, tenant domain.TenantContext) (domain.Responses, error) {
	if text == "" {
		return domain.Responses{}, fmt.Errorf("%w: empty text", domain.ErrInvalidArgument)
	}

	raw, err := g.ai.ChatJSON(ctx, responseSystemPrompt, formatResponsePrompt(text, platform, problemCategory, tenant), 0)
	if err != nil {
		slog.Warn("response generation degraded to fallback templates",
			slog.String("op", "response.Generate"), slog.Any("error", err))
		return g.fallback(text, platform, err), nil
	}

	var parsed struct {
		ProblemUnderstanding string   `json:"problem_understanding"`
		EmotionalTone        string   `json:"emotional_tone"`
		KeyPainPoints        []string `json:"key_pain_points"`
		ResponseStrategy     string   `json:"response_strategy"`
		ValueFirstResponse   string   `json:"value_first_response"`
		SoftCTAResponse      string   `json:"soft_cta_response"`
		ContextualResponse   string   `json:"contextual_response"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("response generation got invalid JSON",
			slog.String("op", "response.Generate"), slog.Any("error", err))
		return g.fallback(text, platform, err), nil
	}
	if parsed.ValueFirstResponse == "" {
		return g.fallback(text, platform, fmt.Errorf("%w: missing value_first_response", domain.ErrSchemaInvalid)), nil
	}

	out := domain.Responses{
		ValueFirst: g.tone.Adapt(parsed.ValueFirstResponse, platform),
		SoftCTA:    g.tone.Adapt(parsed.SoftCTAResponse, platform),
		Contextual: g.tone.Adapt(parsed.ContextualResponse, platform),
		RawAnalysis: map[string]any{
			"problem_understanding": parsed.ProblemUnderstanding,
			"emotional_tone":        parsed.EmotionalTone,
			"key_pain_points":       parsed.KeyPainPoints,
			"response_strategy":     parsed.ResponseStrategy,
			"risk_level":            string(riskLevel),
			"platform":              platform,
		},
	}
	out.SelectedType = selectResponseType(riskLevel)
	out.Selected = variantFor(out, out.SelectedType)
	return out, nil
}

func selectResponseType(riskLevel domain.RiskLevel) domain.ResponseType {
	if types, ok := allowedResponseTypes[riskLevel]; ok {
		return types[0]
	}
	// Unknown levels get the no-CTA variant.
	return domain.ResponseValueFirst
}

func variantFor(r domain.Responses, t domain.ResponseType) string {
	switch t {
	case domain.ResponseSoftCTA:
		return r.SoftCTA
	case domain.ResponseContextual:
		return r.Contextual
	default:
		return r.ValueFirst
	}
}

var fallbackTemplates = map[domain.ResponseType]map[string]string{
	domain.ResponseValueFirst: {
		"reddit": "That's a common challenge many of us face. " +
			"What's worked for others in similar situations is taking " +
			"it step by step and finding what specifically triggers " +
			"the issue for you. Have you noticed any patterns?",
		"twitter": "This is something a lot of people struggle with. " +
			"Taking it step by step usually helps. What's your main blocker?",
		"quora": "This is a question many people face. Based on common experiences, " +
			"the most effective approach is to break down the problem into " +
			"smaller, manageable parts and address each one systematically.",
	},
	domain.ResponseSoftCTA: {
		"reddit": "Totally get this. It's something a lot of people struggle with. " +
			"Taking it step by step helps, and there are also some tools out " +
			"there that can make tracking progress easier.",
		"twitter": "Many people face this! Breaking it down helps, " +
			"and there are tools that can make it easier.",
		"quora": "This is a common challenge. The most effective approach involves " +
			"systematic problem-solving, and there are various tools and " +
			"applications specifically designed to help with this.",
	},
	domain.ResponseContextual: {
		"reddit": "Been there! It took me a while to figure out what worked. " +
			"Breaking things down into smaller pieces helped a lot, " +
			"and finding the right tools made tracking progress so much easier.",
		"twitter": "Totally been there! Finding the right approach + tools made " +
			"all the difference for me.",
		"quora": "This is a challenge I've encountered myself. In my experience, " +
			"combining a structured approach with the right tools has been " +
			"particularly effective for managing this type of situation.",
	},
}

func fallbackTemplate(t domain.ResponseType, platform string) string {
	byPlatform := fallbackTemplates[t]
	if s, ok := byPlatform[platform]; ok {
		return s
	}
	return byPlatform["reddit"]
}

// fallback always selects value_first, the safe choice for error paths.
func (g *ResponseGenerator) fallback(text, platform string, cause error) domain.Responses {
	out := domain.Responses{
		ValueFirst: fallbackTemplate(domain.ResponseValueFirst, platform),
		SoftCTA:    fallbackTemplate(domain.ResponseSoftCTA, platform),
		Contextual: fallbackTemplate(domain.ResponseContextual, platform),
		RawAnalysis: map[string]any{
			"error":         cause.Error(),
			"original_text": truncate(text, 500),
			"platform":      platform,
			"fallback_used": true,
		},
	}
	out.SelectedType = domain.ResponseValueFirst
	out.Selected = out.ValueFirst
	return out
}
