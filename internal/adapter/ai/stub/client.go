// Package stub provides a deterministic AIClient for development and tests.
// Outputs are derived from the prompt text only, so runs are reproducible.
package stub

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/reachby3cs/engage/internal/domain"
)

// Client is a deterministic domain.AIClient. The skill is inferred from the
// system prompt; the user prompt drives the canned analysis.
type Client struct{}

// New returns a stub client.
func New() *Client { return &Client{} }

type categoryRule struct {
	category string
	words    []string
}

// Ordered: first match wins.
var categoryRules = []categoryRule{
	{"relationship_communication", []string{"partner", "relationship", "couple", "marriage"}},
	{"workplace_conflict", []string{"coworker", "boss", "workplace"}},
	{"mental_health_stress", []string{"anxious", "anxiety", "stress", "overwhelmed", "burnout"}},
	{"personal_growth", []string{"organized", "habit", "productivity", "managing my time", "time management", "improve myself"}},
	{"decision_making", []string{"decide", "decision", "choice", "torn between"}},
	{"financial_distress", []string{"debt", "money", "afford", "broke"}},
	{"parenting", []string{"toddler", "parenting", "my kid", "my child"}},
	{"health_concern", []string{"doctor", "symptom", "diagnosis"}},
}

// ChatJSON fabricates a structured response for the requesting skill.
func (c *Client) ChatJSON(_ domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	sys := strings.ToLower(systemPrompt)
	switch {
	case strings.Contains(sys, "signal"):
		return c.signalJSON(userPrompt)
	case strings.Contains(sys, "risk"):
		return c.riskJSON(userPrompt)
	case strings.Contains(sys, "response"):
		return c.responsesJSON(userPrompt)
	case strings.Contains(sys, "call-to-action"), strings.Contains(sys, "cta"):
		return `{"cta_level": 0, "reasoning": "stub classification", "promotional_phrases": [], "product_mentions": false, "link_present": false, "signup_language": false, "value_ratio": 1.0}`, nil
	default:
		return "{}", nil
	}
}

func (c *Client) signalJSON(text string) (string, error) {
	lower := strings.ToLower(text)
	category := "other"
	for _, r := range categoryRules {
		for _, w := range r.words {
			if strings.Contains(lower, w) {
				category = r.category
				break
			}
		}
		if category != "other" {
			break
		}
	}

	intensity := 0.4
	for _, w := range []string{"desperate", "can't", "exhausted", "hate", "crying"} {
		if strings.Contains(lower, w) {
			intensity = 0.75
			break
		}
	}

	keywords := make([]string, 0, 4)
	for _, w := range strings.Fields(lower) {
		w = strings.Trim(w, ".,!?\"'")
		if len(w) >= 8 && len(keywords) < 4 {
			keywords = append(keywords, w)
		}
	}

	out := map[string]any{
		"problem_category":    category,
		"emotional_intensity": intensity,
		"keywords":            keywords,
		"confidence":          0.85,
		"reasoning":           "stub analysis",
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("op=stub.signalJSON: %w", err)
	}
	return string(b), nil
}

func (c *Client) riskJSON(text string) (string, error) {
	lower := strings.ToLower(text)
	level, score := "low", 0.15
	switch {
	case strings.Contains(lower, "divorce"), strings.Contains(lower, "lawyer"), strings.Contains(lower, "fired"):
		level, score = "high", 0.75
	case strings.Contains(lower, "crying"), strings.Contains(lower, "desperate"), strings.Contains(lower, "hopeless"):
		level, score = "medium", 0.45
	}
	out := map[string]any{
		"risk_level":    level,
		"risk_score":    score,
		"risk_factors":  []string{},
		"context_flags": []string{},
		"reasoning":     "stub analysis",
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("op=stub.riskJSON: %w", err)
	}
	return string(b), nil
}

func (c *Client) responsesJSON(_ string) (string, error) {
	out := map[string]any{
		"problem_understanding": "The author is looking for practical help with a recurring personal challenge.",
		"emotional_tone":        "frustrated but hopeful",
		"key_pain_points":       []string{"lack of structure", "inconsistent follow-through"},
		"response_strategy":     "validate, then share a concrete tactic",
		"value_first_response":  "That's a really common struggle. What helped me was picking one small anchor habit and attaching everything else to it. Have you tried starting with just one fixed point in your day?",
		"soft_cta_response":     "That's a really common struggle. Starting with one small anchor habit helps a lot, and there are some tools that can make tracking the follow-through easier.",
		"contextual_response":   "Been there. Picking one anchor habit and tracking it made the biggest difference for me, and finding the right app to keep me honest sealed it.",
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("op=stub.responsesJSON: %w", err)
	}
	return string(b), nil
}

// Embed returns a deterministic unit-ish vector per text.
func (c *Client) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	const dim = 16
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(t))
		seed := h.Sum64()
		v := make([]float32, dim)
		for j := range v {
			seed = seed*6364136223846793005 + 1442695040888963407
			v[j] = float32(int64(seed>>33))/float32(1<<31) - 0.5
		}
		vecs[i] = v
	}
	return vecs, nil
}
