package pipeline

import (
	"math"
	"regexp"
	"strings"

	"github.com/reachby3cs/engage/internal/domain"
)

// CTA pattern tiers, checked highest first. A direct match short-circuits
// medium and soft.
var directCTAPatterns = compileAll([]string{
	`sign\s*up`,
	`get\s*started`,
	`try\s*(it\s*)?free`,
	`click\s*here`,
	`use\s*code`,
	`%\s*off`,
	`discount`,
	`https?://`,
	`www\.`,
	`\.com/`,
	`\[link\]`,
	`register\s*(now|today|here)`,
})

var mediumCTAPatterns = compileAll([]string{
	`i\s*(built|created|made|developed)`,
	`check\s*(out|it out)`,
	`my\s*(app|tool|product|service|team)`,
	`our\s*(app|tool|product|service)`,
	`called\s+\w+`,
	`named\s+\w+`,
})

var softCTAPatterns = compileAll([]string{
	`there\s*are\s*(some\s*)?(apps?|tools?|solutions?)`,
	`(apps?|tools?)\s*(that\s*)?(can|could|might)\s*help`,
	`some\s*people\s*(use|find|try)`,
	`you\s*could\s*try\s*(using|some)`,
	`(journaling|meditation|tracking)\s*(apps?|tools?)`,
})

var (
	linkRe    = regexp.MustCompile(`https?://|www\.|\.com/`)
	signupRe  = regexp.MustCompile(`sign\s*up|register|get\s*started`)
	productRe = compileAll([]string{
		`(my|our)\s*(app|tool|product|service)`,
		`called\s+\w+`,
		`\w+\.com`,
	})
)

// CTAClassifier assigns a promotional level 0-3 to a generated response
// using pattern tables. No provider call is involved.
type CTAClassifier struct{}

// NewCTAClassifier returns a rule-based classifier.
func NewCTAClassifier() *CTAClassifier { return &CTAClassifier{} }

// Classify scores responseText. Matching is case-insensitive; levels are
// checked from direct (3) down to soft (1), defaulting to 0.
func (c *CTAClassifier) Classify(responseText string) domain.CTA {
	lower := strings.ToLower(responseText)

	if matches := findMatches(lower, directCTAPatterns); len(matches) > 0 {
		return cta(3, domain.CTAAnalysis{
			Reasoning:          "Direct CTA patterns detected (links, signup language, or discounts)",
			PromotionalPhrases: matches,
			ProductMentions:    hasProductMention(lower),
			LinkPresent:        linkRe.MatchString(lower),
			SignupLanguage:     signupRe.MatchString(lower),
			ValueRatio:         valueRatio(lower, matches),
		})
	}
	if matches := findMatches(lower, mediumCTAPatterns); len(matches) > 0 {
		return cta(2, domain.CTAAnalysis{
			Reasoning:          "Named product/tool reference detected",
			PromotionalPhrases: matches,
			ProductMentions:    true,
			ValueRatio:         valueRatio(lower, matches),
		})
	}
	if matches := findMatches(lower, softCTAPatterns); len(matches) > 0 {
		return cta(1, domain.CTAAnalysis{
			Reasoning:          "Subtle mention of tools or solutions without specific names",
			PromotionalPhrases: matches,
			ValueRatio:         valueRatio(lower, matches),
		})
	}
	return cta(0, domain.CTAAnalysis{
		Reasoning:          "Pure value response with no promotional content detected",
		PromotionalPhrases: []string{},
		ValueRatio:         1.0,
	})
}

func cta(level int, analysis domain.CTAAnalysis) domain.CTA {
	return domain.CTA{
		Level:    level,
		Type:     domain.CTATypeForLevel(level),
		Analysis: analysis,
	}
}

// findMatches returns the first match of each pattern, deduplicated.
func findMatches(text string, patterns []*regexp.Regexp) []string {
	var matches []string
	seen := map[string]struct{}{}
	for _, re := range patterns {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		matches = append(matches, m)
	}
	return matches
}

func hasProductMention(text string) bool {
	for _, re := range productRe {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// valueRatio is the share of the text that is not promotional phrasing,
// rounded to two decimals.
func valueRatio(text string, promotional []string) float64 {
	if len(promotional) == 0 {
		return 1.0
	}
	if len(text) == 0 {
		return 0.0
	}
	promoLen := 0
	for _, p := range promotional {
		promoLen += len(p)
	}
	ratio := 1.0 - float64(promoLen)/float64(len(text))
	if ratio < 0 {
		ratio = 0
	}
	return math.Round(ratio*100) / 100
}
