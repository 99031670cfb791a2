// Package crisis implements a fast pattern-based pre-filter for dangerous
// content. It runs before any LLM call so blocked posts never incur
// provider cost.
package crisis

import (
	"regexp"
	"strings"
)

// Categories reported by the detector.
const (
	CategorySelfHarm           = "self_harm"
	CategoryViolence           = "violence"
	CategoryMentalHealthCrisis = "mental_health_crisis"
)

type pattern struct {
	re          *regexp.Regexp
	category    string
	severity    float64
	description string
}

// Result describes one detection pass over a piece of text.
type Result struct {
	IsCrisis        bool
	MatchedPatterns []string
	Category        string
	Confidence      float64
}

var selfHarmPatterns = []struct {
	expr        string
	description string
	severity    float64
}{
	{`\b(kill\s*(my)?self)\b`, "explicit self-harm intent", 1.0},
	{`\b(end\s*(it\s*)?all)\b`, "suicidal ideation phrase", 0.95},
	{`\b(suicide|suicidal)\b`, "suicide keyword", 0.9},
	{`\b(want\s*to\s*die)\b`, "death wish expression", 0.95},
	{`\b(better\s*off\s*dead)\b`, "suicidal ideation", 0.95},
	{`\b(take\s*my\s*(own\s*)?life)\b`, "explicit self-harm intent", 1.0},
	{`\b(slit\s*(my\s*)?(wrist|throat)s?)\b`, "self-harm method", 1.0},
	{`\b(overdose|od)\b.*\b(myself|me)\b`, "self-harm method", 0.9},
	{`\b(hang\s*(my)?self)\b`, "self-harm method", 1.0},
	{`\b(jump\s*(off|from))\b.*\b(bridge|building|roof)\b`, "self-harm method", 0.9},
	{`\b(no\s*reason\s*to\s*live)\b`, "suicidal ideation", 0.9},
	{`\b(cut\s*(my)?self)\b`, "self-harm behavior", 0.85},
	{`\b(self[- ]?harm)\b`, "self-harm keyword", 0.85},
	{`\b(don'?t\s*want\s*to\s*be\s*(here|alive))\b`, "suicidal ideation", 0.9},
}

var violencePatterns = []struct {
	expr        string
	description string
	severity    float64
}{
	{`\b(kill\s*(him|her|them|you|someone|people))\b`, "violent threat", 0.95},
	{`\b(hurt\s*(someone|people|them|him|her))\b`, "violent intent", 0.85},
	{`\b(revenge)\b.*\b(kill|hurt|attack|shoot|stab)\b`, "revenge violence", 0.95},
	{`\b(shoot\s*(up|them|people|everyone))\b`, "mass violence threat", 1.0},
	{`\b(bomb|bombing)\b.*\b(place|school|building|people)\b`, "terrorism threat", 1.0},
	{`\b(murder|murderous)\b`, "murder reference", 0.8},
	{`\b(attack\s*(people|them|someone))\b`, "violent intent", 0.85},
	{`\b(stab\s*(someone|them|him|her))\b`, "violent threat", 0.95},
	{`\b(beat\s*(up|them|him|her)\s*(badly|to\s*death)?)\b`, "violent intent", 0.85},
	{`\b(make\s*(them|him|her)\s*pay)\b.*\b(hurt|suffer|die)\b`, "revenge violence", 0.9},
	{`\b(bring\s*a\s*(gun|weapon|knife))\b`, "weapon threat", 0.95},
}

var mentalHealthPatterns = []struct {
	expr        string
	description string
	severity    float64
}{
	{`\b(can'?t\s*go\s*on)\b`, "crisis expression", 0.8},
	{`\b(no\s*point)\b.*\b(living|life|anymore)\b`, "hopelessness", 0.9},
	{`\b(give\s*up)\b.*\b(life|everything|living)\b`, "giving up on life", 0.85},
	{`\b(everyone\s*(would\s*be|is)\s*better\s*off\s*without\s*me)\b`, "suicidal ideation", 0.95},
	{`\b(goodbye)\b.*\b(forever|final|last)\b`, "final goodbye", 0.85},
	{`\b(this\s*is\s*(my\s*)?(goodbye|the\s*end))\b`, "farewell message", 0.9},
	{`\b(can'?t\s*take\s*(it|this)\s*(anymore|any\s*more))\b`, "crisis expression", 0.75},
	{`\b(nothing\s*matters\s*anymore)\b`, "hopelessness", 0.8},
	{`\b(no\s*way\s*out)\b`, "hopelessness", 0.85},
	{`\b(lost\s*all\s*hope)\b`, "hopelessness", 0.85},
	{`\b(voices\s*(tell|telling)\s*me)\b.*\b(hurt|kill|die)\b`, "psychiatric crisis", 0.95},
}

// Detector matches compiled crisis patterns against normalized text.
// Safe for concurrent use; patterns are immutable after construction.
type Detector struct {
	patterns []pattern
}

// NewDetector compiles all pattern tables.
func NewDetector() *Detector {
	d := &Detector{}
	add := func(category string, table []struct {
		expr        string
		description string
		severity    float64
	}) {
		for _, p := range table {
			d.patterns = append(d.patterns, pattern{
				re:          regexp.MustCompile(p.expr),
				category:    category,
				severity:    p.severity,
				description: p.description,
			})
		}
	}
	add(CategorySelfHarm, selfHarmPatterns)
	add(CategoryViolence, violencePatterns)
	add(CategoryMentalHealthCrisis, mentalHealthPatterns)
	return d
}

// Detect scans text for crisis language. The reported category is the one
// whose matched pattern carries the highest severity.
func (d *Detector) Detect(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	normalized := normalize(text)

	var matched []string
	severities := map[string]float64{}
	for _, p := range d.patterns {
		if p.re.MatchString(normalized) {
			matched = append(matched, p.category+": "+p.description)
			if p.severity > severities[p.category] {
				severities[p.category] = p.severity
			}
		}
	}
	if len(matched) == 0 {
		return Result{}
	}

	var category string
	var confidence float64
	for c, s := range severities {
		if s > confidence || (s == confidence && c < category) {
			category, confidence = c, s
		}
	}
	return Result{
		IsCrisis:        true,
		MatchedPatterns: matched,
		Category:        category,
		Confidence:      confidence,
	}
}

// IsSafe reports whether no crisis pattern matches.
func (d *Detector) IsSafe(text string) bool {
	return !d.Detect(text).IsCrisis
}

var leet = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// normalize lowercases, undoes leetspeak substitutions, and collapses runs
// of whitespace-separated single letters ("k i l l" becomes "kill").
func normalize(text string) string {
	s := leet.Replace(strings.ToLower(text))

	words := strings.Fields(s)
	out := make([]string, 0, len(words))
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, w := range words {
		if len(w) == 1 && w[0] >= 'a' && w[0] <= 'z' {
			run.WriteString(w)
			continue
		}
		flush()
		out = append(out, w)
	}
	flush()
	return strings.Join(out, " ")
}
