package pipeline

import (
	"regexp"
	"strings"
)

// Platform soft limits and optimal lengths used by the tone adapter.
var platformLimits = map[string]int{
	"reddit":  10000,
	"twitter": 280,
	"quora":   5000,
}

var optimalLengths = map[string][2]int{
	"reddit":  {200, 500},
	"twitter": {100, 280},
	"quora":   {300, 800},
}

type rewrite struct {
	re   *regexp.Regexp
	with string
}

var corporatePhrases = compileAll([]string{
	`(?i)leverage`,
	`(?i)synergy`,
	`(?i)circle\s*back`,
	`(?i)touch\s*base`,
	`(?i)move\s*the\s*needle`,
	`(?i)at\s*the\s*end\s*of\s*the\s*day`,
	`(?i)best\s*in\s*class`,
	`(?i)value\s*add`,
	`(?i)deep\s*dive`,
	`(?i)low\s*hanging\s*fruit`,
	`(?i)win[\-\s]win`,
	`(?i)scalable\s*solution`,
})

var redditReplacements = []rewrite{
	{regexp.MustCompile(`(?i)\bI\s+would\s+recommend\b`), "I'd say"},
	{regexp.MustCompile(`(?i)\bIn\s+my\s+experience\b`), "Honestly,"},
	{regexp.MustCompile(`(?i)\bIt\s+is\s+important\s+to\b`), "You'll wanna"},
	{regexp.MustCompile(`(?i)\bYou\s+should\s+consider\b`), "Have you tried"},
	{regexp.MustCompile(`(?i)\bThis\s+can\s+help\s+you\b`), "This might help"},
	{regexp.MustCompile(`(?i)\bAdditionally\b`), "Also"},
	{regexp.MustCompile(`(?i)\bFurthermore\b`), "Plus"},
	{regexp.MustCompile(`(?i)\bHowever\b`), "But"},
	{regexp.MustCompile(`(?i)\bTherefore\b`), "So"},
}

var quoraEnhancers = []rewrite{
	{regexp.MustCompile(`(?i)\bpretty\s+good\b`), "quite effective"},
	{regexp.MustCompile(`(?i)\bworks\s+great\b`), "has proven effective"},
	{regexp.MustCompile(`(?i)\btotally\b`), "certainly"},
	{regexp.MustCompile(`(?i)\bstuff\b`), "aspects"},
	{regexp.MustCompile(`(?i)\bthings\b`), "factors"},
	{regexp.MustCompile(`(?i)\bgonna\b`), "going to"},
	{regexp.MustCompile(`(?i)\bwanna\b`), "want to"},
	{regexp.MustCompile(`(?i)\bkinda\b`), "somewhat"},
}

var casualReductions = []rewrite{
	{regexp.MustCompile(`(?i)\blol\b`), ""},
	{regexp.MustCompile(`(?i)\bhaha\b`), ""},
	{regexp.MustCompile(`(?i)\bomg\b`), ""},
	{regexp.MustCompile(`(?i)\bimho\b`), "in my view"},
	{regexp.MustCompile(`(?i)\bimo\b`), "in my opinion"},
	{regexp.MustCompile(`(?i)\btbh\b`), "to be honest"},
	{regexp.MustCompile(`(?i)\bfwiw\b`), "for what it's worth"},
}

var fillerPhrases = compileAll([]string{
	`(?i)\bI think that\b`,
	`(?i)\bIn my opinion,?\b`,
	`(?i)\bIt seems like\b`,
	`(?i)\bBasically,?\b`,
	`(?i)\bEssentially,?\b`,
	`(?i)\bYou know,?\b`,
})

var (
	hashtagRe       = regexp.MustCompile(`#\w+\s*`)
	boldRe          = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe        = regexp.MustCompile(`\*([^*]+)\*`)
	headerRe        = regexp.MustCompile(`(?m)^#+\s+`)
	sentenceSplitRe = regexp.MustCompile(`(?:[.!?])\s+`)
	multiSpaceRe    = regexp.MustCompile(`\s+`)
)

func compileAll(exprs []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// ToneAdapter rewrites generated responses to match each platform's
// communication norms. Stateless and safe for concurrent use.
type ToneAdapter struct{}

// NewToneAdapter returns a tone adapter.
func NewToneAdapter() *ToneAdapter { return &ToneAdapter{} }

// Adapt rewrites a response for the given platform. Unknown platforms pass
// through untouched.
func (a *ToneAdapter) Adapt(response, platform string) string {
	switch platform {
	case "reddit":
		return a.adaptReddit(response)
	case "twitter":
		return a.adaptTwitter(response)
	case "quora":
		return a.adaptQuora(response)
	default:
		return response
	}
}

func (a *ToneAdapter) adaptReddit(s string) string {
	for _, re := range corporatePhrases {
		s = re.ReplaceAllString(s, "")
	}
	for _, r := range redditReplacements {
		s = r.re.ReplaceAllString(s, r.with)
	}
	s = hashtagRe.ReplaceAllString(s, "")
	s = adjustLength(s, "reddit")
	s = ensureParagraphBreaks(s)
	return strings.TrimSpace(s)
}

func (a *ToneAdapter) adaptTwitter(s string) string {
	if len(s) > platformLimits["twitter"] {
		s = smartTruncate(s, platformLimits["twitter"])
	}
	for _, re := range fillerPhrases {
		s = re.ReplaceAllString(s, "")
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = headerRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (a *ToneAdapter) adaptQuora(s string) string {
	for _, r := range quoraEnhancers {
		s = r.re.ReplaceAllString(s, r.with)
	}
	s = addProfessionalStructure(s)
	for _, r := range casualReductions {
		s = r.re.ReplaceAllString(s, r.with)
	}
	return strings.TrimSpace(s)
}

func adjustLength(s, platform string) string {
	bounds, ok := optimalLengths[platform]
	if !ok {
		bounds = [2]int{100, 500}
	}
	if len(s) > bounds[1] {
		return smartTruncate(s, bounds[1])
	}
	return s
}

// smartTruncate cuts at the last sentence boundary past half the budget,
// else at a word boundary past 70%, else hard.
func smartTruncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]

	boundary := -1
	for _, c := range []string{".", "?", "!"} {
		if i := strings.LastIndex(truncated, c); i > boundary {
			boundary = i
		}
	}
	if boundary > maxLen/2 {
		return strings.TrimSpace(truncated[:boundary+1])
	}
	if i := strings.LastIndex(truncated, " "); i > maxLen*7/10 {
		return strings.TrimSpace(truncated[:i]) + "..."
	}
	return strings.TrimSpace(truncated) + "..."
}

// splitSentences splits on sentence-ending punctuation, keeping the
// punctuation with its sentence.
func splitSentences(s string) []string {
	idxs := sentenceSplitRe.FindAllStringIndex(s, -1)
	if len(idxs) == 0 {
		return []string{s}
	}
	var out []string
	start := 0
	for _, loc := range idxs {
		// loc[0] is the punctuation mark; keep it.
		out = append(out, s[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func ensureParagraphBreaks(s string) string {
	if len(s) <= 300 || strings.Contains(s, "\n\n") {
		return s
	}
	sentences := splitSentences(s)
	if len(sentences) < 4 {
		return s
	}
	var paragraphs []string
	var current []string
	for i, sentence := range sentences {
		current = append(current, sentence)
		if len(current) >= 2 && i < len(sentences)-1 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}

func addProfessionalStructure(s string) string {
	if len(s) <= 400 || strings.Contains(s, "\n") {
		return s
	}
	sentences := splitSentences(s)
	if len(sentences) < 5 {
		return s
	}
	intro := sentences[0]
	body := strings.Join(sentences[1:len(sentences)-1], " ")
	conclusion := sentences[len(sentences)-1]
	if intro != "" && body != "" && conclusion != "" {
		return intro + "\n\n" + body + "\n\n" + conclusion
	}
	return s
}
