package quora

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/domain"
)

// questionHrefRe matches top-level question links, relative or absolute.
var questionHrefRe = regexp.MustCompile(`^/[^/]+$|^https://www\.quora\.com/[^/]+$`)

// uiLabels are anchor texts that belong to navigation, not questions.
var uiLabels = map[string]struct{}{
	"quora": {}, "answer": {}, "follow": {}, "share": {}, "more": {},
	"upvote": {}, "downvote": {}, "continue reading": {},
}

// parseSearchResults extracts question links from a search or topic page.
// Quora's class names are obfuscated and unstable, so matching keys off the
// link URL shape instead.
func parseSearchResults(html, baseURL string, keywords []string) ([]domain.CrawledPost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("op=quora.parseSearchResults: %w", err)
	}

	seen := map[string]struct{}{}
	var posts []domain.CrawledPost

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || !questionHrefRe.MatchString(href) {
			return
		}

		pageURL := href
		if strings.HasPrefix(href, "/") {
			pageURL = baseURL + href
		}
		if _, dup := seen[pageURL]; dup {
			return
		}
		if strings.Contains(pageURL, "/answer/") || strings.Contains(pageURL, "/profile/") || strings.Contains(pageURL, "/topic/") {
			return
		}
		seen[pageURL] = struct{}{}

		text := strings.TrimSpace(sel.Text())
		if len(text) < 10 {
			return
		}
		if _, ui := uiLabels[strings.ToLower(text)]; ui {
			return
		}

		posts = append(posts, domain.CrawledPost{
			ExternalID:  "quora_" + extractQuestionID(href),
			ExternalURL: pageURL,
			Content:     text,
			ContentType: domain.ContentQuestion,
			PlatformMetadata: map[string]any{
				"question_url": pageURL,
			},
			CrawledAt:         time.Now().UTC(),
			Platform:          "quora",
			KeywordsMatched:   crawler.MatchKeywords(text, keywords),
			EngagementMetrics: map[string]int{},
		})
	})

	return posts, nil
}

// extractQuestionID derives a stable ID from the first path segment of a
// question URL.
func extractQuestionID(u string) string {
	path := strings.TrimPrefix(u, "https://www.quora.com/")
	path = strings.TrimPrefix(path, "https://quora.com/")
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	id := strings.ToLower(strings.ReplaceAll(path, "-", "_"))
	if len(id) > 100 {
		id = id[:100]
	}
	return id
}
