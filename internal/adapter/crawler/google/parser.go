package google

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/reachby3cs/engage/internal/adapter/crawler"
	"github.com/reachby3cs/engage/internal/domain"
)

type serpResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Position      int    `json:"position"`
		Title         string `json:"title"`
		Link          string `json:"link"`
		Snippet       string `json:"snippet"`
		DisplayedLink string `json:"displayed_link"`
		Date          string `json:"date"`
	} `json:"organic_results"`
	RelatedQuestions []struct {
		Question string `json:"question"`
		Snippet  string `json:"snippet"`
		Link     string `json:"link"`
	} `json:"related_questions"`
	SearchInformation struct {
		TotalResults int `json:"total_results"`
	} `json:"search_information"`
}

func parseOrganicResults(resp serpResponse, keywords []string) []domain.CrawledPost {
	var posts []domain.CrawledPost
	for i, r := range resp.OrganicResults {
		if r.Link == "" || r.Title == "" {
			continue
		}
		content := r.Title
		if r.Snippet != "" {
			content = r.Title + "\n\n" + r.Snippet
		}
		position := r.Position
		if position == 0 {
			position = i + 1
		}

		posts = append(posts, domain.CrawledPost{
			ExternalID:  "google_" + stableID(r.Link),
			ExternalURL: r.Link,
			Content:     content,
			ContentType: contentTypeForURL(r.Link),
			PlatformMetadata: map[string]any{
				"source_platform": platformForURL(r.Link),
				"position":        position,
				"displayed_link":  r.DisplayedLink,
			},
			CrawledAt:         time.Now().UTC(),
			Platform:          "google",
			KeywordsMatched:   crawler.MatchKeywords(content, keywords),
			EngagementMetrics: map[string]int{},
		})
	}
	return posts
}

// parseRelatedQuestions lifts "People Also Ask" entries from the first page.
func parseRelatedQuestions(resp serpResponse, keywords []string) []domain.CrawledPost {
	var posts []domain.CrawledPost
	for _, q := range resp.RelatedQuestions {
		if q.Question == "" {
			continue
		}
		content := q.Question
		if q.Snippet != "" {
			content = q.Question + "\n\n" + q.Snippet
		}
		posts = append(posts, domain.CrawledPost{
			ExternalID:  "google_" + stableID(q.Question),
			ExternalURL: q.Link,
			Content:     content,
			ContentType: domain.ContentQuestion,
			PlatformMetadata: map[string]any{
				"source_platform": "google",
				"related_question": true,
			},
			CrawledAt:         time.Now().UTC(),
			Platform:          "google",
			KeywordsMatched:   crawler.MatchKeywords(content, keywords),
			EngagementMetrics: map[string]int{},
		})
	}
	return posts
}

func contentTypeForURL(u string) domain.ContentType {
	lower := strings.ToLower(u)
	switch {
	case strings.Contains(lower, "reddit.com"):
		if strings.Contains(lower, "/comments/") {
			return domain.ContentThread
		}
		return domain.ContentPost
	case strings.Contains(lower, "twitter.com"), strings.Contains(lower, "x.com"):
		return domain.ContentTweet
	case strings.Contains(lower, "quora.com"):
		if strings.Contains(lower, "/answer/") {
			return domain.ContentAnswer
		}
		return domain.ContentQuestion
	default:
		return domain.ContentSearchResult
	}
}

func platformForURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "unknown"
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}

func stableID(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
