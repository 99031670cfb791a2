package twitter

import (
	"time"

	"github.com/reachby3cs/engage/internal/domain"
)

type searchResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type tweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
	Lang           string `json:"lang"`
	PublicMetrics  struct {
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		LikeCount    int `json:"like_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func parseTweet(tw tweet, author user, matched []string) domain.CrawledPost {
	var createdAt *time.Time
	if t, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
		createdAt = &t
	}

	handle := author.Username
	externalURL := "https://twitter.com/i/web/status/" + tw.ID
	if handle != "" {
		externalURL = "https://twitter.com/" + handle + "/status/" + tw.ID
	}

	return domain.CrawledPost{
		ExternalID:        "twitter_" + tw.ID,
		ExternalURL:       externalURL,
		Content:           tw.Text,
		ContentType:       domain.ContentTweet,
		AuthorHandle:      handle,
		AuthorDisplayName: author.Name,
		PlatformMetadata: map[string]any{
			"conversation_id": tw.ConversationID,
			"lang":            tw.Lang,
			"author_id":       tw.AuthorID,
		},
		ExternalCreatedAt: createdAt,
		CrawledAt:         time.Now().UTC(),
		Platform:          "twitter",
		KeywordsMatched:   matched,
		EngagementMetrics: map[string]int{
			"retweets": tw.PublicMetrics.RetweetCount,
			"replies":  tw.PublicMetrics.ReplyCount,
			"likes":    tw.PublicMetrics.LikeCount,
			"quotes":   tw.PublicMetrics.QuoteCount,
		},
	}
}
