package reddit

import (
	"time"

	"github.com/reachby3cs/engage/internal/domain"
)

// listingResponse is the reddit listing envelope shared by search and
// subreddit listings.
type listingResponse struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string     `json:"kind"`
			Data submission `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type submission struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Selftext            string  `json:"selftext"`
	Permalink           string  `json:"permalink"`
	URL                 string  `json:"url"`
	Author              string  `json:"author"`
	Subreddit           string  `json:"subreddit"`
	SubredditSubscribers int    `json:"subreddit_subscribers"`
	CreatedUTC          float64 `json:"created_utc"`
	Score               int     `json:"score"`
	UpvoteRatio         float64 `json:"upvote_ratio"`
	NumComments         int     `json:"num_comments"`
	TotalAwardsReceived int     `json:"total_awards_received"`
	IsSelf              bool    `json:"is_self"`
	LinkFlairText       string  `json:"link_flair_text"`
	Over18              bool    `json:"over_18"`
	Spoiler             bool    `json:"spoiler"`
	Stickied            bool    `json:"stickied"`
	Locked              bool    `json:"locked"`
}

// parseSubmission converts a reddit submission to the normalized post
// shape. Link posts (non-self) become threads.
func parseSubmission(sub submission, matched []string) domain.CrawledPost {
	content := sub.Title
	if sub.Selftext != "" {
		content = sub.Title + "\n\n" + sub.Selftext
	}

	contentType := domain.ContentPost
	if !sub.IsSelf {
		contentType = domain.ContentThread
	}

	author := sub.Author
	if author == "" {
		author = "[deleted]"
	}

	var createdAt *time.Time
	if sub.CreatedUTC > 0 {
		t := time.Unix(int64(sub.CreatedUTC), 0).UTC()
		createdAt = &t
	}

	return domain.CrawledPost{
		ExternalID:        "reddit_" + sub.ID,
		ExternalURL:       "https://reddit.com" + sub.Permalink,
		Content:           content,
		ContentType:       contentType,
		AuthorHandle:      author,
		AuthorDisplayName: author,
		PlatformMetadata: map[string]any{
			"subreddit":             sub.Subreddit,
			"subreddit_subscribers": sub.SubredditSubscribers,
			"is_self":               sub.IsSelf,
			"link_flair_text":       sub.LinkFlairText,
			"over_18":               sub.Over18,
			"spoiler":               sub.Spoiler,
			"stickied":              sub.Stickied,
			"locked":                sub.Locked,
			"url":                   sub.URL,
		},
		ExternalCreatedAt: createdAt,
		CrawledAt:         time.Now().UTC(),
		Platform:          "reddit",
		KeywordsMatched:   matched,
		EngagementMetrics: map[string]int{
			"upvotes":      sub.Score,
			"upvote_ratio": int(sub.UpvoteRatio * 100),
			"num_comments": sub.NumComments,
			"awards":       sub.TotalAwardsReceived,
		},
	}
}
