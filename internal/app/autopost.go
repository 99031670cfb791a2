package app

import (
	"context"
	"log/slog"

	"github.com/reachby3cs/engage/internal/automation"
	"github.com/reachby3cs/engage/internal/domain"
	"github.com/reachby3cs/engage/internal/pipeline"
	"github.com/reachby3cs/engage/internal/posting"
)

// BuildPostCallback dispatches queue items to the registered platform
// posters. Posters exist only for platforms with configured credentials,
// so a missing entry fails the item without retrying.
func BuildPostCallback(posters map[string]posting.Poster, applyDelay bool) posting.PostCallback {
	return func(ctx context.Context, item *posting.QueueItem) domain.PostResult {
		poster, ok := posters[item.Platform]
		if !ok {
			return domain.PostResult{
				Success:   false,
				Platform:  item.Platform,
				Error:     "no poster configured for platform " + item.Platform,
				ErrorCode: domain.PostErrMissingCredentials,
				Retryable: false,
			}
		}
		return poster.Post(ctx, posting.PostRequest{
			ResponseText:       item.ResponseText,
			TargetURL:          item.TargetURL,
			ApplyDelay:         applyDelay,
			OriginalTextLength: len(item.ResponseText),
		})
	}
}

// WireQueueCallbacks connects queue outcomes to response status updates
// and organization rate-limit accounting. Only acknowledged posts count
// against the limits. Attempt metrics stay with the queue, which records
// them per outcome.
func WireQueueCallbacks(q *posting.Queue, responses domain.ResponseRepository, limits *automation.RateLimitManager) {
	q.SetSuccessCallback(func(item *posting.QueueItem, result domain.PostResult) {
		ctx := context.Background()
		if responses != nil {
			if err := responses.UpdateStatus(ctx, item.ResponseID, domain.ResponsePosted); err != nil {
				slog.Error("post succeeded but status update failed",
					slog.String("response_id", item.ResponseID), slog.Any("error", err))
			}
		}
		if limits != nil {
			subreddit := ""
			if item.Platform == "reddit" {
				subreddit = posting.SubredditFromURL(item.TargetURL)
			}
			limits.RecordPost(item.OrganizationID, item.Platform, subreddit)
		}
		slog.Info("queued post completed",
			slog.String("response_id", item.ResponseID),
			slog.String("platform", item.Platform),
			slog.String("external_id", result.ExternalID))
	})

	q.SetFailureCallback(func(item *posting.QueueItem, errMsg string) {
		if responses != nil {
			if err := responses.UpdateStatus(context.Background(), item.ResponseID, domain.ResponseFailed); err != nil {
				slog.Error("post failed and status update failed",
					slog.String("response_id", item.ResponseID), slog.Any("error", err))
			}
		}
		slog.Warn("queued post failed permanently",
			slog.String("response_id", item.ResponseID),
			slog.String("platform", item.Platform),
			slog.String("error", errMsg))
	})
}

// BuildCandidateFetcher joins the pending engagement queue with its
// response, post, and risk rows to produce auto-post candidates. Rows
// with missing joins are skipped, not fatal; a missing risk row is
// treated as high so eligibility fails closed.
func BuildCandidateFetcher(
	engagements domain.EngagementRepository,
	responses domain.ResponseRepository,
	posts domain.PostRepository,
	risks domain.RiskRepository,
) automation.FetchCandidatesFunc {
	classifier := pipeline.NewCTAClassifier()
	return func(ctx domain.Context, limit int) ([]automation.Candidate, error) {
		rows, err := engagements.ListPending(ctx, limit)
		if err != nil {
			return nil, err
		}
		out := make([]automation.Candidate, 0, len(rows))
		for _, row := range rows {
			resp, err := responses.Get(ctx, row.ResponseID)
			if err != nil {
				slog.Warn("candidate skipped, response row missing",
					slog.String("engagement_id", row.ID), slog.Any("error", err))
				continue
			}
			post, err := posts.Get(ctx, row.PostID)
			if err != nil {
				slog.Warn("candidate skipped, post row missing",
					slog.String("engagement_id", row.ID), slog.Any("error", err))
				continue
			}
			riskLevel := domain.RiskHigh
			if riskRow, err := risks.GetByPostID(ctx, row.PostID); err == nil {
				riskLevel = riskRow.RiskLevel
			}
			subreddit := ""
			if post.Platform == "reddit" {
				subreddit = posting.SubredditFromURL(post.ExternalURL)
			}
			out = append(out, automation.Candidate{
				ResponseID:     resp.ID,
				OrganizationID: row.OrganizationID,
				CTSScore:       row.CTSScore,
				RiskLevel:      riskLevel,
				CTALevel:       classifier.Classify(resp.Content).Level,
				Platform:       post.Platform,
				CanAutoPost:    !row.RequiresReview,
				Status:         resp.Status,
				TargetURL:      post.ExternalURL,
				Subreddit:      subreddit,
				ResponseText:   resp.Content,
				CreatedAt:      row.CreatedAt,
			})
		}
		return out, nil
	}
}

// BuildOrgLimitsFetcher reads persisted organization policy, hydrating
// the in-memory manager on each hit so rate-window checks see the same
// caps. Falls back to the manager's view when nothing is stored.
func BuildOrgLimitsFetcher(repo domain.OrgLimitsRepository, limits *automation.RateLimitManager) automation.FetchOrgLimitsFunc {
	return func(ctx domain.Context, organizationID string) (domain.OrgLimits, error) {
		if repo != nil {
			stored, err := repo.Get(ctx, organizationID)
			if err == nil {
				limits.SetOrgLimits(organizationID, stored)
				return stored, nil
			}
		}
		return limits.OrgLimitsFor(organizationID), nil
	}
}
