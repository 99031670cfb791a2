package posting

import (
	"context"
	"time"

	"github.com/reachby3cs/engage/internal/domain"
)

// PostRequest is one reply submission.
type PostRequest struct {
	ResponseText string
	TargetURL    string
	// ApplyDelay shapes a human-like wait before the submission.
	ApplyDelay bool
	// OriginalTextLength feeds the reading part of the delay; zero
	// falls back to a platform default.
	OriginalTextLength int
}

// Poster submits replies on one platform. Errors are carried inside
// PostResult with a classification code, never as Go errors, so the
// queue can decide retryability uniformly.
type Poster interface {
	Platform() string
	Post(ctx context.Context, req PostRequest) domain.PostResult
	VerifyPosted(ctx context.Context, externalID string) bool
	Close() error
}

// sleepFn is injected into posters so tests skip real delays.
type sleepFn func(ctx context.Context, d time.Duration)

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
