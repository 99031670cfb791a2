package posting

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3cs/engage/internal/domain"
)

func newTestQueue(opts Options) (*Queue, *time.Time) {
	q := NewQueue(opts)
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	return q, &now
}

func enqueue(t *testing.T, q *Queue, responseID string, priority int) *QueueItem {
	t.Helper()
	item, err := q.Enqueue(EnqueueRequest{
		ResponseID:     responseID,
		OrganizationID: "org-1",
		Platform:       "reddit",
		TargetURL:      "https://reddit.com/r/productivity/comments/abc/t/",
		ResponseText:   "helpful reply",
		Priority:       priority,
	})
	require.NoError(t, err)
	return item
}

func failure(code string, retryable bool, metadata map[string]any) domain.PostResult {
	return domain.PostResult{
		Success:   false,
		Error:     "boom",
		ErrorCode: code,
		Retryable: retryable,
		Platform:  "reddit",
		Metadata:  metadata,
	}
}

func TestDequeue_PriorityOrdering(t *testing.T) {
	q, _ := newTestQueue(Options{})
	enqueue(t, q, "low", 10)
	enqueue(t, q, "high", 50)
	enqueue(t, q, "mid", 30)

	ctx := context.Background()
	var order []string
	for i := 0; i < 3; i++ {
		item, ok := q.Dequeue(ctx)
		require.True(t, ok)
		order = append(order, item.ResponseID)
	}
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestDequeue_FIFOWithinPriority(t *testing.T) {
	q, _ := newTestQueue(Options{})
	enqueue(t, q, "first", 20)
	enqueue(t, q, "second", 20)

	item, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "first", item.ResponseID)
}

func TestDequeue_ClaimsAtMostOnce(t *testing.T) {
	q, _ := newTestQueue(Options{DequeueWait: 50 * time.Millisecond})
	item := enqueue(t, q, "r1", 10)

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, StatusProcessing, got.Status)
	require.NotNil(t, got.StartedAt)

	_, ok = q.Dequeue(context.Background())
	assert.False(t, ok)
}

func TestDequeue_ScheduledItemDeferred(t *testing.T) {
	q, now := newTestQueue(Options{DequeueWait: 50 * time.Millisecond})
	later := now.Add(time.Hour)
	_, err := q.Enqueue(EnqueueRequest{
		ResponseID:   "r1",
		Platform:     "reddit",
		TargetURL:    "https://reddit.com/r/x/comments/abc/t/",
		ResponseText: "text",
		ScheduledFor: &later,
	})
	require.NoError(t, err)

	_, ok := q.Dequeue(context.Background())
	assert.False(t, ok)

	*now = now.Add(2 * time.Hour)
	item, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "r1", item.ResponseID)
}

func TestComplete_Success(t *testing.T) {
	q, _ := newTestQueue(Options{})
	var gotResponse string
	q.SetSuccessCallback(func(item *QueueItem, _ domain.PostResult) {
		gotResponse = item.ResponseID
	})
	enqueue(t, q, "r1", 10)

	item, ok := q.Dequeue(context.Background())
	require.True(t, ok)

	q.Complete(item.ID, domain.PostResult{Success: true, ExternalID: "cmt1", Platform: "reddit"})

	stored, ok := q.Item(item.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.Result)
	assert.Equal(t, "cmt1", stored.Result.ExternalID)
	assert.Equal(t, "r1", gotResponse)
	assert.Equal(t, 0, q.GetStats().Processing)
}

func TestComplete_RetryWithExponentialBackoff(t *testing.T) {
	q, now := newTestQueue(Options{MaxRetries: 3, BaseRetryDelay: time.Minute, MaxRetryDelay: 15 * time.Minute})
	var failedErr string
	q.SetFailureCallback(func(_ *QueueItem, errMsg string) { failedErr = errMsg })
	enqueue(t, q, "r1", 10)

	ctx := context.Background()

	item, ok := q.Dequeue(ctx)
	require.True(t, ok)
	q.Complete(item.ID, failure(domain.PostErrUnknown, true, nil))

	stored, _ := q.Item(item.ID)
	assert.Equal(t, StatusRetryPending, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.ScheduledFor)
	assert.Equal(t, now.Add(time.Minute), *stored.ScheduledFor)

	*now = stored.ScheduledFor.Add(time.Second)
	item, ok = q.Dequeue(ctx)
	require.True(t, ok)
	q.Complete(item.ID, failure(domain.PostErrUnknown, true, nil))

	stored, _ = q.Item(item.ID)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, now.Add(2*time.Minute), *stored.ScheduledFor)

	*now = stored.ScheduledFor.Add(time.Second)
	item, ok = q.Dequeue(ctx)
	require.True(t, ok)
	q.Complete(item.ID, failure(domain.PostErrUnknown, true, nil))

	stored, _ = q.Item(item.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, "boom", failedErr)
}

func TestComplete_RetryDelayCapped(t *testing.T) {
	q, _ := newTestQueue(Options{BaseRetryDelay: time.Minute, MaxRetryDelay: 90 * time.Second})
	assert.Equal(t, time.Minute, q.retryDelay(1))
	assert.Equal(t, 90*time.Second, q.retryDelay(2))
	assert.Equal(t, 90*time.Second, q.retryDelay(5))
}

func TestComplete_RateLimitWaitOverridesBackoff(t *testing.T) {
	q, now := newTestQueue(Options{MaxRetries: 3, BaseRetryDelay: time.Minute})
	enqueue(t, q, "r1", 10)

	item, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	q.Complete(item.ID, failure(domain.PostErrRateLimit, true, map[string]any{"wait_seconds": 540}))

	stored, _ := q.Item(item.ID)
	assert.Equal(t, StatusRetryPending, stored.Status)
	assert.Equal(t, now.Add(540*time.Second), *stored.ScheduledFor)
}

func TestComplete_NonRetryableFailsImmediately(t *testing.T) {
	q, _ := newTestQueue(Options{})
	enqueue(t, q, "r1", 10)

	item, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	q.Complete(item.ID, failure(domain.PostErrBlockedSubreddit, false, nil))

	stored, _ := q.Item(item.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestComplete_WorkerErrorRetryCap(t *testing.T) {
	q, now := newTestQueue(Options{MaxRetries: 5, BaseRetryDelay: time.Minute})
	enqueue(t, q, "r1", 10)

	ctx := context.Background()
	for attempt := 1; ; attempt++ {
		item, ok := q.Dequeue(ctx)
		require.True(t, ok, "attempt %d", attempt)
		q.Complete(item.ID, failure(domain.PostErrWorker, true, nil))

		stored, _ := q.Item(item.ID)
		if stored.Status == StatusFailed {
			assert.Equal(t, 3, stored.RetryCount)
			return
		}
		require.Less(t, attempt, 5)
		*now = stored.ScheduledFor.Add(time.Second)
	}
}

func TestCancel(t *testing.T) {
	q, _ := newTestQueue(Options{})
	item := enqueue(t, q, "r1", 10)

	assert.True(t, q.Cancel(item.ID))
	assert.False(t, q.Cancel(item.ID))

	item2 := enqueue(t, q, "r2", 10)
	claimed, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, item2.ID, claimed.ID)
	assert.False(t, q.Cancel(item2.ID))
}

func TestCancelledItemSkippedByDequeue(t *testing.T) {
	q, _ := newTestQueue(Options{DequeueWait: 50 * time.Millisecond})
	item := enqueue(t, q, "r1", 50)
	enqueue(t, q, "r2", 10)
	require.True(t, q.Cancel(item.ID))

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "r2", got.ResponseID)
}

func TestEnqueue_QueueFull(t *testing.T) {
	q, _ := newTestQueue(Options{MaxQueueSize: 1})
	enqueue(t, q, "r1", 10)

	_, err := q.Enqueue(EnqueueRequest{ResponseID: "r2", Platform: "reddit"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEnqueue_ClampsPriority(t *testing.T) {
	q, _ := newTestQueue(Options{})
	item, err := q.Enqueue(EnqueueRequest{ResponseID: "r1", Platform: "reddit", Priority: 250})
	require.NoError(t, err)
	assert.Equal(t, 100, item.Priority)
}

func TestGetStats(t *testing.T) {
	q, _ := newTestQueue(Options{})
	enqueue(t, q, "r1", 10)
	enqueue(t, q, "r2", 10)
	_, ok := q.Dequeue(context.Background())
	require.True(t, ok)

	stats := q.GetStats()
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 1, stats.ByStatus["processing"])
	assert.Equal(t, 1, stats.ByStatus["queued"])
	assert.Equal(t, 2, stats.ByPlatform["reddit"])
}

func TestStatusForResponse(t *testing.T) {
	q, _ := newTestQueue(Options{})
	enqueue(t, q, "r1", 10)

	item, ok := q.StatusForResponse("r1")
	require.True(t, ok)
	assert.Equal(t, "r1", item.ResponseID)

	_, ok = q.StatusForResponse("missing")
	assert.False(t, ok)
}

func TestStart_RequiresPostCallback(t *testing.T) {
	q, _ := newTestQueue(Options{})
	err := q.Start(1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestWorkers_ProcessEnqueuedItems(t *testing.T) {
	q := NewQueue(Options{DequeueWait: 20 * time.Millisecond})
	var posted atomic.Int32
	q.SetPostCallback(func(_ context.Context, item *QueueItem) domain.PostResult {
		posted.Add(1)
		return domain.PostResult{Success: true, Platform: item.Platform}
	})

	require.NoError(t, q.Start(2))
	defer q.Stop()

	item := enqueue(t, q, "r1", 10)

	require.Eventually(t, func() bool {
		stored, ok := q.Item(item.ID)
		return ok && stored.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), posted.Load())
}

func TestWorkers_PanicBecomesWorkerError(t *testing.T) {
	q := NewQueue(Options{MaxRetries: 1, DequeueWait: 20 * time.Millisecond})
	q.SetPostCallback(func(_ context.Context, _ *QueueItem) domain.PostResult {
		panic("bug in poster")
	})

	require.NoError(t, q.Start(1))
	defer q.Stop()

	item := enqueue(t, q, "r1", 10)

	require.Eventually(t, func() bool {
		stored, ok := q.Item(item.ID)
		return ok && stored.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := q.Item(item.ID)
	assert.Contains(t, stored.LastError, "worker panic")
	require.NotNil(t, stored.Result)
	assert.Equal(t, domain.PostErrWorker, stored.Result.ErrorCode)
}

func TestWaitSeconds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 540*time.Second, waitSeconds(map[string]any{"wait_seconds": 540}))
	assert.Equal(t, 90*time.Second, waitSeconds(map[string]any{"wait_seconds": 90.0}))
	assert.Equal(t, time.Duration(0), waitSeconds(nil))
	assert.Equal(t, time.Duration(0), waitSeconds(map[string]any{"wait_seconds": "soon"}))
}
