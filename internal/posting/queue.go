// Package posting owns the priority posting queue, its workers, the
// platform posters, and human-like delay shaping.
package posting

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reachby3cs/engage/internal/adapter/observability"
	"github.com/reachby3cs/engage/internal/domain"
)

// ErrQueueFull rejects enqueues past the configured queue size.
var ErrQueueFull = fmt.Errorf("posting queue is full: %w", domain.ErrQueueFull)

// Status of a queue item.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusRetryPending Status = "retry_pending"
	StatusCancelled    Status = "cancelled"
	StatusRateLimited  Status = "rate_limited"
)

// QueueItem is one pending post. Items move queued → processing →
// {completed|failed|retry_pending→queued}; cancellation is only legal
// before processing starts.
type QueueItem struct {
	ID             string
	ResponseID     string
	OrganizationID string
	Platform       string
	TargetURL      string
	ResponseText   string
	Priority       int
	Status         Status
	RetryCount     int
	MaxRetries     int
	CreatedAt      time.Time
	ScheduledFor   *time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastError      string
	Result         *domain.PostResult
	Metadata       map[string]any
}

// EnqueueRequest describes a post to queue.
type EnqueueRequest struct {
	ResponseID     string
	OrganizationID string
	Platform       string
	TargetURL      string
	ResponseText   string
	Priority       int
	ScheduledFor   *time.Time
	Metadata       map[string]any
}

// Stats is the queue-wide snapshot.
type Stats struct {
	TotalItems  int            `json:"total_items"`
	Processing  int            `json:"processing"`
	QueueSize   int            `json:"queue_size"`
	ByStatus    map[string]int `json:"by_status"`
	ByPlatform  map[string]int `json:"by_platform"`
	Running     bool           `json:"running"`
	WorkerCount int            `json:"worker_count"`
}

// Options tune the queue's retry and capacity policy.
type Options struct {
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	MaxQueueSize   int
	DequeueWait    time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseRetryDelay <= 0 {
		o.BaseRetryDelay = time.Minute
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 15 * time.Minute
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = 10000
	}
	if o.DequeueWait <= 0 {
		o.DequeueWait = time.Second
	}
}

// Synthetic worker failures retry at most twice regardless of the
// item's retry budget.
const maxWorkerErrorAttempts = 3

// PostCallback performs the platform post for one item.
type PostCallback func(ctx context.Context, item *QueueItem) domain.PostResult

// Queue is a priority posting queue with scheduled items, retry with
// exponential backoff, and at-most-once worker claims.
type Queue struct {
	opts Options

	mu         sync.Mutex
	heap       entryHeap
	items      map[string]*QueueItem
	processing map[string]struct{}
	seq        uint64
	notify     chan struct{}

	running bool
	workers int
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	postFn    PostCallback
	onSuccess func(item *QueueItem, result domain.PostResult)
	onFailure func(item *QueueItem, errMsg string)

	now func() time.Time
}

type entry struct {
	priority  int
	scheduled time.Time
	seq       uint64
	item      *QueueItem
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if !h[i].scheduled.Equal(h[j].scheduled) {
		return h[i].scheduled.Before(h[j].scheduled)
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// NewQueue builds a stopped queue; call SetPostCallback then Start.
func NewQueue(opts Options) *Queue {
	opts.withDefaults()
	return &Queue{
		opts:       opts,
		items:      make(map[string]*QueueItem),
		processing: make(map[string]struct{}),
		notify:     make(chan struct{}, 1),
		now:        time.Now,
	}
}

// SetPostCallback registers the function workers call per item.
func (q *Queue) SetPostCallback(fn PostCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.postFn = fn
}

// SetSuccessCallback registers the post-success hook.
func (q *Queue) SetSuccessCallback(fn func(item *QueueItem, result domain.PostResult)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onSuccess = fn
}

// SetFailureCallback registers the permanent-failure hook.
func (q *Queue) SetFailureCallback(fn func(item *QueueItem, errMsg string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = fn
}

// Enqueue adds a post to the queue.
func (q *Queue) Enqueue(req EnqueueRequest) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.opts.MaxQueueSize {
		return nil, fmt.Errorf("op=posting.Enqueue: %w", ErrQueueFull)
	}
	if req.Priority < 0 {
		req.Priority = 0
	}
	if req.Priority > 100 {
		req.Priority = 100
	}

	item := &QueueItem{
		ID:             uuid.NewString(),
		ResponseID:     req.ResponseID,
		OrganizationID: req.OrganizationID,
		Platform:       req.Platform,
		TargetURL:      req.TargetURL,
		ResponseText:   req.ResponseText,
		Priority:       req.Priority,
		Status:         StatusQueued,
		MaxRetries:     q.opts.MaxRetries,
		CreatedAt:      q.now(),
		ScheduledFor:   req.ScheduledFor,
		Metadata:       req.Metadata,
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}

	q.push(item)
	q.items[item.ID] = item
	q.updateDepthLocked()
	q.wake()

	slog.Info("enqueued response",
		slog.String("response_id", req.ResponseID),
		slog.String("platform", req.Platform),
		slog.Int("priority", req.Priority))
	return item, nil
}

// push assumes q.mu is held.
func (q *Queue) push(item *QueueItem) {
	scheduled := item.CreatedAt
	if item.ScheduledFor != nil {
		scheduled = *item.ScheduledFor
	}
	q.seq++
	heap.Push(&q.heap, &entry{
		priority:  item.Priority,
		scheduled: scheduled,
		seq:       q.seq,
		item:      item,
	})
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue claims the next runnable item, waiting up to DequeueWait.
// Returns false when nothing became runnable.
func (q *Queue) Dequeue(ctx context.Context) (*QueueItem, bool) {
	deadline := time.Now().Add(q.opts.DequeueWait)
	for {
		q.mu.Lock()
		item := q.popRunnableLocked()
		q.mu.Unlock()
		if item != nil {
			return item, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		wait := remaining
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// popRunnableLocked pops entries until one is claimable. Cancelled items
// are dropped; future-scheduled items are kept.
func (q *Queue) popRunnableLocked() *QueueItem {
	var deferred []*entry
	defer func() {
		for _, e := range deferred {
			heap.Push(&q.heap, e)
		}
	}()

	now := q.now()
	for q.heap.Len() > 0 {
		e := heap.Pop(&q.heap).(*entry)
		item := e.item

		if _, live := q.items[item.ID]; !live {
			continue
		}
		if item.ScheduledFor != nil && now.Before(*item.ScheduledFor) {
			deferred = append(deferred, e)
			continue
		}
		if _, busy := q.processing[item.ID]; busy {
			continue
		}

		q.processing[item.ID] = struct{}{}
		item.Status = StatusProcessing
		started := now
		item.StartedAt = &started
		return item
	}
	return nil
}

// Complete records the outcome of a processing attempt and either
// finishes the item or schedules a retry.
func (q *Queue) Complete(itemID string, result domain.PostResult) {
	q.mu.Lock()
	item, ok := q.items[itemID]
	if !ok {
		q.mu.Unlock()
		return
	}
	completed := q.now()
	item.CompletedAt = &completed
	item.Result = &result

	if result.Success {
		item.Status = StatusCompleted
		delete(q.processing, itemID)
		q.updateDepthLocked()
		onSuccess := q.onSuccess
		q.mu.Unlock()

		observability.PostingAttemptsTotal.WithLabelValues(item.Platform, "success").Inc()
		if onSuccess != nil {
			onSuccess(item, result)
		}
		return
	}

	q.handleFailureLocked(item, result)
}

// handleFailureLocked releases q.mu before invoking callbacks.
func (q *Queue) handleFailureLocked(item *QueueItem, result domain.PostResult) {
	item.LastError = result.Error
	item.RetryCount++

	maxRetries := item.MaxRetries
	if result.ErrorCode == domain.PostErrWorker && maxRetries > maxWorkerErrorAttempts {
		maxRetries = maxWorkerErrorAttempts
	}

	if result.Retryable && item.RetryCount < maxRetries {
		delay := q.retryDelay(item.RetryCount)
		if result.ErrorCode == domain.PostErrRateLimit {
			if wait := waitSeconds(result.Metadata); wait > delay {
				delay = wait
			}
		}

		item.Status = StatusRetryPending
		next := q.now().Add(delay)
		item.ScheduledFor = &next
		q.push(item)
		delete(q.processing, item.ID)
		q.mu.Unlock()

		observability.PostingAttemptsTotal.WithLabelValues(item.Platform, "retry").Inc()
		slog.Info("scheduled post retry",
			slog.String("response_id", item.ResponseID),
			slog.Int("retry", item.RetryCount),
			slog.Int("max_retries", maxRetries),
			slog.Duration("delay", delay))
		q.wake()
		return
	}

	item.Status = StatusFailed
	delete(q.processing, item.ID)
	q.updateDepthLocked()
	onFailure := q.onFailure
	q.mu.Unlock()

	observability.PostingAttemptsTotal.WithLabelValues(item.Platform, "failed").Inc()
	errMsg := result.Error
	if errMsg == "" {
		errMsg = "unknown error"
	}
	slog.Error("post failed permanently",
		slog.String("response_id", item.ResponseID),
		slog.Int("attempts", item.RetryCount),
		slog.String("error", errMsg))
	if onFailure != nil {
		onFailure(item, errMsg)
	}
}

func (q *Queue) retryDelay(retryCount int) time.Duration {
	delay := time.Duration(float64(q.opts.BaseRetryDelay) * math.Pow(2, float64(retryCount-1)))
	if delay > q.opts.MaxRetryDelay {
		delay = q.opts.MaxRetryDelay
	}
	return delay
}

func waitSeconds(metadata map[string]any) time.Duration {
	if metadata == nil {
		return 0
	}
	switch v := metadata["wait_seconds"].(type) {
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		return 0
	}
}

// Cancel removes a queued or retry-pending item. Processing and
// terminal items cannot be cancelled.
func (q *Queue) Cancel(itemID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[itemID]
	if !ok {
		return false
	}
	if item.Status != StatusQueued && item.Status != StatusRetryPending {
		return false
	}
	item.Status = StatusCancelled
	delete(q.items, itemID)
	q.updateDepthLocked()
	return true
}

// Item returns a queue item by ID.
func (q *Queue) Item(itemID string) (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[itemID]
	return item, ok
}

// StatusForResponse finds the queue item carrying a response.
func (q *Queue) StatusForResponse(responseID string) (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.ResponseID == responseID {
			return item, true
		}
	}
	return nil, false
}

// GetStats returns queue statistics.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		TotalItems:  len(q.items),
		Processing:  len(q.processing),
		QueueSize:   q.heap.Len(),
		ByStatus:    make(map[string]int),
		ByPlatform:  make(map[string]int),
		Running:     q.running,
		WorkerCount: q.workers,
	}
	for _, item := range q.items {
		stats.ByStatus[string(item.Status)]++
		stats.ByPlatform[item.Platform]++
	}
	return stats
}

// updateDepthLocked assumes q.mu is held.
func (q *Queue) updateDepthLocked() {
	depth := 0
	for _, item := range q.items {
		switch item.Status {
		case StatusQueued, StatusRetryPending, StatusProcessing:
			depth++
		}
	}
	observability.PostingQueueDepth.Set(float64(depth))
}

// Start launches numWorkers worker goroutines. The post callback must
// be set first.
func (q *Queue) Start(numWorkers int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return nil
	}
	if q.postFn == nil {
		return fmt.Errorf("op=posting.Start: post callback not set: %w", domain.ErrInvalidArgument)
	}
	if numWorkers <= 0 {
		numWorkers = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.running = true
	q.workers = numWorkers
	for i := 0; i < numWorkers; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, fmt.Sprintf("worker-%d", i))
	}
	slog.Info("started queue workers", slog.Int("count", numWorkers))
	return nil
}

// Stop halts the workers and waits for in-flight posts.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.workers = 0
	cancel := q.cancel
	q.mu.Unlock()

	cancel()
	q.wg.Wait()
	slog.Info("stopped queue workers")
}

func (q *Queue) workerLoop(ctx context.Context, name string) {
	defer q.wg.Done()
	slog.Debug("worker started", slog.String("worker", name))

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopped", slog.String("worker", name))
			return
		default:
		}

		item, ok := q.Dequeue(ctx)
		if !ok {
			continue
		}

		slog.Debug("worker processing item",
			slog.String("worker", name),
			slog.String("response_id", item.ResponseID))

		result := q.runPost(ctx, item)
		q.Complete(item.ID, result)
	}
}

// runPost shields the worker loop from panics in the post callback.
func (q *Queue) runPost(ctx context.Context, item *QueueItem) (result domain.PostResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("post callback panicked",
				slog.String("response_id", item.ResponseID),
				slog.Any("panic", r))
			result = domain.PostResult{
				Success:   false,
				Error:     fmt.Sprintf("worker panic: %v", r),
				ErrorCode: domain.PostErrWorker,
				Retryable: true,
				Platform:  item.Platform,
			}
		}
	}()
	return q.postFn(ctx, item)
}
