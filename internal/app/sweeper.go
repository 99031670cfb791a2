package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/reachby3cs/engage/internal/domain"
)

// StuckResponseSweeper fails responses that sat in the posting status
// past a maximum age. A response lands there when its process died
// between claiming the post and recording the outcome.
type StuckResponseSweeper struct {
	responses        domain.ResponseRepository
	maxProcessingAge time.Duration
	interval         time.Duration
}

func NewStuckResponseSweeper(responses domain.ResponseRepository, maxProcessingAge, interval time.Duration) *StuckResponseSweeper {
	if responses == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckResponseSweeper{
		responses:        responses,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

func (s *StuckResponseSweeper) Run(ctx context.Context) {
	if s == nil || s.responses == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck response sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckResponseSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("responses.sweeper")
	ctx, span := tracer.Start(ctx, "StuckResponseSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	// One batch per sweep; anything beyond it waits for the next tick.
	const batchSize = 500
	span.SetAttributes(
		attribute.Int("responses.batch_size", batchSize),
		attribute.Float64("responses.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	rows, err := s.responses.ListByStatus(ctx, domain.ResponsePosting, batchSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck response sweep failed to list responses", slog.Any("error", err))
		return
	}

	marked := 0
	for _, row := range rows {
		if !row.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.responses.UpdateStatus(ctx, row.ID, domain.ResponseFailed); err != nil {
			span.RecordError(err)
			slog.Error("stuck response sweep failed to update status",
				slog.String("response_id", row.ID), slog.Any("error", err))
			continue
		}
		marked++
		slog.Warn("marked stuck response as failed",
			slog.String("response_id", row.ID),
			slog.Duration("max_age", s.maxProcessingAge))
	}

	span.SetAttributes(
		attribute.Int("responses.total_checked", len(rows)),
		attribute.Int("responses.total_marked_failed", marked),
	)
}
