package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// DocumentSink receives document events pulled off the queue.
type DocumentSink interface {
	Deliver(ctx context.Context, event shared.DocumentEvent) error
}

// DocumentDispatchJob consumes document:created tasks.
type DocumentDispatchJob struct {
	Sink    DocumentSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDocumentDispatchJob wires the dispatch handler. A nil sink only logs events.
func NewDocumentDispatchJob(sink DocumentSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentDispatchJob {
	return &DocumentDispatchJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle decodes the event and hands it to the sink.
func (j *DocumentDispatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("document dispatch: handler not configured")
	}
	var payload DocumentCreatedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("document dispatch: decode payload: %w", asynq.SkipRetry)
	}
	event := payload.Event
	if event.Type == "" || event.ID == "" {
		return fmt.Errorf("document dispatch: incomplete event: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDocumentCreated)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(
		slog.String("document_type", event.Type),
		slog.String("document_id", event.ID),
		slog.String("number", event.Number),
		slog.String("status", event.Status),
	)
	if j.Sink == nil {
		logger.Info("document created", slog.Time("occurred_at", payload.OccurredAt))
		return nil
	}
	if err := j.Sink.Deliver(ctx, event); err != nil {
		logger.Error("document delivery failed", slog.Any("error", err))
		return err
	}
	logger.Info("document delivered")
	return nil
}

func (j *DocumentDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
