package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDocumentCreated fans out committed document events.
	TaskDocumentCreated = "document:created"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// DocumentCreatedPayload wraps a document event for the queue.
type DocumentCreatedPayload struct {
	Event      shared.DocumentEvent `json:"event"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewDocumentCreatedTask constructs an Asynq task for a document event.
func NewDocumentCreatedTask(event shared.DocumentEvent, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(DocumentCreatedPayload{Event: event, OccurredAt: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDocumentCreated, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// IdempotencyCleanupPayload controls the retention window of a purge run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the periodic purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
