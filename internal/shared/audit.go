package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes document and stock mutations into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry. The request id set by the HTTP middleware, when present, is
// stored in meta so entries can be joined with access logs.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	payload, err := auditPayload(ctx, log)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At.UTC()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, payload, at)
	return err
}

func auditPayload(ctx context.Context, log AuditLog) ([]byte, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return nil, errors.New("audit log requires action/entity/entity_id")
	}
	meta := make(map[string]any, len(log.Meta)+1)
	for k, v := range log.Meta {
		meta[k] = v
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		meta["request_id"] = reqID
	}
	return json.Marshal(meta)
}
