package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs. Before and After hold
// the snapshots surrounding a mutation so the trail stays readable even for
// soft-deleted entities.
type AuditLog struct {
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Before   map[string]any
	After    map[string]any
	Reason   string
	At       time.Time
}

// AuditLogger writes records into audit_logs. Writes are best effort by
// policy: a failed audit write must never block the mutation it documents.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	beforeJSON, err := json.Marshal(log.Before)
	if err != nil {
		return err
	}
	afterJSON, err := json.Marshal(log.After)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, before, after, reason, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.Actor, log.Action, log.Entity, log.EntityID, beforeJSON, afterJSON, log.Reason, at)
	return err
}
