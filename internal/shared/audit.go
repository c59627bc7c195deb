package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AuditLog is one row of audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditEntry builds an AuditLog for a numeric entity id.
func AuditEntry(actorID int64, action, entity string, id int64, meta map[string]any) AuditLog {
	return AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta}
}

// AuditLogger appends to audit_logs.
type AuditLogger struct {
	db DB
}

// NewAuditLogger returns a logger writing through db.
func NewAuditLogger(db DB) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record inserts the entry. ActorID falls back to the principal in ctx and
// a zero At to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return fmt.Errorf("%w: audit log requires action, entity and entity id", ErrValidation)
	}
	if log.ActorID == 0 {
		if p, ok := PrincipalFromContext(ctx); ok {
			log.ActorID = p.UserID
		}
	}
	var meta []byte
	if len(log.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(log.Meta); err != nil {
			return fmt.Errorf("audit meta: %w", err)
		}
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, meta, at)
	return err
}
