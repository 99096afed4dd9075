package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAuditIncomplete is returned for entries lacking action, entity or id.
var ErrAuditIncomplete = errors.New("shared: audit entry requires action, entity and entity_id")

// AuditLog is one row of audit_logs. A zero At lets the database stamp it.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Validate checks the mandatory fields.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return ErrAuditIncomplete
	}
	return nil
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends entries to audit_logs.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns a logger writing through db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

const insertAuditSQL = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`

// Record persists one entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	var meta []byte
	if len(entry.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Meta); err != nil {
			return fmt.Errorf("shared: encode audit meta: %w", err)
		}
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	if _, err := l.db.Exec(ctx, insertAuditSQL,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, at); err != nil {
		return fmt.Errorf("shared: record audit %s/%s: %w", entry.Entity, entry.Action, err)
	}
	return nil
}
