package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cisasmendi/sistema-stock/internal/domain/audit"
)

const insertAuditSQL = `INSERT INTO audit_log (actor_id, action, entity_type, entity_id, detail)
	VALUES ($1, $2, $3, $4, $5)`

var _ audit.Recorder = (*AuditRecorder)(nil)

// AuditRecorder implements audit.Recorder backed by PostgreSQL.
type AuditRecorder struct {
	pool *pgxpool.Pool
}

// NewAuditRecorder returns an AuditRecorder that uses the given pool.
func NewAuditRecorder(pool *pgxpool.Pool) *AuditRecorder {
	return &AuditRecorder{pool: pool}
}

// Record appends a single audit row. A zero actor is stored as NULL.
func (r *AuditRecorder) Record(ctx context.Context, e audit.Event) error {
	actor := uuid.NullUUID{UUID: e.ActorID, Valid: e.ActorID != uuid.Nil}
	_, err := r.pool.Exec(ctx, insertAuditSQL, actor, e.Action, e.EntityType, e.EntityID, e.Detail)
	if err != nil {
		return fmt.Errorf("recording audit event %q: %w", e.Action, err)
	}
	return nil
}
