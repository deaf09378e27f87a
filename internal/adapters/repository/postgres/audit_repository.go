package postgres

import (
	"context"
	"fmt"

	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

// AuditRepository は監査ログの書き込み先です。offboarding.AuditLogger を実装します。
type AuditRepository struct {
	pool pgdb.Queryer
}

// NewAuditRepository は AuditRepository を生成します。
func NewAuditRepository(pool pgdb.Queryer) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Log は監査エントリを追記します。metadata は pgx により jsonb へエンコードされます。
func (r *AuditRepository) Log(ctx context.Context, entry offboarding.AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	if _, err := exec.Exec(ctx, `
        INSERT INTO audit_logs (scope_id, event_type, entity_type, entity_id, related_employee_id, actor_id, description, metadata, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `,
		entry.ScopeID,
		entry.EventType,
		entry.EntityType,
		entry.EntityID,
		entry.RelatedEmployeeID,
		entry.ActorID,
		entry.Description,
		metadata,
		entry.OccurredAt,
	); err != nil {
		return fmt.Errorf("postgres: insert audit log: %w", err)
	}
	return nil
}
