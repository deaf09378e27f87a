package postgres

import (
	"context"
	"fmt"

	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	pgdb "github.com/ogurasousui/offboarding-engine/internal/platform/db/postgres"
)

// NotificationRepository はアプリ内通知の受信箱です。offboarding.Notifier を実装します。
type NotificationRepository struct {
	pool  pgdb.Queryer
	clock offboarding.Clock
}

// NewNotificationRepository は NotificationRepository を生成します。
func NewNotificationRepository(pool pgdb.Queryer, clock offboarding.Clock) *NotificationRepository {
	return &NotificationRepository{pool: pool, clock: clock}
}

// Send は通知を受信箱に保存します。
func (r *NotificationRepository) Send(ctx context.Context, n offboarding.Notification) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	if _, err := exec.Exec(ctx, `
        INSERT INTO notifications (scope_id, recipient_id, type, title, message, link, related_employee_id, related_run_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `,
		n.ScopeID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Message,
		n.Link,
		n.RelatedEmployeeID,
		n.RelatedRunID,
		r.clock.Now(),
	); err != nil {
		return fmt.Errorf("postgres: insert notification: %w", err)
	}
	return nil
}
