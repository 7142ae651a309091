package repo

import (
	"context"
	"database/sql"
	"time"

	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/domain"
)

type NotificationRepo interface {
	// MarkProcessed returns false when key has been recorded before.
	MarkProcessed(ctx context.Context, tx *sql.Tx, key string, ev *domain.NotificationEvent) (bool, error)
}

type notificationRepo struct {
	dialect database.Dialect
}

func NewNotificationRepo(dialect database.Dialect) NotificationRepo {
	return &notificationRepo{dialect: dialect}
}

func (r *notificationRepo) MarkProcessed(ctx context.Context, tx *sql.Tx, key string, ev *domain.NotificationEvent) (bool, error) {
	res, err := tx.ExecContext(ctx,
		r.dialect.InsertIgnore("processed_notifications", "idempotency_key", "merchant_reference", "event_code", "processed_at"),
		key, ev.MerchantReference, ev.EventCode, time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
