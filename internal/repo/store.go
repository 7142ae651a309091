package repo

import (
	"context"
	"database/sql"
	"time"

	"gateway-reconciler/internal/domain"

	"github.com/google/uuid"
)

// Store is the order store the reconciliation engine works against.
type Store interface {
	// FindByMerchantReference returns nil, nil when no order matches.
	FindByMerchantReference(ctx context.Context, ref string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetTransactions(ctx context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Transaction, error)

	// WithOrderLock runs fn with exclusive access to one order's
	// transactions. Writes made through tx are applied only when fn
	// returns nil; the lock is released on every path.
	WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(tx StoreTx) error) error
}

// StoreTx is the set of operations available inside WithOrderLock.
type StoreTx interface {
	GetTransactions(ctx context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error
	// MarkProcessed records a notification idempotency key and reports
	// false when it was already recorded.
	MarkProcessed(ctx context.Context, key string, ev *domain.NotificationEvent) (bool, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
