package repo

import (
	"context"
	"database/sql"
	"time"

	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/domain"

	"github.com/google/uuid"
)

type sqlStore struct {
	db            *sql.DB
	orders        OrderRepo
	transactions  TransactionRepo
	notifications NotificationRepo
}

// NewSQLStore builds a Store over a Postgres or MySQL database. Per-order
// serialisation uses SELECT ... FOR UPDATE on the order row.
func NewSQLStore(db *sql.DB, dialect database.Dialect) Store {
	return &sqlStore{
		db:            db,
		orders:        NewOrderRepo(db, dialect),
		transactions:  NewTransactionRepo(db, dialect),
		notifications: NewNotificationRepo(dialect),
	}
}

func (s *sqlStore) FindByMerchantReference(ctx context.Context, ref string) (*domain.Order, error) {
	return s.orders.FindByMerchantReference(ctx, ref)
}

func (s *sqlStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orders.CreateOrder(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqlStore) GetTransactions(ctx context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return s.transactions.GetTransactions(ctx, s.db, orderID, filter)
}

func (s *sqlStore) FindStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Transaction, error) {
	return s.transactions.FindPendingBefore(ctx, time.Now().UTC().Add(-olderThan), limit)
}

func (s *sqlStore) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(tx StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orders.LockOrder(ctx, tx, orderID); err != nil {
		return err
	}
	if err := fn(&sqlStoreTx{store: s, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlStoreTx struct {
	store *sqlStore
	tx    *sql.Tx
}

func (t *sqlStoreTx) GetTransactions(ctx context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	return t.store.transactions.GetTransactions(ctx, t.tx, orderID, filter)
}

func (t *sqlStoreTx) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	exists, err := t.store.transactions.Exists(ctx, t.tx, txn.ID)
	if err != nil {
		return err
	}
	if exists {
		return t.store.transactions.UpdateTransaction(ctx, t.tx, txn)
	}
	return t.store.transactions.CreateTransaction(ctx, t.tx, txn)
}

func (t *sqlStoreTx) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	return t.store.orders.UpdateOrderStatus(ctx, t.tx, orderID, status)
}

func (t *sqlStoreTx) MarkProcessed(ctx context.Context, key string, ev *domain.NotificationEvent) (bool, error) {
	return t.store.notifications.MarkProcessed(ctx, t.tx, key, ev)
}
