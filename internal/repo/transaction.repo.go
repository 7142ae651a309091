package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/domain"

	"github.com/google/uuid"
)

type TransactionRepo interface {
	GetTransactions(ctx context.Context, q querier, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error)
	// Exists reports whether a transaction with this id has been stored.
	Exists(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error)
	CreateTransaction(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error)
}

type transactionRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewTransactionRepo(db *sql.DB, dialect database.Dialect) TransactionRepo {
	return &transactionRepo{db: db, dialect: dialect}
}

const transactionColumns = "id, order_id, merchant_reference, remote_id, payment_method, amount, currency, status, message, payload, created_at, updated_at"

func (r *transactionRepo) GetTransactions(ctx context.Context, q querier, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	where := []string{"order_id = ?"}
	args := []any{orderID}
	if filter.RemoteID != "" {
		where = append(where, "remote_id = ?")
		args = append(args, filter.RemoteID)
	}
	if filter.PaymentMethod != "" {
		where = append(where, "payment_method = ?")
		args = append(args, filter.PaymentMethod)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + transactionColumns + " FROM transactions WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at ASC"
	rows, err := q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *transactionRepo) Exists(ctx context.Context, tx *sql.Tx, id uuid.UUID) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, r.dialect.Rebind("SELECT 1 FROM transactions WHERE id = ?"), id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *transactionRepo) CreateTransaction(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		t.ID, t.OrderID, t.MerchantReference, t.RemoteID, t.PaymentMethod, t.Amount, t.Currency,
		t.Status, t.Message, string(payload), t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (r *transactionRepo) UpdateTransaction(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		r.dialect.Rebind(`
		UPDATE transactions
		SET status = ?,
		    remote_id = ?,
		    message = ?,
		    payload = ?,
		    updated_at = ?
		WHERE id = ?`),
		t.Status, t.RemoteID, t.Message, string(payload), t.UpdatedAt, t.ID,
	)
	return err
}

func (r *transactionRepo) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = ?
		AND updated_at < ?
		ORDER BY updated_at ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), domain.TransactionPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		var (
			t       domain.Transaction
			payload string
		)
		err := rows.Scan(
			&t.ID,
			&t.OrderID,
			&t.MerchantReference,
			&t.RemoteID,
			&t.PaymentMethod,
			&t.Amount,
			&t.Currency,
			&t.Status,
			&t.Message,
			&payload,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		t.Payload = map[string]string{}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
