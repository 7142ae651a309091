package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gateway-reconciler/internal/database"
	"gateway-reconciler/internal/domain"

	"github.com/google/uuid"
)

var ErrDuplicateReference = errors.New("merchant reference already in use")

type OrderRepo interface {
	FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByMerchantReference(ctx context.Context, ref string) (*domain.Order, error)
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, status domain.OrderStatus) error
	// LockOrder takes a row lock on the order for the rest of tx.
	LockOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error
}

type orderRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewOrderRepo(db *sql.DB, dialect database.Dialect) OrderRepo {
	return &orderRepo{db: db, dialect: dialect}
}

// orderDetails is the part of an order stored as one JSON document.
type orderDetails struct {
	Billing   domain.Address    `json:"billing"`
	Shopper   domain.Shopper    `json:"shopper"`
	LineItems []domain.LineItem `json:"line_items"`
}

const orderColumns = "id, number, merchant_reference, user_id, email, status, total, currency, details, created_at, updated_at"

func (r *orderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id)
	return scanOrder(row)
}

func (r *orderRepo) FindByMerchantReference(ctx context.Context, ref string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind("SELECT "+orderColumns+" FROM orders WHERE merchant_reference = ?"), ref)
	return scanOrder(row)
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var (
		order   domain.Order
		details string
	)
	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.MerchantReference,
		&order.UserID,
		&order.Email,
		&order.Status,
		&order.Total,
		&order.Currency,
		&details,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err // system error
	}

	var d orderDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return nil, fmt.Errorf("order %s details: %w", order.ID, err)
	}
	order.Billing = d.Billing
	order.Shopper = d.Shopper
	order.LineItems = d.LineItems
	return &order, nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	details, err := json.Marshal(orderDetails{
		Billing:   order.Billing,
		Shopper:   order.Shopper,
		LineItems: order.LineItems,
	})
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		r.dialect.Rebind("INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		order.ID, order.Number, order.MerchantReference, order.UserID, order.Email, order.Status,
		order.Total, order.Currency, string(details), order.CreatedAt, order.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, order.MerchantReference)
	}
	return err
}

func (r *orderRepo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, status domain.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		r.dialect.Rebind("UPDATE orders SET status = ?, updated_at = ? WHERE id = ?"),
		status, time.Now().UTC(), orderID,
	)
	return err
}

func (r *orderRepo) LockOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, r.dialect.Rebind("SELECT id FROM orders WHERE id = ? FOR UPDATE"), orderID).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.ErrOrderNotFound
	}
	return err
}
