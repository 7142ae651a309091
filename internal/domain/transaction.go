package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionAuthorized TransactionStatus = "AUTHORIZED"
	TransactionCaptured   TransactionStatus = "CAPTURED"
	TransactionFailed     TransactionStatus = "FAILED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
	TransactionRefunded   TransactionStatus = "REFUNDED"
)

// transitions lists every legal move. Anything absent is rejected.
var transitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:    {TransactionAuthorized, TransactionFailed, TransactionCancelled},
	TransactionAuthorized: {TransactionCaptured, TransactionFailed, TransactionCancelled},
	TransactionCaptured:   {TransactionRefunded},
}

// CanTransition reports whether a transaction may move from one status to another.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no status other than Refunded can follow s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCaptured, TransactionFailed, TransactionCancelled, TransactionRefunded:
		return true
	}
	return false
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionAuthorized, TransactionCaptured,
		TransactionFailed, TransactionCancelled, TransactionRefunded:
		return true
	}
	return false
}

// OrderStatus returns the order status a transaction in status s implies,
// and false when the order should be left as is.
func (s TransactionStatus) OrderStatus() (OrderStatus, bool) {
	switch s {
	case TransactionAuthorized:
		return OrderProcessing, true
	case TransactionCaptured:
		return OrderCompleted, true
	case TransactionCancelled:
		return OrderCanceled, true
	}
	return "", false
}

type Transaction struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	MerchantReference string
	RemoteID          string
	PaymentMethod     string
	Amount            int64
	Currency          string
	Status            TransactionStatus
	Message           string
	Payload           map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewTransaction opens a pending transaction for the order.
func NewTransaction(order *Order, method string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		ID:                uuid.New(),
		OrderID:           order.ID,
		MerchantReference: order.MerchantReference,
		PaymentMethod:     method,
		Amount:            order.Total,
		Currency:          order.Currency,
		Status:            TransactionPending,
		Payload:           map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// TransactionFilter narrows GetTransactions. Zero values match everything.
type TransactionFilter struct {
	RemoteID      string
	PaymentMethod string
	Status        TransactionStatus
}

func (f TransactionFilter) Match(tx *Transaction) bool {
	if f.RemoteID != "" && tx.RemoteID != f.RemoteID {
		return false
	}
	if f.PaymentMethod != "" && tx.PaymentMethod != f.PaymentMethod {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	return true
}
