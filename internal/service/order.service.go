package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/repo"

	"github.com/google/uuid"
)

var ErrInvalidOrder = errors.New("invalid order")

// NewOrder is the input for placing an order. Total is the sum of the line
// totals.
type NewOrder struct {
	MerchantReference string            `json:"merchant_reference"`
	UserID            uuid.UUID         `json:"user_id"`
	Email             string            `json:"email"`
	Currency          string            `json:"currency"`
	Billing           domain.Address    `json:"billing"`
	Shopper           domain.Shopper    `json:"shopper"`
	LineItems         []domain.LineItem `json:"line_items"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, in NewOrder) (*domain.Order, error)
}

type orderService struct {
	store repo.Store
}

func NewOrderService(store repo.Store) OrderService {
	return &orderService{store: store}
}

func (s *orderService) CreateOrder(ctx context.Context, in NewOrder) (*domain.Order, error) {
	if len(in.LineItems) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrInvalidOrder)
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrInvalidOrder)
	}

	var total int64
	items := make([]domain.LineItem, len(in.LineItems))
	for i, item := range in.LineItems {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d has no quantity", ErrInvalidOrder, i+1)
		}
		if item.Total == 0 {
			item.Total = item.UnitPrice * item.Quantity
		}
		if item.Currency == "" {
			item.Currency = currency
		}
		total += item.Total
		items[i] = item
	}

	id := uuid.New()
	now := time.Now().UTC()
	ref := in.MerchantReference
	if ref == "" {
		ref = id.String()
	}
	userID := in.UserID
	if userID == uuid.Nil {
		userID = uuid.New()
	}

	order := &domain.Order{
		ID:                id,
		Number:            ref,
		MerchantReference: ref,
		UserID:            userID,
		Email:             in.Email,
		Status:            domain.OrderPending,
		Total:             total,
		Currency:          currency,
		Billing:           in.Billing,
		Shopper:           in.Shopper,
		LineItems:         items,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}
