package gateway

import (
	"context"
	"errors"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/payment"
)

var (
	ErrTimeout          = errors.New("gateway timeout")
	ErrMissingReference = errors.New("request has no merchant reference")
)

type Gateway interface {
	Authorise(ctx context.Context, req *payment.Request) (*domain.SyncResponse, error)
	Capture(ctx context.Context, req CaptureRequest) (*domain.SyncResponse, error)
}

type CaptureRequest struct {
	MerchantReference string
	PSPReference      string
	Amount            int64
	Currency          string
}

// NotifyFunc receives asynchronous notifications as the flat key-value
// payload the gateway would post to the notification endpoint.
type NotifyFunc func(ctx context.Context, data map[string]string)
