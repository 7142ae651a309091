package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/gateway"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/payment"
	"gateway-reconciler/internal/reconcile"
	"gateway-reconciler/internal/repo"

	"go.uber.org/zap"
)

var (
	ErrOrderNotPending  = errors.New("order is not in pending state")
	ErrNothingToCapture = errors.New("order has no authorised transaction")
)

type CheckoutService interface {
	PaymentTypes() []payment.Type
	BuildRequest(ctx context.Context, ref string, method domain.PaymentMethod) (*payment.Request, error)
	Checkout(ctx context.Context, ref string, method domain.PaymentMethod) (*domain.SyncResponse, error)
	HandleRedirectResult(ctx context.Context, ref string, data map[string]string) error
	HandleNotification(ctx context.Context, data map[string]string) error
	Capture(ctx context.Context, ref string) (*domain.SyncResponse, error)
	Transactions(ctx context.Context, ref string) (*domain.Order, []domain.Transaction, error)
}

type checkoutService struct {
	store    repo.Store
	types    *payment.Types
	hooks    *hooks.Registry
	gateway  gateway.Gateway
	engine   reconcile.Engine
	settings payment.Settings
	logger   *zap.Logger
	now      func() time.Time
}

func NewCheckoutService(
	store repo.Store,
	types *payment.Types,
	registry *hooks.Registry,
	gw gateway.Gateway,
	engine reconcile.Engine,
	settings payment.Settings,
	logger *zap.Logger,
) CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &checkoutService{
		store:    store,
		types:    types,
		hooks:    registry,
		gateway:  gw,
		engine:   engine,
		settings: settings,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PaymentTypes lists the types offered on checkout after alter hooks ran.
func (s *checkoutService) PaymentTypes() []payment.Type {
	return s.availableTypes().All()
}

func (s *checkoutService) availableTypes() *payment.Types {
	types := s.types.Clone()
	s.hooks.AlterPaymentTypes(types)
	return types
}

func (s *checkoutService) findOrder(ctx context.Context, ref string) (*domain.Order, error) {
	order, err := s.store.FindByMerchantReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, ref)
	}
	return order, nil
}

// BuildRequest assembles the redirect form for a pending order: base fields,
// the payment type's own fields, then request and form alter hooks.
func (s *checkoutService) BuildRequest(ctx context.Context, ref string, method domain.PaymentMethod) (*payment.Request, error) {
	order, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderNotPending, ref, order.Status)
	}
	req, _, err := s.build(order, method)
	return req, err
}

func (s *checkoutService) build(order *domain.Order, method domain.PaymentMethod) (*payment.Request, *payment.Type, error) {
	pt, err := s.availableTypes().Get(method.Type)
	if err != nil {
		return nil, nil, err
	}
	if method.SubType != "" && len(pt.SubTypes) > 0 {
		if _, ok := pt.SubTypes[method.SubType]; !ok {
			return nil, nil, fmt.Errorf("%w: %s/%s", payment.ErrUnknownType, method.Type, method.SubType)
		}
	}

	co := &domain.Checkout{Order: order, Method: method}
	now := s.now()
	if v, ok := pt.Builder.(payment.Validator); ok {
		if err := v.Validate(co, now); err != nil {
			return nil, nil, err
		}
	}

	req := payment.NewAuthorisationRequest(co, s.settings, now)
	if err := pt.Builder.Build(req, co); err != nil {
		return nil, nil, fmt.Errorf("build %s request: %w", pt.Name, err)
	}
	s.hooks.AlterAuthorisationRequest(req, co)
	s.hooks.AlterRedirectForm(req, order)
	return req, &pt, nil
}

func (s *checkoutService) Checkout(ctx context.Context, ref string, method domain.PaymentMethod) (*domain.SyncResponse, error) {
	order, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderNotPending, ref, order.Status)
	}

	req, pt, err := s.build(order, method)
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Authorise(ctx, req)
	if err != nil {
		// the gateway may still have charged; its notification settles it
		s.logger.Warn("Authorisation request failed",
			zap.String("merchant_reference", ref),
			zap.Error(err),
		)
		return nil, err
	}
	resp.PaymentMethod = pt.Name

	if err := s.engine.HandleSynchronousResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// HandleRedirectResult records the result the shopper brought back from the
// hosted payment page.
func (s *checkoutService) HandleRedirectResult(ctx context.Context, ref string, data map[string]string) error {
	resp := &domain.SyncResponse{
		Kind:              domain.ResponseAuthorisation,
		MerchantReference: ref,
		PSPReference:      data["pspReference"],
		Result:            data["authResult"],
		PaymentMethod:     data["paymentMethod"],
		Raw:               data,
	}
	if resp.Result == "" {
		return domain.ErrMalformedResponse
	}
	return s.engine.HandleSynchronousResponse(ctx, resp)
}

func (s *checkoutService) HandleNotification(ctx context.Context, data map[string]string) error {
	ev, err := domain.ParseNotification(data)
	if err != nil {
		return err
	}
	return s.engine.HandleNotification(ctx, ev)
}

func (s *checkoutService) Capture(ctx context.Context, ref string) (*domain.SyncResponse, error) {
	order, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.GetTransactions(ctx, order.ID, domain.TransactionFilter{Status: domain.TransactionAuthorized})
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToCapture, ref)
	}
	txn := txs[len(txs)-1]

	resp, err := s.gateway.Capture(ctx, gateway.CaptureRequest{
		MerchantReference: ref,
		PSPReference:      txn.RemoteID,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
	})
	if err != nil {
		return nil, err
	}
	if err := s.engine.HandleSynchronousResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *checkoutService) Transactions(ctx context.Context, ref string) (*domain.Order, []domain.Transaction, error) {
	order, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.store.GetTransactions(ctx, order.ID, domain.TransactionFilter{})
	if err != nil {
		return nil, nil, err
	}
	return order, txs, nil
}
