package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/gateway"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/openinvoice"
	"gateway-reconciler/internal/payment"
	"gateway-reconciler/internal/reconcile"
	"gateway-reconciler/internal/repo"
	"gateway-reconciler/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubGateway answers with canned responses and records what it was sent.
type stubGateway struct {
	authResp   *domain.SyncResponse
	authErr    error
	captures   []gateway.CaptureRequest
	lastReq    *payment.Request
	captureRes string
}

func (g *stubGateway) Authorise(_ context.Context, req *payment.Request) (*domain.SyncResponse, error) {
	g.lastReq = req
	if g.authErr != nil {
		return nil, g.authErr
	}
	ref, _ := req.Get("merchantReference")
	resp := *g.authResp
	resp.MerchantReference = ref
	return &resp, nil
}

func (g *stubGateway) Capture(_ context.Context, req gateway.CaptureRequest) (*domain.SyncResponse, error) {
	g.captures = append(g.captures, req)
	return &domain.SyncResponse{
		Kind:              domain.ResponseCapture,
		MerchantReference: req.MerchantReference,
		PSPReference:      req.PSPReference,
		Result:            g.captureRes,
	}, nil
}

type env struct {
	store    *repo.MemoryStore
	registry *hooks.Registry
	svc      service.CheckoutService
	orders   service.OrderService
	gw       *stubGateway
	engine   reconcile.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repo.NewMemoryStore()
	registry := hooks.NewRegistry(zap.NewNop())
	engine := reconcile.NewEngine(store, registry, zap.NewNop())
	types := payment.NewTypes()
	types.Register(openinvoice.PaymentType())
	gw := &stubGateway{
		authResp:   &domain.SyncResponse{Kind: domain.ResponseAuthorisation, PSPReference: "psp-1", Result: domain.ResultAuthorised},
		captureRes: domain.ResultReceived,
	}
	settings := payment.Settings{MerchantAccount: "Shop", SkinCode: "skin", SessionValidity: time.Hour, ShipWithin: 72 * time.Hour}

	return &env{
		store:    store,
		registry: registry,
		svc:      service.NewCheckoutService(store, types, registry, gw, engine, settings, zap.NewNop()),
		orders:   service.NewOrderService(store),
		gw:       gw,
		engine:   engine,
	}
}

func (e *env) placeOrder(t *testing.T, ref string) *domain.Order {
	t.Helper()
	order, err := e.orders.CreateOrder(context.Background(), service.NewOrder{
		MerchantReference: ref,
		Email:             "anna@example.com",
		Currency:          "eur",
		Billing:           domain.Address{FirstName: "Anna", LastName: "Berg", City: "Berlin", Country: "DE"},
		Shopper: domain.Shopper{
			Gender:      "FEMALE",
			PhoneNumber: "+4930123456",
			BirthDate:   time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC),
		},
		LineItems: []domain.LineItem{
			{Label: "Mug", Type: "product", UnitPrice: 1070, Quantity: 2, VAT: 140},
			{Label: "Shipping", Type: "shipping", UnitPrice: 495, Quantity: 1, Total: 495},
		},
	})
	require.NoError(t, err)
	return order
}

var klarna = domain.PaymentMethod{Type: openinvoice.TypeName, SubType: openinvoice.Klarna}

func TestCreateOrder(t *testing.T) {
	e := newEnv(t)
	order := e.placeOrder(t, "ORD-1")

	assert.Equal(t, int64(2635), order.Total)
	assert.Equal(t, "EUR", order.Currency)
	assert.Equal(t, "EUR", order.LineItems[0].Currency)
	assert.Equal(t, domain.OrderPending, order.Status)

	_, err := e.orders.CreateOrder(context.Background(), service.NewOrder{Currency: "EUR"})
	assert.ErrorIs(t, err, service.ErrInvalidOrder)
}

func TestBuildRequest(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	e.registry.OnAuthorisationRequest(func(req *payment.Request, co *domain.Checkout) {
		req.Set("shopperStatement", "ORDER "+co.Order.Number)
	})
	e.registry.OnRedirectForm(func(req *payment.Request, _ *domain.Order) {
		req.Delete("klarna.acceptPrivacyPolicy")
	})

	req, err := e.svc.BuildRequest(context.Background(), "ORD-1", klarna)
	require.NoError(t, err)

	fields := req.Fields()
	assert.Equal(t, "ORD-1", fields["merchantReference"])
	assert.Equal(t, "2635", fields["paymentAmount"])
	assert.Equal(t, "klarna", fields["brandCode"])
	assert.Equal(t, "2", fields["openinvoicedata.numberOfLines"])
	assert.Equal(t, "ORDER ORD-1", fields["shopperStatement"])
	assert.NotContains(t, fields, "klarna.acceptPrivacyPolicy")
}

func TestBuildRequest_Errors(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	ctx := context.Background()

	_, err := e.svc.BuildRequest(ctx, "ORD-404", klarna)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = e.svc.BuildRequest(ctx, "ORD-1", domain.PaymentMethod{Type: "ideal"})
	assert.ErrorIs(t, err, payment.ErrUnknownType)

	_, err = e.svc.BuildRequest(ctx, "ORD-1", domain.PaymentMethod{Type: openinvoice.TypeName, SubType: "paypal"})
	assert.ErrorIs(t, err, payment.ErrUnknownType)

	e.registry.OnPaymentTypes(func(types *payment.Types) { types.Remove(openinvoice.TypeName) })
	_, err = e.svc.BuildRequest(ctx, "ORD-1", klarna)
	assert.ErrorIs(t, err, payment.ErrUnknownType)
	assert.Empty(t, e.svc.PaymentTypes())
}

func TestBuildRequest_ValidatesShopper(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders.CreateOrder(context.Background(), service.NewOrder{
		MerchantReference: "ORD-2",
		Currency:          "EUR",
		Shopper:           domain.Shopper{Gender: "X"},
		LineItems:         []domain.LineItem{{Label: "Mug", UnitPrice: 100, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = e.svc.BuildRequest(context.Background(), "ORD-2", klarna)
	assert.ErrorIs(t, err, openinvoice.ErrInvalidGender)
}

func TestCheckout_LeavesTransactionPending(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")

	resp, err := e.svc.Checkout(context.Background(), "ORD-1", klarna)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultAuthorised, resp.Result)

	order, txs, err := e.svc.Transactions(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionPending, txs[0].Status)
	assert.Equal(t, "psp-1", txs[0].RemoteID)
	assert.Equal(t, openinvoice.TypeName, txs[0].PaymentMethod)
	assert.Equal(t, domain.OrderPending, order.Status)
}

func TestCheckout_Refused(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	e.gw.authResp.Result = domain.ResultRefused

	_, err := e.svc.Checkout(context.Background(), "ORD-1", klarna)
	require.NoError(t, err)

	_, txs, err := e.svc.Transactions(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionFailed, txs[0].Status)
}

func TestCheckout_GatewayErrorRecordsNothing(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	e.gw.authErr = gateway.ErrTimeout

	_, err := e.svc.Checkout(context.Background(), "ORD-1", klarna)
	assert.True(t, errors.Is(err, gateway.ErrTimeout))

	_, txs, err := e.svc.Transactions(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Empty(t, txs)

	// the late notification still settles the charge
	require.NoError(t, e.svc.HandleNotification(context.Background(), map[string]string{
		"eventCode":         "AUTHORISATION",
		"merchantReference": "ORD-1",
		"pspReference":      "psp-late",
		"success":           "true",
	}))
	_, txs, err = e.svc.Transactions(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionAuthorized, txs[0].Status)
	assert.Equal(t, "psp-late", txs[0].RemoteID)
}

func TestCheckout_OrderNotPending(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	require.NoError(t, e.svc.HandleNotification(context.Background(), map[string]string{
		"eventCode": "CANCELLATION", "merchantReference": "ORD-1", "success": "true",
	}))

	_, err := e.svc.Checkout(context.Background(), "ORD-1", klarna)
	assert.ErrorIs(t, err, service.ErrOrderNotPending)
}

func TestHandleRedirectResult(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")

	err := e.svc.HandleRedirectResult(context.Background(), "ORD-1", map[string]string{
		"authResult":   "CANCELLED",
		"pspReference": "psp-9",
	})
	require.NoError(t, err)

	order, txs, err := e.svc.Transactions(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionCancelled, txs[0].Status)
	assert.Equal(t, domain.OrderCanceled, order.Status)

	err = e.svc.HandleRedirectResult(context.Background(), "ORD-1", map[string]string{})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestHandleNotification_Malformed(t *testing.T) {
	e := newEnv(t)
	err := e.svc.HandleNotification(context.Background(), map[string]string{"eventCode": "CAPTURE"})
	assert.ErrorIs(t, err, domain.ErrMalformedNotification)
}

func TestCapture(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t, "ORD-1")
	ctx := context.Background()

	var received []hooks.Event
	e.registry.Subscribe(hooks.CaptureReceived, func(_ context.Context, ev hooks.Event) error {
		received = append(received, ev)
		return nil
	})

	_, err := e.svc.Capture(ctx, "ORD-1")
	assert.ErrorIs(t, err, service.ErrNothingToCapture)

	_, err = e.svc.Checkout(ctx, "ORD-1", klarna)
	require.NoError(t, err)
	require.NoError(t, e.svc.HandleNotification(ctx, map[string]string{
		"eventCode": "AUTHORISATION", "merchantReference": "ORD-1", "pspReference": "psp-1", "success": "true",
	}))

	resp, err := e.svc.Capture(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResultReceived, resp.Result)
	require.Len(t, e.gw.captures, 1)
	assert.Equal(t, "psp-1", e.gw.captures[0].PSPReference)
	assert.Equal(t, int64(2635), e.gw.captures[0].Amount)
	e.registry.Flush()
	require.Len(t, received, 1)

	// capture acknowledgement alone never captures
	order, txs, err := e.svc.Transactions(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionAuthorized, txs[0].Status)
	assert.Equal(t, domain.OrderProcessing, order.Status)
}

func TestCheckout_WithMockGatewayConverges(t *testing.T) {
	store := repo.NewMemoryStore()
	registry := hooks.NewRegistry(zap.NewNop())
	engine := reconcile.NewEngine(store, registry, zap.NewNop())
	types := payment.NewTypes()
	types.Register(openinvoice.PaymentType())

	var svc service.CheckoutService
	gw := gateway.NewMockGateway(func(ctx context.Context, data map[string]string) {
		_ = svc.HandleNotification(ctx, data)
	},
		gateway.WithSeed(1),
		gateway.WithOdds(gateway.Odds{Authorised: 100, CaptureSuccess: 100, Duplicate: 100}),
		gateway.WithLatency(0, time.Millisecond),
	)
	svc = service.NewCheckoutService(store, types, registry, gw, engine, payment.Settings{}, zap.NewNop())

	e := &env{store: store, orders: service.NewOrderService(store)}
	e.placeOrder(t, "ORD-1")
	ctx := context.Background()

	_, err := svc.Checkout(ctx, "ORD-1", klarna)
	require.NoError(t, err)
	gw.Wait()

	_, err = svc.Capture(ctx, "ORD-1")
	require.NoError(t, err)
	gw.Wait()

	order, txs, err := svc.Transactions(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionCaptured, txs[0].Status)
	assert.Equal(t, domain.OrderCompleted, order.Status)
}
