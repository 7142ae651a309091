package hooks_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/payment"

	"github.com/stretchr/testify/assert"
)

func TestPublish_RegistrationOrder(t *testing.T) {
	r := hooks.NewRegistry(nil)
	var calls []string

	r.Subscribe(hooks.CaptureReceived, func(_ context.Context, ev hooks.Event) error {
		calls = append(calls, "first")
		return nil
	})
	r.Subscribe("", func(_ context.Context, ev hooks.Event) error {
		calls = append(calls, "all:"+ev.Name)
		return nil
	})
	r.Subscribe(hooks.CaptureReceived, func(_ context.Context, ev hooks.Event) error {
		calls = append(calls, "third")
		return nil
	})
	r.Subscribe(hooks.CaptureRejected, func(_ context.Context, ev hooks.Event) error {
		calls = append(calls, "rejected")
		return nil
	})

	r.Publish(context.Background(), hooks.Event{Name: hooks.CaptureReceived})
	r.Flush()

	assert.Equal(t, []string{"first", "all:capture_received", "third"}, calls)
}

func TestPublish_FailingSubscribersDoNotStopOthers(t *testing.T) {
	r := hooks.NewRegistry(nil)
	reached := false

	r.Subscribe(hooks.NotificationReceived, func(context.Context, hooks.Event) error {
		return errors.New("boom")
	})
	r.Subscribe(hooks.NotificationReceived, func(context.Context, hooks.Event) error {
		panic("worse")
	})
	r.Subscribe(hooks.NotificationReceived, func(_ context.Context, ev hooks.Event) error {
		reached = true
		assert.False(t, ev.OccurredAt.IsZero())
		return nil
	})

	assert.NotPanics(t, func() {
		r.Publish(context.Background(), hooks.Event{Name: hooks.NotificationReceived})
	})
	r.Flush()
	assert.True(t, reached)
}

func TestPublish_ReturnsBeforeSlowSubscriber(t *testing.T) {
	r := hooks.NewRegistry(nil)
	release := make(chan struct{})
	var (
		mu  sync.Mutex
		got []string
	)
	r.Subscribe("", func(_ context.Context, ev hooks.Event) error {
		<-release
		mu.Lock()
		got = append(got, ev.Name)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	r.Publish(ctx, hooks.Event{Name: hooks.NotificationReceived})
	r.Publish(ctx, hooks.Event{Name: hooks.TransactionStatusChanged})
	assert.Less(t, time.Since(start), time.Second)

	// delivery outlives the publisher's context
	cancel()
	close(release)
	r.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{hooks.NotificationReceived, hooks.TransactionStatusChanged}, got)
}

func TestClose_DropsLaterEvents(t *testing.T) {
	r := hooks.NewRegistry(nil)
	calls := 0
	r.Subscribe("", func(context.Context, hooks.Event) error {
		calls++
		return nil
	})

	r.Publish(context.Background(), hooks.Event{Name: hooks.CaptureReceived})
	r.Close()
	assert.Equal(t, 1, calls)

	r.Publish(context.Background(), hooks.Event{Name: hooks.CaptureRejected})
	r.Flush()
	assert.Equal(t, 1, calls)
}

func TestAlterHooks_PanicIsContained(t *testing.T) {
	r := hooks.NewRegistry(nil)
	r.OnAuthorisationRequest(func(*payment.Request, *domain.Checkout) { panic("first") })
	r.OnAuthorisationRequest(func(req *payment.Request, _ *domain.Checkout) { req.Set("shopperLocale", "de_DE") })
	r.OnAuthorisationResponse(func(*domain.SyncResponse, *domain.Checkout) { panic("response") })
	r.OnRedirectForm(func(*payment.Request, *domain.Order) { panic("form") })
	r.OnPaymentTypes(func(*payment.Types) { panic("types") })

	req := payment.NewRequest()
	assert.NotPanics(t, func() {
		r.AlterAuthorisationRequest(req, &domain.Checkout{})
		r.AlterAuthorisationResponse(&domain.SyncResponse{}, &domain.Checkout{})
		r.AlterRedirectForm(req, &domain.Order{})
		r.AlterPaymentTypes(payment.NewTypes())
	})
	v, _ := req.Get("shopperLocale")
	assert.Equal(t, "de_DE", v)
}

func TestAlterHooks(t *testing.T) {
	r := hooks.NewRegistry(nil)
	co := &domain.Checkout{Order: &domain.Order{MerchantReference: "ORD-1"}}

	r.OnAuthorisationRequest(func(req *payment.Request, co *domain.Checkout) {
		req.Set("shopperLocale", "nl_NL")
	})
	r.OnAuthorisationRequest(func(req *payment.Request, co *domain.Checkout) {
		v, _ := req.Get("shopperLocale")
		req.Set("shopperLocale", v+"!")
	})
	req := payment.NewRequest()
	r.AlterAuthorisationRequest(req, co)
	v, _ := req.Get("shopperLocale")
	assert.Equal(t, "nl_NL!", v)

	r.OnAuthorisationResponse(func(resp *domain.SyncResponse, _ *domain.Checkout) {
		if resp.Result == domain.ResultPending {
			resp.Result = domain.ResultError
		}
	})
	resp := &domain.SyncResponse{Result: domain.ResultPending}
	r.AlterAuthorisationResponse(resp, co)
	assert.Equal(t, domain.ResultError, resp.Result)

	r.OnPaymentTypes(func(types *payment.Types) { types.Remove("openinvoice") })
	types := payment.NewTypes()
	types.Register(payment.Type{Name: "openinvoice"})
	r.AlterPaymentTypes(types)
	assert.Empty(t, types.All())

	r.OnRedirectForm(func(req *payment.Request, order *domain.Order) {
		req.Set("resURL", "https://shop.example/"+order.MerchantReference)
	})
	form := payment.NewRequest()
	r.AlterRedirectForm(form, co.Order)
	v, _ = form.Get("resURL")
	assert.Equal(t, "https://shop.example/ORD-1", v)
}
