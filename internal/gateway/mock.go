package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/payment"

	"github.com/google/uuid"
)

// Odds are percentages out of 100. The remainder of Authorised+Refused is
// the lagging case: the charge goes through but the caller sees a timeout.
type Odds struct {
	Authorised     int
	Refused        int
	CaptureSuccess int
	Duplicate      int
}

var DefaultOdds = Odds{Authorised: 70, Refused: 20, CaptureSuccess: 90, Duplicate: 30}

type Option func(*MockGateway)

func WithOdds(o Odds) Option { return func(g *MockGateway) { g.odds = o } }

func WithSeed(seed uint64) Option {
	return func(g *MockGateway) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithLatency sets the synchronous response delay and the delay before
// notifications are delivered.
func WithLatency(sync, notify time.Duration) Option {
	return func(g *MockGateway) {
		g.syncDelay = sync
		g.notifyDelay = notify
	}
}

type charge struct {
	resp       *domain.SyncResponse
	err        error
	psp        string
	authorised bool
}

// MockGateway simulates a hosted payment page provider. Requests are
// idempotent per merchant reference, and every decision is later confirmed
// through notify, sometimes more than once.
type MockGateway struct {
	mu       sync.Mutex
	rng      *rand.Rand
	odds     Odds
	charges  map[string]charge
	captures map[string]charge

	syncDelay   time.Duration
	notifyDelay time.Duration
	notify      NotifyFunc
	pending     sync.WaitGroup
}

func NewMockGateway(notify NotifyFunc, opts ...Option) *MockGateway {
	g := &MockGateway{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		odds:        DefaultOdds,
		charges:     make(map[string]charge),
		captures:    make(map[string]charge),
		syncDelay:   100 * time.Millisecond,
		notifyDelay: 500 * time.Millisecond,
		notify:      notify,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MockGateway) Authorise(ctx context.Context, req *payment.Request) (*domain.SyncResponse, error) {
	ref, ok := req.Get("merchantReference")
	if !ok || ref == "" {
		return nil, ErrMissingReference
	}
	amount, _ := req.Get("paymentAmount")
	currency, _ := req.Get("currencyCode")
	method, _ := req.Get("brandCode")

	g.mu.Lock()
	if c, exists := g.charges[ref]; exists {
		g.mu.Unlock()
		return c.resp, c.err
	}
	chance := g.rng.IntN(100)

	psp := pspReference()
	resp := &domain.SyncResponse{
		Kind:              domain.ResponseAuthorisation,
		MerchantReference: ref,
		PSPReference:      psp,
		PaymentMethod:     method,
		Raw: map[string]string{
			"merchantReference": ref,
			"pspReference":      psp,
		},
	}
	c := charge{resp: resp, psp: psp}
	delay := g.syncDelay
	switch {
	case chance < g.odds.Authorised:
		resp.Result = domain.ResultAuthorised
		c.authorised = true
	case chance < g.odds.Authorised+g.odds.Refused:
		resp.Result = domain.ResultRefused
	default:
		// charged, but the answer never reaches the caller
		c.resp, c.err = nil, ErrTimeout
		c.authorised = true
		delay = 4 * g.syncDelay
	}
	resp.Raw["authResult"] = resp.Result
	g.charges[ref] = c
	g.mu.Unlock()

	g.deliver(notification(domain.EventAuthorisation, ref, psp, "", c.authorised, amount, currency))

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	return c.resp, c.err
}

func (g *MockGateway) Capture(ctx context.Context, req CaptureRequest) (*domain.SyncResponse, error) {
	if req.MerchantReference == "" {
		return nil, ErrMissingReference
	}

	g.mu.Lock()
	if c, exists := g.captures[req.MerchantReference]; exists {
		g.mu.Unlock()
		return c.resp, c.err
	}
	auth, known := g.charges[req.MerchantReference]
	charged := known && auth.authorised
	chance := g.rng.IntN(100)

	original := req.PSPReference
	if original == "" {
		original = auth.psp
	}
	psp := pspReference()
	resp := &domain.SyncResponse{
		Kind:              domain.ResponseCapture,
		MerchantReference: req.MerchantReference,
		PSPReference:      original,
		Result:            domain.ResultReceived,
		Raw: map[string]string{
			"merchantReference": req.MerchantReference,
			"pspReference":      psp,
			"originalReference": original,
		},
	}
	if !charged {
		resp.Result = domain.ResultRejected
	}
	resp.Raw["response"] = "[capture-" + strings.ToLower(resp.Result) + "]"
	g.captures[req.MerchantReference] = charge{resp: resp, psp: psp}
	g.mu.Unlock()

	if charged {
		value := strconv.FormatInt(req.Amount, 10)
		g.deliver(notification(domain.EventCapture, req.MerchantReference, psp, original,
			chance < g.odds.CaptureSuccess, value, req.Currency))
	}

	if err := sleep(ctx, g.syncDelay); err != nil {
		return nil, err
	}
	return resp, nil
}

// Wait blocks until every scheduled notification has been delivered.
func (g *MockGateway) Wait() {
	g.pending.Wait()
}

func (g *MockGateway) deliver(data map[string]string) {
	if g.notify == nil {
		return
	}
	g.mu.Lock()
	copies := 1
	if g.rng.IntN(100) < g.odds.Duplicate {
		copies = 2
	}
	g.mu.Unlock()

	for i := 0; i < copies; i++ {
		g.pending.Add(1)
		delay := g.notifyDelay * time.Duration(i+1)
		time.AfterFunc(delay, func() {
			defer g.pending.Done()
			g.notify(context.Background(), data)
		})
	}
}

func notification(code, ref, psp, original string, success bool, value, currency string) map[string]string {
	data := map[string]string{
		"eventCode":         strings.ToUpper(code),
		"merchantReference": ref,
		"pspReference":      psp,
		"success":           strconv.FormatBool(success),
		"value":             value,
		"currency":          currency,
		"eventDate":         time.Now().UTC().Format(time.RFC3339),
		"live":              "false",
	}
	if original != "" {
		data["originalReference"] = original
	}
	if !success {
		data["reason"] = "Refused"
	}
	return data
}

func pspReference() string {
	id := uuid.New()
	return fmt.Sprintf("%016d", id.ID())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
