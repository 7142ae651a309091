// Package hooks is the explicit observer registry through which other parts
// of the system alter outgoing requests, inspect gateway responses and react
// to reconciliation events. Handlers run in registration order.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/payment"

	"go.uber.org/zap"
)

const (
	CaptureReceived          = "capture_received"
	CaptureRejected          = "capture_rejected"
	NotificationReceived     = "notification_received"
	TransactionStatusChanged = "transaction_status_changed"
	TransactionStale         = "transaction_stale"
)

// Event is a domain event. Transaction is nil for notification_received when
// the notification did not touch a transaction.
type Event struct {
	Name        string
	Order       *domain.Order
	Transaction *domain.Transaction
	EventCode   string
	Previous    domain.TransactionStatus
	Data        map[string]string
	OccurredAt  time.Time
}

type (
	Subscriber    func(ctx context.Context, ev Event) error
	RequestAlter  func(req *payment.Request, co *domain.Checkout)
	ResponseAlter func(resp *domain.SyncResponse, co *domain.Checkout)
	FormAlter     func(req *payment.Request, order *domain.Order)
	TypesAlter    func(types *payment.Types)
)

type subscription struct {
	name string
	fn   Subscriber
}

type delivery struct {
	ctx  context.Context
	ev   Event
	subs []subscription
}

type Registry struct {
	mu            sync.RWMutex
	logger        *zap.Logger
	subscribers   []subscription
	requestAlters []RequestAlter
	responseAlter []ResponseAlter
	formAlters    []FormAlter
	typesAlters   []TypesAlter

	qmu     sync.Mutex
	idle    *sync.Cond
	queue   []delivery
	pending int
	running bool
	closed  bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.idle = sync.NewCond(&r.qmu)
	return r
}

// Subscribe registers fn for events called name. An empty name receives
// every event.
func (r *Registry) Subscribe(name string, fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, subscription{name: name, fn: fn})
}

func (r *Registry) OnAuthorisationRequest(fn RequestAlter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestAlters = append(r.requestAlters, fn)
}

func (r *Registry) OnAuthorisationResponse(fn ResponseAlter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responseAlter = append(r.responseAlter, fn)
}

func (r *Registry) OnRedirectForm(fn FormAlter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formAlters = append(r.formAlters, fn)
}

func (r *Registry) OnPaymentTypes(fn TypesAlter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typesAlters = append(r.typesAlters, fn)
}

// Publish queues ev for every subscriber matching it at the time of the call
// and returns immediately. Events are delivered one at a time in publish
// order. Subscriber failures are logged and never reach the publisher.
func (r *Registry) Publish(ctx context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	r.mu.RLock()
	subs := make([]subscription, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		if s.name == "" || s.name == ev.Name {
			subs = append(subs, s)
		}
	}
	r.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.closed {
		r.logger.Warn("Event dropped after registry closed", zap.String("event", ev.Name))
		return
	}
	r.queue = append(r.queue, delivery{ctx: context.WithoutCancel(ctx), ev: ev, subs: subs})
	r.pending++
	if !r.running {
		r.running = true
		go r.dispatch()
	}
}

// dispatch drains the queue and exits when it is empty. Publish starts a new
// one on the next event.
func (r *Registry) dispatch() {
	for {
		r.qmu.Lock()
		if len(r.queue) == 0 {
			r.running = false
			r.qmu.Unlock()
			return
		}
		d := r.queue[0]
		r.queue[0] = delivery{}
		r.queue = r.queue[1:]
		r.qmu.Unlock()

		for _, s := range d.subs {
			if err := r.call(d.ctx, s.fn, d.ev); err != nil {
				r.logger.Warn("Event subscriber failed",
					zap.String("event", d.ev.Name),
					zap.Error(err),
				)
			}
		}

		r.qmu.Lock()
		r.pending--
		if r.pending == 0 {
			r.idle.Broadcast()
		}
		r.qmu.Unlock()
	}
}

// Flush blocks until every event published so far has been delivered.
func (r *Registry) Flush() {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	for r.pending > 0 {
		r.idle.Wait()
	}
}

// Close delivers the queued events and drops any published afterwards.
func (r *Registry) Close() {
	r.qmu.Lock()
	r.closed = true
	r.qmu.Unlock()
	r.Flush()
}

func (r *Registry) call(ctx context.Context, fn Subscriber, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("subscriber panic: %v", p)
		}
	}()
	return fn(ctx, ev)
}

// alter runs one alter hook. A panic is logged and the remaining hooks still
// run on whatever the panicking hook left behind.
func (r *Registry) alter(hook string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Alter hook panicked",
				zap.String("hook", hook),
				zap.Any("panic", p),
			)
		}
	}()
	fn()
}

func (r *Registry) AlterAuthorisationRequest(req *payment.Request, co *domain.Checkout) {
	r.mu.RLock()
	fns := append([]RequestAlter(nil), r.requestAlters...)
	r.mu.RUnlock()
	for _, fn := range fns {
		r.alter("authorisation_request", func() { fn(req, co) })
	}
}

func (r *Registry) AlterAuthorisationResponse(resp *domain.SyncResponse, co *domain.Checkout) {
	r.mu.RLock()
	fns := append([]ResponseAlter(nil), r.responseAlter...)
	r.mu.RUnlock()
	for _, fn := range fns {
		r.alter("authorisation_response", func() { fn(resp, co) })
	}
}

func (r *Registry) AlterRedirectForm(req *payment.Request, order *domain.Order) {
	r.mu.RLock()
	fns := append([]FormAlter(nil), r.formAlters...)
	r.mu.RUnlock()
	for _, fn := range fns {
		r.alter("redirect_form", func() { fn(req, order) })
	}
}

func (r *Registry) AlterPaymentTypes(types *payment.Types) {
	r.mu.RLock()
	fns := append([]TypesAlter(nil), r.typesAlters...)
	r.mu.RUnlock()
	for _, fn := range fns {
		r.alter("payment_types", func() { fn(types) })
	}
}
