// Package reconcile owns every write to a transaction's status. Gateway
// notifications are authoritative; synchronous acknowledgements can only
// record that a request was received or abandoned.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/repo"

	"go.uber.org/zap"
)

type Engine interface {
	HandleNotification(ctx context.Context, ev *domain.NotificationEvent) error
	HandleSynchronousResponse(ctx context.Context, resp *domain.SyncResponse) error
}

type engine struct {
	store  repo.Store
	hooks  *hooks.Registry
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(store repo.Store, registry *hooks.Registry, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = hooks.NewRegistry(logger)
	}
	return &engine{
		store:  store,
		hooks:  registry,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// outcome is what a unit of work did, collected for publishing after commit.
type outcome struct {
	duplicate   bool
	transaction *domain.Transaction
	previous    domain.TransactionStatus
	changed     bool
}

func (e *engine) HandleNotification(ctx context.Context, ev *domain.NotificationEvent) error {
	if ev == nil || ev.MerchantReference == "" || ev.EventCode == "" {
		return domain.ErrMalformedNotification
	}
	ev.EventCode = strings.ToLower(ev.EventCode)
	if ev.IdempotencyKey == "" {
		ev.IdempotencyKey = ev.DedupKey()
	}

	log := e.logger.With(
		zap.String("merchant_reference", ev.MerchantReference),
		zap.String("event_code", ev.EventCode),
		zap.Bool("success", ev.Success),
		zap.String("psp_reference", ev.PSPReference),
	)

	order, err := e.findOrder(ctx, ev.MerchantReference)
	if err != nil {
		log.Warn("Notification for unknown order", zap.Error(err))
		return err
	}

	var out outcome
	err = e.store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		fresh, err := tx.MarkProcessed(ctx, ev.IdempotencyKey, ev)
		if err != nil {
			return fmt.Errorf("record notification: %w", err)
		}
		if !fresh {
			out.duplicate = true
			return nil
		}

		txn, err := authoritative(ctx, tx, order, ev.PSPReference, ev.OriginalReference)
		if err != nil {
			return err
		}
		existing := txn != nil
		if !existing {
			txn = domain.NewTransaction(order, "")
		}

		target, ok := targetStatus(ev.EventCode, ev.Success, txn.Status)
		if !ok {
			if !existing {
				e.logger.Info("Notification left order without transaction untouched",
					zap.String("merchant_reference", ev.MerchantReference),
					zap.String("event_code", ev.EventCode),
				)
				return nil
			}
			return e.recordRejection(ctx, tx, txn, ev, &out)
		}
		if target == txn.Status {
			out.transaction = txn
			return nil
		}
		if !domain.CanTransition(txn.Status, target) {
			return &domain.TransitionError{
				MerchantReference: order.MerchantReference,
				From:              txn.Status,
				To:                target,
			}
		}

		out.previous = txn.Status
		txn.Status = target
		txn.Message = ev.Raw["reason"]
		if txn.RemoteID == "" {
			txn.RemoteID = remoteReference(ev)
		}
		txn.Payload = copyPayload(ev.Raw)
		txn.UpdatedAt = e.now()
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		if status, follow := target.OrderStatus(); follow {
			if err := tx.UpdateOrderStatus(ctx, order.ID, status); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			order.Status = status
		}
		out.transaction = txn
		out.changed = true
		return nil
	})
	if err != nil {
		log.Warn("Notification rejected", zap.Error(err))
		return err
	}
	if out.duplicate {
		log.Info("Duplicate notification ignored", zap.String("key", ev.IdempotencyKey))
		return nil
	}

	e.hooks.Publish(ctx, hooks.Event{
		Name:        hooks.NotificationReceived,
		Order:       order,
		Transaction: out.transaction,
		EventCode:   ev.EventCode,
		Data:        ev.Raw,
	})
	if out.changed {
		log.Info("Transaction status changed",
			zap.String("from", string(out.previous)),
			zap.String("to", string(out.transaction.Status)),
		)
		e.publishStatusChanged(ctx, order, out, ev.EventCode)
	}
	return nil
}

// recordRejection handles events that leave the status alone. A refused
// capture or refund keeps its reason on the transaction it refers to.
func (e *engine) recordRejection(ctx context.Context, tx repo.StoreTx, txn *domain.Transaction, ev *domain.NotificationEvent, out *outcome) error {
	switch ev.EventCode {
	case domain.EventCapture, domain.EventRefund:
		txn.Message = ev.Raw["reason"]
		txn.UpdatedAt = e.now()
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		out.transaction = txn
	default:
		e.logger.Info("Unhandled notification event code",
			zap.String("merchant_reference", ev.MerchantReference),
			zap.String("event_code", ev.EventCode),
		)
	}
	return nil
}

func (e *engine) HandleSynchronousResponse(ctx context.Context, resp *domain.SyncResponse) error {
	if resp == nil || resp.MerchantReference == "" {
		return domain.ErrMalformedResponse
	}

	order, err := e.findOrder(ctx, resp.MerchantReference)
	if err != nil {
		return err
	}

	co := &domain.Checkout{Order: order, Method: domain.PaymentMethod{Type: resp.PaymentMethod}}
	e.hooks.AlterAuthorisationResponse(resp, co)
	result := strings.ToUpper(strings.TrimSpace(resp.Result))

	log := e.logger.With(
		zap.String("merchant_reference", resp.MerchantReference),
		zap.String("kind", string(resp.Kind)),
		zap.String("result", result),
	)

	var out outcome
	err = e.store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		txn, err := authoritative(ctx, tx, order, resp.PSPReference, "")
		if err != nil {
			return err
		}
		dirty := false
		if txn == nil {
			txn = domain.NewTransaction(order, resp.PaymentMethod)
			txn.Payload = copyPayload(resp.Raw)
			dirty = true
		}
		if txn.RemoteID == "" && resp.PSPReference != "" {
			txn.RemoteID = resp.PSPReference
			dirty = true
		}

		if resp.Kind == domain.ResponseAuthorisation {
			if target, ok := syncTarget(result); ok && target != txn.Status {
				// a notification already moved it; the acknowledgement is stale
				if txn.Status != domain.TransactionPending {
					log.Info("Synchronous response ignored for settled transaction",
						zap.String("status", string(txn.Status)),
					)
				} else {
					out.previous = txn.Status
					txn.Status = target
					txn.Message = result
					out.changed = true
					dirty = true
				}
			}
		}

		out.transaction = txn
		if !dirty {
			return nil
		}
		txn.UpdatedAt = e.now()
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("save transaction: %w", err)
		}
		if out.changed {
			if status, follow := txn.Status.OrderStatus(); follow {
				if err := tx.UpdateOrderStatus(ctx, order.ID, status); err != nil {
					return fmt.Errorf("update order status: %w", err)
				}
				order.Status = status
			}
		}
		return nil
	})
	if err != nil {
		log.Warn("Synchronous response failed", zap.Error(err))
		return err
	}

	if resp.Kind == domain.ResponseCapture {
		name := ""
		switch result {
		case domain.ResultReceived:
			name = hooks.CaptureReceived
		case domain.ResultRejected:
			name = hooks.CaptureRejected
		}
		if name != "" {
			e.hooks.Publish(ctx, hooks.Event{
				Name:        name,
				Order:       order,
				Transaction: out.transaction,
				Data:        resp.Raw,
			})
		}
	}
	if out.changed {
		e.publishStatusChanged(ctx, order, out, "")
	}
	return nil
}

func (e *engine) findOrder(ctx context.Context, ref string) (*domain.Order, error) {
	order, err := e.store.FindByMerchantReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", ref, err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, ref)
	}
	return order, nil
}

func (e *engine) publishStatusChanged(ctx context.Context, order *domain.Order, out outcome, code string) {
	e.hooks.Publish(ctx, hooks.Event{
		Name:        hooks.TransactionStatusChanged,
		Order:       order,
		Transaction: out.transaction,
		EventCode:   code,
		Previous:    out.previous,
	})
}

// authoritative picks the transaction a gateway message refers to: the
// newest one carrying one of refs as its remote id, else the newest one for
// the order. It returns nil when the order has none.
func authoritative(ctx context.Context, tx repo.StoreTx, order *domain.Order, refs ...string) (*domain.Transaction, error) {
	txs, err := tx.GetTransactions(ctx, order.ID, domain.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	for i := len(txs) - 1; i >= 0; i-- {
		for _, ref := range refs {
			if ref != "" && txs[i].RemoteID == ref {
				return &txs[i], nil
			}
		}
	}
	return &txs[len(txs)-1], nil
}

// targetStatus maps a notification onto the status it asks for. ok is false
// when the event leaves the status unchanged.
func targetStatus(code string, success bool, current domain.TransactionStatus) (domain.TransactionStatus, bool) {
	switch code {
	case domain.EventAuthorisation:
		if success {
			return domain.TransactionAuthorized, true
		}
		return domain.TransactionFailed, true
	case domain.EventCapture:
		if success {
			return domain.TransactionCaptured, true
		}
	case domain.EventCaptureFailed:
		return domain.TransactionFailed, true
	case domain.EventCancellation:
		return domain.TransactionCancelled, true
	case domain.EventRefund:
		if success {
			return domain.TransactionRefunded, true
		}
	case domain.EventCancelOrRefund:
		if !success {
			return "", false
		}
		if current == domain.TransactionCaptured || current == domain.TransactionRefunded {
			return domain.TransactionRefunded, true
		}
		return domain.TransactionCancelled, true
	}
	return "", false
}

func syncTarget(result string) (domain.TransactionStatus, bool) {
	switch result {
	case domain.ResultRefused, domain.ResultError:
		return domain.TransactionFailed, true
	case domain.ResultCancelled:
		return domain.TransactionCancelled, true
	}
	return "", false
}

func remoteReference(ev *domain.NotificationEvent) string {
	if ev.OriginalReference != "" {
		return ev.OriginalReference
	}
	return ev.PSPReference
}

func copyPayload(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
