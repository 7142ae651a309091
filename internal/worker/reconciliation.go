package worker

import (
	"context"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/repo"

	"go.uber.org/zap"
)

const batchSize = 100

// StaleWorker reports transactions the gateway never settled. It only
// publishes transaction_stale; status changes belong to the engine.
type StaleWorker struct {
	store      repo.Store
	hooks      *hooks.Registry
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewStaleWorker(
	store repo.Store,
	registry *hooks.Registry,
	logger *zap.Logger,
	interval time.Duration,
	staleAfter time.Duration,
) *StaleWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = hooks.NewRegistry(logger)
	}
	return &StaleWorker{
		store:      store,
		hooks:      registry,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (w *StaleWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Stale transaction worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("stale_after", w.staleAfter),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stale transaction worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Scan(ctx); err != nil {
				w.logger.Error("Stale transaction scan failed", zap.Error(err))
			}
		}
	}
}

// Scan runs one pass and returns how many stale transactions it reported.
func (w *StaleWorker) Scan(ctx context.Context) (int, error) {
	stale, err := w.store.FindStalePending(ctx, w.staleAfter, batchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	w.logger.Warn("Found stale pending transactions", zap.Int("count", len(stale)))

	orders := make(map[string]*domain.Order)
	for i := range stale {
		txn := &stale[i]
		order, ok := orders[txn.MerchantReference]
		if !ok {
			order, err = w.store.FindByMerchantReference(ctx, txn.MerchantReference)
			if err != nil {
				w.logger.Error("Failed to load order for stale transaction",
					zap.String("merchant_reference", txn.MerchantReference),
					zap.Error(err),
				)
				continue
			}
			orders[txn.MerchantReference] = order
		}

		w.logger.Warn("Transaction still pending",
			zap.String("merchant_reference", txn.MerchantReference),
			zap.String("transaction_id", txn.ID.String()),
			zap.String("remote_id", txn.RemoteID),
			zap.Duration("age", time.Since(txn.UpdatedAt)),
		)
		w.hooks.Publish(ctx, hooks.Event{
			Name:        hooks.TransactionStale,
			Order:       order,
			Transaction: txn,
			Previous:    txn.Status,
		})
	}
	return len(stale), nil
}
