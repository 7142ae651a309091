package main

import (
	"context"

	"gateway-reconciler/internal/config"
	"gateway-reconciler/internal/events"
	"gateway-reconciler/internal/gateway"
	"gateway-reconciler/internal/hooks"
	"gateway-reconciler/internal/openinvoice"
	"gateway-reconciler/internal/payment"
	"gateway-reconciler/internal/reconcile"
	"gateway-reconciler/internal/repo"
	"gateway-reconciler/internal/service"

	"go.uber.org/zap"
)

// app holds the wired components shared by serve and simulate.
type app struct {
	store     repo.Store
	registry  *hooks.Registry
	engine    reconcile.Engine
	checkout  service.CheckoutService
	orders    service.OrderService
	gateway   *gateway.MockGateway
	publisher *events.Publisher
}

func newApp(cfg *config.Config, store repo.Store, logger *zap.Logger, gwOpts ...gateway.Option) (*app, error) {
	a := &app{store: store, registry: hooks.NewRegistry(logger)}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		a.publisher = events.NewPublisher(producer, cfg.Kafka.Topic, logger)
		a.publisher.Attach(a.registry)
		logger.Info("Publishing events to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	types := payment.NewTypes()
	types.Register(openinvoice.PaymentType())

	a.engine = reconcile.NewEngine(store, a.registry, logger)
	a.gateway = gateway.NewMockGateway(a.deliver(logger), gwOpts...)
	a.checkout = service.NewCheckoutService(store, types, a.registry, a.gateway, a.engine, payment.Settings{
		MerchantAccount: cfg.Gateway.MerchantAccount,
		SkinCode:        cfg.Gateway.SkinCode,
		SessionValidity: cfg.Gateway.SessionValidity,
		ShipWithin:      cfg.Gateway.ShipWithin,
	}, logger)
	a.orders = service.NewOrderService(store)
	return a, nil
}

// deliver feeds the mock gateway's notifications through the same path the
// notification endpoint uses.
func (a *app) deliver(logger *zap.Logger) gateway.NotifyFunc {
	return func(ctx context.Context, data map[string]string) {
		if err := a.checkout.HandleNotification(ctx, data); err != nil {
			logger.Warn("Notification not applied",
				zap.String("merchant_reference", data["merchantReference"]),
				zap.String("event_code", data["eventCode"]),
				zap.Error(err),
			)
		}
	}
}

// Close delivers queued events before closing the Kafka producer.
func (a *app) Close() error {
	a.registry.Close()
	if a.publisher != nil {
		return a.publisher.Close()
	}
	return nil
}
