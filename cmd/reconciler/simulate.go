package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gateway-reconciler/internal/config"
	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/gateway"
	"gateway-reconciler/internal/logger"
	"gateway-reconciler/internal/openinvoice"
	"gateway-reconciler/internal/repo"
	"gateway-reconciler/internal/service"
	"gateway-reconciler/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func simulateCmd() *cobra.Command {
	var (
		orders  int
		seed    uint64
		latency time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run orders through the mock gateway and print how they settle",
		Long: `Places orders in an in-memory store and pays them through a mock gateway
that refuses some payments, times out after charging others and delivers
duplicate notifications. Every order should settle on the status the
gateway's notifications describe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), orders, seed, latency)
		},
	}
	cmd.Flags().IntVarP(&orders, "orders", "n", 20, "number of orders to place")
	cmd.Flags().Uint64Var(&seed, "seed", uint64(time.Now().UnixNano()), "random seed for gateway outcomes")
	cmd.Flags().DurationVar(&latency, "latency", 200*time.Millisecond, "maximum notification delay")
	return cmd
}

func runSimulate(ctx context.Context, n int, seed uint64, latency time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Gateway.MerchantAccount == "" {
		cfg.Gateway.MerchantAccount = "SimulatorShop"
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	store := repo.NewMemoryStore()
	a, err := newApp(cfg, store, log,
		gateway.WithSeed(seed),
		gateway.WithLatency(latency/4, latency),
	)
	if err != nil {
		return err
	}
	defer a.Close()

	method := domain.PaymentMethod{Type: openinvoice.TypeName, SubType: openinvoice.Klarna}

	fmt.Printf("--- STARTING SIMULATION (%d ORDERS, SEED %d) ---\n", n, seed)
	refs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		order, err := a.orders.CreateOrder(ctx, simulatedOrder(i))
		if err != nil {
			fmt.Printf("[%d] create failed: %v\n", i+1, err)
			continue
		}
		refs = append(refs, order.MerchantReference)

		fmt.Printf("[%d] %s checkout ... ", i+1, order.MerchantReference)
		resp, err := a.checkout.Checkout(ctx, order.MerchantReference, method)
		switch {
		case errors.Is(err, gateway.ErrTimeout):
			fmt.Println("TIMEOUT (waiting for notification)")
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
		default:
			fmt.Printf("%s\n", resp.Result)
		}
	}

	a.gateway.Wait()

	fmt.Println("--- CAPTURING AUTHORISED ORDERS ---")
	for _, ref := range refs {
		resp, err := a.checkout.Capture(ctx, ref)
		if errors.Is(err, service.ErrNothingToCapture) {
			continue
		}
		if err != nil {
			fmt.Printf("%s capture failed: %v\n", ref, err)
			continue
		}
		fmt.Printf("%s capture %s\n", ref, resp.Result)
	}

	a.gateway.Wait()

	stale, err := worker.NewStaleWorker(store, a.registry, log, time.Second, 0).Scan(ctx)
	if err != nil {
		return err
	}

	fmt.Println("--- FINAL STATUS ---")
	for _, ref := range refs {
		order, txs, err := a.checkout.Transactions(ctx, ref)
		if err != nil {
			fmt.Printf("%s: %v\n", ref, err)
			continue
		}
		fmt.Printf("%s order=%s", ref, order.Status)
		for _, t := range txs {
			fmt.Printf(" txn[%s]=%s", t.RemoteID, t.Status)
		}
		fmt.Println()
	}
	fmt.Printf("%d transactions still pending\n", stale)
	log.Debug("Simulation finished", zap.Int("orders", len(refs)), zap.Int("pending", stale))
	return nil
}

func simulatedOrder(i int) service.NewOrder {
	return service.NewOrder{
		MerchantReference: fmt.Sprintf("SIM-%04d", i+1),
		Email:             fmt.Sprintf("shopper%d@example.com", i+1),
		Currency:          "EUR",
		Billing: domain.Address{
			FirstName:   "Test",
			LastName:    "Shopper",
			Street:      "Hauptstrasse",
			HouseNumber: "1",
			City:        "Berlin",
			PostalCode:  "10115",
			Country:     "DE",
		},
		Shopper: domain.Shopper{
			Gender:      "FEMALE",
			PhoneNumber: "+4930123456",
			BirthDate:   time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		LineItems: []domain.LineItem{
			{Label: "Mug", Type: "product", UnitPrice: 1070 + int64(i)*10, Quantity: 1 + int64(i%3), VAT: 140},
			{Label: "Shipping", Type: "shipping", UnitPrice: 495, Quantity: 1},
		},
	}
}
