package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gateway-reconciler/internal/domain"
	"gateway-reconciler/internal/repo"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(ref string) *domain.Order {
	now := time.Now().UTC()
	return &domain.Order{
		ID:                uuid.New(),
		Number:            ref,
		MerchantReference: ref,
		UserID:            uuid.New(),
		Status:            domain.OrderPending,
		Total:             1000,
		Currency:          "EUR",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestMemoryStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	order := newOrder("ORD-1")

	require.NoError(t, store.CreateOrder(ctx, order))
	assert.ErrorIs(t, store.CreateOrder(ctx, newOrder("ORD-1")), repo.ErrDuplicateReference)

	found, err := store.FindByMerchantReference(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	missing, err := store.FindByMerchantReference(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_WithOrderLock_DiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	order := newOrder("ORD-2")
	require.NoError(t, store.CreateOrder(ctx, order))

	txn := domain.NewTransaction(order, "openinvoice")
	err := store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		require.NoError(t, tx.SaveTransaction(ctx, txn))
		fresh, err := tx.MarkProcessed(ctx, "k", &domain.NotificationEvent{})
		require.NoError(t, err)
		assert.True(t, fresh)

		staged, err := tx.GetTransactions(ctx, order.ID, domain.TransactionFilter{})
		require.NoError(t, err)
		assert.Len(t, staged, 1)
		return errors.New("abort")
	})
	require.Error(t, err)

	txs, err := store.GetTransactions(ctx, order.ID, domain.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	// the key was not kept either
	err = store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		fresh, err := tx.MarkProcessed(ctx, "k", &domain.NotificationEvent{})
		require.NoError(t, err)
		assert.True(t, fresh)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_WithOrderLock_Commits(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	order := newOrder("ORD-3")
	require.NoError(t, store.CreateOrder(ctx, order))

	txn := domain.NewTransaction(order, "openinvoice")
	txn.RemoteID = "psp-9"
	err := store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		if err := tx.SaveTransaction(ctx, txn); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, order.ID, domain.OrderCanceled)
	})
	require.NoError(t, err)

	txs, err := store.GetTransactions(ctx, order.ID, domain.TransactionFilter{RemoteID: "psp-9"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, txn.ID, txs[0].ID)

	found, _ := store.FindByMerchantReference(ctx, "ORD-3")
	assert.Equal(t, domain.OrderCanceled, found.Status)
}

func TestMemoryStore_WithOrderLock_UnknownOrder(t *testing.T) {
	store := repo.NewMemoryStore()
	err := store.WithOrderLock(context.Background(), uuid.New(), func(repo.StoreTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryStore_FindStalePending(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	order := newOrder("ORD-4")
	require.NoError(t, store.CreateOrder(ctx, order))

	old := domain.NewTransaction(order, "openinvoice")
	old.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	recent := domain.NewTransaction(order, "openinvoice")
	done := domain.NewTransaction(order, "openinvoice")
	done.Status = domain.TransactionCaptured
	done.UpdatedAt = old.UpdatedAt

	require.NoError(t, store.WithOrderLock(ctx, order.ID, func(tx repo.StoreTx) error {
		for _, txn := range []*domain.Transaction{old, recent, done} {
			if err := tx.SaveTransaction(ctx, txn); err != nil {
				return err
			}
		}
		return nil
	}))

	stale, err := store.FindStalePending(ctx, time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
