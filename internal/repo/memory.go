package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gateway-reconciler/internal/domain"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by the simulator and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	orders       map[uuid.UUID]*domain.Order
	byReference  map[string]uuid.UUID
	transactions map[uuid.UUID]domain.Transaction
	processed    map[string]struct{}

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:       make(map[uuid.UUID]*domain.Order),
		byReference:  make(map[string]uuid.UUID),
		transactions: make(map[uuid.UUID]domain.Transaction),
		processed:    make(map[string]struct{}),
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) FindByMerchantReference(_ context.Context, ref string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byReference[ref]
	if !ok {
		return nil, nil
	}
	order := *s.orders[id]
	order.LineItems = append([]domain.LineItem(nil), order.LineItems...)
	return &order, nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byReference[order.MerchantReference]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, order.MerchantReference)
	}
	o := *order
	s.orders[o.ID] = &o
	s.byReference[o.MerchantReference] = o.ID
	return nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectTransactions(orderID, filter, nil), nil
}

func (s *MemoryStore) FindStalePending(_ context.Context, olderThan time.Duration, limit int) ([]domain.Transaction, error) {
	before := time.Now().UTC().Add(-olderThan)

	s.mu.RLock()
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.Status == domain.TransactionPending && t.UpdatedAt.Before(before) {
			out = append(out, copyTransaction(t))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) WithOrderLock(_ context.Context, orderID uuid.UUID, fn func(tx StoreTx) error) error {
	s.mu.RLock()
	_, ok := s.orders[orderID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrOrderNotFound
	}

	lock := s.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{
		store:        s,
		transactions: make(map[uuid.UUID]domain.Transaction),
		orderStatus:  make(map[uuid.UUID]domain.OrderStatus),
		processed:    make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) orderLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tx.transactions {
		s.transactions[id] = t
	}
	now := time.Now().UTC()
	for id, status := range tx.orderStatus {
		if o, ok := s.orders[id]; ok {
			o.Status = status
			o.UpdatedAt = now
		}
	}
	for k := range tx.processed {
		s.processed[k] = struct{}{}
	}
}

// selectTransactions merges staged writes over stored rows. Callers hold mu.
func (s *MemoryStore) selectTransactions(orderID uuid.UUID, filter domain.TransactionFilter, staged map[uuid.UUID]domain.Transaction) []domain.Transaction {
	var out []domain.Transaction
	seen := make(map[uuid.UUID]bool)
	for id, t := range staged {
		seen[id] = true
		if t.OrderID == orderID && filter.Match(&t) {
			out = append(out, copyTransaction(t))
		}
	}
	for id, t := range s.transactions {
		if seen[id] {
			continue
		}
		if t.OrderID == orderID && filter.Match(&t) {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func copyTransaction(t domain.Transaction) domain.Transaction {
	payload := make(map[string]string, len(t.Payload))
	for k, v := range t.Payload {
		payload[k] = v
	}
	t.Payload = payload
	return t
}

type memoryTx struct {
	store        *MemoryStore
	transactions map[uuid.UUID]domain.Transaction
	orderStatus  map[uuid.UUID]domain.OrderStatus
	processed    map[string]struct{}
}

func (t *memoryTx) GetTransactions(_ context.Context, orderID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.selectTransactions(orderID, filter, t.transactions), nil
}

func (t *memoryTx) SaveTransaction(_ context.Context, txn *domain.Transaction) error {
	t.transactions[txn.ID] = copyTransaction(*txn)
	return nil
}

func (t *memoryTx) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	t.orderStatus[orderID] = status
	return nil
}

func (t *memoryTx) MarkProcessed(_ context.Context, key string, _ *domain.NotificationEvent) (bool, error) {
	if _, ok := t.processed[key]; ok {
		return false, nil
	}
	t.store.mu.RLock()
	_, ok := t.store.processed[key]
	t.store.mu.RUnlock()
	if ok {
		return false, nil
	}
	t.processed[key] = struct{}{}
	return true, nil
}
