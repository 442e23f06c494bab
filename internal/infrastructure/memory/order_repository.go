package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
)

// OrderRepository is the in-process order ledger. Every read and write
// copies the order so callers never share state with the store.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*domain.Order
	sessions map[string]string // session id -> order id
	seq      atomic.Int64
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]*domain.Order),
		sessions: make(map[string]string),
	}
}

// NextOrderID hands out 1, 2, 3, ...
func (r *OrderRepository) NextOrderID(ctx context.Context) (string, error) {
	_ = ctx
	return strconv.FormatInt(r.seq.Add(1), 10), nil
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if ref := order.ExternalPaymentRef; ref != "" {
		if _, taken := r.sessions[ref]; taken {
			return domain.ErrConflict
		}
		r.sessions[ref] = order.ID
	}

	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	_ = ctx
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.orders[id]
	if !found {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (r *OrderRepository) BindPaymentSession(ctx context.Context, id, sessionID, url string) (*domain.Order, error) {
	_ = ctx
	if sessionID == "" {
		return nil, fmt.Errorf("order repository: session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if order.HasPaymentSession() {
		return order.Clone(), nil
	}
	if owner, taken := r.sessions[sessionID]; taken && owner != id {
		return nil, domain.ErrConflict
	}

	order.BindPaymentSession(sessionID, url)
	r.sessions[sessionID] = id
	return order.Clone(), nil
}

func (r *OrderRepository) Transition(ctx context.Context, id string, target domain.Status) (*domain.Order, bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	changed := order.Transition(target)
	return order.Clone(), changed, nil
}
