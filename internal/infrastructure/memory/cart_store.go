package memory

import (
	"context"
	"sync"

	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
)

type CartStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*domain.Cart)}
}

func (s *CartStore) Get(ctx context.Context, buyerID string) (*domain.Cart, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.carts[buyerID]; ok {
		return c.Clone(), nil
	}
	return domain.New(buyerID), nil
}

func (s *CartStore) SetQuantity(ctx context.Context, buyerID, productID string, quantity int) (*domain.Cart, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[buyerID]
	if !ok {
		c = domain.New(buyerID)
	}
	next := c.Clone()
	if err := next.SetQuantity(productID, quantity); err != nil {
		return nil, err
	}
	s.carts[buyerID] = next
	return next.Clone(), nil
}

func (s *CartStore) Remove(ctx context.Context, buyerID, productID string) (*domain.Cart, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[buyerID]
	if !ok {
		return domain.New(buyerID), nil
	}
	next := c.Clone()
	next.Remove(productID)
	s.carts[buyerID] = next
	return next.Clone(), nil
}

func (s *CartStore) RemoveLines(ctx context.Context, buyerID string, lines []domain.Line) (*domain.Cart, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.carts[buyerID]
	if !ok {
		return domain.New(buyerID), nil
	}
	next := c.Clone()
	next.RemoveLines(lines)
	if next.IsEmpty() {
		delete(s.carts, buyerID)
	} else {
		s.carts[buyerID] = next
	}
	return next.Clone(), nil
}

func (s *CartStore) Clear(ctx context.Context, buyerID string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, buyerID)
	return nil
}
