package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	"github.com/caffeinepub/kodinar-bazaar/internal/pkg/keylock"
)

// CatalogRepository keeps products and their stock counters. Stock changes
// lock only the product keys involved, always in sorted order.
type CatalogRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	locks    *keylock.Locker
}

func NewCatalogRepository() *CatalogRepository {
	return &CatalogRepository{
		products: make(map[string]*domain.Product),
		locks:    keylock.New(),
	}
}

func (r *CatalogRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[productID]
	if !ok {
		return nil, domain.NewProductError(productID, domain.ErrProductRemoved)
	}
	return cloneProduct(p), nil
}

func (r *CatalogRepository) List(ctx context.Context) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	out := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, cloneProduct(p))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CatalogRepository) Upsert(ctx context.Context, product *domain.Product) error {
	_ = ctx
	if product == nil || product.ID == "" {
		return domain.ErrInvalidProduct
	}
	unlock := r.locks.Lock(product.ID)
	defer unlock()

	r.mu.Lock()
	r.products[product.ID] = cloneProduct(product)
	r.mu.Unlock()
	return nil
}

// Remove deletes the product; later lookups report it as removed.
func (r *CatalogRepository) Remove(ctx context.Context, productID string) error {
	_ = ctx
	unlock := r.locks.Lock(productID)
	defer unlock()

	r.mu.Lock()
	delete(r.products, productID)
	r.mu.Unlock()
	return nil
}

// SetPrice changes the list price. Orders already placed keep their snapshot.
func (r *CatalogRepository) SetPrice(ctx context.Context, productID string, price int64) error {
	_ = ctx
	unlock := r.locks.Lock(productID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return domain.NewProductError(productID, domain.ErrProductRemoved)
	}
	next := cloneProduct(p)
	next.Price = price
	r.products[productID] = next
	return nil
}

func (r *CatalogRepository) Decrement(ctx context.Context, lines []domain.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	merged, keys, err := mergeLines(lines)
	if err != nil {
		return err
	}

	unlock := r.locks.LockAll(keys)
	defer unlock()

	// check every line before touching any counter
	next := make(map[string]*domain.Product, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		p, ok := r.products[id]
		if !ok {
			r.mu.RUnlock()
			return domain.NewProductError(id, domain.ErrProductRemoved)
		}
		c := cloneProduct(p)
		if err := c.Deduct(merged[id]); err != nil {
			r.mu.RUnlock()
			return domain.NewProductError(id, err)
		}
		next[id] = c
	}
	r.mu.RUnlock()

	r.mu.Lock()
	for id, p := range next {
		r.products[id] = p
	}
	r.mu.Unlock()
	return nil
}

func (r *CatalogRepository) Increment(ctx context.Context, lines []domain.Line) error {
	_ = ctx
	merged, keys, err := mergeLines(lines)
	if err != nil {
		return err
	}

	unlock := r.locks.LockAll(keys)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range keys {
		p, ok := r.products[id]
		if !ok {
			// removed meanwhile; nothing to give back to
			continue
		}
		c := cloneProduct(p)
		if err := c.Restock(merged[id]); err != nil {
			return domain.NewProductError(id, err)
		}
		r.products[id] = c
	}
	return nil
}

// Stock returns the current counter, or -1 for an unknown product.
func (r *CatalogRepository) Stock(productID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.products[productID]; ok {
		return p.Stock
	}
	return -1
}

type seedProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
}

// LoadSeed upserts the products in a JSON array and returns how many were loaded.
func (r *CatalogRepository) LoadSeed(ctx context.Context, src io.Reader, defaultCurrency string) (int, error) {
	var seed []seedProduct
	if err := json.NewDecoder(src).Decode(&seed); err != nil {
		return 0, fmt.Errorf("catalog seed: decode: %w", err)
	}
	for _, s := range seed {
		currency := s.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		p, err := domain.NewProduct(s.ID, s.Name, s.Description, s.Price, currency, s.Stock)
		if err != nil {
			return 0, fmt.Errorf("catalog seed: product %q: %w", s.ID, err)
		}
		if err := r.Upsert(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(seed), nil
}

func mergeLines(lines []domain.Line) (map[string]int, []string, error) {
	merged := make(map[string]int, len(lines))
	keys := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, nil, domain.NewProductError(l.ProductID, domain.ErrInvalidQuantity)
		}
		if _, seen := merged[l.ProductID]; !seen {
			keys = append(keys, l.ProductID)
		}
		merged[l.ProductID] += l.Quantity
	}
	sort.Strings(keys)
	return merged, keys, nil
}

func cloneProduct(p *domain.Product) *domain.Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
