package catalog

import "context"

// Reader resolves the authoritative product record. Missing products
// return a *ProductError wrapping ErrProductRemoved.
type Reader interface {
	Get(ctx context.Context, productID string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
}

// StockLedger owns per-product stock counters.
type StockLedger interface {
	// Decrement takes every line out of stock or none of them. The returned
	// error is a *ProductError for the first line that could not be served.
	Decrement(ctx context.Context, lines []Line) error
	// Increment gives stock back; used to compensate a failed order write.
	Increment(ctx context.Context, lines []Line) error
}

type Repository interface {
	Reader
	StockLedger
	Upsert(ctx context.Context, product *Product) error
}
