package order

import "context"

// Repository is the durable order ledger. Orders are never deleted; after
// Insert only the status and the payment session binding may change.
type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindBySession(ctx context.Context, sessionID string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	List(ctx context.Context) ([]*Order, error)

	// BindPaymentSession sets the session reference if none is set yet and
	// returns the stored order either way.
	BindPaymentSession(ctx context.Context, id, sessionID, url string) (*Order, error)

	// Transition moves a pending order to target atomically. changed is false
	// when the order was already terminal.
	Transition(ctx context.Context, id string, target Status) (o *Order, changed bool, err error)
}
