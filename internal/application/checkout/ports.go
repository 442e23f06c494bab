package checkout

import (
	"context"
	"errors"

	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
)

const checkoutService = "checkout-service"

var (
	ErrEmptyCart     = domcart.ErrEmptyCart
	ErrNotFound      = domorder.ErrNotFound
	ErrNotPayable    = errors.New("checkout: order is not awaiting payment")
	ErrRepository    = errors.New("checkout: repository failure")
	ErrMixedCurrency = errors.New("checkout: cart mixes currencies")
)

// IDGenerator allocates order identifiers. IDs are unique and increase
// monotonically within one ledger.
type IDGenerator interface {
	NextOrderID(ctx context.Context) (string, error)
}

// BuyerLocker serializes placements by the same buyer.
type BuyerLocker interface {
	Lock(key string) func()
}
