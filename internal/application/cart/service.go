package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
	domcatalog "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const cartService = "cart-service"

// Service is the buyer-facing cart surface. Stock is not checked here; the
// checkout is the only place that can refuse for lack of stock.
type Service struct {
	store   domcart.Store
	catalog domcatalog.Reader

	getInst    *application.Instrument
	setInst    *application.Instrument
	removeInst *application.Instrument
	clearInst  *application.Instrument
}

func NewService(store domcart.Store, catalog domcatalog.Reader, tel observability.Observability) *Service {
	return &Service{
		store:      store,
		catalog:    catalog,
		getInst:    application.NewInstrument(tel, cartService, "cart.get", "GetCart"),
		setInst:    application.NewInstrument(tel, cartService, "cart.set_quantity", "SetCartQuantity"),
		removeInst: application.NewInstrument(tel, cartService, "cart.remove_item", "RemoveCartItem"),
		clearInst:  application.NewInstrument(tel, cartService, "cart.clear", "ClearCart"),
	}
}

func (s *Service) Get(ctx context.Context, buyerID string) (_ *domcart.Cart, err error) {
	ctx, run := s.getInst.Begin(ctx)
	defer func() { run.End(err) }()

	if buyerID == "" {
		return nil, run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}
	c, err := s.store.Get(ctx, buyerID)
	if err != nil {
		return nil, run.Fail("CART_LOAD_FAILED", fmt.Errorf("cart: load: %w", err))
	}
	return c, nil
}

// SetQuantity adds the product or changes its quantity. The product must exist.
func (s *Service) SetQuantity(ctx context.Context, buyerID, productID string, quantity int) (_ *domcart.Cart, err error) {
	ctx, run := s.setInst.Begin(ctx,
		attribute.String("product.id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer func() { run.End(err) }()

	if buyerID == "" {
		return nil, run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}
	if quantity <= 0 {
		return nil, run.Fail("QUANTITY_INVALID", domcart.ErrInvalidQuantity)
	}
	if _, err := s.catalog.Get(ctx, productID); err != nil {
		if errors.Is(err, domcatalog.ErrProductRemoved) {
			return nil, run.Fail("PRODUCT_REMOVED", err)
		}
		return nil, run.Fail("CATALOG_FAILED", fmt.Errorf("cart: read product: %w", err))
	}
	c, err := s.store.SetQuantity(ctx, buyerID, productID, quantity)
	if err != nil {
		return nil, run.Fail("CART_UPDATE_FAILED", fmt.Errorf("cart: set quantity: %w", err))
	}
	return c, nil
}

func (s *Service) Remove(ctx context.Context, buyerID, productID string) (_ *domcart.Cart, err error) {
	ctx, run := s.removeInst.Begin(ctx, attribute.String("product.id", productID))
	defer func() { run.End(err) }()

	if buyerID == "" {
		return nil, run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}
	c, err := s.store.Remove(ctx, buyerID, productID)
	if err != nil {
		return nil, run.Fail("CART_UPDATE_FAILED", fmt.Errorf("cart: remove: %w", err))
	}
	return c, nil
}

func (s *Service) Clear(ctx context.Context, buyerID string) (err error) {
	ctx, run := s.clearInst.Begin(ctx)
	defer func() { run.End(err) }()

	if buyerID == "" {
		return run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}
	if err := s.store.Clear(ctx, buyerID); err != nil {
		return run.Fail("CART_CLEAR_FAILED", fmt.Errorf("cart: clear: %w", err))
	}
	return nil
}
