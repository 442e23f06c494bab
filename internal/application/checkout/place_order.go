package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
	domcatalog "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCasePlaceOrder = "checkout.place_order"

type PlaceOrderInput struct {
	BuyerID string
}

type PlaceOrderResult struct {
	OrderID  string
	Status   domorder.Status
	Payment  domorder.Payment
	Total    int64
	Currency string
}

// PlaceOrderUseCase turns the buyer's cart into a durable pending order.
// Stock for every line is taken atomically before the order is written and
// given back if the write fails.
type PlaceOrderUseCase struct {
	carts     domcart.Store
	catalog   domcatalog.Reader
	stock     domcatalog.StockLedger
	orders    domorder.Repository
	ids       IDGenerator
	gateway   dompayment.Gateway
	buyers    BuyerLocker
	publisher domoutbox.Publisher
	currency  string

	inst *application.Instrument
}

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*PlaceOrderUseCase)(nil)

type PlaceOrderDeps struct {
	Carts     domcart.Store
	Catalog   domcatalog.Reader
	Stock     domcatalog.StockLedger
	Orders    domorder.Repository
	IDs       IDGenerator
	Gateway   dompayment.Gateway
	Buyers    BuyerLocker
	Publisher domoutbox.Publisher
	// Currency is used for products that carry none.
	Currency string
}

func NewPlaceOrderUseCase(deps PlaceOrderDeps, tel observability.Observability) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		stock:     deps.Stock,
		orders:    deps.Orders,
		ids:       deps.IDs,
		gateway:   deps.Gateway,
		buyers:    deps.Buyers,
		publisher: deps.Publisher,
		currency:  deps.Currency,
		inst:      application.NewInstrument(tel, checkoutService, useCasePlaceOrder, "PlaceOrder"),
	}
}

func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	ctx, run := uc.inst.Begin(ctx, attribute.String("order.buyer_id", cmd.BuyerID))
	defer func() { run.End(err) }()

	if cmd.BuyerID == "" {
		return nil, run.Fail("BUYER_ID_REQUIRED", domidentity.ErrUnauthenticated)
	}
	if err := ctx.Err(); err != nil {
		return nil, run.Fail("CONTEXT_CANCELED", err)
	}

	if uc.buyers != nil {
		unlock := uc.buyers.Lock(cmd.BuyerID)
		defer unlock()
	}

	c, err := uc.carts.Get(ctx, cmd.BuyerID)
	if err != nil {
		return nil, run.Fail("CART_LOAD_FAILED", fmt.Errorf("checkout: load cart: %w", err))
	}
	if c.IsEmpty() {
		return nil, run.Fail("CART_EMPTY", ErrEmptyCart)
	}

	items, lines, currency, err := uc.snapshot(ctx, c)
	if err != nil {
		return nil, run.Fail(statusForCatalogError(err), err)
	}

	if err := uc.stock.Decrement(ctx, lines); err != nil {
		return nil, run.Fail(statusForCatalogError(err), err)
	}
	run.Event("stock.decremented", attribute.Int("order.lines", len(lines)))

	entity, err := uc.persist(ctx, cmd.BuyerID, currency, items)
	if err != nil {
		uc.release(ctx, run, cmd.BuyerID, lines, err)
		return nil, run.Fail("ORDER_PERSIST_FAILED", err)
	}
	run.Field("order_id", entity.ID)
	run.SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.String("order.payment", string(entity.Payment)),
		attribute.Int64("order.total", entity.Total),
	)

	// only the lines that went into the order leave the cart
	if _, err := uc.carts.RemoveLines(ctx, cmd.BuyerID, c.Lines); err != nil {
		run.Status("CART_CLEAR_FAILED")
		run.Logger.Warn("cart_clear_failed",
			observability.F("order_id", entity.ID),
			observability.Err(err),
		)
	}

	run.Publish(ctx, uc.publisher, domorder.NewOrderPlacedEvent(entity))
	run.Publish(ctx, uc.publisher, domcatalog.NewStockReservedEvent(entity.ID, lines))

	return &PlaceOrderResult{
		OrderID:  entity.ID,
		Status:   entity.Status,
		Payment:  entity.Payment,
		Total:    entity.Total,
		Currency: entity.Currency,
	}, nil
}

// snapshot re-reads every product so the order captures the current
// authoritative price, never the one the buyer saw when adding to cart.
func (uc *PlaceOrderUseCase) snapshot(ctx context.Context, c *domcart.Cart) ([]domorder.Item, []domcatalog.Line, string, error) {
	items := make([]domorder.Item, 0, len(c.Lines))
	lines := make([]domcatalog.Line, 0, len(c.Lines))
	currency := ""

	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			return nil, nil, "", application.NewValidation(fmt.Sprintf("quantity for product %s must be greater than zero", l.ProductID))
		}
		p, err := uc.catalog.Get(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, domcatalog.ErrProductRemoved) {
				return nil, nil, "", err
			}
			return nil, nil, "", fmt.Errorf("checkout: read product %s: %w", l.ProductID, err)
		}

		pc := p.Currency
		if pc == "" {
			pc = uc.currency
		}
		if currency == "" {
			currency = pc
		} else if pc != currency {
			return nil, nil, "", fmt.Errorf("%w: %s and %s", ErrMixedCurrency, currency, pc)
		}

		items = append(items, domorder.Item{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			UnitPrice:   p.Price,
			Quantity:    l.Quantity,
		})
		lines = append(lines, domcatalog.Line{ProductID: p.ID, Quantity: l.Quantity})
	}
	return items, lines, currency, nil
}

func (uc *PlaceOrderUseCase) persist(ctx context.Context, buyerID, currency string, items []domorder.Item) (*domorder.Order, error) {
	id, err := uc.ids.NextOrderID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: allocate id: %w", ErrRepository, err)
	}

	payment := domorder.PaymentNotRequired
	if uc.gateway != nil && uc.gateway.IsConfigured(ctx) {
		payment = domorder.PaymentAwaiting
	}

	entity, err := domorder.New(id, buyerID, currency, items, payment)
	if err != nil {
		return nil, fmt.Errorf("checkout: construct order: %w", err)
	}
	if err := uc.orders.Insert(ctx, entity); err != nil {
		return nil, fmt.Errorf("%w: insert: %w", ErrRepository, err)
	}
	return entity, nil
}

// release gives the decremented stock back. It runs detached from the
// caller's cancellation so an aborted request cannot leak stock.
func (uc *PlaceOrderUseCase) release(ctx context.Context, run *application.Run, buyerID string, lines []domcatalog.Line, cause error) {
	rctx := context.WithoutCancel(ctx)
	if err := uc.stock.Increment(rctx, lines); err != nil {
		run.Logger.Error("stock_release_failed",
			observability.F("buyer_id", buyerID),
			observability.F("cause", cause.Error()),
			observability.Err(err),
		)
		return
	}
	run.Publish(rctx, uc.publisher, domcatalog.NewStockReleasedEvent(buyerID, lines, cause.Error()))
}

func statusForCatalogError(err error) string {
	switch {
	case errors.Is(err, domcatalog.ErrInsufficientStock):
		return "OUT_OF_STOCK"
	case errors.Is(err, domcatalog.ErrProductRemoved):
		return "PRODUCT_REMOVED"
	case errors.Is(err, application.ErrValidation):
		return "QUANTITY_INVALID"
	case errors.Is(err, ErrMixedCurrency):
		return "CURRENCY_MISMATCH"
	default:
		return "CATALOG_FAILED"
	}
}
