package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	useCaseCreatePaymentSession = "checkout.create_payment_session"
	gatewayPeer                 = "payment_gateway"
	gatewayEndpointCreate       = "create_session"

	// SessionPlaceholder is substituted by the provider with the real session id.
	SessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type CreatePaymentSessionInput struct {
	BuyerID string
	OrderID string
	// Items are optional display lines. When present they must add up to the order total.
	Items      []dompayment.LineItem
	SuccessURL string
	CancelURL  string
}

type CreatePaymentSessionResult struct {
	OrderID     string
	SessionID   string
	RedirectURL string
	// Reused is true when the order already had a session and no provider call was made.
	Reused bool
}

// CreatePaymentSessionUseCase opens at most one hosted payment session per order.
type CreatePaymentSessionUseCase struct {
	orders    domorder.Repository
	gateway   dompayment.Gateway
	publisher domoutbox.Publisher
	flight    singleflight.Group

	inst *application.Instrument
}

var _ application.UseCase[CreatePaymentSessionInput, *CreatePaymentSessionResult] = (*CreatePaymentSessionUseCase)(nil)

func NewCreatePaymentSessionUseCase(
	orders domorder.Repository,
	gateway dompayment.Gateway,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CreatePaymentSessionUseCase {
	return &CreatePaymentSessionUseCase{
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		inst:      application.NewInstrument(tel, checkoutService, useCaseCreatePaymentSession, "CreatePaymentSession"),
	}
}

func (uc *CreatePaymentSessionUseCase) Execute(ctx context.Context, cmd CreatePaymentSessionInput) (_ *CreatePaymentSessionResult, err error) {
	ctx, run := uc.inst.Begin(ctx,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.buyer_id", cmd.BuyerID),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", cmd.OrderID)

	if cmd.BuyerID == "" {
		return nil, run.Fail("BUYER_ID_REQUIRED", domidentity.ErrUnauthenticated)
	}
	if cmd.OrderID == "" {
		return nil, run.Fail("ORDER_ID_REQUIRED", application.NewValidation("order id is required"))
	}
	if cmd.SuccessURL == "" || cmd.CancelURL == "" {
		return nil, run.Fail("REDIRECT_URL_REQUIRED", application.NewValidation("success and cancel urls are required"))
	}

	o, err := uc.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		if errors.Is(err, domorder.ErrNotFound) {
			return nil, run.Fail("ORDER_NOT_FOUND", ErrNotFound)
		}
		return nil, run.Fail("ORDER_LOAD_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}
	// someone else's order is indistinguishable from a missing one
	if o.BuyerID != cmd.BuyerID {
		return nil, run.Fail("ORDER_NOT_FOUND", ErrNotFound)
	}

	if o.HasPaymentSession() {
		run.Status("SESSION_REUSED")
		return reused(o), nil
	}
	if !o.AwaitingPayment() {
		return nil, run.Fail("ORDER_NOT_PAYABLE", fmt.Errorf("%w: order %s is %s", ErrNotPayable, o.ID, o.DisplayState()))
	}
	if uc.gateway == nil || !uc.gateway.IsConfigured(ctx) {
		return nil, run.Fail("GATEWAY_NOT_CONFIGURED", dompayment.ErrNotConfigured)
	}

	items, err := lineItemsFor(o, cmd.Items)
	if err != nil {
		return nil, run.Fail("LINE_ITEMS_REJECTED", err)
	}

	req := dompayment.CreateSessionRequest{
		OrderID:        o.ID,
		Items:          items,
		SuccessURL:     withSessionPlaceholder(cmd.SuccessURL),
		CancelURL:      cmd.CancelURL,
		IdempotencyKey: "checkout-session-" + o.ID,
	}

	// Concurrent requests for one order share a single provider call. The
	// leader runs detached so a canceled leader does not fail its followers.
	v, err, shared := uc.flight.Do(o.ID, func() (any, error) {
		return uc.open(context.WithoutCancel(ctx), run, req)
	})
	if err != nil {
		return nil, run.Fail(statusForGatewayError(err), err)
	}
	res := *(v.(*CreatePaymentSessionResult))
	if shared {
		run.Status("SESSION_SHARED")
	}
	run.Field("session_id", res.SessionID)
	run.SetAttributes(attribute.String("payment.session_id", res.SessionID))
	return &res, nil
}

func (uc *CreatePaymentSessionUseCase) open(ctx context.Context, run *application.Run, req dompayment.CreateSessionRequest) (*CreatePaymentSessionResult, error) {
	// a call that finished just before we joined may already have bound a session
	if current, err := uc.orders.Get(ctx, req.OrderID); err == nil && current.HasPaymentSession() {
		return reused(current), nil
	}

	start := time.Now()
	session, err := uc.gateway.CreateSession(ctx, req)
	run.External(gatewayPeer, gatewayEndpointCreate, start, err)
	if err != nil {
		return nil, err
	}

	stored, err := uc.orders.BindPaymentSession(ctx, req.OrderID, session.ID, session.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bind session: %w", ErrRepository, err)
	}
	if stored.ExternalPaymentRef != session.ID {
		// another writer bound first; the provider session we just opened is abandoned
		run.Logger.Warn("payment_session_bind_lost",
			observability.F("order_id", req.OrderID),
			observability.F("session_id", session.ID),
			observability.F("bound_session_id", stored.ExternalPaymentRef),
		)
		return reused(stored), nil
	}

	run.Publish(ctx, uc.publisher, domorder.NewPaymentSessionCreatedEvent(stored))
	return &CreatePaymentSessionResult{
		OrderID:     stored.ID,
		SessionID:   stored.ExternalPaymentRef,
		RedirectURL: stored.PaymentURL,
	}, nil
}

func reused(o *domorder.Order) *CreatePaymentSessionResult {
	return &CreatePaymentSessionResult{
		OrderID:     o.ID,
		SessionID:   o.ExternalPaymentRef,
		RedirectURL: o.PaymentURL,
		Reused:      true,
	}
}

// lineItemsFor returns the caller's display items when they charge exactly
// the order total, otherwise items derived from the order snapshot.
func lineItemsFor(o *domorder.Order, display []dompayment.LineItem) ([]dompayment.LineItem, error) {
	if len(display) > 0 {
		items := make([]dompayment.LineItem, len(display))
		for i, it := range display {
			if it.Currency == "" {
				it.Currency = o.Currency
			}
			if !strings.EqualFold(it.Currency, o.Currency) {
				return nil, &dompayment.GatewayError{Op: gatewayEndpointCreate, Ref: o.ID,
					Err: fmt.Errorf("%w: line item currency %s differs from order currency %s", dompayment.ErrGatewayRejected, it.Currency, o.Currency)}
			}
			items[i] = it
		}
		if err := dompayment.ValidateItems(items); err != nil {
			return nil, &dompayment.GatewayError{Op: gatewayEndpointCreate, Ref: o.ID, Err: err}
		}
		sum, err := dompayment.SumLineItems(items)
		if err != nil {
			return nil, &dompayment.GatewayError{Op: gatewayEndpointCreate, Ref: o.ID, Err: err}
		}
		if sum != o.Total {
			return nil, &dompayment.GatewayError{Op: gatewayEndpointCreate, Ref: o.ID,
				Err: fmt.Errorf("%w: line items total %d does not match order total %d", dompayment.ErrGatewayRejected, sum, o.Total)}
		}
		return items, nil
	}

	items := make([]dompayment.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, dompayment.LineItem{
			Name:        it.Name,
			Description: it.Description,
			UnitAmount:  it.UnitPrice,
			Currency:    o.Currency,
			Quantity:    it.Quantity,
		})
	}
	return items, nil
}

func withSessionPlaceholder(successURL string) string {
	if strings.Contains(successURL, SessionPlaceholder) {
		return successURL
	}
	sep := "?"
	if strings.Contains(successURL, "?") {
		sep = "&"
	}
	return successURL + sep + "session_id=" + SessionPlaceholder
}

func statusForGatewayError(err error) string {
	switch {
	case errors.Is(err, dompayment.ErrNotConfigured):
		return "GATEWAY_NOT_CONFIGURED"
	case errors.Is(err, dompayment.ErrGatewayRejected):
		return "GATEWAY_REJECTED"
	case errors.Is(err, dompayment.ErrGatewayUnavailable):
		return "GATEWAY_UNAVAILABLE"
	case errors.Is(err, ErrRepository):
		return "SESSION_BIND_FAILED"
	default:
		return "GATEWAY_FAILED"
	}
}
