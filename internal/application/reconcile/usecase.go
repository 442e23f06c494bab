package reconcile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	reconcileService     = "reconcile-service"
	useCaseReconcile     = "payment.reconcile"
	gatewayPeer          = "payment_gateway"
	gatewayEndpointQuery = "query_session"
)

var (
	ErrNotFound        = domorder.ErrNotFound
	ErrSessionMismatch = errors.New("reconcile: provider session belongs to another order")
	ErrRepository      = errors.New("reconcile: repository failure")
)

type Input struct {
	SessionID string
}

type Result struct {
	OrderID   string
	SessionID string
	Outcome   dompayment.Outcome
	Status    domorder.Status
	// Changed is true only for the call that moved the order out of pending.
	Changed bool
	// StillWaiting means the provider has no final answer yet; callers may poll again.
	StillWaiting bool
	Details      map[string]string
}

// UseCase pulls the provider's view of a payment session and folds it into
// the order ledger. It is safe to call any number of times, concurrently, for
// the same session.
type UseCase struct {
	orders    domorder.Repository
	gateway   dompayment.Gateway
	publisher domoutbox.Publisher
	flight    singleflight.Group

	inst      *application.Instrument
	reconcile observability.Counter // payment_reconcile_total{outcome}
}

var _ application.UseCase[Input, *Result] = (*UseCase)(nil)

func NewUseCase(
	orders domorder.Repository,
	gateway dompayment.Gateway,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *UseCase {
	tel = observability.OrNop(tel)
	return &UseCase{
		orders:    orders,
		gateway:   gateway,
		publisher: publisher,
		inst:      application.NewInstrument(tel, reconcileService, useCaseReconcile, "Reconcile"),
		reconcile: tel.Metrics().Counter(observability.MPaymentReconcile),
	}
}

func (uc *UseCase) Execute(ctx context.Context, cmd Input) (_ *Result, err error) {
	ctx, run := uc.inst.Begin(ctx, attribute.String("payment.session_id", cmd.SessionID))
	defer func() { run.End(err) }()
	run.Field("session_id", cmd.SessionID)

	if cmd.SessionID == "" {
		return nil, run.Fail("SESSION_ID_REQUIRED", application.NewValidation("session id is required"))
	}

	o, err := uc.orders.FindBySession(ctx, cmd.SessionID)
	if err != nil {
		if errors.Is(err, domorder.ErrNotFound) {
			return nil, run.Fail("SESSION_UNKNOWN", fmt.Errorf("%w: no order for session %s", ErrNotFound, cmd.SessionID))
		}
		return nil, run.Fail("ORDER_LOAD_FAILED", fmt.Errorf("%w: %w", ErrRepository, err))
	}
	run.Field("order_id", o.ID)
	run.SetAttributes(attribute.String("order.id", o.ID))

	if o.Status.IsTerminal() {
		run.Status("ALREADY_TERMINAL")
		uc.count(outcomeFor(o.Status))
		return terminal(o, cmd.SessionID), nil
	}

	leader := false
	v, err, _ := uc.flight.Do(cmd.SessionID, func() (any, error) {
		leader = true
		return uc.apply(context.WithoutCancel(ctx), run, o.ID, cmd.SessionID)
	})
	if err != nil {
		return nil, run.Fail(statusForError(err), err)
	}
	res := *(v.(*Result))
	res.Details = maps.Clone(res.Details)
	if !leader {
		// only the leader reports the transition
		res.Changed = false
		run.Status("RECONCILE_SHARED")
	}
	run.SetAttributes(
		attribute.String("payment.outcome", string(res.Outcome)),
		attribute.Bool("order.changed", res.Changed),
	)
	return &res, nil
}

func (uc *UseCase) apply(ctx context.Context, run *application.Run, orderID, sessionID string) (*Result, error) {
	if uc.gateway == nil {
		return nil, dompayment.ErrNotConfigured
	}
	start := time.Now()
	st, err := uc.gateway.QuerySessionStatus(ctx, sessionID)
	run.External(gatewayPeer, gatewayEndpointQuery, start, err)
	if err != nil {
		// transient or not, the order stays as it is
		return nil, err
	}
	if st.OrderID != "" && st.OrderID != orderID {
		return nil, fmt.Errorf("%w: session %s reports order %s, ledger has %s", ErrSessionMismatch, sessionID, st.OrderID, orderID)
	}
	uc.count(st.Outcome)

	var target domorder.Status
	switch st.Outcome {
	case dompayment.OutcomeCompleted:
		target = domorder.StatusPaid
	case dompayment.OutcomeFailed:
		target = domorder.StatusFailed
	default:
		current, err := uc.orders.Get(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepository, err)
		}
		run.Status("STILL_WAITING")
		return &Result{
			OrderID:      orderID,
			SessionID:    sessionID,
			Outcome:      dompayment.OutcomePending,
			Status:       current.Status,
			StillWaiting: current.Status == domorder.StatusPending,
			Details:      st.Details,
		}, nil
	}

	updated, changed, err := uc.orders.Transition(ctx, orderID, target)
	if err != nil {
		return nil, fmt.Errorf("%w: transition: %w", ErrRepository, err)
	}
	if changed {
		run.Status("ORDER_" + strings.ToUpper(string(updated.Status)))
		run.Publish(ctx, uc.publisher, domorder.NewStatusChangedEvent(updated))
	} else {
		run.Status("ALREADY_TERMINAL")
	}

	return &Result{
		OrderID:   orderID,
		SessionID: sessionID,
		Outcome:   st.Outcome,
		Status:    updated.Status,
		Changed:   changed,
		Details:   st.Details,
	}, nil
}

func (uc *UseCase) count(outcome dompayment.Outcome) {
	uc.reconcile.Add(1, observability.L(observability.LabelOutcome, string(outcome)))
}

func terminal(o *domorder.Order, sessionID string) *Result {
	return &Result{
		OrderID:   o.ID,
		SessionID: sessionID,
		Outcome:   outcomeFor(o.Status),
		Status:    o.Status,
		Details:   map[string]string{},
	}
}

func outcomeFor(s domorder.Status) dompayment.Outcome {
	switch s {
	case domorder.StatusPaid:
		return dompayment.OutcomeCompleted
	case domorder.StatusFailed:
		return dompayment.OutcomeFailed
	default:
		return dompayment.OutcomePending
	}
}

func statusForError(err error) string {
	switch {
	case errors.Is(err, dompayment.ErrSessionNotFound):
		return "PROVIDER_SESSION_NOT_FOUND"
	case errors.Is(err, dompayment.ErrNotConfigured):
		return "GATEWAY_NOT_CONFIGURED"
	case errors.Is(err, dompayment.ErrGatewayUnavailable):
		return "GATEWAY_UNAVAILABLE"
	case errors.Is(err, dompayment.ErrGatewayRejected):
		return "GATEWAY_REJECTED"
	case errors.Is(err, ErrSessionMismatch):
		return "SESSION_MISMATCH"
	default:
		return "RECONCILE_FAILED"
	}
}
