package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	orderService        = "order-service"
	useCaseOrderGet     = "order.get"
	useCaseOrderList    = "order.list"
	useCaseOrderSetStat = "order.update_status"
)

var (
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
)

type GetOrderInput struct {
	Principal domidentity.Principal
	OrderID   string
}

// GetOrderUseCase returns one order to its buyer or to an admin.
type GetOrderUseCase struct {
	repo domain.Repository
	inst *application.Instrument
}

var _ application.UseCase[GetOrderInput, *domain.Order] = (*GetOrderUseCase)(nil)

func NewGetOrderUseCase(repo domain.Repository, tel observability.Observability) *GetOrderUseCase {
	return &GetOrderUseCase{
		repo: repo,
		inst: application.NewInstrument(tel, orderService, useCaseOrderGet, "GetOrder"),
	}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, cmd GetOrderInput) (_ *domain.Order, err error) {
	ctx, run := uc.inst.Begin(ctx, attribute.String("order.id", cmd.OrderID))
	defer func() { run.End(err) }()

	if cmd.Principal.ID == "" {
		return nil, run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}
	o, err := uc.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, run.Fail("ORDER_LOAD_FAILED", wrapRepositoryError(err))
	}
	if o.BuyerID != cmd.Principal.ID && !cmd.Principal.IsAdmin() {
		return nil, run.Fail("ORDER_NOT_FOUND", ErrNotFound)
	}
	return o, nil
}

type ListOrdersInput struct {
	Principal domidentity.Principal
	// All lists every buyer's orders and requires the admin role.
	All bool
}

type ListOrdersUseCase struct {
	repo domain.Repository
	inst *application.Instrument
}

var _ application.UseCase[ListOrdersInput, []*domain.Order] = (*ListOrdersUseCase)(nil)

func NewListOrdersUseCase(repo domain.Repository, tel observability.Observability) *ListOrdersUseCase {
	return &ListOrdersUseCase{
		repo: repo,
		inst: application.NewInstrument(tel, orderService, useCaseOrderList, "ListOrders"),
	}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, cmd ListOrdersInput) (_ []*domain.Order, err error) {
	ctx, run := uc.inst.Begin(ctx, attribute.Bool("order.list_all", cmd.All))
	defer func() { run.End(err) }()

	if cmd.Principal.ID == "" {
		return nil, run.Fail("UNAUTHENTICATED", domidentity.ErrUnauthenticated)
	}

	var orders []*domain.Order
	if cmd.All {
		if err := domidentity.RequireAdmin(cmd.Principal); err != nil {
			return nil, run.Fail("ADMIN_REQUIRED", err)
		}
		orders, err = uc.repo.List(ctx)
	} else {
		orders, err = uc.repo.ListByBuyer(ctx, cmd.Principal.ID)
	}
	if err != nil {
		return nil, run.Fail("ORDER_LIST_FAILED", wrapRepositoryError(err))
	}
	sortNewestFirst(orders)
	run.Field("count", len(orders))
	return orders, nil
}

type UpdateStatusInput struct {
	Principal domidentity.Principal
	OrderID   string
	Status    domain.Status
}

type UpdateStatusResult struct {
	Order   *domain.Order
	Changed bool
}

// UpdateStatusUseCase is the trusted manual override. It follows the same
// transition rules as reconciliation: terminal orders never move.
type UpdateStatusUseCase struct {
	repo      domain.Repository
	publisher domoutbox.Publisher
	inst      *application.Instrument
}

var _ application.UseCase[UpdateStatusInput, *UpdateStatusResult] = (*UpdateStatusUseCase)(nil)

func NewUpdateStatusUseCase(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Observability) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{
		repo:      repo,
		publisher: publisher,
		inst:      application.NewInstrument(tel, orderService, useCaseOrderSetStat, "UpdateOrderStatus"),
	}
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *UpdateStatusResult, err error) {
	ctx, run := uc.inst.Begin(ctx,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.target_status", string(cmd.Status)),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", cmd.OrderID)

	if err := domidentity.RequireAdmin(cmd.Principal); err != nil {
		return nil, run.Fail("ADMIN_REQUIRED", err)
	}
	if !cmd.Status.IsTerminal() {
		return nil, run.Fail("STATUS_INVALID", application.NewValidation("status must be paid or failed"))
	}

	o, changed, err := uc.repo.Transition(ctx, cmd.OrderID, cmd.Status)
	if err != nil {
		return nil, run.Fail("ORDER_TRANSITION_FAILED", wrapRepositoryError(err))
	}
	if changed {
		run.Publish(ctx, uc.publisher, domain.NewStatusChangedEvent(o))
	} else {
		run.Status("ALREADY_TERMINAL")
	}
	return &UpdateStatusResult{Order: o, Changed: changed}, nil
}

// sortNewestFirst orders by numeric id descending; ids come from a monotonic sequence.
func sortNewestFirst(orders []*domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, errA := strconv.ParseInt(orders[i].ID, 10, 64)
		b, errB := strconv.ParseInt(orders[j].ID, 10, 64)
		if errA != nil || errB != nil {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return a > b
	})
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
