package order

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/memory"
)

var (
	buyer1 = domidentity.Principal{ID: "buyer-1", Role: domidentity.RoleUser}
	buyer2 = domidentity.Principal{ID: "buyer-2", Role: domidentity.RoleUser}
	admin  = domidentity.Principal{ID: "admin-1", Role: domidentity.RoleAdmin}
)

type recordingPublisher struct {
	mu    sync.Mutex
	names []string
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, e.EventName())
	return nil
}

func seed(t *testing.T, repo *memory.OrderRepository, buyerID string) string {
	t.Helper()
	ctx := context.Background()
	id, err := repo.NextOrderID(ctx)
	require.NoError(t, err)
	o, err := domain.New(id, buyerID, "INR", []domain.Item{
		{ProductID: "A", Name: "Cotton towel", UnitPrice: 1200, Quantity: 3},
	}, domain.PaymentAwaiting)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, o))
	return id
}

func TestGetOrder_OwnerOrAdmin(t *testing.T) {
	repo := memory.NewOrderRepository()
	id := seed(t, repo, buyer1.ID)
	uc := NewGetOrderUseCase(repo, nil)
	ctx := context.Background()

	o, err := uc.Execute(ctx, GetOrderInput{Principal: buyer1, OrderID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), o.Total)

	_, err = uc.Execute(ctx, GetOrderInput{Principal: admin, OrderID: id})
	require.NoError(t, err)

	_, err = uc.Execute(ctx, GetOrderInput{Principal: buyer2, OrderID: id})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = uc.Execute(ctx, GetOrderInput{Principal: buyer1, OrderID: "999"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = uc.Execute(ctx, GetOrderInput{OrderID: id})
	assert.ErrorIs(t, err, domidentity.ErrUnauthenticated)
}

func TestListOrders_ScopedAndNewestFirst(t *testing.T) {
	repo := memory.NewOrderRepository()
	first := seed(t, repo, buyer1.ID)
	seed(t, repo, buyer2.ID)
	third := seed(t, repo, buyer1.ID)
	uc := NewListOrdersUseCase(repo, nil)
	ctx := context.Background()

	mine, err := uc.Execute(ctx, ListOrdersInput{Principal: buyer1})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third, mine[0].ID)
	assert.Equal(t, first, mine[1].ID)

	all, err := uc.Execute(ctx, ListOrdersInput{Principal: admin, All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = uc.Execute(ctx, ListOrdersInput{Principal: buyer1, All: true})
	assert.ErrorIs(t, err, domidentity.ErrUnauthorized)

	none, err := uc.Execute(ctx, ListOrdersInput{Principal: domidentity.Principal{ID: "new"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateStatus_AdminOverride(t *testing.T) {
	repo := memory.NewOrderRepository()
	id := seed(t, repo, buyer1.ID)
	events := &recordingPublisher{}
	uc := NewUpdateStatusUseCase(repo, events, nil)
	ctx := context.Background()

	_, err := uc.Execute(ctx, UpdateStatusInput{Principal: buyer1, OrderID: id, Status: domain.StatusPaid})
	require.ErrorIs(t, err, domidentity.ErrUnauthorized)

	_, err = uc.Execute(ctx, UpdateStatusInput{Principal: admin, OrderID: id, Status: domain.StatusPending})
	require.ErrorIs(t, err, application.ErrValidation)

	res, err := uc.Execute(ctx, UpdateStatusInput{Principal: admin, OrderID: id, Status: domain.StatusPaid})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.StatusPaid, res.Order.Status)

	// terminal orders never move again
	res, err = uc.Execute(ctx, UpdateStatusInput{Principal: admin, OrderID: id, Status: domain.StatusFailed})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.StatusPaid, res.Order.Status)

	_, err = uc.Execute(ctx, UpdateStatusInput{Principal: admin, OrderID: "999", Status: domain.StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"order.paid"}, events.names)
}
