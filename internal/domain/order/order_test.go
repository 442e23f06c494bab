package order_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
)

func sampleItems() []order.Item {
	return []order.Item{
		{ProductID: "7", Name: "Bandhani dupatta", UnitPrice: 45000, Quantity: 2},
		{ProductID: "9", Name: "Kesar mango box", UnitPrice: 120000, Quantity: 1},
	}
}

func TestNew_ComputesTotalFromSnapshot(t *testing.T) {
	items := sampleItems()
	o, err := order.New("1", "buyer-1", "inr", items, order.PaymentAwaiting)
	require.NoError(t, err)

	assert.Equal(t, int64(210000), o.Total)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "awaiting_payment", o.DisplayState())

	// later edits to the caller's slice never reach the order
	items[0].UnitPrice = 1
	assert.Equal(t, int64(45000), o.Items[0].UnitPrice)
	assert.Equal(t, int64(210000), o.Total)
}

func TestNew_Validation(t *testing.T) {
	_, err := order.New("1", "b", "inr", nil, order.PaymentAwaiting)
	assert.ErrorIs(t, err, order.ErrNoItems)

	_, err = order.New("1", "b", "inr", []order.Item{{ProductID: "1", UnitPrice: 10, Quantity: 0}}, order.PaymentAwaiting)
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = order.New("1", "b", "inr", []order.Item{{ProductID: "1", UnitPrice: -1, Quantity: 1}}, order.PaymentAwaiting)
	assert.ErrorIs(t, err, order.ErrInvalidPrice)
}

func TestNew_RejectsTotalThatWraps(t *testing.T) {
	const big = int64(1) << 62

	_, err := order.New("1", "b", "inr", []order.Item{{ProductID: "1", UnitPrice: big, Quantity: 2}}, order.PaymentAwaiting)
	assert.ErrorIs(t, err, order.ErrTotalOverflow)

	items := []order.Item{
		{ProductID: "1", UnitPrice: big, Quantity: 1},
		{ProductID: "2", UnitPrice: big, Quantity: 1},
		{ProductID: "3", UnitPrice: big, Quantity: 1},
		{ProductID: "4", UnitPrice: big, Quantity: 1},
		{ProductID: "5", UnitPrice: 20000, Quantity: 1},
	}
	_, err = order.New("1", "b", "inr", items, order.PaymentAwaiting)
	assert.ErrorIs(t, err, order.ErrTotalOverflow)
}

func TestDisplayState_NotRequired(t *testing.T) {
	o, err := order.New("1", "b", "inr", sampleItems(), order.PaymentNotRequired)
	require.NoError(t, err)
	assert.Equal(t, "placed", o.DisplayState())
	assert.False(t, o.AwaitingPayment())
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        order.Status
		target      order.Status
		wantStatus  order.Status
		wantChanged bool
	}{
		{"pending to paid", order.StatusPending, order.StatusPaid, order.StatusPaid, true},
		{"pending to failed", order.StatusPending, order.StatusFailed, order.StatusFailed, true},
		{"pending to pending", order.StatusPending, order.StatusPending, order.StatusPending, false},
		{"paid ignores failed", order.StatusPaid, order.StatusFailed, order.StatusPaid, false},
		{"paid ignores paid", order.StatusPaid, order.StatusPaid, order.StatusPaid, false},
		{"failed ignores paid", order.StatusFailed, order.StatusPaid, order.StatusFailed, false},
		{"failed ignores failed", order.StatusFailed, order.StatusFailed, order.StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := order.New("1", "b", "inr", sampleItems(), order.PaymentAwaiting)
			require.NoError(t, err)
			o.Status = tt.from

			changed := o.Transition(tt.target)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, o.Status)
		})
	}
}

func TestBindPaymentSession_Once(t *testing.T) {
	o, err := order.New("1", "b", "inr", sampleItems(), order.PaymentAwaiting)
	require.NoError(t, err)

	assert.True(t, o.BindPaymentSession("cs_1", "https://pay/1"))
	assert.False(t, o.BindPaymentSession("cs_2", "https://pay/2"))
	assert.Equal(t, "cs_1", o.ExternalPaymentRef)
	assert.Equal(t, "https://pay/1", o.PaymentURL)
}

func TestNewStatusChangedEvent(t *testing.T) {
	o, err := order.New("1", "b", "inr", sampleItems(), order.PaymentAwaiting)
	require.NoError(t, err)
	assert.Nil(t, order.NewStatusChangedEvent(o))

	o.MarkPaid()
	assert.Equal(t, "order.paid", order.NewStatusChangedEvent(o).EventName())

	o.Status = order.StatusFailed
	assert.Equal(t, "order.payment_failed", order.NewStatusChangedEvent(o).EventName())
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, s)

	_, err = order.ParseStatus("shipped")
	assert.ErrorIs(t, err, order.ErrInvalidStatus)
}
