package order

import "time"

// OrderPlacedEvent is emitted once the order row and the stock decrement have committed.
type OrderPlacedEvent struct {
	OrderID    string
	BuyerID    string
	Total      int64
	Currency   string
	Payment    Payment
	ItemCount  int
	OccurredAt time.Time
}

func (OrderPlacedEvent) EventName() string { return "order.placed" }

func (e OrderPlacedEvent) EventKey() string { return e.OrderID }

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		Total:      o.Total,
		Currency:   o.Currency,
		Payment:    o.Payment,
		ItemCount:  len(o.Items),
		OccurredAt: time.Now().UTC(),
	}
}

// PaymentSessionCreatedEvent is emitted when a provider session is first bound to an order.
type PaymentSessionCreatedEvent struct {
	OrderID    string
	SessionID  string
	OccurredAt time.Time
}

func (PaymentSessionCreatedEvent) EventName() string { return "order.payment_session_created" }

func (e PaymentSessionCreatedEvent) EventKey() string { return e.OrderID }

func NewPaymentSessionCreatedEvent(o *Order) PaymentSessionCreatedEvent {
	return PaymentSessionCreatedEvent{
		OrderID:    o.ID,
		SessionID:  o.ExternalPaymentRef,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderPaidEvent is emitted on the single pending→paid transition.
type OrderPaidEvent struct {
	OrderID    string
	SessionID  string
	Total      int64
	OccurredAt time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func (e OrderPaidEvent) EventKey() string { return e.OrderID }

// OrderPaymentFailedEvent is emitted on the single pending→failed transition.
type OrderPaymentFailedEvent struct {
	OrderID    string
	SessionID  string
	OccurredAt time.Time
}

func (OrderPaymentFailedEvent) EventName() string { return "order.payment_failed" }

func (e OrderPaymentFailedEvent) EventKey() string { return e.OrderID }

// NewStatusChangedEvent returns the event matching a terminal status, or nil.
func NewStatusChangedEvent(o *Order) interface{ EventName() string } {
	now := time.Now().UTC()
	switch o.Status {
	case StatusPaid:
		return OrderPaidEvent{OrderID: o.ID, SessionID: o.ExternalPaymentRef, Total: o.Total, OccurredAt: now}
	case StatusFailed:
		return OrderPaymentFailedEvent{OrderID: o.ID, SessionID: o.ExternalPaymentRef, OccurredAt: now}
	}
	return nil
}
