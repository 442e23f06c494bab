package catalog

import "time"

// StockReservedEvent is emitted when every line of an order has been taken out of stock.
type StockReservedEvent struct {
	OrderID    string
	Lines      []Line
	OccurredAt time.Time
}

func (StockReservedEvent) EventName() string { return "catalog.stock_reserved" }

func (e StockReservedEvent) EventKey() string { return e.OrderID }

func NewStockReservedEvent(orderID string, lines []Line) StockReservedEvent {
	return StockReservedEvent{
		OrderID:    orderID,
		Lines:      append([]Line(nil), lines...),
		OccurredAt: time.Now().UTC(),
	}
}

// StockReleasedEvent is emitted when a decrement is given back because the order could not be stored.
type StockReleasedEvent struct {
	BuyerID    string
	Lines      []Line
	Reason     string
	OccurredAt time.Time
}

func (StockReleasedEvent) EventName() string { return "catalog.stock_released" }

func (e StockReleasedEvent) EventKey() string { return e.BuyerID }

func NewStockReleasedEvent(buyerID string, lines []Line, reason string) StockReleasedEvent {
	return StockReleasedEvent{
		BuyerID:    buyerID,
		Lines:      append([]Line(nil), lines...),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
