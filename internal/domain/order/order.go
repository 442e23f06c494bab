package order

import (
	"errors"
	"math"
	"math/bits"
	"time"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrConflict        = errors.New("order: conflict")
	ErrNoItems         = errors.New("order: at least one item is required")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("order: unit price must be zero or greater")
	ErrInvalidStatus   = errors.New("order: unknown status")
	ErrTotalOverflow   = errors.New("order: total does not fit in minor units")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusPaid, StatusFailed:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusFailed
}

// Payment distinguishes the two meanings of a pending order: waiting for the
// provider to report an outcome, or placed without any payment step.
type Payment string

const (
	PaymentAwaiting    Payment = "awaiting_payment"
	PaymentNotRequired Payment = "not_required"
)

// Item is the immutable snapshot of one cart line at placement time.
type Item struct {
	ProductID   string
	Name        string
	Description string
	UnitPrice   int64
	Quantity    int
}

func (i Item) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Order struct {
	ID                 string
	BuyerID            string
	Items              []Item
	Total              int64
	Currency           string
	Status             Status
	Payment            Payment
	ExternalPaymentRef string
	PaymentURL         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func New(id, buyerID, currency string, items []Item, payment Payment) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	snapshot := make([]Item, len(items))
	var total int64
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice < 0 {
			return nil, ErrInvalidPrice
		}
		hi, lo := bits.Mul64(uint64(it.UnitPrice), uint64(it.Quantity))
		if hi != 0 || lo > uint64(math.MaxInt64-total) {
			return nil, ErrTotalOverflow
		}
		snapshot[i] = it
		total += int64(lo)
	}

	now := time.Now().UTC()
	return &Order{
		ID:        id,
		BuyerID:   buyerID,
		Items:     snapshot,
		Total:     total,
		Currency:  currency,
		Status:    StatusPending,
		Payment:   payment,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DisplayState folds status and payment requirement into the label shown to buyers.
func (o *Order) DisplayState() string {
	switch {
	case o.Status == StatusPending && o.Payment == PaymentNotRequired:
		return "placed"
	case o.Status == StatusPending:
		return string(PaymentAwaiting)
	default:
		return string(o.Status)
	}
}

// AwaitingPayment reports whether a payment session may still be opened for the order.
func (o *Order) AwaitingPayment() bool {
	return o.Status == StatusPending && o.Payment == PaymentAwaiting
}

func (o *Order) HasPaymentSession() bool {
	return o.ExternalPaymentRef != ""
}

// BindPaymentSession records the provider session. It only succeeds once.
func (o *Order) BindPaymentSession(ref, url string) bool {
	if o.ExternalPaymentRef != "" {
		return false
	}
	o.ExternalPaymentRef = ref
	o.PaymentURL = url
	o.touch()
	return true
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
