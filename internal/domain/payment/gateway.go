package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

var (
	ErrNotConfigured      = errors.New("payment: gateway not configured")
	ErrGatewayRejected    = errors.New("payment: gateway rejected request")
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	ErrSessionNotFound    = errors.New("payment: session not found")
	ErrInvalidKeyFormat   = errors.New("payment: invalid secret key format")
	ErrInvalidCountry     = errors.New("payment: invalid country code")
)

// GatewayError names the order or session a provider failure concerns.
// Err is always one of the sentinel errors above, possibly wrapping the
// provider error.
type GatewayError struct {
	Op  string
	Ref string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("payment %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
)

// LineItem is a display line sent to the hosted payment page. Amounts are minor units.
type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64
	Currency    string
	Quantity    int
}

// Subtotal is UnitAmount*Quantity. ok is false when the amount is negative or
// does not fit in an int64.
func (l LineItem) Subtotal() (amount int64, ok bool) {
	if l.UnitAmount < 0 || l.Quantity < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(l.UnitAmount), uint64(l.Quantity))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// SumLineItems returns the amount the provider would charge for items.
func SumLineItems(items []LineItem) (int64, error) {
	var total int64
	for _, it := range items {
		sub, ok := it.Subtotal()
		if !ok || sub > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: amount for %q overflows", ErrGatewayRejected, it.Name)
		}
		total += sub
	}
	return total, nil
}

type CreateSessionRequest struct {
	OrderID        string
	Items          []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type Session struct {
	ID          string
	OrderID     string
	RedirectURL string
}

// SessionStatus is the provider's answer, already reduced to canonical fields.
type SessionStatus struct {
	SessionID string
	OrderID   string
	Outcome   Outcome
	Details   map[string]string
}

type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	QuerySessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)
	IsConfigured(ctx context.Context) bool
}

// ValidateItems applies the checks every gateway performs before a network call.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no line items", ErrGatewayRejected)
	}
	for _, it := range items {
		switch {
		case it.Quantity <= 0:
			return fmt.Errorf("%w: quantity for %q must be positive", ErrGatewayRejected, it.Name)
		case it.UnitAmount <= 0:
			return fmt.Errorf("%w: amount for %q must be positive", ErrGatewayRejected, it.Name)
		case it.Currency == "":
			return fmt.Errorf("%w: currency for %q is required", ErrGatewayRejected, it.Name)
		}
	}
	_, err := SumLineItems(items)
	return err
}
