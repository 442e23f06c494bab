package cart

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyCart       = errors.New("cart: empty")
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
	ErrConflict        = errors.New("cart: concurrent update")
)

type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Cart keeps lines in the order they were first added.
type Cart struct {
	BuyerID   string    `json:"buyer_id"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(buyerID string) *Cart {
	return &Cart{BuyerID: buyerID, Lines: []Line{}}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// SetQuantity adds the product or replaces the quantity of an existing line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{ProductID: productID, Quantity: quantity})
	c.touch()
	return nil
}

// Remove drops the line for productID. Reports whether a line was removed.
func (c *Cart) Remove(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			c.touch()
			return true
		}
	}
	return false
}

// RemoveLines drops each line that still carries the given quantity. A line
// whose quantity changed since the snapshot was edited by the buyer and stays.
// Reports how many lines were removed.
func (c *Cart) RemoveLines(lines []Line) int {
	if len(lines) == 0 {
		return 0
	}
	taken := make(map[string]int, len(lines))
	for _, l := range lines {
		taken[l.ProductID] = l.Quantity
	}
	kept := c.Lines[:0:0]
	removed := 0
	for _, l := range c.Lines {
		if q, ok := taken[l.ProductID]; ok && q == l.Quantity {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if removed > 0 {
		c.Lines = kept
		c.touch()
	}
	return removed
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]Line{}, c.Lines...)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// Store persists one cart per buyer. Get never fails for an unknown buyer;
// it returns an empty cart.
type Store interface {
	Get(ctx context.Context, buyerID string) (*Cart, error)
	SetQuantity(ctx context.Context, buyerID, productID string, quantity int) (*Cart, error)
	Remove(ctx context.Context, buyerID, productID string) (*Cart, error)
	// RemoveLines takes the checked-out lines out of the cart and keeps
	// anything added or changed since they were read.
	RemoveLines(ctx context.Context, buyerID string, lines []Line) (*Cart, error)
	Clear(ctx context.Context, buyerID string) error
}
