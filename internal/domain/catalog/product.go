package catalog

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrProductRemoved    = errors.New("catalog: product removed")
	ErrInvalidQuantity   = errors.New("catalog: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("catalog: out of stock")
	ErrInvalidProduct    = errors.New("catalog: invalid product")
)

// ProductError names the product a stock or lookup failure is about.
type ProductError struct {
	ProductID string
	Err       error
}

func (e *ProductError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.ProductID)
}

func (e *ProductError) Unwrap() error { return e.Err }

func NewProductError(productID string, err error) *ProductError {
	return &ProductError{ProductID: productID, Err: err}
}

type Product struct {
	ID          string
	Name        string
	Description string
	Price       int64
	Currency    string
	Stock       int
	UpdatedAt   time.Time
}

func NewProduct(id, name, description string, price int64, currency string, stock int) (*Product, error) {
	if id == "" || name == "" {
		return nil, ErrInvalidProduct
	}
	if price < 0 || stock < 0 {
		return nil, ErrInvalidProduct
	}
	return &Product{
		ID:          id,
		Name:        name,
		Description: description,
		Price:       price,
		Currency:    currency,
		Stock:       stock,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}

// Deduct removes quantity units, refusing to go below zero.
func (p *Product) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > p.Stock {
		return ErrInsufficientStock
	}
	p.Stock -= quantity
	p.touch()
	return nil
}

func (p *Product) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	p.Stock += quantity
	p.touch()
	return nil
}

func (p *Product) touch() {
	p.UpdatedAt = time.Now().UTC()
}

// Line is a requested quantity of one product.
type Line struct {
	ProductID string
	Quantity  int
}
