package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	domain "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
)

const uniqueViolation = "23505"

const orderColumns = `id, buyer_id, items, total, currency, status, payment,
	COALESCE(external_payment_ref, ''), payment_url, created_at, updated_at`

// OrderRepository is the durable order ledger. State changes are
// conditional updates, so concurrent writers never overwrite a terminal
// status or a bound session.
type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type itemRow struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

func (r *OrderRepository) NextOrderID(ctx context.Context) (string, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT nextval('order_id_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("next order id: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	items, err := encodeItems(o.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_id, items, total, currency, status, payment, external_payment_ref, payment_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)`,
		o.ID, o.BuyerID, items, o.Total, o.Currency, string(o.Status), string(o.Payment),
		o.ExternalPaymentRef, o.PaymentURL, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *OrderRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	if sessionID == "" {
		return nil, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE external_payment_ref = $1`, sessionID)
	return scanOrder(row)
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (r *OrderRepository) List(ctx context.Context) ([]*domain.Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *OrderRepository) BindPaymentSession(ctx context.Context, id, sessionID, url string) (*domain.Order, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("order repository: session id is required")
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE orders SET external_payment_ref = $2, payment_url = $3, updated_at = $4
		 WHERE id = $1 AND external_payment_ref IS NULL
		 RETURNING `+orderColumns,
		id, sessionID, url, r.now(),
	)
	o, err := scanOrder(row)
	switch {
	case err == nil:
		return o, nil
	case isUniqueViolation(err):
		return nil, domain.ErrConflict
	case errors.Is(err, domain.ErrNotFound):
		// already bound, or no such order
		return r.Get(ctx, id)
	default:
		return nil, err
	}
}

func (r *OrderRepository) Transition(ctx context.Context, id string, target domain.Status) (*domain.Order, bool, error) {
	if !target.IsTerminal() {
		o, err := r.Get(ctx, id)
		return o, false, err
	}

	row := r.db.QueryRowContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+orderColumns,
		id, string(target), r.now(),
	)
	o, err := scanOrder(row)
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	o, err = r.Get(ctx, id)
	return o, false, err
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o              domain.Order
		items          []byte
		status, paymnt string
	)
	err := s.Scan(&o.ID, &o.BuyerID, &items, &o.Total, &o.Currency, &status, &paymnt,
		&o.ExternalPaymentRef, &o.PaymentURL, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if o.Status, err = domain.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.Payment = domain.Payment(paymnt)
	if o.Items, err = decodeItems(items); err != nil {
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return &o, nil
}

func encodeItems(items []domain.Item) ([]byte, error) {
	rows := make([]itemRow, len(items))
	for i, it := range items {
		rows[i] = itemRow(it)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	return b, nil
}

func decodeItems(b []byte) ([]domain.Item, error) {
	var rows []itemRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	items := make([]domain.Item, len(rows))
	for i, row := range rows {
		items[i] = domain.Item(row)
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
