package postgres

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	db DB
}

// NewOrderStore creates a new OrderStore backed by the given pool.
func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create inserts a placed quote order.
func (s *OrderStore) Create(ctx context.Context, o domain.QuoteOrderRecord) error {
	const query = `
		INSERT INTO quote_orders (
			client_order_id, order_id, decision_id, ticker, side, action,
			price_cents, count, status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

	_, err := s.db.Exec(ctx, query,
		o.ClientOrderID, o.OrderID, o.DecisionID, o.Ticker,
		string(o.Side), string(o.Action), o.PriceCents, o.Count, o.Status,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ClientOrderID, err)
	}
	return nil
}

// UpdateStatus changes the status of an existing order.
func (s *OrderStore) UpdateStatus(ctx context.Context, clientOrderID, status string) error {
	const query = `UPDATE quote_orders SET status = $1, updated_at = NOW() WHERE client_order_id = $2`

	tag, err := s.db.Exec(ctx, query, status, clientOrderID)
	if err != nil {
		return fmt.Errorf("postgres: update order status %s: %w", clientOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update order status %s: %w", clientOrderID, domain.ErrNotFound)
	}
	return nil
}

// ListByTicker returns a ticker's quote orders, newest first.
func (s *OrderStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.QuoteOrderRecord, error) {
	query, args := withListOpts(`
		SELECT client_order_id, COALESCE(order_id, ''), decision_id, ticker, side, action,
		       price_cents, count, status, created_at
		FROM quote_orders WHERE ticker = $1`, []any{ticker}, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []domain.QuoteOrderRecord
	for rows.Next() {
		var o domain.QuoteOrderRecord
		var side, action string
		if err := rows.Scan(&o.ClientOrderID, &o.OrderID, &o.DecisionID, &o.Ticker,
			&side, &action, &o.PriceCents, &o.Count, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Side = domain.ContractSide(side)
		o.Action = domain.OrderAction(action)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
