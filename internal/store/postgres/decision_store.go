package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. The full
// decision is kept as JSONB next to a few flattened columns for querying.
type DecisionStore struct {
	db DB
}

// NewDecisionStore creates a new DecisionStore backed by the given pool.
func NewDecisionStore(db DB) *DecisionStore {
	return &DecisionStore{db: db}
}

// Insert records a decision and returns its generated ID.
func (s *DecisionStore) Insert(ctx context.Context, rec domain.DecisionRecord) (int64, error) {
	decisionJSON, err := json.Marshal(rec.Decision)
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal decision %s: %w", rec.Ticker, err)
	}

	const query = `
		INSERT INTO quote_decisions (
			ticker, contracts, mid_price, spread_cents, as_maker,
			should_quote, net_profit_cents, recommended_bid, recommended_ask,
			reason, decision
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	d := rec.Decision
	var id int64
	err = s.db.QueryRow(ctx, query,
		rec.Ticker, rec.Contracts, rec.MidPrice, rec.SpreadCents, rec.AsMaker,
		d.ShouldQuote, d.Analysis.NetProfitCents, d.RecommendedBid, d.RecommendedAsk,
		d.Reason, decisionJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert decision %s: %w", rec.Ticker, err)
	}
	return id, nil
}

// ListByTicker returns a ticker's decisions, newest first.
func (s *DecisionStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	query, args := withListOpts(`
		SELECT id, ticker, contracts, mid_price, spread_cents, as_maker, decision, created_at
		FROM quote_decisions WHERE ticker = $1`, []any{ticker}, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var decisionJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Ticker, &rec.Contracts, &rec.MidPrice,
			&rec.SpreadCents, &rec.AsMaker, &decisionJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		if err := json.Unmarshal(decisionJSON, &rec.Decision); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal decision %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
