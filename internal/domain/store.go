package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DecisionRecord is a quoting decision as persisted in the audit trail.
type DecisionRecord struct {
	ID          int64         `json:"id"`
	Ticker      string        `json:"ticker"`
	Contracts   int           `json:"contracts"`
	MidPrice    float64       `json:"mid_price"`
	SpreadCents int           `json:"spread_cents"`
	AsMaker     bool          `json:"as_maker"`
	Decision    QuoteDecision `json:"decision"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DecisionStore persists the quoting decisions produced by the service.
type DecisionStore interface {
	Insert(ctx context.Context, rec DecisionRecord) (int64, error)
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]DecisionRecord, error)
}

// AuditEntry represents a single audit log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log of actions taken.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// QuoteOrderRecord is an order placed on behalf of a quoting decision.
type QuoteOrderRecord struct {
	ClientOrderID string
	OrderID       string
	DecisionID    *int64
	Ticker        string
	Side          ContractSide
	Action        OrderAction
	PriceCents    int
	Count         int
	Status        string
	CreatedAt     time.Time
}

// OrderStore persists the orders the quoter places.
type OrderStore interface {
	Create(ctx context.Context, rec QuoteOrderRecord) error
	UpdateStatus(ctx context.Context, clientOrderID, status string) error
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]QuoteOrderRecord, error)
}
