package domain

import "time"

// ContractSide is the outcome an order trades.
type ContractSide string

const (
	ContractSideYes ContractSide = "yes"
	ContractSideNo  ContractSide = "no"
)

// OrderAction indicates whether this is a buy or sell.
type OrderAction string

const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// Order is a limit order to be submitted to the exchange.
type Order struct {
	ClientOrderID string
	Ticker        string
	Side          ContractSide
	Action        OrderAction
	Count         int
	PriceCents    int // price on Side, 1-99
}

// OrderResult is the exchange's acknowledgement of a submitted order.
type OrderResult struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Status        string    `json:"status"` // "resting", "executed", "canceled", "pending"
	PlacedAt      time.Time `json:"placed_at"`
}

// Balance is the account's cash position.
type Balance struct {
	BalanceCents        int64
	PortfolioValueCents int64
}

// Position is an open market position as reported by the exchange.
type Position struct {
	Ticker         string
	Position       int64 // positive = YES contracts, negative = NO
	MarketExposure int64 // cents
	RealizedPnL    int64 // cents
	RestingOrders  int64
}

// Trade is a public execution in a market.
type Trade struct {
	TradeID     string
	Ticker      string
	YesPrice    int
	NoPrice     int
	Count       int64
	TakerSide   ContractSide
	CreatedTime time.Time
}

// RestingOrder is an order the exchange reports as still working.
type RestingOrder struct {
	OrderID        string
	ClientOrderID  string
	Ticker         string
	Side           ContractSide
	Action         OrderAction
	Status         string
	PriceCents     int // price on Side
	RemainingCount int64
}
