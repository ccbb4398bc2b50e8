package kalshi

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
type KalshiMarket struct {
	Ticker        string `json:"ticker"`
	EventTicker   string `json:"event_ticker"`
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle"`
	Status        string `json:"status"` // "open", "closed", "settled"
	YesBid        int    `json:"yes_bid"`
	YesAsk        int    `json:"yes_ask"`
	NoBid         int    `json:"no_bid"`
	NoAsk         int    `json:"no_ask"`
	YesBidDollars string `json:"yes_bid_dollars"`
	NoBidDollars  string `json:"no_bid_dollars"`
	LastPrice     int    `json:"last_price"`
	Volume        int64  `json:"volume"`
	Volume24H     int64  `json:"volume_24h"`
	OpenInterest  int64  `json:"open_interest"`
	Liquidity     int64  `json:"liquidity"`
	CloseTime     string `json:"close_time"`
	Result        string `json:"result"` // "yes", "no", "" (unsettled)
}

// KalshiOrderbook is the orderbook payload. Levels are [price, quantity]
// arrays; the *_dollars variants carry the price as a dollar string.
type KalshiOrderbook struct {
	Yes        []domain.RawLevel `json:"yes"`
	No         []domain.RawLevel `json:"no"`
	YesDollars []domain.RawLevel `json:"yes_dollars"`
	NoDollars  []domain.RawLevel `json:"no_dollars"`
}

// KalshiOrder represents an order to be placed on the Kalshi exchange.
type KalshiOrder struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "market" or "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"` // limit price in cents (1-99)
	NoPrice       *int64 `json:"no_price,omitempty"`  // limit price in cents (1-99)
	PostOnly      bool   `json:"post_only,omitempty"`
}

// KalshiOrderState is an order as echoed back by the exchange.
type KalshiOrderState struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	CreatedTime    string `json:"created_time"`
}

// KalshiTrade is a public trade print.
type KalshiTrade struct {
	TradeID     string `json:"trade_id"`
	Ticker      string `json:"ticker"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	Count       int64  `json:"count"`
	TakerSide   string `json:"taker_side"`
	CreatedTime string `json:"created_time"`
}

// KalshiPosition is a per-market position from the portfolio endpoint.
type KalshiPosition struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnL    int64  `json:"realized_pnl"`
	RestingOrders  int64  `json:"resting_orders_count"`
}

// KalshiBalance is the portfolio balance response. Values are in cents.
type KalshiBalance struct {
	Balance        int64 `json:"balance"`
	PortfolioValue int64 `json:"portfolio_value"`
}

// KalshiErrorResponse represents a Kalshi API error response. The API nests
// the details under "error"; older endpoints return them at the top level.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e KalshiErrorResponse) details() (code, message string) {
	if e.Error != nil {
		return e.Error.Code, e.Error.Message
	}
	return e.Code, e.Message
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// ToDomain converts the payload into the raw bid-only book. Integer cent
// levels win; the dollar-string levels are used only when a side has none.
func (o KalshiOrderbook) ToDomain() domain.RawOrderbook {
	raw := domain.RawOrderbook{Yes: o.Yes, No: o.No}
	if len(raw.Yes) == 0 {
		raw.Yes = dollarLevels(o.YesDollars)
	}
	if len(raw.No) == 0 {
		raw.No = dollarLevels(o.NoDollars)
	}
	if raw.Yes == nil {
		raw.Yes = []domain.RawLevel{}
	}
	if raw.No == nil {
		raw.No = []domain.RawLevel{}
	}
	return raw
}

// dollarLevels rewrites ["0.4800", qty] levels as [48, qty]. Levels whose
// price does not parse are passed through untouched and dropped later by
// the orderbook parser.
func dollarLevels(levels []domain.RawLevel) []domain.RawLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]domain.RawLevel, 0, len(levels))
	for _, l := range levels {
		if len(l) < 2 {
			out = append(out, l)
			continue
		}
		price, ok := l[0].(string)
		if !ok {
			out = append(out, l)
			continue
		}
		cents, err := dollarsToCents(price)
		if err != nil {
			out = append(out, l)
			continue
		}
		qty := l[1]
		if s, ok := qty.(string); ok {
			if d, err := decimal.NewFromString(s); err == nil {
				qty = d.IntPart()
			}
		}
		out = append(out, domain.RawLevel{cents, qty})
	}
	return out
}

func dollarsToCents(s string) (int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse dollars %q: %w", s, err)
	}
	return int(d.Shift(2).Round(0).IntPart()), nil
}

// ToDomain converts the API market into the domain representation.
func (m KalshiMarket) ToDomain() domain.Market {
	out := domain.Market{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		Title:        m.Title,
		Status:       domain.MarketStatus(m.Status),
		YesBid:       m.YesBid,
		NoBid:        m.NoBid,
		LastPrice:    m.LastPrice,
		Volume24H:    m.Volume24H,
		OpenInterest: m.OpenInterest,
	}
	if out.YesBid == 0 && m.YesBidDollars != "" {
		out.YesBid, _ = dollarsToCents(m.YesBidDollars)
	}
	if out.NoBid == 0 && m.NoBidDollars != "" {
		out.NoBid, _ = dollarsToCents(m.NoBidDollars)
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		out.CloseTime = &t
	}
	return out
}

// ToDomain converts the echoed order into a placement acknowledgement.
func (o KalshiOrderState) ToDomain() domain.OrderResult {
	placed, _ := time.Parse(time.RFC3339, o.CreatedTime)
	return domain.OrderResult{
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Status:        o.Status,
		PlacedAt:      placed,
	}
}

// ToResting converts the echoed order into a working-order view.
func (o KalshiOrderState) ToResting() domain.RestingOrder {
	price := o.YesPrice
	if o.Side == string(domain.ContractSideNo) {
		price = o.NoPrice
	}
	return domain.RestingOrder{
		OrderID:        o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		Ticker:         o.Ticker,
		Side:           domain.ContractSide(o.Side),
		Action:         domain.OrderAction(o.Action),
		Status:         o.Status,
		PriceCents:     price,
		RemainingCount: o.RemainingCount,
	}
}

// ToDomain converts the API trade into the domain representation.
func (t KalshiTrade) ToDomain() domain.Trade {
	created, _ := time.Parse(time.RFC3339, t.CreatedTime)
	return domain.Trade{
		TradeID:     t.TradeID,
		Ticker:      t.Ticker,
		YesPrice:    t.YesPrice,
		NoPrice:     t.NoPrice,
		Count:       t.Count,
		TakerSide:   domain.ContractSide(t.TakerSide),
		CreatedTime: created,
	}
}

// ToDomain converts the API position into the domain representation.
func (p KalshiPosition) ToDomain() domain.Position {
	return domain.Position{
		Ticker:         p.Ticker,
		Position:       p.Position,
		MarketExposure: p.MarketExposure,
		RealizedPnL:    p.RealizedPnL,
		RestingOrders:  p.RestingOrders,
	}
}

// newKalshiOrder builds the wire order for a domain limit order.
func newKalshiOrder(o domain.Order, postOnly bool) KalshiOrder {
	price := int64(o.PriceCents)
	ko := KalshiOrder{
		Ticker:        o.Ticker,
		ClientOrderID: o.ClientOrderID,
		Action:        string(o.Action),
		Side:          string(o.Side),
		Type:          "limit",
		Count:         int64(o.Count),
		PostOnly:      postOnly,
	}
	if o.Side == domain.ContractSideNo {
		ko.NoPrice = &price
	} else {
		ko.YesPrice = &price
	}
	return ko
}
