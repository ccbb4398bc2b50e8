package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market is the subset of Kalshi market metadata the quoter looks at.
type Market struct {
	Ticker       string       `json:"ticker"`
	EventTicker  string       `json:"event_ticker"`
	Title        string       `json:"title"`
	Status       MarketStatus `json:"status"`
	YesBid       int          `json:"yes_bid"`    // cents
	NoBid        int          `json:"no_bid"`     // cents
	LastPrice    int          `json:"last_price"` // cents
	Volume24H    int64        `json:"volume_24h"`
	OpenInterest int64        `json:"open_interest"`
	CloseTime    *time.Time   `json:"close_time,omitempty"`
}

// MarketFilter narrows a market listing. Empty fields are not sent.
type MarketFilter struct {
	Limit        int
	Status       string
	SeriesTicker string
	EventTicker  string
}
