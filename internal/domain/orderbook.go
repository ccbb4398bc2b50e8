package domain

import "time"

// RawLevel is one [price, quantity] tuple as it arrives on the order-book
// feed. Elements are left untyped so that malformed tuples can be detected and
// dropped instead of failing the whole decode.
type RawLevel []any

// RawOrderbook is Kalshi's bid-only book: YES bids and NO bids, prices in
// integer cents. Levels are neither sorted nor aggregated by price.
type RawOrderbook struct {
	Yes []RawLevel `json:"yes"`
	No  []RawLevel `json:"no"`
}

// Empty reports whether neither side carries any level.
func (r RawOrderbook) Empty() bool {
	return len(r.Yes) == 0 && len(r.No) == 0
}

// PriceLevel is a single price+quantity entry in an orderbook.
type PriceLevel struct {
	Price    int `json:"price"`    // cents, 0-100
	Quantity int `json:"quantity"` // contracts
}

// OrderbookSnapshot is a normalized YES-centric view of a market's book.
// Pointer fields are nil when the metric is undefined for the current book.
type OrderbookSnapshot struct {
	Ticker   string       `json:"ticker"`
	YesBids  []PriceLevel `json:"yes_bids"`
	YesAsks  []PriceLevel `json:"yes_asks"` // derived from NO bids, best first
	BestBid  *int         `json:"best_bid,omitempty"`
	BestAsk  *int         `json:"best_ask,omitempty"`
	MidPrice *float64     `json:"mid_price,omitempty"`
	Spread   *int         `json:"spread,omitempty"` // negative when crossed
	BidDepth int          `json:"bid_depth"`
	AskDepth int          `json:"ask_depth"`
}

// TopOfBook is the best YES bid and NO bid reported on the market endpoint,
// used when the full book cannot be fetched.
type TopOfBook struct {
	Ticker    string
	YesBid    int
	NoBid     int
	FetchedAt time.Time
}

// Raw converts top-of-book quotes into a minimal raw book. Quantities are
// unknown at this level, so each present side gets a single contract.
func (t TopOfBook) Raw() RawOrderbook {
	raw := RawOrderbook{Yes: []RawLevel{}, No: []RawLevel{}}
	if t.YesBid > 0 {
		raw.Yes = append(raw.Yes, RawLevel{t.YesBid, 1})
	}
	if t.NoBid > 0 {
		raw.No = append(raw.No, RawLevel{t.NoBid, 1})
	}
	return raw
}
