// Package orderbook normalizes Kalshi's bid-only order book into a
// conventional YES bid/ask view.
//
// Kalshi publishes only bids, one list for YES and one for NO. A NO bid at X
// cents is the same commitment as a YES ask at 100-X cents, so the NO side is
// mirrored into YES asks. All metrics are computed once in New and never
// change afterwards.
package orderbook

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// Side selects one side of the YES book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// ParseSide converts "bid" or "ask" into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBid, SideAsk:
		return Side(s), nil
	default:
		return "", fmt.Errorf("orderbook: unknown side %q (valid: bid, ask)", s)
	}
}

// Book is an immutable, normalized order book for one market.
type Book struct {
	ticker  string
	yesBids []domain.PriceLevel // input order
	yesAsks []domain.PriceLevel // ascending by price, stable

	bestBid  *int
	bestAsk  *int
	midPrice *float64
	spread   *int
	bidDepth int
	askDepth int
}

// New parses raw and derives every metric. Tuples without two numeric fields
// are dropped.
func New(ticker string, raw domain.RawOrderbook) *Book {
	b := &Book{
		ticker:  ticker,
		yesBids: parseLevels(raw.Yes),
		yesAsks: mirrorNoBids(parseLevels(raw.No)),
	}
	b.computeMetrics()
	return b
}

// mirrorNoBids turns NO bids into YES asks sorted best (lowest) first.
func mirrorNoBids(noBids []domain.PriceLevel) []domain.PriceLevel {
	asks := make([]domain.PriceLevel, len(noBids))
	for i, lvl := range noBids {
		asks[i] = domain.PriceLevel{Price: 100 - lvl.Price, Quantity: lvl.Quantity}
	}
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	return asks
}

func (b *Book) computeMetrics() {
	if len(b.yesBids) > 0 {
		best := b.yesBids[0].Price
		for _, lvl := range b.yesBids[1:] {
			best = max(best, lvl.Price)
		}
		b.bestBid = &best
	}
	if len(b.yesAsks) > 0 {
		best := b.yesAsks[0].Price
		for _, lvl := range b.yesAsks[1:] {
			best = min(best, lvl.Price)
		}
		b.bestAsk = &best
	}

	if b.bestBid != nil && b.bestAsk != nil {
		mid := math.Round(float64(*b.bestBid+*b.bestAsk)/2*100) / 100
		spread := *b.bestAsk - *b.bestBid
		b.midPrice = &mid
		b.spread = &spread
	}

	b.bidDepth = sumQuantity(b.yesBids)
	b.askDepth = sumQuantity(b.yesAsks)
}

// Ticker returns the market ticker the book was built for.
func (b *Book) Ticker() string { return b.ticker }

// BestBid returns the highest YES bid.
func (b *Book) BestBid() (int, bool) { return deref(b.bestBid) }

// BestAsk returns the lowest derived YES ask.
func (b *Book) BestAsk() (int, bool) { return deref(b.bestAsk) }

// MidPrice returns the average of best bid and best ask, defined only when
// both sides have liquidity.
func (b *Book) MidPrice() (float64, bool) {
	if b.midPrice == nil {
		return 0, false
	}
	return *b.midPrice, true
}

// Spread returns best ask minus best bid. It is negative for a crossed book.
func (b *Book) Spread() (int, bool) { return deref(b.spread) }

// BidDepth is the total quantity resting on the bid side.
func (b *Book) BidDepth() int { return b.bidDepth }

// AskDepth is the total quantity resting on the ask side.
func (b *Book) AskDepth() int { return b.askDepth }

// YesBids returns a copy of the YES bid levels in feed order.
func (b *Book) YesBids() []domain.PriceLevel { return slices.Clone(b.yesBids) }

// YesAsks returns a copy of the derived YES ask levels, best first.
func (b *Book) YesAsks() []domain.PriceLevel { return slices.Clone(b.yesAsks) }

// VWAP returns the volume-weighted average price of filling quantity
// contracts against side, walking levels in execution priority. ok is false
// when the side cannot fill the whole quantity; no partial average is given.
func (b *Book) VWAP(side Side, quantity int) (vwap float64, ok bool) {
	if quantity <= 0 {
		return 0, false
	}
	levels := b.bestFirst(side)
	if len(levels) == 0 {
		return 0, false
	}

	var totalValue, filled int
	for _, lvl := range levels {
		if filled >= quantity {
			break
		}
		take := min(lvl.Quantity, quantity-filled)
		totalValue += lvl.Price * take
		filled += take
	}

	if filled < quantity {
		return 0, false
	}
	return float64(totalValue) / float64(filled), true
}

// CumulativeDepth sums the quantity across the best nLevels levels of side.
func (b *Book) CumulativeDepth(side Side, nLevels int) int {
	if nLevels <= 0 {
		return 0
	}
	levels := b.bestFirst(side)
	if nLevels < len(levels) {
		levels = levels[:nLevels]
	}
	return sumQuantity(levels)
}

// DepthAtPrice sums the quantity of every level on side quoted at exactly
// price, including duplicate levels.
func (b *Book) DepthAtPrice(price int, side Side) int {
	total := 0
	for _, lvl := range b.levels(side) {
		if lvl.Price == price {
			total += lvl.Quantity
		}
	}
	return total
}

// IsEmpty reports whether both sides are empty.
func (b *Book) IsEmpty() bool {
	return len(b.yesBids) == 0 && len(b.yesAsks) == 0
}

// IsOneSided reports whether exactly one side has levels.
func (b *Book) IsOneSided() bool {
	return (len(b.yesBids) == 0) != (len(b.yesAsks) == 0)
}

// IsCrossed reports whether the best bid is at or through the best ask.
// This is an anomaly (stale data or an arbitrage), not an error.
func (b *Book) IsCrossed() bool {
	if b.bestBid == nil || b.bestAsk == nil {
		return false
	}
	return *b.bestBid >= *b.bestAsk
}

// Snapshot returns an independent copy of the book's state.
func (b *Book) Snapshot() domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Ticker:   b.ticker,
		YesBids:  b.YesBids(),
		YesAsks:  b.YesAsks(),
		BestBid:  clonePtr(b.bestBid),
		BestAsk:  clonePtr(b.bestAsk),
		MidPrice: clonePtr(b.midPrice),
		Spread:   clonePtr(b.spread),
		BidDepth: b.bidDepth,
		AskDepth: b.askDepth,
	}
}

// String renders a one-line summary of the top of book.
func (b *Book) String() string {
	mid := "N/A"
	if b.midPrice != nil {
		mid = fmt.Sprintf("%.1f¢", *b.midPrice)
	}
	return fmt.Sprintf("OrderBook(%s, bid=%s, ask=%s, mid=%s, spread=%s)",
		b.ticker, centsOrNA(b.bestBid), centsOrNA(b.bestAsk), mid, centsOrNA(b.spread))
}

func (b *Book) levels(side Side) []domain.PriceLevel {
	if side == SideBid {
		return b.yesBids
	}
	return b.yesAsks
}

// bestFirst returns a sorted copy of side in execution priority: bids by
// price descending, asks ascending. Ties keep feed order.
func (b *Book) bestFirst(side Side) []domain.PriceLevel {
	levels := slices.Clone(b.levels(side))
	if side == SideBid {
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	} else {
		sort.SliceStable(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	}
	return levels
}

// parseLevels keeps every raw tuple whose first two fields are numeric.
func parseLevels(raw []domain.RawLevel) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, tuple := range raw {
		if len(tuple) < 2 {
			continue
		}
		price, ok := toInt(tuple[0])
		if !ok {
			continue
		}
		qty, ok := toInt(tuple[1])
		if !ok {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return levels
}

// toInt accepts the numeric shapes a tuple element can take after JSON
// decoding or literal construction. Floats must be whole numbers within
// maxLevelValue; anything else makes the tuple malformed.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return wholeFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return wholeFloat(f)
	default:
		return 0, false
	}
}

// maxLevelValue bounds float-decoded prices and quantities so the int
// conversion is exact.
const maxLevelValue = 1 << 53

func wholeFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.Abs(f) > maxLevelValue || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func sumQuantity(levels []domain.PriceLevel) int {
	total := 0
	for _, lvl := range levels {
		total += lvl.Quantity
	}
	return total
}

func deref(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func centsOrNA(p *int) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d¢", *p)
}
