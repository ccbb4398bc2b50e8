package fees

import (
	"fmt"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

const (
	minSearchSpread = 1
	maxSearchSpread = 49

	// NotFoundSpread is returned by the spread searches when no spread in
	// [1, 49] meets the condition. It is a placeholder, not a break-even.
	NotFoundSpread = 50

	minQuotePrice = 1
	maxQuotePrice = 99
)

// QuotePrices centres a spread on mid. Each side moves by floor(spread/2),
// so positive odd spreads quote one cent tighter than requested and negative
// odd spreads (crossed books) one cent wider.
func QuotePrices(midCents, spreadCents int) (bid, ask int) {
	half := floorHalf(spreadCents)
	return midCents - half, midCents + half
}

// floorHalf is n/2 rounded toward negative infinity; Go's / truncates.
func floorHalf(n int) int {
	half := n / 2
	if n < 0 && n%2 != 0 {
		half--
	}
	return half
}

// ClampedQuotePrices is QuotePrices with both sides clamped to [1, 99].
func ClampedQuotePrices(midCents, spreadCents int) (bid, ask int) {
	bid, ask = QuotePrices(midCents, spreadCents)
	return max(minQuotePrice, bid), min(maxQuotePrice, ask)
}

// MinSpreadForBreakeven returns the smallest spread in [1, 49] whose round
// trip around mid is profitable after fees. Spreads that would quote outside
// [1, 99] are skipped. When none qualifies it returns NotFoundSpread, false.
func MinSpreadForBreakeven(contracts, midCents int, asMaker bool) (int, bool) {
	return searchSpread(contracts, midCents, asMaker, func(a domain.ProfitabilityAnalysis) bool {
		return a.IsProfitable
	})
}

// MinSpreadForProfit returns the smallest spread in [1, 49] whose round trip
// around mid nets at least targetCents. Same skip and fallback rules as
// MinSpreadForBreakeven.
func MinSpreadForProfit(contracts, midCents int, targetCents float64, asMaker bool) (int, bool) {
	return searchSpread(contracts, midCents, asMaker, func(a domain.ProfitabilityAnalysis) bool {
		return a.NetProfitCents >= targetCents
	})
}

func searchSpread(contracts, midCents int, asMaker bool, accept func(domain.ProfitabilityAnalysis) bool) (int, bool) {
	for spread := minSearchSpread; spread <= maxSearchSpread; spread++ {
		bid, ask := QuotePrices(midCents, spread)
		if bid < minQuotePrice || ask > maxQuotePrice {
			continue
		}
		if accept(AnalyzeProfitability(contracts, bid, ask, asMaker)) {
			return spread, true
		}
	}
	return NotFoundSpread, false
}

// ExpectedProfitPerRoundTrip returns the net cents earned by buying at the
// bid and selling at the ask of a spread centred on mid. The result is
// negative when fees exceed the captured spread.
func ExpectedProfitPerRoundTrip(spreadCents, contracts, midCents int, asMaker bool) float64 {
	bid, ask := ClampedQuotePrices(midCents, spreadCents)
	return AnalyzeProfitability(contracts, bid, ask, asMaker).NetProfitCents
}

// ShouldQuoteMarket decides whether quoting spreadCents around mid earns at
// least minProfitCents per round trip. The recommended prices are the clamped
// quote prices the analysis was run on.
func ShouldQuoteMarket(spreadCents, contracts, midCents int, minProfitCents float64, asMaker bool) domain.QuoteDecision {
	bid, ask := ClampedQuotePrices(midCents, spreadCents)
	analysis := AnalyzeProfitability(contracts, bid, ask, asMaker)

	profitable, profitableFound := MinSpreadForProfit(contracts, midCents, minProfitCents, asMaker)
	breakeven, breakevenFound := MinSpreadForBreakeven(contracts, midCents, asMaker)

	shouldQuote := analysis.NetProfitCents >= minProfitCents

	var reason string
	if shouldQuote {
		reason = fmt.Sprintf("Profitable: %.2f¢ net profit (target: %g¢)",
			analysis.NetProfitCents, minProfitCents)
	} else {
		reason = fmt.Sprintf("Unprofitable: %.2f¢ < %g¢. Need %s spread (current: %d¢, breakeven: %s)",
			analysis.NetProfitCents, minProfitCents,
			spreadLabel(profitable, profitableFound), spreadCents,
			spreadLabel(breakeven, breakevenFound))
	}

	return domain.QuoteDecision{
		ShouldQuote:         shouldQuote,
		Reason:              reason,
		Analysis:            analysis,
		RecommendedBid:      bid,
		RecommendedAsk:      ask,
		MinProfitableSpread: profitable,
		ProfitableFound:     profitableFound,
		BreakevenSpread:     breakeven,
		BreakevenFound:      breakevenFound,
	}
}

// QuoteInputs reads the integer mid and the live spread off a snapshot. The
// mid is floored to whole cents because quotes are placed on a 1¢ grid.
func QuoteInputs(snap domain.OrderbookSnapshot) (midCents, spreadCents int, err error) {
	if snap.MidPrice == nil || snap.Spread == nil {
		return 0, 0, fmt.Errorf("fees: %s: %w", snap.Ticker, domain.ErrNoMidPrice)
	}
	return int(*snap.MidPrice), *snap.Spread, nil
}

func spreadLabel(spread int, found bool) string {
	if !found {
		return fmt.Sprintf(">%d¢", maxSearchSpread)
	}
	return fmt.Sprintf("%d¢", spread)
}
