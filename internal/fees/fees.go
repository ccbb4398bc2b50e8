// Package fees prices Kalshi trading fees and decides whether quoting a
// market at a given spread is worth it after both legs are charged.
//
// Kalshi charges rate × C × P × (1-P) per fill, where C is the contract count
// and P the price in dollars. The charge peaks at 50¢ and is symmetric around
// it. Makers pay a quarter of the taker rate.
//
// Every function is a pure computation over its arguments. Prices are not
// range-checked: callers pass market prices in [1, 99] and non-negative
// contract counts; anything else yields a well-defined but meaningless result.
package fees

import (
	"github.com/alanyoungcy/kalshimm/internal/domain"
)

const (
	// MakerRate applies to resting orders that add liquidity.
	MakerRate = 0.0175
	// TakerRate applies to orders that remove liquidity.
	TakerRate = 4 * MakerRate
)

// RateFor returns MakerRate when asMaker is set and TakerRate otherwise.
func RateFor(asMaker bool) float64 {
	if asMaker {
		return MakerRate
	}
	return TakerRate
}

// Fee computes the fee for filling contracts at priceCents under rate.
func Fee(contracts, priceCents int, rate float64) domain.FeeCalculation {
	p := float64(priceCents) / 100
	risk := min(p, 1-p)
	feeDollars := rate * float64(contracts) * p * (1 - p)

	return domain.FeeCalculation{
		Contracts:       contracts,
		PriceCents:      priceCents,
		PriceDecimal:    p,
		RiskPerContract: risk,
		TotalRisk:       float64(contracts) * risk,
		FeeDollars:      feeDollars,
		FeeCents:        feeDollars * 100,
		FeeRate:         rate,
	}
}

// MakerFee is Fee at MakerRate.
func MakerFee(contracts, priceCents int) domain.FeeCalculation {
	return Fee(contracts, priceCents, MakerRate)
}

// TakerFee is Fee at TakerRate.
func TakerFee(contracts, priceCents int) domain.FeeCalculation {
	return Fee(contracts, priceCents, TakerRate)
}

// RoundTripFee returns the combined entry and exit fee in cents.
func RoundTripFee(contracts, entryCents, exitCents int, asMaker bool) float64 {
	rate := RateFor(asMaker)
	return Fee(contracts, entryCents, rate).FeeCents + Fee(contracts, exitCents, rate).FeeCents
}

// AnalyzeProfitability evaluates buying contracts at entryCents and selling
// them at exitCents. A negative spread is legal and produces a loss.
func AnalyzeProfitability(contracts, entryCents, exitCents int, asMaker bool) domain.ProfitabilityAnalysis {
	rate := RateFor(asMaker)

	spread := exitCents - entryCents
	gross := float64(spread * contracts)

	entryFee := Fee(contracts, entryCents, rate)
	exitFee := Fee(contracts, exitCents, rate)
	totalFees := entryFee.FeeCents + exitFee.FeeCents

	net := gross - totalFees
	netDollars := net / 100

	perContract := 0.0
	if contracts > 0 {
		perContract = net / float64(contracts)
	}

	roi := 0.0
	if capital := float64(entryCents*contracts) / 100; capital > 0 {
		roi = netDollars / capital * 100
	}

	return domain.ProfitabilityAnalysis{
		Contracts:              contracts,
		EntryPriceCents:        entryCents,
		ExitPriceCents:         exitCents,
		SpreadCents:            spread,
		GrossProfitCents:       gross,
		GrossProfitDollars:     gross / 100,
		EntryFee:               entryFee,
		ExitFee:                exitFee,
		TotalFeesCents:         totalFees,
		TotalFeesDollars:       totalFees / 100,
		NetProfitCents:         net,
		NetProfitDollars:       netDollars,
		IsProfitable:           net > 0,
		ProfitPerContractCents: perContract,
		ROIPercent:             roi,
	}
}
