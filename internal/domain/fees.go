package domain

// FeeCalculation is the fee charged on one leg of a trade.
type FeeCalculation struct {
	Contracts       int     `json:"contracts"`
	PriceCents      int     `json:"price_cents"`
	PriceDecimal    float64 `json:"price_decimal"`
	RiskPerContract float64 `json:"risk_per_contract"` // dollars, min(p, 1-p)
	TotalRisk       float64 `json:"total_risk"`        // dollars
	FeeDollars      float64 `json:"fee_dollars"`
	FeeCents        float64 `json:"fee_cents"`
	FeeRate         float64 `json:"fee_rate"`
}

// ProfitabilityAnalysis describes a round trip: buy at entry, sell at exit,
// both legs charged at the same fee rate.
type ProfitabilityAnalysis struct {
	Contracts       int `json:"contracts"`
	EntryPriceCents int `json:"entry_price_cents"`
	ExitPriceCents  int `json:"exit_price_cents"`
	SpreadCents     int `json:"spread_cents"`

	GrossProfitCents   float64 `json:"gross_profit_cents"`
	GrossProfitDollars float64 `json:"gross_profit_dollars"`

	EntryFee         FeeCalculation `json:"entry_fee"`
	ExitFee          FeeCalculation `json:"exit_fee"`
	TotalFeesCents   float64        `json:"total_fees_cents"`
	TotalFeesDollars float64        `json:"total_fees_dollars"`

	NetProfitCents   float64 `json:"net_profit_cents"`
	NetProfitDollars float64 `json:"net_profit_dollars"`

	IsProfitable           bool    `json:"is_profitable"`
	ProfitPerContractCents float64 `json:"profit_per_contract_cents"`
	ROIPercent             float64 `json:"roi_percent"`
}

// QuoteDecision is the recommendation for a single market. RecommendedBid and
// RecommendedAsk are ready to use as limit prices when ShouldQuote is true.
//
// MinProfitableSpread and BreakevenSpread are 50 when no spread in the
// searchable range satisfies the condition; the Found flags distinguish that
// case from a genuine 50-cent answer.
type QuoteDecision struct {
	ShouldQuote         bool                  `json:"should_quote"`
	Reason              string                `json:"reason"`
	Analysis            ProfitabilityAnalysis `json:"analysis"`
	RecommendedBid      int                   `json:"recommended_bid"`
	RecommendedAsk      int                   `json:"recommended_ask"`
	MinProfitableSpread int                   `json:"min_profitable_spread"`
	ProfitableFound     bool                  `json:"profitable_found"`
	BreakevenSpread     int                   `json:"breakeven_spread"`
	BreakevenFound      bool                  `json:"breakeven_found"`
}
