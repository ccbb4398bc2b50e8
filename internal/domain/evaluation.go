package domain

import "time"

// Evaluation is one pass of the quoting pipeline over a single market: the
// normalized book that was read and the decision taken on it.
type Evaluation struct {
	Ticker      string            `json:"ticker"`
	Snapshot    OrderbookSnapshot `json:"snapshot"`
	Decision    QuoteDecision     `json:"decision"`
	Contracts   int               `json:"contracts"`
	MidCents    int               `json:"mid_cents"`
	SpreadCents int               `json:"spread_cents"` // spread the decision was taken at
	AsMaker     bool              `json:"as_maker"`
	FromTop     bool              `json:"from_top_of_book,omitempty"`
	DecisionID  *int64            `json:"decision_id,omitempty"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// QuotePlacement is the pair of maker orders placed for a quotable market.
// The ask side is expressed as a NO buy at 100 minus the YES ask.
type QuotePlacement struct {
	Ticker string      `json:"ticker"`
	Bid    OrderResult `json:"bid"`
	Ask    OrderResult `json:"ask"`
}

// ScanResult is the outcome for one market in a scan. Exactly one of
// Evaluation and Error is set.
type ScanResult struct {
	Ticker     string      `json:"ticker"`
	Title      string      `json:"title,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// NetProfitCents is the expected net profit of the result's decision, or
// zero when the market could not be evaluated.
func (r ScanResult) NetProfitCents() float64 {
	if r.Evaluation == nil {
		return 0
	}
	return r.Evaluation.Decision.Analysis.NetProfitCents
}

// ScanReport summarizes a scan over many markets.
type ScanReport struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Contracts  int          `json:"contracts"`
	AsMaker    bool         `json:"as_maker"`
	Quotable   int          `json:"quotable"`
	Failed     int          `json:"failed"`
	Results    []ScanResult `json:"results"`
	Path       string       `json:"-"` // blob key when archived
}
