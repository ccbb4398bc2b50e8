package handler

import (
	"net/http"

	"github.com/alanyoungcy/kalshimm/internal/fees"
)

const maxContracts = 1_000_000

// FeeHandler exposes the fee engine as a calculator. It holds no state;
// every answer is computed from the query string.
type FeeHandler struct {
	asMaker bool
}

// NewFeeHandler creates a FeeHandler. asMaker is the default fee regime when
// a request does not pass maker=.
func NewFeeHandler(asMaker bool) *FeeHandler {
	return &FeeHandler{asMaker: asMaker}
}

// Fee returns the fee for one leg.
// GET /api/fees?contracts=100&price=50&maker=true
func (h *FeeHandler) Fee(w http.ResponseWriter, r *http.Request) {
	contracts, err := queryInt(r, "contracts", 1, maxContracts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := queryInt(r, "price", 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, err := queryBool(r, "maker", h.asMaker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fees.Fee(contracts, price, fees.RateFor(maker)))
}

// RoundTrip returns the profitability of buying at entry and selling at
// exit.
// GET /api/fees/roundtrip?contracts=100&entry=45&exit=55&maker=true
func (h *FeeHandler) RoundTrip(w http.ResponseWriter, r *http.Request) {
	contracts, err := queryInt(r, "contracts", 1, maxContracts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := queryInt(r, "entry", 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exit, err := queryInt(r, "exit", 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, err := queryBool(r, "maker", h.asMaker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fees.AnalyzeProfitability(contracts, entry, exit, maker))
}

// spreadResponse answers the spread search. A spread of 50 with found false
// means no spread in range satisfied the condition.
type spreadResponse struct {
	Contracts           int      `json:"contracts"`
	MidCents            int      `json:"mid_cents"`
	AsMaker             bool     `json:"as_maker"`
	BreakevenSpread     int      `json:"breakeven_spread"`
	BreakevenFound      bool     `json:"breakeven_found"`
	TargetProfitCents   float64  `json:"target_profit_cents,omitempty"`
	MinProfitableSpread int      `json:"min_profitable_spread,omitempty"`
	ProfitableFound     bool     `json:"profitable_found,omitempty"`
	AtSpreadCents       int      `json:"at_spread_cents,omitempty"`
	ExpectedNetCents    *float64 `json:"expected_net_cents,omitempty"`
}

// Spread searches for the narrowest breakeven and target-profit spreads
// around mid. With spread= it also reports the expected net at that spread.
// GET /api/fees/spread?contracts=100&mid=50&target=50&spread=4
func (h *FeeHandler) Spread(w http.ResponseWriter, r *http.Request) {
	contracts, err := queryInt(r, "contracts", 1, maxContracts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mid, err := queryInt(r, "mid", 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := queryFloat(r, "target", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spread, err := queryIntDefault(r, "spread", 0, 1, 98)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, err := queryBool(r, "maker", h.asMaker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := spreadResponse{Contracts: contracts, MidCents: mid, AsMaker: maker}
	resp.BreakevenSpread, resp.BreakevenFound = fees.MinSpreadForBreakeven(contracts, mid, maker)
	if target > 0 {
		resp.TargetProfitCents = target
		resp.MinProfitableSpread, resp.ProfitableFound = fees.MinSpreadForProfit(contracts, mid, target, maker)
	}
	if spread > 0 {
		net := fees.ExpectedProfitPerRoundTrip(spread, contracts, mid, maker)
		resp.AtSpreadCents = spread
		resp.ExpectedNetCents = &net
	}
	writeJSON(w, http.StatusOK, resp)
}

// Decision runs the quote/skip decision over caller-supplied inputs.
// GET /api/fees/decision?spread=4&contracts=100&mid=50&min_profit=50
func (h *FeeHandler) Decision(w http.ResponseWriter, r *http.Request) {
	spread, err := queryInt(r, "spread", 0, 98)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contracts, err := queryInt(r, "contracts", 1, maxContracts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mid, err := queryInt(r, "mid", 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minProfit, err := queryFloat(r, "min_profit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, err := queryBool(r, "maker", h.asMaker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, fees.ShouldQuoteMarket(spread, contracts, mid, minProfit, maker))
}
