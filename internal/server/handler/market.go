package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/orderbook"
)

// Quoter defines the methods the market handler requires from the quote
// service. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type Quoter interface {
	Book(ctx context.Context, ticker string) (*orderbook.Book, error)
	Evaluate(ctx context.Context, ticker string) (domain.Evaluation, error)
	Execute(ctx context.Context, eval domain.Evaluation) (domain.QuotePlacement, error)
}

// MarketLister lists exchange markets.
type MarketLister interface {
	GetMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
}

// MarketHandler serves the per-market endpoints.
type MarketHandler struct {
	quotes       Quoter
	markets      MarketLister
	allowExecute bool
	logger       *slog.Logger
}

// NewMarketHandler creates a MarketHandler. Quote placement is refused
// unless allowExecute is set.
func NewMarketHandler(quotes Quoter, markets MarketLister, allowExecute bool, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		quotes:       quotes,
		markets:      markets,
		allowExecute: allowExecute,
		logger:       logger,
	}
}

// ListMarkets returns exchange markets.
// GET /api/markets?status=open&series_ticker=&event_ticker=&limit=50
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MarketFilter{
		Limit:        parseListOpts(r).Limit,
		Status:       q.Get("status"),
		SeriesTicker: q.Get("series_ticker"),
		EventTicker:  q.Get("event_ticker"),
	}

	markets, err := h.markets.GetMarkets(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list markets", "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetBook returns the normalized book. format=text renders the ladder.
// GET /api/markets/{ticker}/book?levels=5&format=text
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	levels, err := queryIntDefault(r, "levels", 5, 1, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.quotes.Book(r.Context(), ticker)
	if err != nil {
		h.fail(w, r, "get book", ticker, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(orderbook.Format(book, levels)))
		return
	}
	writeJSON(w, http.StatusOK, book.Snapshot())
}

// liquidityResponse describes what it costs to take quantity from one
// side of the book.
type liquidityResponse struct {
	Ticker          string   `json:"ticker"`
	Side            string   `json:"side"`
	Quantity        int      `json:"quantity"`
	VWAP            *float64 `json:"vwap,omitempty"` // nil when the side cannot fill quantity
	Fillable        bool     `json:"fillable"`
	Levels          int      `json:"levels"`
	CumulativeDepth int      `json:"cumulative_depth"`
	PriceCents      int      `json:"price_cents,omitempty"`
	DepthAtPrice    *int     `json:"depth_at_price,omitempty"`
}

// GetLiquidity reports the VWAP of filling quantity against side, the depth
// of its best levels and optionally the depth quoted at one price.
// GET /api/markets/{ticker}/liquidity?side=ask&quantity=100&levels=3&price=55
func (h *MarketHandler) GetLiquidity(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	side, err := orderbook.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity, err := queryInt(r, "quantity", 1, maxContracts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	levels, err := queryIntDefault(r, "levels", 5, 1, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	price, err := queryIntDefault(r, "price", 0, 1, 99)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.quotes.Book(r.Context(), ticker)
	if err != nil {
		h.fail(w, r, "get liquidity", ticker, err)
		return
	}

	resp := liquidityResponse{
		Ticker:          ticker,
		Side:            string(side),
		Quantity:        quantity,
		Levels:          levels,
		CumulativeDepth: book.CumulativeDepth(side, levels),
	}
	if vwap, ok := book.VWAP(side, quantity); ok {
		resp.VWAP = &vwap
		resp.Fillable = true
	}
	if price > 0 {
		depth := book.DepthAtPrice(price, side)
		resp.PriceCents = price
		resp.DepthAtPrice = &depth
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetEvaluation evaluates the market now. The decision is recorded like any
// other evaluation.
// GET /api/markets/{ticker}/evaluation
func (h *MarketHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	eval, err := h.quotes.Evaluate(r.Context(), ticker)
	if err != nil {
		h.fail(w, r, "evaluate", ticker, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// PlaceQuote evaluates the market and, when it is quotable, places the two
// maker orders.
// POST /api/markets/{ticker}/quote
func (h *MarketHandler) PlaceQuote(w http.ResponseWriter, r *http.Request) {
	if !h.allowExecute {
		writeError(w, http.StatusForbidden, "quote execution is disabled")
		return
	}
	ticker := r.PathValue("ticker")

	eval, err := h.quotes.Evaluate(r.Context(), ticker)
	if err != nil {
		h.fail(w, r, "evaluate", ticker, err)
		return
	}
	if !eval.Decision.ShouldQuote {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      domain.ErrNotQuotable.Error(),
			"evaluation": eval,
		})
		return
	}

	placement, err := h.quotes.Execute(r.Context(), eval)
	if err != nil {
		h.fail(w, r, "execute", ticker, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"evaluation": eval,
		"placement":  placement,
	})
}

// fail writes the error with its mapped status. Only unexpected failures
// are logged.
func (h *MarketHandler) fail(w http.ResponseWriter, r *http.Request, op, ticker string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError || errors.Is(err, domain.ErrUnauthorized) {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err.Error())
}
