// Package service holds the quoting driver: it fetches books from the
// exchange, runs the fee economics over them, records and fans out the
// decisions and, when asked, places the two maker orders.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/fees"
	"github.com/alanyoungcy/kalshimm/internal/notify"
	"github.com/alanyoungcy/kalshimm/internal/orderbook"
)

// DecisionStream is the redis stream every decision is appended to.
const DecisionStream = "decisions"

// DecisionChannel returns the pub/sub channel for a ticker's decisions.
func DecisionChannel(ticker string) string {
	return "decisions:" + ticker
}

// Exchange is the part of the Kalshi client the quoter drives.
type Exchange interface {
	GetMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	GetOrderbook(ctx context.Context, ticker string, depth int) (domain.RawOrderbook, error)
	TopOfBook(ctx context.Context, ticker string) (domain.TopOfBook, error)
	PlaceOrder(ctx context.Context, order domain.Order, postOnly bool) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetBalance(ctx context.Context) (domain.Balance, error)
}

// QuoteConfig holds the decision parameters.
type QuoteConfig struct {
	Contracts           int
	MinProfitCents      float64
	AsMaker             bool
	SpreadOverrideCents int // evaluate this spread instead of the live one when > 0
	OrderbookDepth      int
	PostOnly            bool
	TopOfBookFallback   bool
	LockTTL             time.Duration
}

// QuoteService evaluates single markets and places quotes on them. Every
// collaborator other than the exchange is optional.
type QuoteService struct {
	exchange  Exchange
	decisions domain.DecisionStore
	orders    domain.OrderStore
	audit     domain.AuditStore
	bus       domain.SignalBus
	locks     domain.LockManager
	notifier  *notify.Notifier
	cfg       QuoteConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewQuoteService creates a QuoteService.
func NewQuoteService(exchange Exchange, cfg QuoteConfig, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		exchange: exchange,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "quote_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithDecisionStore records every evaluation.
func (s *QuoteService) WithDecisionStore(store domain.DecisionStore) *QuoteService {
	s.decisions = store
	return s
}

// WithOrderStore records placed orders.
func (s *QuoteService) WithOrderStore(store domain.OrderStore) *QuoteService {
	s.orders = store
	return s
}

// WithAuditStore audit-logs placements.
func (s *QuoteService) WithAuditStore(store domain.AuditStore) *QuoteService {
	s.audit = store
	return s
}

// WithSignalBus publishes every decision.
func (s *QuoteService) WithSignalBus(bus domain.SignalBus) *QuoteService {
	s.bus = bus
	return s
}

// WithLockManager serializes order placement per ticker across processes.
func (s *QuoteService) WithLockManager(locks domain.LockManager) *QuoteService {
	s.locks = locks
	return s
}

// WithNotifier sends opportunity and placement alerts.
func (s *QuoteService) WithNotifier(n *notify.Notifier) *QuoteService {
	s.notifier = n
	return s
}

// Config returns the decision parameters in use.
func (s *QuoteService) Config() QuoteConfig {
	return s.cfg
}

// Evaluate fetches the ticker's book and decides whether to quote it. Empty,
// one-sided and crossed books, and books whose mid is outside 1-99, are
// rejected with the matching domain error.
func (s *QuoteService) Evaluate(ctx context.Context, ticker string) (domain.Evaluation, error) {
	book, fromTop, err := s.fetchBook(ctx, ticker)
	if err != nil {
		return domain.Evaluation{}, err
	}
	return s.evaluateBook(ctx, book, fromTop)
}

// EvaluateBook runs the decision over an already-built book.
func (s *QuoteService) EvaluateBook(ctx context.Context, book *orderbook.Book) (domain.Evaluation, error) {
	return s.evaluateBook(ctx, book, false)
}

// Book fetches and normalizes the ticker's book without deciding on it.
func (s *QuoteService) Book(ctx context.Context, ticker string) (*orderbook.Book, error) {
	book, _, err := s.fetchBook(ctx, ticker)
	return book, err
}

func (s *QuoteService) fetchBook(ctx context.Context, ticker string) (*orderbook.Book, bool, error) {
	raw, err := s.exchange.GetOrderbook(ctx, ticker, s.cfg.OrderbookDepth)
	if err == nil {
		return orderbook.New(ticker, raw), false, nil
	}
	if !s.cfg.TopOfBookFallback || ctx.Err() != nil {
		return nil, false, fmt.Errorf("service: fetch orderbook %s: %w", ticker, err)
	}

	top, topErr := s.exchange.TopOfBook(ctx, ticker)
	if topErr != nil {
		return nil, false, fmt.Errorf("service: fetch orderbook %s: %w", ticker, errors.Join(err, topErr))
	}
	s.logger.WarnContext(ctx, "orderbook fetch failed, using top of book",
		slog.String("ticker", ticker),
		slog.String("error", err.Error()),
	)
	return orderbook.New(ticker, top.Raw()), true, nil
}

func (s *QuoteService) evaluateBook(ctx context.Context, book *orderbook.Book, fromTop bool) (domain.Evaluation, error) {
	ticker := book.Ticker()
	switch {
	case book.IsEmpty():
		return domain.Evaluation{}, fmt.Errorf("service: %s: %w", ticker, domain.ErrEmptyBook)
	case book.IsOneSided():
		return domain.Evaluation{}, fmt.Errorf("service: %s: %w", ticker, domain.ErrOneSidedBook)
	case book.IsCrossed():
		return domain.Evaluation{}, fmt.Errorf("service: %s: %w", ticker, domain.ErrCrossedBook)
	}

	snap := book.Snapshot()
	mid, spread, err := fees.QuoteInputs(snap)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("service: %w", err)
	}
	if mid < 1 || mid > 99 {
		return domain.Evaluation{}, fmt.Errorf("service: %s: mid %d¢ outside 1-99: %w", ticker, mid, domain.ErrNoMidPrice)
	}
	if s.cfg.SpreadOverrideCents > 0 {
		spread = s.cfg.SpreadOverrideCents
	}

	eval := domain.Evaluation{
		Ticker:      ticker,
		Snapshot:    snap,
		Decision:    fees.ShouldQuoteMarket(spread, s.cfg.Contracts, mid, s.cfg.MinProfitCents, s.cfg.AsMaker),
		Contracts:   s.cfg.Contracts,
		MidCents:    mid,
		SpreadCents: spread,
		AsMaker:     s.cfg.AsMaker,
		FromTop:     fromTop,
		EvaluatedAt: s.now(),
	}

	s.record(ctx, &eval)

	s.logger.InfoContext(ctx, "market evaluated",
		slog.String("ticker", ticker),
		slog.Int("mid", mid),
		slog.Int("spread", spread),
		slog.Bool("should_quote", eval.Decision.ShouldQuote),
		slog.Float64("net_profit_cents", eval.Decision.Analysis.NetProfitCents),
		slog.String("reason", eval.Decision.Reason),
	)

	if eval.Decision.ShouldQuote {
		s.notify(ctx, notify.EventQuoteOpportunity,
			"Quote opportunity: "+ticker, SummarizeEvaluation(eval))
	}
	return eval, nil
}

// record persists and publishes the evaluation. Failures are logged; the
// decision itself stands.
func (s *QuoteService) record(ctx context.Context, eval *domain.Evaluation) {
	if s.decisions != nil {
		id, err := s.decisions.Insert(ctx, domain.DecisionRecord{
			Ticker:      eval.Ticker,
			Contracts:   eval.Contracts,
			MidPrice:    float64(eval.MidCents),
			SpreadCents: eval.SpreadCents,
			AsMaker:     eval.AsMaker,
			Decision:    eval.Decision,
			CreatedAt:   eval.EvaluatedAt,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "decision store failed",
				slog.String("ticker", eval.Ticker),
				slog.String("error", err.Error()),
			)
		} else {
			eval.DecisionID = &id
		}
	}

	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal evaluation failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, DecisionChannel(eval.Ticker), payload); err != nil {
		s.logger.WarnContext(ctx, "publish decision failed",
			slog.String("ticker", eval.Ticker),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, DecisionStream, payload); err != nil {
		s.logger.WarnContext(ctx, "stream decision failed",
			slog.String("ticker", eval.Ticker),
			slog.String("error", err.Error()),
		)
	}
}

// RequiredCollateralCents is the cash both maker orders tie up: the YES bid
// plus the NO bid at 100 minus the ask, per contract.
func RequiredCollateralCents(eval domain.Evaluation) int64 {
	d := eval.Decision
	perContract := d.RecommendedBid + (100 - d.RecommendedAsk)
	return int64(perContract) * int64(eval.Contracts)
}

// Execute places the quote described by eval: a YES buy at the recommended
// bid and a NO buy at 100 minus the recommended ask. If the second leg
// fails the first is canceled.
func (s *QuoteService) Execute(ctx context.Context, eval domain.Evaluation) (domain.QuotePlacement, error) {
	ticker := eval.Ticker
	if !eval.Decision.ShouldQuote {
		return domain.QuotePlacement{}, fmt.Errorf("service: execute %s: %w", ticker, domain.ErrNotQuotable)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, ticker, s.cfg.LockTTL)
		if err != nil {
			return domain.QuotePlacement{}, fmt.Errorf("service: execute %s: %w", ticker, err)
		}
		defer unlock()
	}

	required := RequiredCollateralCents(eval)
	bal, err := s.exchange.GetBalance(ctx)
	if err != nil {
		return domain.QuotePlacement{}, fmt.Errorf("service: execute %s: balance: %w", ticker, err)
	}
	if bal.BalanceCents < required {
		return domain.QuotePlacement{}, fmt.Errorf("service: execute %s: need %d¢, have %d¢: %w",
			ticker, required, bal.BalanceCents, domain.ErrInsufficientFund)
	}

	bidOrder := domain.Order{
		ClientOrderID: uuid.NewString(),
		Ticker:        ticker,
		Side:          domain.ContractSideYes,
		Action:        domain.OrderActionBuy,
		Count:         eval.Contracts,
		PriceCents:    eval.Decision.RecommendedBid,
	}
	askOrder := domain.Order{
		ClientOrderID: uuid.NewString(),
		Ticker:        ticker,
		Side:          domain.ContractSideNo,
		Action:        domain.OrderActionBuy,
		Count:         eval.Contracts,
		PriceCents:    100 - eval.Decision.RecommendedAsk,
	}

	bid, err := s.place(ctx, eval, bidOrder)
	if err != nil {
		s.notify(ctx, notify.EventQuoteFailed, "Quote failed: "+ticker, err.Error())
		return domain.QuotePlacement{}, err
	}
	ask, err := s.place(ctx, eval, askOrder)
	if err != nil {
		s.unwind(ctx, bidOrder, bid)
		s.notify(ctx, notify.EventQuoteFailed, "Quote failed: "+ticker, err.Error())
		return domain.QuotePlacement{Ticker: ticker, Bid: bid}, err
	}

	placement := domain.QuotePlacement{Ticker: ticker, Bid: bid, Ask: ask}
	s.auditLog(ctx, "quote.placed", map[string]any{
		"ticker":       ticker,
		"bid_order_id": bid.OrderID,
		"ask_order_id": ask.OrderID,
		"bid":          eval.Decision.RecommendedBid,
		"ask":          eval.Decision.RecommendedAsk,
		"contracts":    eval.Contracts,
		"decision_id":  eval.DecisionID,
	})
	s.logger.InfoContext(ctx, "quote placed",
		slog.String("ticker", ticker),
		slog.String("bid_order_id", bid.OrderID),
		slog.String("ask_order_id", ask.OrderID),
		slog.Int("bid", eval.Decision.RecommendedBid),
		slog.Int("ask", eval.Decision.RecommendedAsk),
	)
	s.notify(ctx, notify.EventQuotePlaced, "Quote placed: "+ticker, fmt.Sprintf(
		"Bid %d¢ / Ask %d¢ x %d\nExpected net: %.2f¢",
		eval.Decision.RecommendedBid, eval.Decision.RecommendedAsk, eval.Contracts,
		eval.Decision.Analysis.NetProfitCents,
	))
	return placement, nil
}

func (s *QuoteService) place(ctx context.Context, eval domain.Evaluation, order domain.Order) (domain.OrderResult, error) {
	res, err := s.exchange.PlaceOrder(ctx, order, s.cfg.PostOnly)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("service: place %s %s @%d¢: %w", order.Ticker, order.Side, order.PriceCents, err)
	}
	if res.ClientOrderID == "" {
		res.ClientOrderID = order.ClientOrderID
	}

	if s.orders != nil {
		rec := domain.QuoteOrderRecord{
			ClientOrderID: order.ClientOrderID,
			OrderID:       res.OrderID,
			DecisionID:    eval.DecisionID,
			Ticker:        order.Ticker,
			Side:          order.Side,
			Action:        order.Action,
			PriceCents:    order.PriceCents,
			Count:         order.Count,
			Status:        res.Status,
			CreatedAt:     s.now(),
		}
		if err := s.orders.Create(ctx, rec); err != nil {
			s.logger.WarnContext(ctx, "order store failed",
				slog.String("client_order_id", order.ClientOrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

// unwind cancels a leg whose partner could not be placed.
func (s *QuoteService) unwind(ctx context.Context, order domain.Order, res domain.OrderResult) {
	if err := s.exchange.CancelOrder(ctx, res.OrderID); err != nil {
		s.logger.ErrorContext(ctx, "cancel of orphaned leg failed",
			slog.String("ticker", order.Ticker),
			slog.String("order_id", res.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.orders != nil {
		if err := s.orders.UpdateStatus(ctx, order.ClientOrderID, "canceled"); err != nil {
			s.logger.WarnContext(ctx, "order status update failed",
				slog.String("client_order_id", order.ClientOrderID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.auditLog(ctx, "quote.unwound", map[string]any{
		"ticker":   order.Ticker,
		"order_id": res.OrderID,
	})
}

func (s *QuoteService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *QuoteService) notify(ctx context.Context, event, title, message string) {
	if !s.notifier.Enabled() {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// SummarizeEvaluation renders a short multi-line summary for alerts and
// terminal output.
func SummarizeEvaluation(eval domain.Evaluation) string {
	d := eval.Decision
	msg := fmt.Sprintf("Mid %d¢, spread %d¢, %d contracts (%s)\n%s",
		eval.MidCents, eval.SpreadCents, eval.Contracts, makerLabel(eval.AsMaker), d.Reason)
	if d.ShouldQuote {
		msg += fmt.Sprintf("\nQuote: bid %d¢ / ask %d¢", d.RecommendedBid, d.RecommendedAsk)
	}
	if eval.FromTop {
		msg += "\n(top of book only)"
	}
	return msg
}

func makerLabel(asMaker bool) string {
	if asMaker {
		return "maker"
	}
	return "taker"
}
