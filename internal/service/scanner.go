package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/notify"
)

// ReportArchiver stores finished scan reports.
type ReportArchiver interface {
	ArchiveScan(ctx context.Context, report *domain.ScanReport) (string, error)
}

// ScanConfig selects the markets a scan covers. Tickers wins over Filter.
type ScanConfig struct {
	Tickers        []string
	Filter         domain.MarketFilter
	Concurrency    int
	MarketCacheTTL time.Duration
}

// Scanner evaluates many markets concurrently and ranks them by expected
// net profit.
type Scanner struct {
	quotes   *QuoteService
	exchange Exchange
	cache    domain.MarketCache
	archiver ReportArchiver
	notifier *notify.Notifier
	cfg      ScanConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewScanner creates a Scanner that evaluates through quotes.
func NewScanner(quotes *QuoteService, exchange Exchange, cfg ScanConfig, logger *slog.Logger) *Scanner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scanner{
		quotes:   quotes,
		exchange: exchange,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scanner")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithMarketCache caches market listings between scans.
func (s *Scanner) WithMarketCache(cache domain.MarketCache) *Scanner {
	s.cache = cache
	return s
}

// WithArchiver uploads every finished report.
func (s *Scanner) WithArchiver(a ReportArchiver) *Scanner {
	s.archiver = a
	return s
}

// WithNotifier sends a summary when a scan finds quotable markets.
func (s *Scanner) WithNotifier(n *notify.Notifier) *Scanner {
	s.notifier = n
	return s
}

// Scan evaluates every selected market. Per-market failures are recorded in
// the result rather than failing the scan; only listing errors and context
// cancellation abort it.
func (s *Scanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	report := domain.ScanReport{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
		Contracts: s.quotes.cfg.Contracts,
		AsMaker:   s.quotes.cfg.AsMaker,
	}

	results, err := s.targets(ctx)
	if err != nil {
		return report, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range results {
		g.Go(func() error {
			eval, err := s.quotes.Evaluate(gctx, results[i].Ticker)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i].Error = err.Error()
				return nil
			}
			results[i].Evaluation = &eval
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("service: scan: %w", err)
	}

	rankResults(results)
	report.Results = results
	report.FinishedAt = s.now()
	for _, r := range results {
		switch {
		case r.Evaluation == nil:
			report.Failed++
		case r.Evaluation.Decision.ShouldQuote:
			report.Quotable++
		}
	}

	s.logger.InfoContext(ctx, "scan complete",
		slog.String("report_id", report.ID),
		slog.Int("markets", len(results)),
		slog.Int("quotable", report.Quotable),
		slog.Int("failed", report.Failed),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	if s.archiver != nil {
		if _, err := s.archiver.ArchiveScan(ctx, &report); err != nil {
			s.logger.WarnContext(ctx, "scan archive failed",
				slog.String("report_id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if report.Quotable > 0 && s.notifier.Enabled() {
		if err := s.notifier.Notify(ctx, notify.EventScanComplete,
			fmt.Sprintf("Scan: %d quotable of %d", report.Quotable, len(results)),
			topQuotable(report, 5)); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// targets returns one empty result per market to evaluate.
func (s *Scanner) targets(ctx context.Context) ([]domain.ScanResult, error) {
	if len(s.cfg.Tickers) > 0 {
		out := make([]domain.ScanResult, len(s.cfg.Tickers))
		for i, t := range s.cfg.Tickers {
			out[i].Ticker = t
		}
		return out, nil
	}

	markets, err := s.listMarkets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ScanResult, len(markets))
	for i, m := range markets {
		out[i] = domain.ScanResult{Ticker: m.Ticker, Title: m.Title}
	}
	return out, nil
}

func (s *Scanner) listMarkets(ctx context.Context) ([]domain.Market, error) {
	useCache := s.cache != nil && s.cfg.MarketCacheTTL > 0
	if useCache {
		markets, err := s.cache.GetList(ctx, s.cfg.Filter)
		if err == nil {
			return markets, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market cache read failed", slog.String("error", err.Error()))
		}
	}

	markets, err := s.exchange.GetMarkets(ctx, s.cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	if useCache {
		if err := s.cache.SetList(ctx, s.cfg.Filter, markets, s.cfg.MarketCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "market cache write failed", slog.String("error", err.Error()))
		}
	}
	return markets, nil
}

// rankResults orders evaluated markets by expected net profit, best first,
// with failures last. Ties keep listing order.
func rankResults(results []domain.ScanResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Evaluation == nil) != (b.Evaluation == nil) {
			return a.Evaluation != nil
		}
		return a.NetProfitCents() > b.NetProfitCents()
	})
}

func topQuotable(report domain.ScanReport, n int) string {
	var lines []string
	for _, r := range report.Results {
		if len(lines) == n {
			break
		}
		if r.Evaluation == nil || !r.Evaluation.Decision.ShouldQuote {
			continue
		}
		d := r.Evaluation.Decision
		lines = append(lines, fmt.Sprintf("%s  %d/%d  net %.2f¢",
			r.Ticker, d.RecommendedBid, d.RecommendedAsk, d.Analysis.NetProfitCents))
	}
	return strings.Join(lines, "\n")
}

// ExecuteQuotable places quotes for every quotable market in the report, in
// rank order. A failure on one market does not stop the others; all
// failures are joined into the returned error.
func (s *QuoteService) ExecuteQuotable(ctx context.Context, report domain.ScanReport) ([]domain.QuotePlacement, error) {
	var placements []domain.QuotePlacement
	var errs []error
	for _, r := range report.Results {
		if r.Evaluation == nil || !r.Evaluation.Decision.ShouldQuote {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		p, err := s.Execute(ctx, *r.Evaluation)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		placements = append(placements, p)
	}
	return placements, errors.Join(errs...)
}
