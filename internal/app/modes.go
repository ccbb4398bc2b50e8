package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshimm/internal/crypto"
	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/fees"
	"github.com/alanyoungcy/kalshimm/internal/orderbook"
	"github.com/alanyoungcy/kalshimm/internal/server"
	"github.com/alanyoungcy/kalshimm/internal/server/handler"
	"github.com/alanyoungcy/kalshimm/internal/service"
)

const (
	// bookLevels is how many price levels analyze prints per side.
	bookLevels = 5
	// reportLookback bounds how far back report mode reads the decision
	// stream.
	reportLookback = 24 * time.Hour
	reportLimit    = 20
	// archiveTimeout bounds the upload watch mode does after its context
	// is already cancelled.
	archiveTimeout = 30 * time.Second
	// shutdownTimeout bounds how long serve mode waits for in-flight
	// requests.
	shutdownTimeout = 10 * time.Second
)

// AnalyzeMode prints the book and the quote decision of every configured
// ticker once. A book that cannot be quoted is reported and skipped; fetch
// failures are joined into the returned error.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode", slog.Int("tickers", len(a.cfg.Quoting.Tickers)))

	quotes := a.newQuoteService(deps)

	var errs []error
	for _, ticker := range a.cfg.Quoting.Tickers {
		book, err := quotes.Book(ctx, ticker)
		if err != nil {
			fmt.Fprintf(a.out, "%s: %v\n\n", ticker, err)
			errs = append(errs, fmt.Errorf("%s: %w", ticker, err))
			continue
		}
		fmt.Fprintln(a.out, orderbook.Format(book, bookLevels))

		eval, err := quotes.EvaluateBook(ctx, book)
		if err != nil {
			fmt.Fprintf(a.out, "%s: not quotable: %v\n\n", ticker, err)
			continue
		}
		a.printEvaluation(eval)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}
	return nil
}

// ScanMode ranks the selected markets by expected net profit, once or on
// every interval.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode", slog.Duration("interval", a.cfg.Quoting.Interval.Duration))

	scanner := a.newScanner(deps, a.newQuoteService(deps))
	return a.repeat(ctx, "scan", func(ctx context.Context) error {
		report, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}
		a.printScanReport(report)
		return nil
	})
}

// QuoteMode scans like ScanMode and, when auto_execute is set, places the
// two maker orders on every quotable market.
func (a *App) QuoteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting quote mode",
		slog.Bool("auto_execute", a.cfg.Quoting.AutoExecute),
		slog.Bool("post_only", a.cfg.Quoting.PostOnly),
	)
	if !a.cfg.Quoting.AutoExecute {
		a.logger.WarnContext(ctx, "quoting.auto_execute is false, orders will not be placed")
	}

	quotes := a.newQuoteService(deps)
	scanner := a.newScanner(deps, quotes)
	return a.repeat(ctx, "quote", func(ctx context.Context) error {
		report, err := scanner.Scan(ctx)
		if err != nil {
			return err
		}
		a.printScanReport(report)
		if !a.cfg.Quoting.AutoExecute || report.Quotable == 0 {
			return nil
		}

		placements, err := quotes.ExecuteQuotable(ctx, report)
		for _, p := range placements {
			fmt.Fprintf(a.out, "placed %s: bid %s (%s), ask %s (%s)\n",
				p.Ticker, p.Bid.OrderID, p.Bid.Status, p.Ask.OrderID, p.Ask.Status)
		}
		if err != nil {
			// Individual markets failing is not fatal to the loop.
			a.logger.WarnContext(ctx, "some quotes were not placed", slog.String("error", err.Error()))
		}
		return nil
	})
}

// WatchMode re-evaluates the configured tickers on every interval and
// prints each decision. On shutdown the collected evaluations are archived
// per ticker when object storage is configured.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode",
		slog.Int("tickers", len(a.cfg.Quoting.Tickers)),
		slog.Duration("interval", a.cfg.Quoting.Interval.Duration),
	)

	quotes := a.newQuoteService(deps)
	watcher := service.NewWatcher(quotes, a.cfg.Quoting.Tickers, a.cfg.Quoting.Interval.Duration, a.logger)

	history := make(map[string][]domain.Evaluation)
	err := watcher.Run(ctx, func(ticker string, res service.Result) {
		if res.Err != nil {
			fmt.Fprintf(a.out, "[%s] %s: %v\n", time.Now().UTC().Format(time.TimeOnly), ticker, res.Err)
			return
		}
		history[ticker] = append(history[ticker], res.Evaluation)
		fmt.Fprintf(a.out, "[%s] %s: %s\n", res.Evaluation.EvaluatedAt.Format(time.TimeOnly),
			ticker, quoteLabel(res.Evaluation.Decision))
	})

	if deps.Archiver != nil {
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
		defer cancel()
		for ticker, evals := range history {
			path, aerr := deps.Archiver.ArchiveEvaluations(archiveCtx, ticker, evals)
			if aerr != nil {
				a.logger.ErrorContext(archiveCtx, "archive evaluations failed",
					slog.String("ticker", ticker),
					slog.String("error", aerr.Error()),
				)
				continue
			}
			a.logger.InfoContext(archiveCtx, "evaluations archived",
				slog.String("ticker", ticker),
				slog.String("path", path),
				slog.Int("count", len(evals)),
			)
		}
	}
	return err
}

// ReportMode prints what earlier runs left behind: the latest archived scan,
// recent decisions from the redis stream and the per-ticker history in
// postgres. With a positive interval it then follows live decisions until
// the context is cancelled.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting report mode")

	if deps.Archiver != nil {
		report, err := deps.Archiver.LatestScan(ctx)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			fmt.Fprintln(a.out, "no archived scans")
		case err != nil:
			return fmt.Errorf("report mode: latest scan: %w", err)
		default:
			fmt.Fprintf(a.out, "latest archived scan: %s\n", report.Path)
			a.printScanReport(report)
		}
	}

	if deps.Decisions != nil || deps.Orders != nil {
		if err := a.printHistory(ctx, deps); err != nil {
			return fmt.Errorf("report mode: %w", err)
		}
	}

	if deps.SignalBus == nil {
		return nil
	}
	feed := service.NewDecisionFeed(deps.SignalBus, a.logger)
	recent, err := feed.Since(ctx, time.Now().Add(-reportLookback), 100)
	if err != nil {
		return fmt.Errorf("report mode: %w", err)
	}
	fmt.Fprintf(a.out, "\n%d decisions in the last %s\n", len(recent), reportLookback)
	for _, eval := range recent {
		a.printDecisionLine(eval)
	}

	if a.cfg.Quoting.Interval.Duration <= 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		live, err := feed.Follow(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "\nfollowing live decisions")
		for eval := range live {
			a.printDecisionLine(eval)
		}
		return ctx.Err()
	})
	return g.Wait()
}

// ServeMode exposes the quoter over HTTP until the context is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("allow_execute", a.cfg.Server.AllowExecute),
	)

	srv := server.NewServer(a.serverConfig(), a.newHandlers(deps), deps.RateLimiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	return ctx.Err()
}

func (a *App) serverConfig() server.Config {
	s := a.cfg.Server
	return server.Config{
		Port:               s.Port,
		CORSOrigins:        s.CORSOrigins,
		APIKey:             s.APIKey,
		RateLimitPerMinute: s.RateLimitPerMinute,
	}
}

// newHandlers builds the API handlers. Report sources are only passed when
// wired so that absent ones stay nil interfaces.
func (a *App) newHandlers(deps *Dependencies) server.Handlers {
	q := a.cfg.Quoting
	quotes := a.newQuoteService(deps)

	var (
		scans     handler.ScanSource
		feed      handler.DecisionSource
		decisions domain.DecisionStore
		audit     domain.AuditStore
	)
	if deps.Archiver != nil {
		scans = deps.Archiver
	}
	if deps.SignalBus != nil {
		feed = service.NewDecisionFeed(deps.SignalBus, a.logger)
	}
	if deps.Decisions != nil && deps.Audit != nil {
		decisions, audit = deps.Decisions, deps.Audit
	}

	return server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, q.Contracts, q.AsMaker),
		Fees:    handler.NewFeeHandler(q.AsMaker),
		Markets: handler.NewMarketHandler(quotes, deps.Exchange, a.cfg.Server.AllowExecute, a.logger),
		Reports: handler.NewReportHandler(scans, feed, decisions, audit, a.logger),
	}
}

// EncryptKeyMode encrypts the plaintext RSA key at rsa_private_key_path
// with key_password and writes it to encrypted_key_path.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	k := a.cfg.Kalshi
	pemBytes, err := os.ReadFile(k.RsaPrivateKeyPath)
	if err != nil {
		return fmt.Errorf("encrypt-key: read key: %w", err)
	}
	encrypted, err := crypto.EncryptKey(pemBytes, k.KeyPassword)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	if err := os.WriteFile(k.EncryptedKeyPath, encrypted, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: write: %w", err)
	}
	a.logger.InfoContext(ctx, "private key encrypted",
		slog.String("path", k.EncryptedKeyPath),
	)
	fmt.Fprintf(a.out, "encrypted key written to %s\n", k.EncryptedKeyPath)
	return nil
}

// repeat runs fn once, or on every configured interval until ctx is done.
// When repeating, a failed pass is logged and the next one still runs.
func (a *App) repeat(ctx context.Context, mode string, fn func(context.Context) error) error {
	interval := a.cfg.Quoting.Interval.Duration
	if interval <= 0 {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s mode: %w", mode, err)
		}
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.ErrorContext(ctx, "pass failed",
				slog.String("mode", mode),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) printHistory(ctx context.Context, deps *Dependencies) error {
	opts := domain.ListOpts{Limit: reportLimit}
	for _, ticker := range a.cfg.Quoting.Tickers {
		if deps.Decisions != nil {
			recs, err := deps.Decisions.ListByTicker(ctx, ticker, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n%s: %d recorded decisions\n", ticker, len(recs))
			for _, r := range recs {
				fmt.Fprintf(a.out, "  %s  mid %.2f  spread %d¢  %s\n",
					r.CreatedAt.Format(time.DateTime), r.MidPrice, r.SpreadCents, quoteLabel(r.Decision))
			}
		}
		if deps.Orders != nil {
			orders, err := deps.Orders.ListByTicker(ctx, ticker, opts)
			if err != nil {
				return err
			}
			for _, o := range orders {
				fmt.Fprintf(a.out, "  order %s  %s %s %d @ %d¢  %s\n",
					o.ClientOrderID, o.Action, o.Side, o.Count, o.PriceCents, o.Status)
			}
		}
	}

	if deps.Audit != nil {
		entries, err := deps.Audit.List(ctx, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "\nrecent audit events\n")
		for _, e := range entries {
			fmt.Fprintf(a.out, "  %s  %s\n", e.CreatedAt.Format(time.DateTime), e.Event)
		}
	}
	return nil
}

func (a *App) printEvaluation(eval domain.Evaluation) {
	d := eval.Decision
	fmt.Fprintln(a.out, fees.FormatFeeCalculation(d.Analysis.EntryFee))
	fmt.Fprintln(a.out, fees.FormatProfitabilityAnalysis(d.Analysis))
	fmt.Fprintln(a.out, service.SummarizeEvaluation(eval))
	fmt.Fprintf(a.out, "Breakeven spread:      %s\n", spreadOrNone(d.BreakevenSpread, d.BreakevenFound))
	fmt.Fprintf(a.out, "Min profitable spread: %s\n\n", spreadOrNone(d.MinProfitableSpread, d.ProfitableFound))
}

func (a *App) printScanReport(report domain.ScanReport) {
	fmt.Fprintf(a.out, "scan %s: %d markets, %d quotable, %d failed (%d contracts, %s)\n",
		report.StartedAt.Format(time.DateTime), len(report.Results), report.Quotable, report.Failed,
		report.Contracts, roleLabel(report.AsMaker))

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTICKER\tMID\tSPREAD\tNET¢\tDECISION")
	for i, r := range report.Results {
		if r.Evaluation == nil {
			fmt.Fprintf(tw, "%d\t%s\t-\t-\t-\terror: %s\n", i+1, r.Ticker, r.Error)
			continue
		}
		e := r.Evaluation
		fmt.Fprintf(tw, "%d\t%s\t%d¢\t%d¢\t%.2f\t%s\n",
			i+1, r.Ticker, e.MidCents, e.SpreadCents, r.NetProfitCents(), quoteLabel(e.Decision))
	}
	_ = tw.Flush()
	fmt.Fprintln(a.out)
}

func (a *App) printDecisionLine(eval domain.Evaluation) {
	fmt.Fprintf(a.out, "  %s  %-24s mid %d¢  spread %d¢  net %.2f¢  %s\n",
		eval.EvaluatedAt.Format(time.DateTime), eval.Ticker, eval.MidCents, eval.SpreadCents,
		eval.Decision.Analysis.NetProfitCents, quoteLabel(eval.Decision))
}

func quoteLabel(d domain.QuoteDecision) string {
	if d.ShouldQuote {
		return fmt.Sprintf("QUOTE %d/%d", d.RecommendedBid, d.RecommendedAsk)
	}
	return "skip"
}

func roleLabel(asMaker bool) string {
	if asMaker {
		return "maker"
	}
	return "taker"
}

func spreadOrNone(spread int, found bool) string {
	if !found {
		return "none below 50¢"
	}
	return fmt.Sprintf("%d¢", spread)
}
