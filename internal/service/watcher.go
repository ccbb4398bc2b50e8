package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// Result is one watcher pass over a ticker. Err is set when the market could
// not be evaluated.
type Result struct {
	Evaluation domain.Evaluation
	Err        error
}

// Watcher re-evaluates a fixed set of tickers on an interval.
type Watcher struct {
	quotes   *QuoteService
	tickers  []string
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(quotes *QuoteService, tickers []string, interval time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		quotes:   quotes,
		tickers:  tickers,
		interval: interval,
		logger:   logger.With(slog.String("component", "watcher")),
	}
}

// Run evaluates every ticker immediately and then once per interval until
// ctx is done, handing every result to onEval. Evaluation errors are logged
// and the loop carries on. Run returns ctx.Err().
func (w *Watcher) Run(ctx context.Context, onEval func(ticker string, res Result)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.tick(ctx, onEval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) tick(ctx context.Context, onEval func(string, Result)) {
	for _, t := range w.tickers {
		if ctx.Err() != nil {
			return
		}
		eval, err := w.quotes.Evaluate(ctx, t)
		if err != nil {
			w.logger.WarnContext(ctx, "evaluation failed",
				slog.String("ticker", t),
				slog.String("error", err.Error()),
			)
		}
		onEval(t, Result{Evaluation: eval, Err: err})
	}
}
