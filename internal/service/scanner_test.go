package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

func scanExchange() *fakeExchange {
	ex := newFakeExchange()
	ex.markets = []domain.Market{
		{Ticker: "TIGHT", Title: "tight"},
		{Ticker: "WIDE", Title: "wide"},
		{Ticker: "MEDIUM", Title: "medium"},
		{Ticker: "BROKEN", Title: "broken"},
	}
	ex.books["TIGHT"] = book([][2]int{{49, 10}}, [][2]int{{50, 10}})
	ex.books["WIDE"] = book([][2]int{{40, 10}}, [][2]int{{50, 10}})
	ex.books["MEDIUM"] = book([][2]int{{48, 10}}, [][2]int{{50, 10}})
	ex.books["BROKEN"] = book(nil, nil)
	return ex
}

func TestScanRanksByNetProfit(t *testing.T) {
	ex := scanExchange()
	archiver := &fakeArchiver{}
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{Concurrency: 3}, discardLogger()).
		WithArchiver(archiver)

	report, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var order []string
	for _, r := range report.Results {
		order = append(order, r.Ticker)
	}
	if got := strings.Join(order, ","); got != "WIDE,MEDIUM,TIGHT,BROKEN" {
		t.Errorf("rank order = %s", got)
	}
	if report.Quotable != 2 || report.Failed != 1 {
		t.Errorf("quotable %d failed %d, want 2 1", report.Quotable, report.Failed)
	}
	last := report.Results[3]
	if last.Evaluation != nil || !strings.Contains(last.Error, "empty") {
		t.Errorf("broken result = %+v", last)
	}
	if report.Results[0].Title != "wide" {
		t.Errorf("title not carried: %+v", report.Results[0])
	}
	if len(archiver.reports) != 1 || report.Path == "" {
		t.Errorf("report not archived: %d, path %q", len(archiver.reports), report.Path)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}
}

func TestScanConfiguredTickersSkipListing(t *testing.T) {
	ex := scanExchange()
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{Tickers: []string{"MEDIUM"}}, discardLogger())

	report, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if ex.marketCalls != 0 {
		t.Errorf("GetMarkets called %d times, want 0", ex.marketCalls)
	}
	if len(report.Results) != 1 || report.Results[0].Ticker != "MEDIUM" {
		t.Errorf("results = %+v", report.Results)
	}
}

func TestScanUsesMarketCache(t *testing.T) {
	ex := scanExchange()
	cache := &fakeMarketCache{}
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{Concurrency: 2, MarketCacheTTL: time.Minute}, discardLogger()).
		WithMarketCache(cache)

	for i := 0; i < 2; i++ {
		if _, err := scanner.Scan(context.Background()); err != nil {
			t.Fatalf("Scan %d: %v", i, err)
		}
	}
	if ex.marketCalls != 1 || cache.sets != 1 {
		t.Errorf("exchange listings %d cache sets %d, want 1 1", ex.marketCalls, cache.sets)
	}
}

func TestScanArchiveFailureIsNotFatal(t *testing.T) {
	ex := scanExchange()
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{}, discardLogger()).
		WithArchiver(&fakeArchiver{err: errBoom})

	if _, err := scanner.Scan(context.Background()); err != nil {
		t.Fatalf("Scan: %v", err)
	}
}

func TestScanCanceled(t *testing.T) {
	ex := scanExchange()
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{Tickers: []string{"BROKEN"}}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scanner.Scan(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExecuteQuotable(t *testing.T) {
	ex := scanExchange()
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	scanner := NewScanner(quotes, ex, ScanConfig{Concurrency: 4}, discardLogger())

	report, err := scanner.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	placements, err := quotes.ExecuteQuotable(context.Background(), report)
	if err != nil {
		t.Fatalf("ExecuteQuotable: %v", err)
	}
	if len(placements) != 2 || placements[0].Ticker != "WIDE" {
		t.Errorf("placements = %+v", placements)
	}
	if len(ex.placed) != 4 {
		t.Errorf("placed %d orders, want 4", len(ex.placed))
	}
}

func TestExecuteQuotableJoinsFailures(t *testing.T) {
	ex := scanExchange()
	quotes := NewQuoteService(ex, testConfig(), discardLogger())
	report, err := NewScanner(quotes, ex, ScanConfig{}, discardLogger()).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	ex.balance = 0

	placements, err := quotes.ExecuteQuotable(context.Background(), report)
	if len(placements) != 0 || !errors.Is(err, domain.ErrInsufficientFund) {
		t.Errorf("placements %d, error %v", len(placements), err)
	}
}

func TestTopQuotable(t *testing.T) {
	report := domain.ScanReport{Results: []domain.ScanResult{
		{Ticker: "A", Evaluation: &domain.Evaluation{Decision: domain.QuoteDecision{ShouldQuote: true, RecommendedBid: 40, RecommendedAsk: 50}}},
		{Ticker: "B", Evaluation: &domain.Evaluation{}},
		{Ticker: "C", Error: "x"},
	}}
	got := topQuotable(report, 5)
	if !strings.HasPrefix(got, "A  40/50") || strings.Contains(got, "B") {
		t.Errorf("topQuotable = %q", got)
	}
}
