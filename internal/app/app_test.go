package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alicebob/miniredis/v2"

	s3blob "github.com/alanyoungcy/kalshimm/internal/blob/s3"
	"github.com/alanyoungcy/kalshimm/internal/cache/redis"
	"github.com/alanyoungcy/kalshimm/internal/config"
	"github.com/alanyoungcy/kalshimm/internal/crypto"
	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/notify"
	"github.com/alanyoungcy/kalshimm/internal/server"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubExchange struct {
	mu     sync.Mutex
	books  map[string]domain.RawOrderbook
	placed []domain.Order
}

func newStubExchange() *stubExchange {
	return &stubExchange{books: map[string]domain.RawOrderbook{
		// YES bid 40, YES ask 60 (NO bid 40): mid 50, spread 20.
		"KXWIDE": {
			Yes: []domain.RawLevel{{40, 100}},
			No:  []domain.RawLevel{{40, 100}},
		},
		"KXEMPTY": {Yes: []domain.RawLevel{}, No: []domain.RawLevel{}},
	}}
}

func (s *stubExchange) GetMarkets(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	return []domain.Market{{Ticker: "KXWIDE"}, {Ticker: "KXEMPTY"}}, nil
}

func (s *stubExchange) GetOrderbook(_ context.Context, ticker string, _ int) (domain.RawOrderbook, error) {
	raw, ok := s.books[ticker]
	if !ok {
		return domain.RawOrderbook{}, fmt.Errorf("kalshi: %s: %w", ticker, domain.ErrNotFound)
	}
	return raw, nil
}

func (s *stubExchange) TopOfBook(context.Context, string) (domain.TopOfBook, error) {
	return domain.TopOfBook{}, domain.ErrNotFound
}

func (s *stubExchange) PlaceOrder(_ context.Context, o domain.Order, _ bool) (domain.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placed = append(s.placed, o)
	return domain.OrderResult{OrderID: fmt.Sprintf("ord-%d", len(s.placed)), ClientOrderID: o.ClientOrderID, Status: "resting"}, nil
}

func (s *stubExchange) CancelOrder(context.Context, string) error { return nil }

func (s *stubExchange) GetBalance(context.Context) (domain.Balance, error) {
	return domain.Balance{BalanceCents: 1_000_000}, nil
}

// memBlob is an in-memory object store.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	mod     map[string]time.Time
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, mod: map[string]time.Time{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = buf
	m.mod[path] = time.Now()
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memBlob) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, buf := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(buf)), LastModified: m.mod[p]})
		}
	}
	return out, nil
}

func (m *memBlob) keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func testConfig(mode string, tickers ...string) *config.Config {
	cfg := config.Defaults()
	cfg.Mode = mode
	cfg.Quoting.Tickers = tickers
	return &cfg
}

func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	a := New(cfg, discardLogger())
	var out bytes.Buffer
	a.SetOutput(&out)
	return a, &out
}

func baseDeps(ex *stubExchange) *Dependencies {
	return &Dependencies{
		Exchange: ex,
		Notifier: notify.NewNotifier(nil, nil, discardLogger()),
	}
}

func TestAnalyzeMode(t *testing.T) {
	a, out := newTestApp(testConfig("analyze", "KXWIDE", "KXEMPTY", "KXGONE"))

	err := a.AnalyzeMode(context.Background(), baseDeps(newStubExchange()))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for KXGONE", err)
	}
	if strings.Contains(err.Error(), "KXEMPTY") {
		t.Errorf("empty book should be reported, not returned: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Profitability Analysis",
		"Fee Calculation:",
		"Quote: bid 40¢ / ask 60¢",
		"KXEMPTY: not quotable",
		"KXGONE:",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestScanModeArchivesReport(t *testing.T) {
	a, out := newTestApp(testConfig("scan"))
	blob := newMemBlob()
	deps := baseDeps(newStubExchange())
	deps.Archiver = s3blob.NewArchiver(blob, blob, nil)

	if err := a.ScanMode(context.Background(), deps); err != nil {
		t.Fatalf("ScanMode: %v", err)
	}
	if !strings.Contains(out.String(), "2 markets, 1 quotable, 1 failed") {
		t.Errorf("unexpected report:\n%s", out.String())
	}
	if keys := blob.keys("reports/scan/"); len(keys) != 1 {
		t.Errorf("archived scans = %v, want 1", keys)
	}
}

func TestQuoteModePlacesBothLegs(t *testing.T) {
	cfg := testConfig("quote", "KXWIDE")
	cfg.Quoting.AutoExecute = true
	a, out := newTestApp(cfg)
	ex := newStubExchange()

	if err := a.QuoteMode(context.Background(), baseDeps(ex)); err != nil {
		t.Fatalf("QuoteMode: %v", err)
	}
	if len(ex.placed) != 2 {
		t.Fatalf("placed %d orders, want 2", len(ex.placed))
	}
	yes, no := ex.placed[0], ex.placed[1]
	if yes.Side != domain.ContractSideYes || yes.PriceCents != 40 {
		t.Errorf("bid leg = %+v", yes)
	}
	if no.Side != domain.ContractSideNo || no.PriceCents != 40 {
		t.Errorf("ask leg = %+v, want NO buy at 40", no)
	}
	if !strings.Contains(out.String(), "placed KXWIDE") {
		t.Errorf("output missing placement:\n%s", out.String())
	}
}

func TestQuoteModeDryRun(t *testing.T) {
	a, _ := newTestApp(testConfig("quote", "KXWIDE"))
	ex := newStubExchange()
	if err := a.QuoteMode(context.Background(), baseDeps(ex)); err != nil {
		t.Fatalf("QuoteMode: %v", err)
	}
	if len(ex.placed) != 0 {
		t.Errorf("placed %d orders with auto_execute off", len(ex.placed))
	}
}

func TestWatchModeArchivesOnExit(t *testing.T) {
	cfg := testConfig("watch", "KXWIDE")
	cfg.Quoting.Interval.Duration = 10 * time.Millisecond
	a, out := newTestApp(cfg)
	blob := newMemBlob()
	deps := baseDeps(newStubExchange())
	deps.Archiver = s3blob.NewArchiver(blob, blob, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := a.WatchMode(ctx, deps); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WatchMode err = %v", err)
	}
	if !strings.Contains(out.String(), "KXWIDE: QUOTE 40/60") {
		t.Errorf("output missing decision line:\n%s", out.String())
	}
	if keys := blob.keys("reports/watch/KXWIDE/"); len(keys) != 1 {
		t.Errorf("archived watch logs = %v, want 1", keys)
	}
}

func TestReportMode(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	ex := newStubExchange()
	blob := newMemBlob()
	deps := baseDeps(ex)
	deps.SignalBus = redis.NewSignalBus(rc)
	deps.Archiver = s3blob.NewArchiver(blob, blob, nil)

	// A scan run leaves a report in the bucket and decisions on the stream.
	scanApp, _ := newTestApp(testConfig("scan"))
	if err := scanApp.ScanMode(context.Background(), deps); err != nil {
		t.Fatalf("ScanMode: %v", err)
	}

	a, out := newTestApp(testConfig("report"))
	if err := a.ReportMode(context.Background(), deps); err != nil {
		t.Fatalf("ReportMode: %v", err)
	}
	got := out.String()
	for _, want := range []string{"latest archived scan: reports/scan/", "1 decisions in the last", "KXWIDE"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestReportModeEmptyBucket(t *testing.T) {
	blob := newMemBlob()
	deps := baseDeps(newStubExchange())
	deps.Archiver = s3blob.NewArchiver(blob, blob, nil)

	a, out := newTestApp(testConfig("report"))
	if err := a.ReportMode(context.Background(), deps); err != nil {
		t.Fatalf("ReportMode: %v", err)
	}
	if !strings.Contains(out.String(), "no archived scans") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEncryptKeyModeRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	dir := t.TempDir()
	cfg := testConfig("encrypt-key")
	cfg.Kalshi.RsaPrivateKeyPath = filepath.Join(dir, "key.pem")
	cfg.Kalshi.EncryptedKeyPath = filepath.Join(dir, "key.enc.json")
	cfg.Kalshi.KeyPassword = "hunter2"
	if err := os.WriteFile(cfg.Kalshi.RsaPrivateKeyPath, pemBytes, 0o600); err != nil {
		t.Fatal(err)
	}

	a, _ := newTestApp(cfg)
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer a.Close()

	got, err := crypto.LoadKey(crypto.KeyConfig{
		EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
		KeyPassword:      "hunter2",
	})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if !bytes.Equal(got, pemBytes) {
		t.Error("decrypted key differs from the original")
	}
}

func TestNeedsS3(t *testing.T) {
	cfg := testConfig("analyze")
	cfg.S3.Enabled = true
	if needsS3(cfg) {
		t.Error("analyze should not need s3")
	}
	cfg.Mode = "watch"
	if !needsS3(cfg) {
		t.Error("watch with s3 enabled should need s3")
	}
	cfg.S3.Enabled = false
	if needsS3(cfg) {
		t.Error("disabled s3 should never be needed")
	}
}

func TestQuoteConfigFromSettings(t *testing.T) {
	cfg := testConfig("scan")
	cfg.Quoting.SpreadOverrideCents = 6
	cfg.Kalshi.OrderbookDepth = 3
	qc := quoteConfig(cfg)
	if qc.Contracts != 100 || qc.SpreadOverrideCents != 6 || qc.OrderbookDepth != 3 || qc.LockTTL != 30*time.Second {
		t.Errorf("quoteConfig = %+v", qc)
	}
}

func TestServeHandlers(t *testing.T) {
	cfg := testConfig("serve")
	cfg.Server.APIKey = "k"
	cfg.Server.AllowExecute = true
	a, _ := newTestApp(cfg)
	ex := newStubExchange()

	h := server.NewHandler(a.serverConfig(), a.newHandlers(baseDeps(ex)), nil, discardLogger())

	get := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("X-API-Key", "k")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := get("GET", "/api/markets/KXWIDE/evaluation")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"should_quote":true`) {
		t.Fatalf("evaluation: %d %s", rec.Code, rec.Body.String())
	}
	if rec := get("GET", "/api/markets/KXEMPTY/evaluation"); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty book status = %d, want 422", rec.Code)
	}
	if rec := get("POST", "/api/markets/KXWIDE/quote"); rec.Code != http.StatusCreated {
		t.Fatalf("quote: %d %s", rec.Code, rec.Body.String())
	}
	if len(ex.placed) != 2 {
		t.Errorf("placed %d orders, want 2", len(ex.placed))
	}
	// Nothing archived or streamed is wired.
	for _, target := range []string{"/api/scans/latest", "/api/decisions", "/api/audit"} {
		if rec := get("GET", target); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestServeModeStopsOnCancel(t *testing.T) {
	cfg := testConfig("serve")
	cfg.Server.Port = 0
	a, _ := newTestApp(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := a.ServeMode(ctx, baseDeps(newStubExchange()))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ServeMode = %v, want deadline exceeded", err)
	}
}
