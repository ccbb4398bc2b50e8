package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func book(yes, no [][2]int) domain.RawOrderbook {
	raw := domain.RawOrderbook{Yes: []domain.RawLevel{}, No: []domain.RawLevel{}}
	for _, l := range yes {
		raw.Yes = append(raw.Yes, domain.RawLevel{l[0], l[1]})
	}
	for _, l := range no {
		raw.No = append(raw.No, domain.RawLevel{l[0], l[1]})
	}
	return raw
}

type fakeExchange struct {
	mu          sync.Mutex
	books       map[string]domain.RawOrderbook
	bookErr     map[string]error
	tops        map[string]domain.TopOfBook
	markets     []domain.Market
	marketCalls int
	balance     int64
	placeErr    map[domain.ContractSide]error
	placed      []domain.Order
	canceled    []string
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		books:    map[string]domain.RawOrderbook{},
		bookErr:  map[string]error{},
		tops:     map[string]domain.TopOfBook{},
		placeErr: map[domain.ContractSide]error{},
		balance:  1_000_000,
	}
}

func (f *fakeExchange) GetMarkets(_ context.Context, _ domain.MarketFilter) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	return f.markets, nil
}

func (f *fakeExchange) GetOrderbook(_ context.Context, ticker string, _ int) (domain.RawOrderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bookErr[ticker]; err != nil {
		return domain.RawOrderbook{}, err
	}
	raw, ok := f.books[ticker]
	if !ok {
		return domain.RawOrderbook{}, fmt.Errorf("kalshi: %s: %w", ticker, domain.ErrNotFound)
	}
	return raw, nil
}

func (f *fakeExchange) TopOfBook(_ context.Context, ticker string) (domain.TopOfBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	top, ok := f.tops[ticker]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return top, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, o domain.Order, _ bool) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.placeErr[o.Side]; err != nil {
		return domain.OrderResult{}, err
	}
	f.placed = append(f.placed, o)
	return domain.OrderResult{
		OrderID:       fmt.Sprintf("ord-%d", len(f.placed)),
		ClientOrderID: o.ClientOrderID,
		Status:        "resting",
	}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeExchange) GetBalance(context.Context) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Balance{BalanceCents: f.balance}, nil
}

type fakeDecisionStore struct {
	mu      sync.Mutex
	records []domain.DecisionRecord
	err     error
}

func (s *fakeDecisionStore) Insert(_ context.Context, rec domain.DecisionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.records = append(s.records, rec)
	return int64(len(s.records)), nil
}

func (s *fakeDecisionStore) ListByTicker(context.Context, string, domain.ListOpts) ([]domain.DecisionRecord, error) {
	return nil, nil
}

type fakeOrderStore struct {
	mu      sync.Mutex
	created []domain.QuoteOrderRecord
	status  map[string]string
}

func (s *fakeOrderStore) Create(_ context.Context, rec domain.QuoteOrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec)
	if s.status == nil {
		s.status = map[string]string{}
	}
	s.status[rec.ClientOrderID] = rec.Status
	return nil
}

func (s *fakeOrderStore) UpdateStatus(_ context.Context, clientOrderID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.status[clientOrderID]; !ok {
		return domain.ErrNotFound
	}
	s.status[clientOrderID] = status
	return nil
}

func (s *fakeOrderStore) ListByTicker(context.Context, string, domain.ListOpts) ([]domain.QuoteOrderRecord, error) {
	return nil, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    []domain.StreamMessage
	subs      chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, subs: make(chan []byte, 8)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-b.subs:
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), len(b.stream))
	b.stream = append(b.stream, domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.stream) < count {
		count = len(b.stream)
	}
	return append([]domain.StreamMessage(nil), b.stream[:count]...), nil
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockHeld)
	}
	l.held[key] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type fakeMarketCache struct {
	mu      sync.Mutex
	markets []domain.Market
	sets    int
}

func (c *fakeMarketCache) GetList(context.Context, domain.MarketFilter) ([]domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.markets == nil {
		return nil, domain.ErrNotFound
	}
	return c.markets, nil
}

func (c *fakeMarketCache) SetList(_ context.Context, _ domain.MarketFilter, markets []domain.Market, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = markets
	c.sets++
	return nil
}

type fakeArchiver struct {
	reports []domain.ScanReport
	err     error
}

func (a *fakeArchiver) ArchiveScan(_ context.Context, r *domain.ScanReport) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	r.Path = "reports/scan/" + r.ID + ".json"
	a.reports = append(a.reports, *r)
	return r.Path, nil
}

var errBoom = errors.New("boom")

func sortedKeys(m map[string][][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
