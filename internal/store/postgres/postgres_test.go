package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/pashagolub/pgxmock/v4"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func expectationsMet(t *testing.T, mock pgxmock.PgxPoolIface) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "kalshi"})
	want := "postgres://u:p@db:5432/kalshi?sslmode=disable"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}

	explicit := "postgres://x@y/z"
	if got := DSN(ClientConfig{DSN: explicit, Host: "ignored"}); got != explicit {
		t.Errorf("DSN with explicit value = %q", got)
	}
}

func TestWithListOpts(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := withListOpts("SELECT 1 FROM t WHERE ticker = $1", []any{"T"},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 5})

	want := "SELECT 1 FROM t WHERE ticker = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4"
	if q != want {
		t.Errorf("query = %q\nwant    %q", q, want)
	}
	if len(args) != 4 || args[3] != 5 {
		t.Errorf("args = %v", args)
	}

	q, args = withListOpts("SELECT 1 FROM t WHERE 1=1", nil, domain.ListOpts{})
	if strings.Contains(q, "LIMIT") || len(args) != 0 {
		t.Errorf("empty opts: query %q args %v", q, args)
	}
}

func TestDecisionStoreInsert(t *testing.T) {
	mock := newMock(t)
	store := NewDecisionStore(mock)

	rec := domain.DecisionRecord{
		Ticker: "KXBTC-26OCT17", Contracts: 100, MidPrice: 48.5, SpreadCents: 4, AsMaker: true,
		Decision: domain.QuoteDecision{ShouldQuote: true, Reason: "ok", RecommendedBid: 46, RecommendedAsk: 50},
	}
	rec.Decision.Analysis.NetProfitCents = 312.5

	mock.ExpectQuery("INSERT INTO quote_decisions").
		WithArgs("KXBTC-26OCT17", 100, 48.5, 4, true, true, 312.5, 46, 50, "ok", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := store.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	expectationsMet(t, mock)
}

func TestDecisionStoreListByTicker(t *testing.T) {
	mock := newMock(t)
	store := NewDecisionStore(mock)

	decision := domain.QuoteDecision{ShouldQuote: false, Reason: "Need 2¢ spread"}
	raw, _ := json.Marshal(decision)
	created := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, ticker, contracts").
		WithArgs("T", 5).
		WillReturnRows(mock.NewRows([]string{"id", "ticker", "contracts", "mid_price", "spread_cents", "as_maker", "decision", "created_at"}).
			AddRow(int64(1), "T", 100, 50.0, 1, true, raw, created))

	got, err := store.ListByTicker(context.Background(), "T", domain.ListOpts{Limit: 5})
	if err != nil {
		t.Fatalf("ListByTicker: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Decision.Reason != "Need 2¢ spread" || got[0].MidPrice != 50 {
		t.Errorf("record = %+v", got[0])
	}
	expectationsMet(t, mock)
}

func TestOrderStoreCreate(t *testing.T) {
	mock := newMock(t)
	store := NewOrderStore(mock)

	decisionID := int64(7)
	mock.ExpectExec("INSERT INTO quote_orders").
		WithArgs("cid-1", "oid-1", &decisionID, "T", "yes", "buy", 46, 100, "resting").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Create(context.Background(), domain.QuoteOrderRecord{
		ClientOrderID: "cid-1", OrderID: "oid-1", DecisionID: &decisionID, Ticker: "T",
		Side: domain.ContractSideYes, Action: domain.OrderActionBuy,
		PriceCents: 46, Count: 100, Status: "resting",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	expectationsMet(t, mock)
}

func TestOrderStoreUpdateStatus(t *testing.T) {
	mock := newMock(t)
	store := NewOrderStore(mock)

	mock.ExpectExec("UPDATE quote_orders").
		WithArgs("canceled", "cid-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE quote_orders").
		WithArgs("canceled", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := store.UpdateStatus(context.Background(), "cid-1", "canceled"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	err := store.UpdateStatus(context.Background(), "missing", "canceled")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
	expectationsMet(t, mock)
}

func TestOrderStoreListByTicker(t *testing.T) {
	mock := newMock(t)
	store := NewOrderStore(mock)

	decisionID := int64(3)
	created := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM quote_orders WHERE ticker").
		WithArgs("T").
		WillReturnRows(mock.NewRows([]string{"client_order_id", "order_id", "decision_id", "ticker", "side", "action", "price_cents", "count", "status", "created_at"}).
			AddRow("cid-1", "oid-1", &decisionID, "T", "no", "buy", 50, 100, "resting", created))

	got, err := store.ListByTicker(context.Background(), "T", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByTicker: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	o := got[0]
	if o.Side != domain.ContractSideNo || o.Action != domain.OrderActionBuy || o.PriceCents != 50 {
		t.Errorf("order = %+v", o)
	}
	if o.DecisionID == nil || *o.DecisionID != 3 {
		t.Errorf("DecisionID = %v, want 3", o.DecisionID)
	}
	expectationsMet(t, mock)
}

func TestAuditStoreLog(t *testing.T) {
	mock := newMock(t)
	store := NewAuditStore(mock)

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("quote.placed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.Log(context.Background(), "quote.placed", map[string]any{"ticker": "T"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMigrateSkipsApplied(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_init.sql").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(true))

	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMigrateApplies(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_init.sql").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS quote_decisions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_init.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	expectationsMet(t, mock)
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_init.sql").
		WillReturnRows(mock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS quote_decisions").
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := Migrate(context.Background(), mock)
	if err == nil || !strings.Contains(err.Error(), "001_init.sql") {
		t.Fatalf("Migrate error = %v", err)
	}
	expectationsMet(t, mock)
}
