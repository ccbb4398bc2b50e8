package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

// ScanSource reads archived scan reports.
type ScanSource interface {
	LatestScan(ctx context.Context) (domain.ScanReport, error)
}

// DecisionSource reads recent decisions from the live stream.
type DecisionSource interface {
	Since(ctx context.Context, since time.Time, count int) ([]domain.Evaluation, error)
}

// ReportHandler serves what earlier runs recorded. Every source is
// optional; routes are only registered for the ones present.
type ReportHandler struct {
	scans     ScanSource
	feed      DecisionSource
	decisions domain.DecisionStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewReportHandler creates a ReportHandler. Any argument may be nil.
func NewReportHandler(scans ScanSource, feed DecisionSource, decisions domain.DecisionStore, audit domain.AuditStore, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		scans:     scans,
		feed:      feed,
		decisions: decisions,
		audit:     audit,
		logger:    logger,
	}
}

// HasScans reports whether archived scans can be served.
func (h *ReportHandler) HasScans() bool { return h.scans != nil }

// HasFeed reports whether the decision stream can be served.
func (h *ReportHandler) HasFeed() bool { return h.feed != nil }

// HasStores reports whether the postgres history can be served.
func (h *ReportHandler) HasStores() bool { return h.decisions != nil && h.audit != nil }

// LatestScan returns the most recent archived scan report.
// GET /api/scans/latest
func (h *ReportHandler) LatestScan(w http.ResponseWriter, r *http.Request) {
	report, err := h.scans.LatestScan(r.Context())
	if err != nil {
		h.fail(w, r, "latest scan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   report.Path,
		"report": report,
	})
}

// RecentDecisions returns decisions from the stream, oldest first.
// GET /api/decisions?since=1h&limit=100
func (h *ReportHandler) RecentDecisions(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		window = d
	}
	opts := parseListOpts(r)

	evals, err := h.feed.Since(r.Context(), time.Now().Add(-window), opts.Limit)
	if err != nil {
		h.fail(w, r, "recent decisions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": evals,
		"count":     len(evals),
		"since":     window.String(),
	})
}

// DecisionHistory returns the recorded decisions for one ticker, newest
// first.
// GET /api/markets/{ticker}/decisions?limit=50&offset=0
func (h *ReportHandler) DecisionHistory(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	opts := parseListOpts(r)

	recs, err := h.decisions.ListByTicker(r.Context(), ticker, opts)
	if err != nil {
		h.fail(w, r, "decision history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":    ticker,
		"decisions": recs,
		"limit":     opts.Limit,
		"offset":    opts.Offset,
	})
}

// AuditLog returns recent audit events, newest first.
// GET /api/audit?limit=50&offset=0
func (h *ReportHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.fail(w, r, "audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

func (h *ReportHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, "failed to read "+op)
		return
	}
	writeError(w, status, err.Error())
}
