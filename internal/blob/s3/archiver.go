package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshimm/internal/domain"
)

const (
	scanPrefix  = "reports/scan/"
	watchPrefix = "reports/watch/"

	// Payloads above this go through the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
)

// Archiver stores scan reports and watch-session evaluations as objects and
// reads the latest scan back. The audit store is optional.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. reader and audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveScan uploads report as JSON under
// reports/scan/YYYY/MM/DD/<report id>.json and sets report.Path.
func (a *Archiver) ArchiveScan(ctx context.Context, report *domain.ScanReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal scan report: %w", err)
	}

	ts := report.FinishedAt
	if ts.IsZero() {
		ts = a.now()
	}
	path := scanPrefix + ts.UTC().Format("2006/01/02/") + report.ID + ".json"

	if err := a.upload(ctx, path, buf, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive scan: %w", err)
	}
	report.Path = path

	a.logAudit(ctx, "archive.scan", map[string]any{
		"path":     path,
		"markets":  len(report.Results),
		"quotable": report.Quotable,
	})
	return path, nil
}

// ArchiveEvaluations uploads a watch session's evaluations for one ticker as
// JSONL under reports/watch/<ticker>/YYYY-MM-DD/<uuid>.jsonl. An empty slice
// is not uploaded and returns an empty path.
func (a *Archiver) ArchiveEvaluations(ctx context.Context, ticker string, evals []domain.Evaluation) (string, error) {
	if len(evals) == 0 {
		return "", nil
	}
	buf, err := marshalJSONL(evals)
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal evaluations %s: %w", ticker, err)
	}

	path := fmt.Sprintf("%s%s/%s/%s.jsonl", watchPrefix, ticker, a.now().Format("2006-01-02"), uuid.NewString())
	if err := a.upload(ctx, path, buf, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive evaluations %s: %w", ticker, err)
	}

	a.logAudit(ctx, "archive.watch", map[string]any{
		"path":   path,
		"ticker": ticker,
		"count":  len(evals),
	})
	return path, nil
}

// LatestScan returns the most recently written scan report. It returns
// domain.ErrNotFound when nothing has been archived yet.
func (a *Archiver) LatestScan(ctx context.Context) (domain.ScanReport, error) {
	if a.reader == nil {
		return domain.ScanReport{}, fmt.Errorf("s3blob: latest scan: no reader configured")
	}
	infos, err := a.reader.List(ctx, scanPrefix)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("s3blob: latest scan: %w", err)
	}

	var latest *domain.BlobInfo
	for i := range infos {
		info := &infos[i]
		if !strings.HasSuffix(info.Path, ".json") {
			continue
		}
		// Keys are date-partitioned, so the key breaks ties within a second.
		if latest == nil || info.LastModified.After(latest.LastModified) ||
			(info.LastModified.Equal(latest.LastModified) && info.Path > latest.Path) {
			latest = info
		}
	}
	if latest == nil {
		return domain.ScanReport{}, fmt.Errorf("s3blob: latest scan: %w", domain.ErrNotFound)
	}

	body, err := a.reader.Get(ctx, latest.Path)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("s3blob: latest scan: %w", err)
	}
	defer body.Close()

	var report domain.ScanReport
	if err := json.NewDecoder(body).Decode(&report); err != nil {
		return domain.ScanReport{}, fmt.Errorf("s3blob: decode scan report %s: %w", latest.Path, err)
	}
	report.Path = latest.Path
	return report, nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte, contentType string) error {
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), contentType)
}

// logAudit records the archive event. The object is already written, so a
// failed audit write does not fail the archive.
func (a *Archiver) logAudit(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, detail)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
