package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	jsonContentType  = "application/json"

	// multipartThreshold switches large reports to the multipart uploader.
	multipartThreshold = 8 * 1024 * 1024
)

// reportSummary is the header object stored next to the product rows.
type reportSummary struct {
	ID             string                        `json:"id"`
	Seller         string                        `json:"seller"`
	From           time.Time                     `json:"from"`
	To             time.Time                     `json:"to"`
	GeneratedAt    time.Time                     `json:"generated_at"`
	Totals         domain.ProfitTotals           `json:"totals"`
	ABCCounts      map[domain.ABCGroup]int       `json:"abc_counts"`
	Reconciliation []domain.ReconciliationRecord `json:"reconciliation"`
	TariffsPending bool                          `json:"tariffs_pending"`
	Rows           int                           `json:"rows"`
}

// ReportArchiver writes finished profit reports to object storage.
//
// Layout:
//
//	reports/{seller}/{YYYY-MM-DD}/{id}.jsonl        - one ProductProfit per line
//	reports/{seller}/{YYYY-MM-DD}/{id}.summary.json - totals and reconciliation
type ReportArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewReportArchiver creates a ReportArchiver. audit may be nil.
func NewReportArchiver(writer domain.BlobWriter, audit domain.AuditStore, logger *slog.Logger) *ReportArchiver {
	return &ReportArchiver{
		writer: writer,
		audit:  audit,
		logger: logger.With(slog.String("component", "report_archiver")),
	}
}

// ReportPath returns the object path of a report's product rows.
func ReportPath(r domain.ProfitReport) string {
	return fmt.Sprintf("reports/%s/%s/%s.jsonl", r.Seller, r.GeneratedAt.UTC().Format("2006-01-02"), r.ID)
}

func summaryPath(r domain.ProfitReport) string {
	return fmt.Sprintf("reports/%s/%s/%s.summary.json", r.Seller, r.GeneratedAt.UTC().Format("2006-01-02"), r.ID)
}

// Archive uploads the report and records an audit entry. It returns the
// object path of the product rows.
func (a *ReportArchiver) Archive(ctx context.Context, r domain.ProfitReport) (string, error) {
	if r.ID == "" || r.Seller == "" {
		return "", fmt.Errorf("s3blob: archive report: id and seller are required")
	}

	rows, err := marshalJSONL(r.Products)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive report %s: %w", r.ID, err)
	}
	path := ReportPath(r)
	if len(rows) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(rows), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(rows), jsonlContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive report %s: %w", r.ID, err)
	}

	summary, err := json.Marshal(reportSummary{
		ID:             r.ID,
		Seller:         r.Seller,
		From:           r.From,
		To:             r.To,
		GeneratedAt:    r.GeneratedAt,
		Totals:         r.Totals,
		ABCCounts:      r.ABCCounts,
		Reconciliation: r.Reconciliation,
		TariffsPending: r.TariffsPending,
		Rows:           len(r.Products),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal summary %s: %w", r.ID, err)
	}
	if err := a.writer.Put(ctx, summaryPath(r), bytes.NewReader(summary), jsonContentType); err != nil {
		return "", fmt.Errorf("s3blob: archive summary %s: %w", r.ID, err)
	}

	if a.audit != nil {
		detail := map[string]any{
			"report_id": r.ID,
			"path":      path,
			"rows":      len(r.Products),
		}
		if err := a.audit.Log(ctx, r.Seller, "report.archived", detail); err != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("report_id", r.ID), slog.String("error", err.Error()))
		}
	}

	a.logger.InfoContext(ctx, "report archived",
		slog.String("seller", r.Seller),
		slog.String("path", path),
		slog.Int("rows", len(r.Products)),
	)
	return path, nil
}

// marshalJSONL encodes records as newline-delimited JSON.
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
