package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type memWriter struct {
	objects   map[string][]byte
	types     map[string]string
	multipart int
	err       error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, jsonlContentType)
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, _, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testReport() domain.ProfitReport {
	return domain.ProfitReport{
		ID:          "r1",
		Seller:      "s1",
		GeneratedAt: time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC),
		Products: []domain.ProductProfit{
			{Key: domain.ProductKey{Marketplace: domain.MarketplaceUzum, OfferID: "a"}, Name: "Shirt", TotalRevenue: 50000, ABC: domain.ABCGroupA},
			{Key: domain.ProductKey{Marketplace: domain.MarketplaceYandex, OfferID: "b"}, Name: "Mug <big>", TotalRevenue: 8000, ABC: domain.ABCGroupC},
		},
		Totals:    domain.ProfitTotals{Revenue: 58000},
		ABCCounts: map[domain.ABCGroup]int{domain.ABCGroupA: 1, domain.ABCGroupC: 1},
	}
}

func TestArchiveWritesRowsAndSummary(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	a := NewReportArchiver(w, audit, slog.Default())

	path, err := a.Archive(context.Background(), testReport())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if want := "reports/s1/2026-03-14/r1.jsonl"; path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}
	if w.types[path] != jsonlContentType {
		t.Errorf("content type = %q", w.types[path])
	}

	var lines []domain.ProductProfit
	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	for sc.Scan() {
		var p domain.ProductProfit
		if err := json.Unmarshal(sc.Bytes(), &p); err != nil {
			t.Fatalf("line %d: %v", len(lines), err)
		}
		lines = append(lines, p)
	}
	if len(lines) != 2 || lines[1].Name != "Mug <big>" {
		t.Fatalf("rows = %+v", lines)
	}
	if bytes.Contains(w.objects[path], []byte(`<`)) {
		t.Error("rows should not be HTML-escaped")
	}

	var sum reportSummary
	if err := json.Unmarshal(w.objects["reports/s1/2026-03-14/r1.summary.json"], &sum); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Rows != 2 || sum.Totals.Revenue != 58000 || sum.ABCCounts[domain.ABCGroupA] != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(audit.events) != 1 || audit.events[0] != "report.archived" {
		t.Errorf("audit events = %v", audit.events)
	}
	if w.multipart != 0 {
		t.Errorf("small report used multipart")
	}
}

func TestArchiveErrors(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("bucket gone")
	audit := &memAudit{}
	a := NewReportArchiver(w, audit, slog.Default())

	if _, err := a.Archive(context.Background(), testReport()); err == nil {
		t.Fatal("expected upload error")
	}
	if len(audit.events) != 0 {
		t.Errorf("audit written on failure: %v", audit.events)
	}

	bad := testReport()
	bad.ID = ""
	if _, err := NewReportArchiver(newMemWriter(), nil, slog.Default()).Archive(context.Background(), bad); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		ssl    bool
		expect string
	}{
		{"10.0.0.5:9000", false, "http://10.0.0.5:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.expect {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.expect)
		}
	}
}
