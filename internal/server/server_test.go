package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
	"github.com/alanyoungcy/marketledger/internal/platform/fixture"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Session) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := fixture.New()
	p.SetProducts(domain.MarketplaceOzon, []domain.Product{
		{Marketplace: domain.MarketplaceOzon, OfferID: "o1", Name: "Mug", Price: 50_000},
	})
	p.SetOrders(domain.MarketplaceOzon, []domain.Order{{
		ID: 1, Marketplace: domain.MarketplaceOzon, Status: domain.OrderStatusDelivered,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		Items:     []domain.OrderItem{{OfferID: "o1", Quantity: 1, Price: 50_000}},
	}})

	s, err := session.New(session.Config{
		Seller:       "acme",
		Marketplaces: []domain.Marketplace{domain.MarketplaceOzon},
		Fetch:        fetchqueue.Config{MaxConcurrency: 1, MaxRetries: 0, BaseDelay: time.Millisecond},
	}, session.Deps{Provider: p}, logger)
	if err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	t.Cleanup(s.Close)

	sessions := []*session.Session{s}
	h := Routes(Handlers{
		Health:  handler.NewHealthHandler(sessions),
		Sellers: handler.NewSellerHandler(sessions, 30, logger),
	}, logger)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, s
}

func getJSON(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return getJSON(t, req, out)
}

func TestReadinessFollowsInitialLoad(t *testing.T) {
	srv, s := newTestServer(t)

	if code := get(t, srv.URL+"/api/ready", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("ready before load = %d, want 503", code)
	}
	if err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if code := get(t, srv.URL+"/api/ready", nil); code != http.StatusOK {
		t.Fatalf("ready after sync = %d, want 200", code)
	}
	if code := get(t, srv.URL+"/api/health", nil); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
}

func TestSellerEndpoints(t *testing.T) {
	srv, s := newTestServer(t)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	var status struct {
		Seller  string                    `json:"seller"`
		Ready   bool                      `json:"ready"`
		Sources map[string]map[string]any `json:"sources"`
	}
	if code := get(t, srv.URL+"/api/sellers/acme/status", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Seller != "acme" || !status.Ready || len(status.Sources) != 1 {
		t.Errorf("status = %+v", status)
	}

	var tariffs struct {
		Estimated int  `json:"Estimated"`
		Pending   bool `json:"pending"`
	}
	if code := get(t, srv.URL+"/api/sellers/acme/tariffs", &tariffs); code != http.StatusOK {
		t.Fatalf("tariffs code = %d", code)
	}
	if tariffs.Estimated != 1 || !tariffs.Pending {
		t.Errorf("tariffs = %+v", tariffs)
	}

	var report domain.ProfitReport
	if code := get(t, srv.URL+"/api/sellers/acme/report", &report); code != http.StatusOK {
		t.Fatalf("report code = %d", code)
	}
	if report.Totals.Revenue != 50_000 || len(report.Products) != 1 {
		t.Errorf("report totals = %+v", report.Totals)
	}

	if code := get(t, srv.URL+"/api/sellers/acme/report?from=2026-05-10&to=2026-05-01", nil); code != http.StatusBadRequest {
		t.Errorf("inverted range code = %d, want 400", code)
	}
	if code := get(t, srv.URL+"/api/sellers/nobody/status", nil); code != http.StatusNotFound {
		t.Errorf("unknown seller code = %d, want 404", code)
	}
}

func TestRefetch(t *testing.T) {
	srv, s := newTestServer(t)
	if err := s.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/sellers/acme/refetch?marketplace=ozon", nil)
	if code := getJSON(t, req, nil); code != http.StatusAccepted {
		t.Fatalf("refetch code = %d", code)
	}
	st, _ := s.Store().State(domain.MarketplaceOzon)
	if !st.Products.Stale {
		t.Error("products should be stale after refetch")
	}

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/sellers/acme/refetch?marketplace=yandex", nil)
	if code := getJSON(t, req, nil); code != http.StatusBadRequest {
		t.Errorf("refetch of unconnected source = %d, want 400", code)
	}
}
