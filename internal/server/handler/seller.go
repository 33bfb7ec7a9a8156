package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketledger/internal/datastore"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/fetchqueue"
	"github.com/alanyoungcy/marketledger/internal/session"
	"github.com/alanyoungcy/marketledger/internal/tariff"
)

// SellerHandler serves per-seller endpoints.
type SellerHandler struct {
	sessions   map[string]*session.Session
	order      []string
	reportDays int
	logger     *slog.Logger
	now        func() time.Time
}

// NewSellerHandler creates a SellerHandler. reportDays is the default report
// window when the request gives no range.
func NewSellerHandler(sessions []*session.Session, reportDays int, logger *slog.Logger) *SellerHandler {
	h := &SellerHandler{
		sessions:   make(map[string]*session.Session, len(sessions)),
		reportDays: reportDays,
		logger:     logger.With(slog.String("handler", "sellers")),
		now:        time.Now,
	}
	for _, s := range sessions {
		h.sessions[s.Seller()] = s
		h.order = append(h.order, s.Seller())
	}
	return h
}

func (h *SellerHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.sessions[r.PathValue("seller")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown seller")
	}
	return s, ok
}

// List returns the configured seller ids.
// GET /api/sellers
func (h *SellerHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sellers": h.order})
}

type statusResponse struct {
	Seller  string                                       `json:"seller"`
	Ready   bool                                         `json:"ready"`
	Sources map[domain.Marketplace]datastore.SourceState `json:"sources"`
	Queue   fetchqueue.Stats                             `json:"queue"`
	Pending int                                          `json:"queue_pending"`
}

// Status returns per-source load state and fetch queue counters.
// GET /api/sellers/{seller}/status
func (h *SellerHandler) Status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Seller:  s.Seller(),
		Ready:   s.Store().Ready(),
		Sources: s.Store().States(),
		Queue:   s.Queue().Stats(),
		Pending: s.Queue().Pending(),
	})
}

// Tariffs returns tariff coverage of the seller's current products.
// GET /api/sellers/{seller}/tariffs
func (h *SellerHandler) Tariffs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	products := s.Store().AllProducts()
	summary := s.Tariffs(r.Context()).Summarize(products)
	writeJSON(w, http.StatusOK, struct {
		tariff.Summary
		Pending bool `json:"pending"`
	}{summary, summary.Pending()})
}

// Report computes a profit report over ?from=&to= without archiving it.
// GET /api/sellers/{seller}/report
func (h *SellerHandler) Report(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	from, to, err := parseRange(r, h.now().UTC(), h.reportDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := s.Report(r.Context(), session.ReportOptions{From: from, To: to})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "report failed", slog.String("seller", s.Seller()), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "report failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Refetch invalidates the seller's sources, or only ?marketplace=.
// POST /api/sellers/{seller}/refetch
func (h *SellerHandler) Refetch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var mps []domain.Marketplace
	if v := r.URL.Query().Get("marketplace"); v != "" {
		mp := domain.ParseMarketplace(v)
		if !s.Store().IsConnected(mp) {
			writeError(w, http.StatusBadRequest, "marketplace not connected")
			return
		}
		mps = append(mps, mp)
	}
	s.Store().Refetch(mps...)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "invalidated"})
}
