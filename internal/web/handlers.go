package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/query"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

// Handler serves the read boundary over the query service.
type Handler struct {
	queries *query.Service
	pinger  Pinger
	logger  zerolog.Logger
}

// NewHandler constructs the read API handler. pinger may be nil when no
// health backend is wired (tests).
func NewHandler(queries *query.Service, pinger Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		queries: queries,
		pinger:  pinger,
		logger:  logger.With().Str("component", "web").Logger(),
	}
}

type priceResponse struct {
	ID        int64           `json:"id"`
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

type priceListResponse struct {
	Prices []priceResponse `json:"prices"`
	Total  int             `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toPriceResponse(rec storage.PriceRecord) priceResponse {
	return priceResponse{
		ID:        rec.ID,
		Ticker:    rec.Ticker.String(),
		Price:     rec.Price,
		Timestamp: rec.ObservedAt,
	}
}

// Root serves a service banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Deribit Price Tracker API",
	})
}

// Health reports storage connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Error().Err(err).Msg("health check failed")
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListPrices returns all saved records for a ticker.
// GET /api/prices?ticker=BTC
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	recs, err := h.queries.ListAll(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeList(w, recs)
}

// LastPrice returns the most recent record for a ticker, 404 when none exist.
// GET /api/prices/last?ticker=BTC
func (h *Handler) LastPrice(w http.ResponseWriter, r *http.Request) {
	rec, err := h.queries.Latest(r.Context(), r.URL.Query().Get("ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPriceResponse(rec))
}

// FilterPrices returns records within an optional DD-MM-YYYY date window.
// GET /api/prices/filter?ticker=BTC&start_date=16-01-2024&end_date=18-01-2024
func (h *Handler) FilterPrices(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	recs, err := h.queries.ListRange(r.Context(), params.Get("ticker"), params.Get("start_date"), params.Get("end_date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeList(w, recs)
}

func (h *Handler) writeList(w http.ResponseWriter, recs []storage.PriceRecord) {
	payload := priceListResponse{Prices: make([]priceResponse, 0, len(recs)), Total: len(recs)}
	for _, rec := range recs {
		payload.Prices = append(payload.Prices, toPriceResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *query.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Error()})
	case errors.Is(err, storage.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "no price data found"})
	default:
		h.logger.Error().Err(err).Msg("read query failed")
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}
