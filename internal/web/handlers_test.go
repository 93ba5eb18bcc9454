package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
	"github.com/qklafk/deribit-price-tracker/internal/query"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

type memStore struct {
	nextID  int64
	records []storage.PriceRecord
}

func (m *memStore) InsertPrice(ctx context.Context, rec storage.PriceRecord) (storage.PriceRecord, error) {
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) LatestPrice(ctx context.Context, ticker instrument.Instrument) (storage.PriceRecord, error) {
	recs, _ := m.ListPrices(ctx, ticker, nil, nil)
	if len(recs) == 0 {
		return storage.PriceRecord{}, storage.ErrNotFound
	}
	return recs[0], nil
}

func (m *memStore) ListPrices(ctx context.Context, ticker instrument.Instrument, start, end *int64) ([]storage.PriceRecord, error) {
	out := make([]storage.PriceRecord, 0)
	for _, rec := range m.records {
		if rec.Ticker != ticker {
			continue
		}
		if start != nil && rec.ObservedAt < *start {
			continue
		}
		if end != nil && rec.ObservedAt > *end {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt != out[j].ObservedAt {
			return out[i].ObservedAt > out[j].ObservedAt
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func newTestServer(store *memStore) *httptest.Server {
	logger := zerolog.Nop()
	handler := NewHandler(query.NewService(store, logger), nil, logger)
	return httptest.NewServer(NewRouter(handler))
}

func getJSON(t *testing.T, url string, target any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestListPricesEndpoint(t *testing.T) {
	store := &memStore{}
	_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{Ticker: instrument.BTC, Price: decimal.RequireFromString("50000.50000000"), ObservedAt: 1000})
	_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{Ticker: instrument.BTC, Price: decimal.RequireFromString("50010"), ObservedAt: 1060})
	_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{Ticker: instrument.ETH, Price: decimal.RequireFromString("3421"), ObservedAt: 1060})

	srv := newTestServer(store)
	defer srv.Close()

	var payload struct {
		Prices []struct {
			ID        int64  `json:"id"`
			Ticker    string `json:"ticker"`
			Price     string `json:"price"`
			Timestamp int64  `json:"timestamp"`
		} `json:"prices"`
		Total int `json:"total"`
	}

	status := getJSON(t, srv.URL+"/api/prices?ticker=BTC", &payload)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if payload.Total != 2 || len(payload.Prices) != 2 {
		t.Fatalf("expected 2 BTC records, got %+v", payload)
	}
	if payload.Prices[0].Timestamp != 1060 {
		t.Fatalf("expected newest first, got %+v", payload.Prices)
	}
	if payload.Prices[1].Price != "50000.5" {
		t.Fatalf("unexpected price serialization: %q", payload.Prices[1].Price)
	}
}

func TestLastPriceEndpoint(t *testing.T) {
	store := &memStore{}
	_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{Ticker: instrument.BTC, Price: decimal.RequireFromString("50000.50000000"), ObservedAt: 1000})
	_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{Ticker: instrument.BTC, Price: decimal.RequireFromString("50010.00000000"), ObservedAt: 1060})

	srv := newTestServer(store)
	defer srv.Close()

	var rec struct {
		Ticker    string `json:"ticker"`
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	status := getJSON(t, srv.URL+"/api/prices/last?ticker=BTC_USD", &rec)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if rec.Ticker != "BTC" || rec.Timestamp != 1060 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLastPriceNotFound(t *testing.T) {
	srv := newTestServer(&memStore{})
	defer srv.Close()

	var payload struct {
		Error string `json:"error"`
	}
	status := getJSON(t, srv.URL+"/api/prices/last?ticker=ETH", &payload)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 on empty store, got %d", status)
	}
	if payload.Error == "" {
		t.Fatal("error body should be populated")
	}
}

func TestInvalidTickerReturns400(t *testing.T) {
	srv := newTestServer(&memStore{})
	defer srv.Close()

	for _, path := range []string{
		"/api/prices?ticker=DOGE",
		"/api/prices/last?ticker=",
		"/api/prices/filter?ticker=btc",
	} {
		if status := getJSON(t, srv.URL+path, nil); status != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, status)
		}
	}
}

func TestFilterPricesEndpoint(t *testing.T) {
	store := &memStore{}
	base := mustLocalDay(t, "15-01-2024")
	for day := 0; day < 5; day++ {
		_, _ = store.InsertPrice(context.Background(), storage.PriceRecord{
			Ticker:     instrument.BTC,
			Price:      decimal.RequireFromString("50000"),
			ObservedAt: base + int64(day)*86400,
		})
	}

	srv := newTestServer(store)
	defer srv.Close()

	var payload struct {
		Total int `json:"total"`
	}
	status := getJSON(t, srv.URL+"/api/prices/filter?ticker=BTC&start_date=16-01-2024&end_date=18-01-2024", &payload)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if payload.Total != 3 {
		t.Fatalf("expected 3 records in window, got %d", payload.Total)
	}
}

func TestFilterPricesBadDate(t *testing.T) {
	srv := newTestServer(&memStore{})
	defer srv.Close()

	status := getJSON(t, srv.URL+"/api/prices/filter?ticker=BTC&start_date=2024-01-16", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", status)
	}
}

func TestHealthWithoutBackend(t *testing.T) {
	srv := newTestServer(&memStore{})
	defer srv.Close()

	var payload struct {
		Status string `json:"status"`
	}
	if status := getJSON(t, srv.URL+"/health", &payload); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected health payload: %+v", payload)
	}
}

func mustLocalDay(t *testing.T, day string) int64 {
	t.Helper()
	parsed, err := time.ParseInLocation("02-01-2006", day, time.Local)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return parsed.Unix()
}
