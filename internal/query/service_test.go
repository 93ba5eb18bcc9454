package query

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

// memStore mirrors the store's ordering contract in memory: descending
// (observed_at, id), inclusive bounds, ErrNotFound for absent latest.
type memStore struct {
	nextID  int64
	records []storage.PriceRecord
	calls   int
}

func (m *memStore) InsertPrice(ctx context.Context, rec storage.PriceRecord) (storage.PriceRecord, error) {
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) LatestPrice(ctx context.Context, ticker instrument.Instrument) (storage.PriceRecord, error) {
	m.calls++
	recs, err := m.ListPrices(ctx, ticker, nil, nil)
	if err != nil {
		return storage.PriceRecord{}, err
	}
	if len(recs) == 0 {
		return storage.PriceRecord{}, storage.ErrNotFound
	}
	return recs[0], nil
}

func (m *memStore) ListPrices(ctx context.Context, ticker instrument.Instrument, start, end *int64) ([]storage.PriceRecord, error) {
	m.calls++
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

func (m *memStore) insert(t *testing.T, ticker instrument.Instrument, price string, observedAt int64) storage.PriceRecord {
	t.Helper()
	rec, err := m.InsertPrice(context.Background(), storage.PriceRecord{
		Ticker:     ticker,
		Price:      decimal.RequireFromString(price),
		ObservedAt: observedAt,
	})
	require.NoError(t, err)
	return rec
}

func newService(store *memStore) *Service {
	return NewService(store, zerolog.Nop())
}

func localDay(t *testing.T, day string) int64 {
	t.Helper()
	parsed, err := time.ParseInLocation("02-01-2006", day, time.Local)
	require.NoError(t, err)
	return parsed.Unix()
}

func TestLatestReturnsMaxObservedAtThenID(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.BTC, "50000.50000000", 1000)
	store.insert(t, instrument.BTC, "50010.00000000", 1060)

	rec, err := newService(store).Latest(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(1060), rec.ObservedAt)
	assert.True(t, rec.Price.Equal(decimal.RequireFromString("50010")))
}

func TestLatestTiebreaksByID(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.BTC, "100", 1000)
	dup := store.insert(t, instrument.BTC, "101", 1000)

	rec, err := newService(store).Latest(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, dup.ID, rec.ID, "duplicate observed_at must resolve to the higher id")
}

func TestLatestAbsentOnEmptyStore(t *testing.T) {
	store := &memStore{}

	_, err := newService(store).Latest(context.Background(), "ETH")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLatestAcceptsLegacyAlias(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.BTC, "50000.50000000", 1000)

	rec, err := newService(store).Latest(context.Background(), "BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, instrument.BTC, rec.Ticker)
	assert.Equal(t, "50000.50000000", rec.Price.StringFixed(8), "8-digit scale must round-trip")
}

func TestInvalidTickerSkipsStore(t *testing.T) {
	store := &memStore{}

	_, err := newService(store).Latest(context.Background(), "DOGE")
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "ticker", vErr.Field)
	assert.Zero(t, store.calls, "validation failure must not touch the store")

	_, err = newService(store).ListAll(context.Background(), "btc")
	require.True(t, errors.As(err, &vErr))
	assert.Zero(t, store.calls)
}

func TestListRangeInclusiveDayBounds(t *testing.T) {
	store := &memStore{}
	for _, day := range []string{"15-01-2024", "16-01-2024", "17-01-2024", "18-01-2024", "19-01-2024"} {
		store.insert(t, instrument.BTC, "50000", localDay(t, day)+12*3600)
	}

	recs, err := newService(store).ListRange(context.Background(), "BTC", "16-01-2024", "18-01-2024")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	for i := 1; i < len(recs); i++ {
		assert.Greater(t, recs[i-1].ObservedAt, recs[i].ObservedAt, "descending observed_at order")
	}
}

func TestListRangeOpenBounds(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.ETH, "3000", localDay(t, "15-01-2024"))
	store.insert(t, instrument.ETH, "3100", localDay(t, "17-01-2024"))

	svc := newService(store)

	recs, err := svc.ListRange(context.Background(), "ETH", "16-01-2024", "")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = svc.ListRange(context.Background(), "ETH", "", "16-01-2024")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = svc.ListRange(context.Background(), "ETH", "", "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestListRangeEmptyWindowIsNotAnError(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.BTC, "50000", localDay(t, "15-01-2024"))

	recs, err := newService(store).ListRange(context.Background(), "BTC", "01-02-2024", "02-02-2024")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestListRangeRejectsMalformedDates(t *testing.T) {
	store := &memStore{}
	svc := newService(store)

	var vErr *ValidationError

	_, err := svc.ListRange(context.Background(), "BTC", "2024-01-16", "")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "start_date", vErr.Field)

	_, err = svc.ListRange(context.Background(), "BTC", "", "31-02-2024")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "end_date", vErr.Field)
}

func TestListAllNewestFirst(t *testing.T) {
	store := &memStore{}
	store.insert(t, instrument.BTC, "1", 10)
	store.insert(t, instrument.BTC, "2", 30)
	store.insert(t, instrument.BTC, "3", 20)
	store.insert(t, instrument.ETH, "4", 40)

	recs, err := newService(store).ListAll(context.Background(), "BTC")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(30), recs[0].ObservedAt)
	assert.Equal(t, int64(20), recs[1].ObservedAt)
	assert.Equal(t, int64(10), recs[2].ObservedAt)
}
