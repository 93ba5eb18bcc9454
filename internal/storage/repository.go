package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no price record exists for the requested ticker.
	ErrNotFound = errors.New("storage: no price records")
)

const (
	insertPriceSQL = `INSERT INTO prices (ticker, price, observed_at)
    VALUES ($1, $2, $3)
    RETURNING id;`

	latestPriceSQL = `SELECT id, ticker, price, observed_at
    FROM prices
    WHERE ticker = $1
    ORDER BY observed_at DESC, id DESC
    LIMIT 1;`

	listPricesSQL = `SELECT id, ticker, price, observed_at
    FROM prices
    WHERE ticker = $1
      AND ($2::bigint IS NULL OR observed_at >= $2)
      AND ($3::bigint IS NULL OR observed_at <= $3)
    ORDER BY observed_at DESC, id DESC;`

	listRecentPricesSQL = `SELECT id, ticker, price, observed_at
    FROM prices
    ORDER BY observed_at DESC, id DESC
    LIMIT $1;`

	countPricesSQL = `SELECT COUNT(*) FROM prices;`
)

// PriceStore defines the append-only price persistence contract.
type PriceStore interface {
	InsertPrice(ctx context.Context, rec PriceRecord) (PriceRecord, error)
	LatestPrice(ctx context.Context, ticker instrument.Instrument) (PriceRecord, error)
	ListPrices(ctx context.Context, ticker instrument.Instrument, start, end *int64) ([]PriceRecord, error)
}

// Store provides PostgreSQL-backed price persistence.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPrice appends one immutable price record and returns it with the
// store-assigned id. Existing rows are never mutated.
func (s *Store) InsertPrice(ctx context.Context, rec PriceRecord) (PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceRecord{}, err
	}

	row := pool.QueryRow(ctx, insertPriceSQL, string(rec.Ticker), rec.Price.String(), rec.ObservedAt)
	if err := row.Scan(&rec.ID); err != nil {
		return PriceRecord{}, fmt.Errorf("insert price: %w", err)
	}
	return rec, nil
}

// LatestPrice returns the record with maximum (observed_at, id) for a ticker,
// or ErrNotFound when no records exist.
func (s *Store) LatestPrice(ctx context.Context, ticker instrument.Instrument) (PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceRecord{}, err
	}

	rec, scanErr := scanPriceRow(pool.QueryRow(ctx, latestPriceSQL, string(ticker)))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return PriceRecord{}, ErrNotFound
		}
		return PriceRecord{}, fmt.Errorf("latest price: %w", scanErr)
	}
	return rec, nil
}

// ListPrices returns a ticker's records within inclusive observed_at bounds,
// descending by (observed_at, id). A nil bound leaves that side open.
func (s *Store) ListPrices(ctx context.Context, ticker instrument.Instrument, start, end *int64) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesSQL, string(ticker), start, end)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices: %w", queryErr)
	}
	defer rows.Close()

	return collectPriceRows(rows)
}

// ListRecentPrices lists the most recent records across all tickers.
func (s *Store) ListRecentPrices(ctx context.Context, limit int) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	return collectPriceRows(rows)
}

// CountPrices counts stored records.
func (s *Store) CountPrices(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPricesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count prices: %w", scanErr)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPriceRow(row rowScanner) (PriceRecord, error) {
	var (
		rec      PriceRecord
		ticker   string
		priceStr string
	)

	if err := row.Scan(&rec.ID, &ticker, &priceStr, &rec.ObservedAt); err != nil {
		return PriceRecord{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("parse price: %w", err)
	}

	rec.Ticker = instrument.Instrument(ticker)
	rec.Price = price
	return rec, nil
}

func collectPriceRows(rows pgx.Rows) ([]PriceRecord, error) {
	records := make([]PriceRecord, 0)
	for rows.Next() {
		rec, err := scanPriceRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

var _ PriceStore = (*Store)(nil)
