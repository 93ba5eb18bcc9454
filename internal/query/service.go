package query

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

// dateLayout is the accepted calendar format for range bounds (DD-MM-YYYY).
const dateLayout = "02-01-2006"

// ValidationError reports invalid caller input at the read boundary. It is a
// client error, never a system fault.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Service normalizes read-boundary inputs and delegates to the price store.
type Service struct {
	store  storage.PriceStore
	logger zerolog.Logger
}

// NewService constructs the query service.
func NewService(store storage.PriceStore, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger.With().Str("component", "query_service").Logger()}
}

// ListAll returns a ticker's full history, newest first.
func (s *Service) ListAll(ctx context.Context, ticker string) ([]storage.PriceRecord, error) {
	inst, err := s.normalize(ticker)
	if err != nil {
		return nil, err
	}
	return s.store.ListPrices(ctx, inst, nil, nil)
}

// Latest returns a ticker's most recent record. Absence surfaces as
// storage.ErrNotFound, distinct from an empty range result.
func (s *Service) Latest(ctx context.Context, ticker string) (storage.PriceRecord, error) {
	inst, err := s.normalize(ticker)
	if err != nil {
		return storage.PriceRecord{}, err
	}
	return s.store.LatestPrice(ctx, inst)
}

// ListRange returns a ticker's history within an optional date window, newest
// first. Dates are DD-MM-YYYY in local time; bounds are inclusive at day
// granularity, and an omitted bound leaves that side open. An empty result is
// a valid "no data in window" answer.
func (s *Service) ListRange(ctx context.Context, ticker, startDate, endDate string) ([]storage.PriceRecord, error) {
	inst, err := s.normalize(ticker)
	if err != nil {
		return nil, err
	}

	var start, end *int64

	if startDate != "" {
		day, err := time.ParseInLocation(dateLayout, startDate, time.Local)
		if err != nil {
			s.logger.Debug().Str("start_date", startDate).Msg("rejected malformed date")
			return nil, &ValidationError{Field: "start_date", Message: "must be DD-MM-YYYY"}
		}
		ts := day.Unix()
		start = &ts
	}

	if endDate != "" {
		day, err := time.ParseInLocation(dateLayout, endDate, time.Local)
		if err != nil {
			s.logger.Debug().Str("end_date", endDate).Msg("rejected malformed date")
			return nil, &ValidationError{Field: "end_date", Message: "must be DD-MM-YYYY"}
		}
		// Inclusive through the last second of the named day.
		ts := day.AddDate(0, 0, 1).Add(-time.Second).Unix()
		end = &ts
	}

	return s.store.ListPrices(ctx, inst, start, end)
}

func (s *Service) normalize(ticker string) (instrument.Instrument, error) {
	inst, ok := instrument.Normalize(ticker)
	if !ok {
		s.logger.Debug().Str("ticker", ticker).Msg("rejected unknown ticker")
		return "", &ValidationError{Field: "ticker", Message: "must be BTC or ETH"}
	}
	return inst, nil
}
