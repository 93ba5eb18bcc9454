package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/qklafk/deribit-price-tracker/internal/exchange"
	"github.com/qklafk/deribit-price-tracker/internal/instrument"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

// IndexPriceFetcher retrieves one instrument's index price from the exchange.
type IndexPriceFetcher interface {
	FetchIndexPrice(ctx context.Context, inst instrument.Instrument) (decimal.Decimal, error)
}

// Worker runs the per-tick fan-out of fetch-store pipelines.
type Worker struct {
	fetcher     IndexPriceFetcher
	store       storage.PriceStore
	instruments []instrument.Instrument
	logger      zerolog.Logger
}

// NewWorker constructs an ingestion worker over a fixed instrument set.
func NewWorker(fetcher IndexPriceFetcher, store storage.PriceStore, instruments []instrument.Instrument, logger zerolog.Logger) *Worker {
	return &Worker{
		fetcher:     fetcher,
		store:       store,
		instruments: instruments,
		logger:      logger.With().Str("component", "ingest_worker").Logger(),
	}
}

// Report summarises one tick.
type Report struct {
	Stored int
	Failed int
}

// pipelineResult is the typed outcome of one instrument's fetch-store
// pipeline within a tick: either a persisted record or a classified error.
type pipelineResult struct {
	inst   instrument.Instrument
	record storage.PriceRecord
	err    error
}

// RunTick executes one ingestion tick: every configured instrument is fetched
// and stored concurrently, and one instrument's failure never aborts the
// others. Errors are logged and discarded; the next tick is the sole retry.
func (w *Worker) RunTick(ctx context.Context) Report {
	results := make(chan pipelineResult, len(w.instruments))

	var wg sync.WaitGroup
	for _, inst := range w.instruments {
		wg.Add(1)
		go func(inst instrument.Instrument) {
			defer wg.Done()
			results <- w.runPipeline(ctx, inst)
		}(inst)
	}
	wg.Wait()
	close(results)

	var report Report
	for res := range results {
		if res.err != nil {
			report.Failed++
			w.logPipelineError(res.inst, res.err)
			continue
		}
		report.Stored++
		w.logger.Info().
			Str("ticker", res.inst.String()).
			Str("price", res.record.Price.String()).
			Int64("observed_at", res.record.ObservedAt).
			Msg("price recorded")
	}
	return report
}

// runPipeline fetches and stores a single instrument. The observation
// timestamp is captured before the remote call so intervals between ticks stay
// uniform at the scheduling cadence instead of drifting by fetch latency.
func (w *Worker) runPipeline(ctx context.Context, inst instrument.Instrument) pipelineResult {
	observedAt := time.Now().Unix()

	price, err := w.fetcher.FetchIndexPrice(ctx, inst)
	if err != nil {
		return pipelineResult{inst: inst, err: err}
	}

	rec, err := w.store.InsertPrice(ctx, storage.PriceRecord{
		Ticker:     inst,
		Price:      price,
		ObservedAt: observedAt,
	})
	if err != nil {
		return pipelineResult{inst: inst, err: err}
	}

	return pipelineResult{inst: inst, record: rec}
}

func (w *Worker) logPipelineError(inst instrument.Instrument, err error) {
	event := w.logger.Error().Str("ticker", inst.String()).Err(err)

	var (
		netErr   *exchange.NetworkError
		apiErr   *exchange.APIError
		protoErr *exchange.ProtocolError
	)
	switch {
	case errors.As(err, &netErr):
		event.Str("kind", "network").Msg("fetch failed; record skipped for this tick")
	case errors.As(err, &apiErr):
		event.Str("kind", "api").Int64("remote_code", apiErr.Code).Msg("exchange rejected request; record skipped for this tick")
	case errors.As(err, &protoErr):
		event.Str("kind", "protocol").Msg("unexpected response shape; record skipped for this tick")
	default:
		event.Str("kind", "store").Msg("persist failed; record lost for this tick")
	}
}
