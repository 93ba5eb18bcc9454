package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/qklafk/deribit-price-tracker/internal/instrument"
	"github.com/qklafk/deribit-price-tracker/internal/storage"
)

// Export renders one instrument's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	inst, ok := instrument.Normalize(opts.Ticker)
	if !ok {
		return fmt.Errorf("unknown ticker %q", opts.Ticker)
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var start, end *int64
	if opts.From != nil {
		ts := opts.From.Unix()
		start = &ts
	}
	if opts.To != nil {
		ts := opts.To.Unix()
		end = &ts
	}
	if start != nil && end != nil && *start > *end {
		return errors.New("from must be before to")
	}

	records, err := store.ListPrices(ctx, inst, start, end)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("ticker", inst.String()).Msg("no prices found for export window")
		return nil
	}

	// Store order is newest first; charts and CSVs read better oldest first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting prices")

	if opts.CSVPath != "" {
		if err := writePricesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePricesPNG(opts.PNGPath, inst, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.PriceRecord, max int) []storage.PriceRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.PriceRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writePricesCSV(path string, records []storage.PriceRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "ticker", "price", "observed_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			fmt.Sprintf("%d", rec.ID),
			rec.Ticker.String(),
			rec.Price.StringFixed(8),
			time.Unix(rec.ObservedAt, 0).UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePricesPNG(path string, inst instrument.Instrument, records []storage.PriceRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	prices := make([]float64, len(records))
	for i, rec := range records {
		x[i] = time.Unix(rec.ObservedAt, 0).UTC()
		prices[i] = rec.Price.InexactFloat64()
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: fmt.Sprintf("%s index price (USD)", inst),
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    inst.String(),
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
