package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent price records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentPrices(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no prices found")
		return nil
	}

	total, err := store.CountPrices(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTicker\tPrice\tObserved (UTC)")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\n",
			rec.ID,
			rec.Ticker,
			rec.Price.StringFixed(8),
			time.Unix(rec.ObservedAt, 0).UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "total records: %d\n", total)
	return nil
}
