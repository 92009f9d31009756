package marketdata

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/momet-screener/internal/joblog"
)

// BarStore is the persistence surface the collector needs.
type BarStore interface {
	LastBarDate(ctx context.Context, symbolID int64) (time.Time, bool, error)
	UpsertBars(ctx context.Context, bars []DailyBar) error
}

// BarSource provides bar history for a symbol, typically the Twelve Data
// client.
type BarSource interface {
	FetchTimeSeries(ctx context.Context, sym Symbol, startDate, endDate time.Time) ([]DailyBar, error)
}

// Fetcher collects bars incrementally, one symbol at a time.
type Fetcher struct {
	source BarSource
	store  BarStore
	jobs   *joblog.Recorder
}

// NewFetcher wires a Fetcher.
func NewFetcher(source BarSource, store BarStore, jobs *joblog.Recorder) *Fetcher {
	return &Fetcher{source: source, store: store, jobs: jobs}
}

// FetchResult summarizes a collection batch.
type FetchResult struct {
	Succeeded int
	Failed    int
	TotalBars int
}

// FetchAll runs an incremental fetch for every symbol. Per-symbol failures
// are logged and counted without aborting the batch.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []Symbol) FetchResult {
	var result FetchResult
	for _, sym := range symbols {
		count, err := f.FetchSymbol(ctx, sym)
		if err != nil {
			result.Failed++
			f.jobs.Error(ctx, fmt.Sprintf("%s: %v", sym.Code, err), zap.String("symbol", sym.Code))
			continue
		}
		result.Succeeded++
		result.TotalBars += count
	}
	f.jobs.Info(ctx, fmt.Sprintf("fetch completed: %d success, %d errors, %d bars",
		result.Succeeded, result.Failed, result.TotalBars))
	return result
}

// FetchSymbol fetches the symbol's bars from the day after the last stored
// bar up to today, and upserts them in one batch. It returns the number of
// bars written.
func (f *Fetcher) FetchSymbol(ctx context.Context, sym Symbol) (int, error) {
	last, ok, err := f.store.LastBarDate(ctx, sym.ID)
	if err != nil {
		return 0, fmt.Errorf("last bar date: %w", err)
	}

	var startDate time.Time
	endDate := Day(time.Now().UTC())
	if ok {
		startDate = Day(last).AddDate(0, 0, 1)
		if startDate.After(endDate) {
			f.jobs.Info(ctx, fmt.Sprintf("%s: already up to date", sym.Code))
			return 0, nil
		}
	}

	f.jobs.Info(ctx, fmt.Sprintf("%s: fetching from %s to %s",
		sym.Code, formatOrBeginning(startDate), endDate.Format("2006-01-02")))

	bars, err := f.source.FetchTimeSeries(ctx, sym, startDate, endDate)
	if err != nil {
		return 0, err
	}
	if err := f.store.UpsertBars(ctx, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

func formatOrBeginning(t time.Time) string {
	if t.IsZero() {
		return "beginning"
	}
	return t.Format("2006-01-02")
}
