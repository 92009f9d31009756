package indicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
)

// ErrInsufficientData marks a symbol with fewer bars than the largest
// configured window. The condition is reported and the symbol skipped; it
// never aborts the batch.
var ErrInsufficientData = errors.New("insufficient bar history")

// lookbackMargin is the number of extra calendar days loaded before the
// resume point to absorb non-trading days while seeding the rolling caches.
const lookbackMargin = 30

// Store is the persistence surface the pipeline needs.
type Store interface {
	// LastMetricDate returns the most recent computed metric date for the
	// pair, with ok=false when nothing has been computed yet.
	LastMetricDate(ctx context.Context, symbolID, scenarioID int64) (time.Time, bool, error)
	// BarsFrom returns the symbol's bars on or after from in chronological
	// order. A zero from returns the full history.
	BarsFrom(ctx context.Context, symbolID int64, from time.Time) ([]marketdata.DailyBar, error)
	UpsertMetrics(ctx context.Context, metrics []Metric) error
	UpsertAlerts(ctx context.Context, alerts []AlertEvent) error
}

// Pipeline computes indicator records incrementally for every active symbol
// of one scenario.
type Pipeline struct {
	scn     *scenario.Scenario
	store   Store
	jobs    *joblog.Recorder
	workers int
}

// NewPipeline validates the scenario and returns a ready Pipeline.
// workers bounds the number of symbols computed concurrently; values < 1
// mean sequential.
func NewPipeline(scn *scenario.Scenario, store Store, jobs *joblog.Recorder, workers int) (*Pipeline, error) {
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{scn: scn, store: store, jobs: jobs, workers: workers}, nil
}

// Summary aggregates a batch over many symbols.
type Summary struct {
	MetricsComputed int
	SymbolsSkipped  int
	SymbolsFailed   int
}

// ComputeAll runs ComputeSymbol over every symbol, in parallel across symbols
// only. Each symbol's timeline stays strictly sequential and per-symbol
// failures are logged without aborting the rest of the batch.
func (p *Pipeline) ComputeAll(ctx context.Context, symbols []marketdata.Symbol) Summary {
	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, p.workers)
	)

	for _, sym := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(sym marketdata.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()

			count, err := p.ComputeSymbol(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrInsufficientData):
				summary.SymbolsSkipped++
			case err != nil:
				summary.SymbolsFailed++
				p.jobs.Error(ctx, fmt.Sprintf("%s: %v", sym.Code, err))
			default:
				summary.MetricsComputed += count
			}
		}(sym)
	}
	wg.Wait()
	return summary
}

// ComputeSymbol resumes the symbol's indicator series from the day after the
// last computed metric and upserts the new records in one bulk write. It
// returns the number of metrics written.
func (p *Pipeline) ComputeSymbol(ctx context.Context, sym marketdata.Symbol) (int, error) {
	last, resumed, err := p.store.LastMetricDate(ctx, sym.ID, p.scn.ID)
	if err != nil {
		return 0, fmt.Errorf("last metric date for %s: %w", sym.Code, err)
	}

	var startDate, lookbackFrom time.Time
	if resumed {
		startDate = marketdata.Day(last).AddDate(0, 0, 1)
		lookbackFrom = startDate.AddDate(0, 0, -(p.scn.MaxWindow() + lookbackMargin))
	}

	bars, err := p.store.BarsFrom(ctx, sym.ID, lookbackFrom)
	if err != nil {
		return 0, fmt.Errorf("load bars for %s: %w", sym.Code, err)
	}
	if len(bars) < p.scn.MaxWindow() {
		p.jobs.Warn(ctx, fmt.Sprintf("%s: insufficient data (%d bars, need %d)",
			sym.Code, len(bars), p.scn.MaxWindow()),
			zap.String("symbol", sym.Code))
		return 0, fmt.Errorf("%s: %w", sym.Code, ErrInsufficientData)
	}

	calc, err := NewCalculator(p.scn)
	if err != nil {
		return 0, err
	}

	var (
		metrics []Metric
		alerts  []AlertEvent
	)
	for _, bar := range bars {
		metric, codes, ok := calc.Step(bar)
		if !ok {
			continue
		}
		// Days before the resume point only warm the caches.
		if resumed && bar.Date.Before(startDate) {
			continue
		}
		metrics = append(metrics, metric)
		if len(codes) > 0 {
			alerts = append(alerts, AlertEvent{
				SymbolID:   sym.ID,
				ScenarioID: p.scn.ID,
				Date:       bar.Date,
				Codes:      codes,
			})
		}
	}

	if len(metrics) > 0 {
		if err := p.store.UpsertMetrics(ctx, metrics); err != nil {
			return 0, fmt.Errorf("upsert metrics for %s: %w", sym.Code, err)
		}
		if len(alerts) > 0 {
			if err := p.store.UpsertAlerts(ctx, alerts); err != nil {
				return 0, fmt.Errorf("upsert alerts for %s: %w", sym.Code, err)
			}
		}
	}

	p.jobs.Info(ctx, fmt.Sprintf("%s: %d metrics calculated", sym.Code, len(metrics)),
		zap.String("symbol", sym.Code), zap.Int("count", len(metrics)))
	return len(metrics), nil
}
