package datastore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/backtest"
	"github.com/your-org/momet-screener/internal/indicator"
	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
)

type metricKey struct {
	symbolID   int64
	scenarioID int64
	date       time.Time
}

type statKey struct {
	runID    uuid.UUID
	symbolID int64 // -1 for the run-wide aggregate row
	date     time.Time
}

// InMemStore is an in-memory implementation of the pipeline and engine store
// interfaces. It backs tests and dry runs without a database.
type InMemStore struct {
	mu sync.Mutex

	Symbols   []marketdata.Symbol
	Bars      map[int64][]marketdata.DailyBar
	Metrics   map[metricKey]indicator.Metric
	Alerts    map[metricKey]indicator.AlertEvent
	Runs      map[uuid.UUID]backtest.Run
	Overrides map[uuid.UUID]map[int64]decimal.Decimal
	Trades    []backtest.Trade
	Stats     map[statKey]backtest.DailyStat
	JobLogs   []joblog.Entry
}

// NewInMemStore creates an empty InMemStore.
func NewInMemStore() *InMemStore {
	return &InMemStore{
		Bars:      make(map[int64][]marketdata.DailyBar),
		Metrics:   make(map[metricKey]indicator.Metric),
		Alerts:    make(map[metricKey]indicator.AlertEvent),
		Runs:      make(map[uuid.UUID]backtest.Run),
		Overrides: make(map[uuid.UUID]map[int64]decimal.Decimal),
		Stats:     make(map[statKey]backtest.DailyStat),
	}
}

// AddBars seeds bars for a symbol, keeping the history sorted by date.
func (s *InMemStore) AddBars(symbolID int64, bars ...marketdata.DailyBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bars[symbolID] = append(s.Bars[symbolID], bars...)
	sort.Slice(s.Bars[symbolID], func(i, j int) bool {
		return s.Bars[symbolID][i].Date.Before(s.Bars[symbolID][j].Date)
	})
}

// ActiveSymbols returns all seeded active symbols; the scenario association
// is not modeled in memory.
func (s *InMemStore) ActiveSymbols(ctx context.Context, scenarioID int64) ([]marketdata.Symbol, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []marketdata.Symbol
	for _, sym := range s.Symbols {
		if sym.IsActive {
			out = append(out, sym)
		}
	}
	return out, nil
}

func (s *InMemStore) BarsFrom(ctx context.Context, symbolID int64, from time.Time) ([]marketdata.DailyBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []marketdata.DailyBar
	for _, b := range s.Bars[symbolID] {
		if from.IsZero() || !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemStore) BarsBetween(ctx context.Context, symbolID int64, start, end time.Time) ([]marketdata.DailyBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []marketdata.DailyBar
	for _, b := range s.Bars[symbolID] {
		if !b.Date.Before(start) && !b.Date.After(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemStore) BarDateRange(ctx context.Context, symbolID int64) (time.Time, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.Bars[symbolID]
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return bars[0].Date, bars[len(bars)-1].Date, true, nil
}

func (s *InMemStore) LastMetricDate(ctx context.Context, symbolID, scenarioID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last time.Time
	found := false
	for k := range s.Metrics {
		if k.symbolID == symbolID && k.scenarioID == scenarioID && k.date.After(last) {
			last = k.date
			found = true
		}
	}
	return last, found, nil
}

func (s *InMemStore) UpsertMetrics(ctx context.Context, metrics []indicator.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		s.Metrics[metricKey{m.SymbolID, m.ScenarioID, marketdata.Day(m.Date)}] = m
	}
	return nil
}

func (s *InMemStore) UpsertAlerts(ctx context.Context, alerts []indicator.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range alerts {
		s.Alerts[metricKey{a.SymbolID, a.ScenarioID, marketdata.Day(a.Date)}] = a
	}
	return nil
}

func (s *InMemStore) MetricsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []indicator.Metric
	for k, m := range s.Metrics {
		if k.symbolID == symbolID && k.scenarioID == scenarioID &&
			!k.date.Before(start) && !k.date.After(end) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *InMemStore) AlertsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []indicator.AlertEvent
	for k, a := range s.Alerts {
		if k.symbolID == symbolID && k.scenarioID == scenarioID &&
			!k.date.Before(start) && !k.date.After(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *InMemStore) CTOverrides(ctx context.Context, runID uuid.UUID) (map[int64]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]decimal.Decimal)
	for id, ct := range s.Overrides[runID] {
		out[id] = ct
	}
	return out, nil
}

func (s *InMemStore) UpdateRun(ctx context.Context, run *backtest.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Runs[run.ID] = *run
	return nil
}

func (s *InMemStore) InsertTrades(ctx context.Context, trades []backtest.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Replace the run's trades wholesale, mirroring the SQL store.
	kept := s.Trades[:0]
	for _, t := range s.Trades {
		if t.RunID != trades[0].RunID {
			kept = append(kept, t)
		}
	}
	s.Trades = append(kept, trades...)
	return nil
}

func (s *InMemStore) UpsertDailyStats(ctx context.Context, stats []backtest.DailyStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range stats {
		symbolID := int64(-1)
		if st.SymbolID != nil {
			symbolID = *st.SymbolID
		}
		s.Stats[statKey{st.RunID, symbolID, marketdata.Day(st.Date)}] = st
	}
	return nil
}

func (s *InMemStore) BackfillDailyStatBMJ(ctx context.Context, runID uuid.UUID, tradingDays int) error {
	if tradingDays <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	days := decimal.NewFromInt(int64(tradingDays))
	for k, st := range s.Stats {
		if k.runID != runID {
			continue
		}
		st.BMJ = decimal.NullDecimal{Decimal: st.BT.Div(days), Valid: true}
		s.Stats[k] = st
	}
	return nil
}

func (s *InMemStore) InsertJobLog(ctx context.Context, e joblog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.JobLogs = append(s.JobLogs, e)
	return nil
}
