// Package backtest simulates a rule-based strategy day by day against
// precomputed indicator records, with next-day execution semantics.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/momet-screener/internal/indicator"
	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
	"github.com/your-org/momet-screener/internal/strategy"
)

// Store is the persistence surface the engine needs. All writes are batched
// and keyed by the entities' natural unique keys so a restarted run is
// idempotent.
type Store interface {
	ActiveSymbols(ctx context.Context, scenarioID int64) ([]marketdata.Symbol, error)
	BarDateRange(ctx context.Context, symbolID int64) (first, last time.Time, ok bool, err error)
	BarsBetween(ctx context.Context, symbolID int64, start, end time.Time) ([]marketdata.DailyBar, error)
	MetricsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.Metric, error)
	AlertsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.AlertEvent, error)
	CTOverrides(ctx context.Context, runID uuid.UUID) (map[int64]decimal.Decimal, error)
	UpdateRun(ctx context.Context, run *Run) error
	InsertTrades(ctx context.Context, trades []Trade) error
	UpsertDailyStats(ctx context.Context, stats []DailyStat) error
	// BackfillDailyStatBMJ rewrites BMJ = BT / tradingDays on every stat row
	// of the run. This is an explicit second pass over already-written rows.
	BackfillDailyStatBMJ(ctx context.Context, runID uuid.UUID, tradingDays int) error
}

// tradableSymbol is one entry of the day's deterministic tradability ranking.
type tradableSymbol struct {
	state  *tickerState
	ratioP decimal.Decimal
}

// Engine executes one backtest run. A run executes as a single exclusive
// simulation; days are strictly sequential because each day's state depends
// on the previous day's.
type Engine struct {
	run   *Run
	scn   *scenario.Scenario
	rules *strategy.RuleSet
	store Store
	jobs  *joblog.Recorder

	states  map[int64]*tickerState
	order   []int64 // symbol IDs in a fixed iteration order
	bars    map[int64]map[time.Time]marketdata.DailyBar
	metrics map[int64]map[time.Time]indicator.Metric
	alerts  map[int64]map[time.Time]indicator.AlertEvent
}

// NewEngine wires an engine for one run.
func NewEngine(run *Run, scn *scenario.Scenario, rules *strategy.RuleSet, store Store, jobs *joblog.Recorder) *Engine {
	return &Engine{
		run:   run,
		scn:   scn,
		rules: rules,
		store: store,
		jobs:  jobs,
	}
}

// Run executes the simulation. Configuration errors surface before any state
// mutation; any later failure marks the run FAILED with the captured message
// and keeps already-persisted rows.
func (e *Engine) Run(ctx context.Context) error {
	symbols, err := e.store.ActiveSymbols(ctx, e.run.ScenarioID)
	if err != nil {
		return fmt.Errorf("load active symbols: %w", err)
	}
	if len(symbols) == 0 {
		return &scenario.ConfigError{Reason: "no active symbols in scenario"}
	}

	e.jobs.Info(ctx, fmt.Sprintf("starting backtest run %s", e.run.ID))
	now := time.Now().UTC()
	e.run.Status = StatusRunning
	e.run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, e.run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	if err := e.simulate(ctx, symbols); err != nil {
		e.fail(ctx, err)
		return err
	}

	// The second pass belongs to the run: a failed backfill must not leave
	// the run reported as COMPLETED.
	if err := e.store.BackfillDailyStatBMJ(ctx, e.run.ID, e.run.TradingDays); err != nil {
		err = fmt.Errorf("backfill stat BMJ: %w", err)
		e.fail(ctx, err)
		return err
	}

	e.run.Status = StatusCompleted
	done := time.Now().UTC()
	e.run.CompletedAt = &done
	if err := e.store.UpdateRun(ctx, e.run); err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}

	e.jobs.Info(ctx, fmt.Sprintf("backtest run %s completed: %d trades over %d trading days",
		e.run.ID, e.run.TotalTrades, e.run.TradingDays))
	return nil
}

func (e *Engine) simulate(ctx context.Context, symbols []marketdata.Symbol) error {
	if err := e.determineDateRange(ctx, symbols); err != nil {
		return err
	}
	if err := e.initStates(ctx, symbols); err != nil {
		return err
	}
	if err := e.loadCaches(ctx, symbols); err != nil {
		return err
	}

	tradingDays := 0
	for date := e.run.DateStart; !date.After(e.run.DateEnd); date = date.AddDate(0, 0, 1) {
		tradable := e.tradableOn(date)
		if len(tradable) > 0 {
			tradingDays++
		}

		e.executePendingOrders(ctx, date)
		e.detectSignals(date, tradable)

		if err := e.saveDailyStats(ctx, date); err != nil {
			return fmt.Errorf("save daily stats for %s: %w", date.Format("2006-01-02"), err)
		}
	}

	e.closeAllPositions(e.run.DateEnd)

	return e.finalize(ctx, tradingDays)
}

// determineDateRange derives the run period from the intersection of the
// symbols' available bar history.
func (e *Engine) determineDateRange(ctx context.Context, symbols []marketdata.Symbol) error {
	var start, end time.Time
	found := false
	for _, sym := range symbols {
		first, last, ok, err := e.store.BarDateRange(ctx, sym.ID)
		if err != nil {
			return fmt.Errorf("bar date range for %s: %w", sym.Code, err)
		}
		if !ok {
			continue
		}
		if !found {
			start, end = first, last
			found = true
			continue
		}
		if first.After(start) {
			start = first
		}
		if last.Before(end) {
			end = last
		}
	}
	if !found {
		return &scenario.ConfigError{Reason: "no historical data available"}
	}

	e.run.DateStart = marketdata.Day(start)
	e.run.DateEnd = marketdata.Day(end)
	e.jobs.Info(ctx, fmt.Sprintf("date range: %s to %s",
		e.run.DateStart.Format("2006-01-02"), e.run.DateEnd.Format("2006-01-02")))
	if err := e.store.UpdateRun(ctx, e.run); err != nil {
		return fmt.Errorf("persist date range: %w", err)
	}
	return nil
}

func (e *Engine) initStates(ctx context.Context, symbols []marketdata.Symbol) error {
	overrides, err := e.store.CTOverrides(ctx, e.run.ID)
	if err != nil {
		return fmt.Errorf("load CT overrides: %w", err)
	}

	e.states = make(map[int64]*tickerState, len(symbols))
	e.order = make([]int64, 0, len(symbols))
	for _, sym := range symbols {
		ct := e.run.CT
		if override, ok := overrides[sym.ID]; ok {
			ct = override
		}
		e.states[sym.ID] = newTickerState(sym, ct)
		e.order = append(e.order, sym.ID)
	}
	sort.Slice(e.order, func(i, j int) bool { return e.order[i] < e.order[j] })
	return nil
}

func (e *Engine) loadCaches(ctx context.Context, symbols []marketdata.Symbol) error {
	e.jobs.Info(ctx, "loading data into cache")
	e.bars = make(map[int64]map[time.Time]marketdata.DailyBar, len(symbols))
	e.metrics = make(map[int64]map[time.Time]indicator.Metric, len(symbols))
	e.alerts = make(map[int64]map[time.Time]indicator.AlertEvent, len(symbols))

	for _, sym := range symbols {
		bars, err := e.store.BarsBetween(ctx, sym.ID, e.run.DateStart, e.run.DateEnd)
		if err != nil {
			return fmt.Errorf("load bars for %s: %w", sym.Code, err)
		}
		byDate := make(map[time.Time]marketdata.DailyBar, len(bars))
		for _, b := range bars {
			byDate[marketdata.Day(b.Date)] = b
		}
		e.bars[sym.ID] = byDate

		metrics, err := e.store.MetricsBetween(ctx, sym.ID, e.run.ScenarioID, e.run.DateStart, e.run.DateEnd)
		if err != nil {
			return fmt.Errorf("load metrics for %s: %w", sym.Code, err)
		}
		metricsByDate := make(map[time.Time]indicator.Metric, len(metrics))
		for _, m := range metrics {
			metricsByDate[marketdata.Day(m.Date)] = m
		}
		e.metrics[sym.ID] = metricsByDate

		alerts, err := e.store.AlertsBetween(ctx, sym.ID, e.run.ScenarioID, e.run.DateStart, e.run.DateEnd)
		if err != nil {
			return fmt.Errorf("load alerts for %s: %w", sym.Code, err)
		}
		alertsByDate := make(map[time.Time]indicator.AlertEvent, len(alerts))
		for _, a := range alerts {
			alertsByDate[marketdata.Day(a.Date)] = a
		}
		e.alerts[sym.ID] = alertsByDate
	}
	return nil
}

// tradableOn returns the symbols whose ratio_P meets the run threshold on the
// given day, ranked by descending ratio_P with symbol ID as the tie-breaker
// so the ranking is deterministic.
func (e *Engine) tradableOn(date time.Time) []tradableSymbol {
	var tradable []tradableSymbol
	for _, id := range e.order {
		metric, ok := e.metrics[id][date]
		if !ok || !metric.RatioP.Valid {
			continue
		}
		if metric.RatioP.Decimal.GreaterThanOrEqual(e.run.X) {
			tradable = append(tradable, tradableSymbol{state: e.states[id], ratioP: metric.RatioP.Decimal})
		}
	}
	sort.SliceStable(tradable, func(i, j int) bool {
		if !tradable[i].ratioP.Equal(tradable[j].ratioP) {
			return tradable[i].ratioP.GreaterThan(tradable[j].ratioP)
		}
		return tradable[i].state.symbol.ID < tradable[j].state.symbol.ID
	})
	return tradable
}

// executePendingOrders fills orders queued on the previous day at today's
// opening price. An order whose execution-day bar is missing is dropped, not
// carried forward.
func (e *Engine) executePendingOrders(ctx context.Context, date time.Time) {
	for _, id := range e.order {
		state := e.states[id]
		if len(state.pending) == 0 {
			continue
		}

		bar, ok := e.bars[id][date]
		if !ok {
			e.jobs.Warn(ctx, fmt.Sprintf("%s: no bar on %s, dropping %d pending order(s)",
				state.symbol.Code, date.Format("2006-01-02"), len(state.pending)),
				zap.String("symbol", state.symbol.Code))
			state.pending = nil
			continue
		}

		for _, order := range state.pending {
			if order.action == strategy.ActionBuy {
				state.executeBuy(e.run, order, date, bar.Open)
			} else {
				state.executeSell(e.run, order, date, bar.Open)
			}
		}
		state.pending = nil
	}
}

// detectSignals scans each tradable symbol's alert codes in their fixed order
// and queues at most one order per symbol for next-day execution.
func (e *Engine) detectSignals(date time.Time, tradable []tradableSymbol) {
	for _, item := range tradable {
		state := item.state
		alert, ok := e.alerts[state.symbol.ID][date]
		if !ok {
			continue
		}

		if state.flat() {
			if signal, ok := e.rules.FirstBuyMatch(alert.Codes); ok {
				state.pending = append(state.pending, pendingOrder{
					signalDate: date, action: strategy.ActionBuy, signal: signal,
				})
			}
		} else {
			if signal, ok := e.rules.FirstSellMatch(alert.Codes); ok {
				state.pending = append(state.pending, pendingOrder{
					signalDate: date, action: strategy.ActionSell, signal: signal,
				})
			}
		}
	}
}

// saveDailyStats snapshots every symbol's running statistics for the day,
// regardless of activity.
func (e *Engine) saveDailyStats(ctx context.Context, date time.Time) error {
	stats := make([]DailyStat, 0, len(e.order))
	for _, id := range e.order {
		state := e.states[id]
		sgn := state.meanGain()
		symbolID := id

		stat := DailyStat{
			RunID:       e.run.ID,
			SymbolID:    &symbolID,
			Date:        date,
			N:           state.closedTrades,
			SGN:         sgn,
			BT:          sgn.Mul(decimal.NewFromInt(int64(state.closedTrades))).Round(4),
			Cash:        state.cash,
			PositionQty: state.positionQty,
		}
		if g, ok := state.lastGain(); ok {
			stat.G = decimal.NullDecimal{Decimal: g, Valid: true}
		}
		stats = append(stats, stat)
	}
	return e.store.UpsertDailyStats(ctx, stats)
}

// closeAllPositions force-sells anything still open at the run's last day, at
// that day's closing price.
func (e *Engine) closeAllPositions(lastDate time.Time) {
	for _, id := range e.order {
		state := e.states[id]
		if state.flat() {
			continue
		}
		bar, ok := e.bars[id][lastDate]
		if !ok {
			continue
		}
		state.executeSell(e.run, pendingOrder{
			signalDate: lastDate,
			action:     strategy.ActionSell,
			signal:     ForcedCloseSignal,
		}, lastDate, bar.Close)
	}
}

// finalize bulk-writes all trades and computes the run-wide results.
func (e *Engine) finalize(ctx context.Context, tradingDays int) error {
	var (
		allTrades []Trade
		allGains  []decimal.Decimal
		totalN    int
	)
	for _, id := range e.order {
		state := e.states[id]
		allTrades = append(allTrades, state.trades...)
		allGains = append(allGains, state.gains...)
		totalN += state.closedTrades
	}

	if len(allTrades) > 0 {
		if err := e.store.InsertTrades(ctx, allTrades); err != nil {
			return fmt.Errorf("insert trades: %w", err)
		}
	}

	totalBT := decimal.Zero
	totalBMJ := decimal.Zero
	if totalN > 0 && len(allGains) > 0 {
		sum := decimal.Zero
		for _, g := range allGains {
			sum = sum.Add(g)
		}
		globalSGN := sum.Div(decimal.NewFromInt(int64(len(allGains))))
		totalBT = globalSGN.Mul(decimal.NewFromInt(int64(totalN))).Round(4)
		if tradingDays > 0 {
			totalBMJ = totalBT.Div(decimal.NewFromInt(int64(tradingDays))).Round(4)
		}
	}

	e.run.TotalBT = decimal.NullDecimal{Decimal: totalBT, Valid: true}
	e.run.TotalBMJ = decimal.NullDecimal{Decimal: totalBMJ, Valid: true}
	e.run.TotalTrades = len(allTrades)
	e.run.TradingDays = tradingDays
	return nil
}

// fail marks the run FAILED with the captured message. Already-persisted
// trade and stat rows are deliberately left in place.
func (e *Engine) fail(ctx context.Context, cause error) {
	e.run.Status = StatusFailed
	e.run.ErrorMessage = cause.Error()
	done := time.Now().UTC()
	e.run.CompletedAt = &done
	if err := e.store.UpdateRun(ctx, e.run); err != nil {
		e.jobs.Error(ctx, fmt.Sprintf("backtest run %s failed and status update also failed: %v", e.run.ID, err))
		return
	}
	e.jobs.Error(ctx, fmt.Sprintf("backtest run %s failed: %v", e.run.ID, cause))
}
