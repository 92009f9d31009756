package backtest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/momet-screener/internal/backtest"
	"github.com/your-org/momet-screener/internal/datastore"
	"github.com/your-org/momet-screener/internal/indicator"
	"github.com/your-org/momet-screener/internal/joblog"
	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
	"github.com/your-org/momet-screener/internal/strategy"
)

const scenarioID = int64(7)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func engineScenario() *scenario.Scenario {
	one := decimal.NewFromInt(1)
	return &scenario.Scenario{
		ID:   scenarioID,
		Name: "engine-test",
		A:    one, B: one, C: one, D: one,
		E:  decimal.NewFromInt(2),
		N1: 1, N2: 1, N3: 1, N4: 1,
	}
}

func buySellRules(t *testing.T) *strategy.RuleSet {
	t.Helper()
	rs, err := strategy.NewRuleSet("test", []strategy.Rule{
		{Action: strategy.ActionBuy, Signal: "A1"},
		{Action: strategy.ActionSell, Signal: "B1"},
	})
	require.NoError(t, err)
	return rs
}

func addFlatBar(store *datastore.InMemStore, symbolID int64, dayN int, open, close string) {
	store.AddBars(symbolID, marketdata.DailyBar{
		SymbolID: symbolID,
		Date:     day(dayN),
		Open:     d(open), High: d(close), Low: d(open), Close: d(close),
		Volume: 1000,
	})
}

func addRatio(store *datastore.InMemStore, symbolID int64, dayN int, ratio string) {
	_ = store.UpsertMetrics(context.Background(), []indicator.Metric{{
		SymbolID:   symbolID,
		ScenarioID: scenarioID,
		Date:       day(dayN),
		RatioP:     decimal.NullDecimal{Decimal: d(ratio), Valid: true},
	}})
}

func addAlert(store *datastore.InMemStore, symbolID int64, dayN int, codes ...string) {
	_ = store.UpsertAlerts(context.Background(), []indicator.AlertEvent{{
		SymbolID:   symbolID,
		ScenarioID: scenarioID,
		Date:       day(dayN),
		Codes:      codes,
	}})
}

func newRun(ct, x string) *backtest.Run {
	return &backtest.Run{
		ID:         uuid.New(),
		Name:       "test-run",
		ScenarioID: scenarioID,
		StrategyID: 1,
		CT:         d(ct),
		X:          d(x),
	}
}

func TestEngineBuyThenForcedClose(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10.2")
	addFlatBar(store, 1, 3, "10.5", "10.8")
	addFlatBar(store, 1, 4, "11", "11")
	addRatio(store, 1, 1, "100")
	addAlert(store, 1, 1, "A1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, backtest.StatusCompleted, run.Status)
	assert.Equal(t, 1, run.TradingDays)
	assert.Equal(t, 2, run.TotalTrades)

	require.Len(t, store.Trades, 2)
	buy := store.Trades[0]
	assert.Equal(t, strategy.ActionBuy, buy.Action)
	assert.Equal(t, "A1", buy.Signal)
	// Signal on day 1 fills at day 2's open.
	assert.Equal(t, day(1), buy.SignalDate)
	assert.Equal(t, day(2), buy.ExecutionDate)
	assert.Equal(t, int64(100), buy.Quantity)
	assert.True(t, buy.CashAfter.IsZero())

	sell := store.Trades[1]
	assert.Equal(t, strategy.ActionSell, sell.Action)
	assert.Equal(t, backtest.ForcedCloseSignal, sell.Signal)
	assert.Equal(t, day(4), sell.ExecutionDate)
	require.True(t, sell.GainPct.Valid)
	assert.Equal(t, "10", sell.GainPct.Decimal.String())

	// One closed trade at +10% over one trading day.
	require.True(t, run.TotalBT.Valid)
	assert.Equal(t, "10", run.TotalBT.Decimal.String())
	require.True(t, run.TotalBMJ.Valid)
	assert.Equal(t, "10", run.TotalBMJ.Decimal.String())
}

func TestEngineDropsOrderWhenBarMissing(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	// No bar on day 2: the queued buy must be dropped, not carried forward.
	addFlatBar(store, 1, 3, "10", "10")
	addFlatBar(store, 1, 4, "10", "10")
	addRatio(store, 1, 1, "100")
	addAlert(store, 1, 1, "A1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, backtest.StatusCompleted, run.Status)
	assert.Empty(t, store.Trades)
	assert.Equal(t, 0, run.TotalTrades)
	require.True(t, run.TotalBT.Valid)
	assert.True(t, run.TotalBT.Decimal.IsZero())
}

func TestEngineSellOnSignal(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10")
	addFlatBar(store, 1, 3, "12", "12")
	addFlatBar(store, 1, 4, "12", "12")
	addRatio(store, 1, 1, "100")
	addRatio(store, 1, 2, "100")
	addAlert(store, 1, 1, "A1")
	addAlert(store, 1, 2, "B1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	// Buy fills day 2 at 10, the sell signal from day 2 fills day 3 at 12.
	require.Len(t, store.Trades, 2)
	sell := store.Trades[1]
	assert.Equal(t, "B1", sell.Signal)
	assert.Equal(t, day(3), sell.ExecutionDate)
	require.True(t, sell.GainPct.Valid)
	assert.Equal(t, "20", sell.GainPct.Decimal.String())
	assert.Equal(t, 2, run.TradingDays)
}

func TestEngineThresholdIsInclusive(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10")
	addRatio(store, 1, 1, "50")
	addRatio(store, 1, 2, "49.99")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	// ratio_P == X counts, 49.99 does not.
	assert.Equal(t, 1, run.TradingDays)
}

func TestEngineBuyQuantityIsFloored(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "333.34", "333.34")
	addFlatBar(store, 1, 3, "333.34", "333.34")
	addRatio(store, 1, 1, "100")
	addAlert(store, 1, 1, "A1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	require.NotEmpty(t, store.Trades)
	buy := store.Trades[0]
	// floor(1000 / 333.34) = 2 whole units, cost 666.68.
	assert.Equal(t, int64(2), buy.Quantity)
	assert.Equal(t, "333.32", buy.CashAfter.String())
	assert.False(t, buy.CashAfter.IsNegative())
}

func TestEngineHonorsCTOverride(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10")
	addFlatBar(store, 1, 3, "10", "10")
	addRatio(store, 1, 1, "100")
	addAlert(store, 1, 1, "A1")

	run := newRun("1000", "50")
	store.Overrides[run.ID] = map[int64]decimal.Decimal{1: d("500")}

	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	require.NotEmpty(t, store.Trades)
	// The per-symbol override replaces the run-wide CT of 1000.
	assert.Equal(t, int64(50), store.Trades[0].Quantity)
}

func TestEngineNoActiveSymbolsIsConfigError(t *testing.T) {
	store := datastore.NewInMemStore()

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	err := engine.Run(context.Background())
	require.Error(t, err)

	var cfgErr *scenario.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	// The run must not have been touched.
	assert.Empty(t, store.Runs)
	assert.NotEqual(t, backtest.StatusRunning, run.Status)
	assert.NotEqual(t, backtest.StatusFailed, run.Status)
}

// brokenBackfillStore fails the BMJ second pass while everything else works.
type brokenBackfillStore struct {
	*datastore.InMemStore
}

func (s *brokenBackfillStore) BackfillDailyStatBMJ(ctx context.Context, runID uuid.UUID, tradingDays int) error {
	return errors.New("backfill unavailable")
}

func TestEngineBackfillFailureMarksRunFailed(t *testing.T) {
	inner := datastore.NewInMemStore()
	inner.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(inner, 1, 1, "10", "10")
	addFlatBar(inner, 1, 2, "10", "10")
	addRatio(inner, 1, 1, "100")
	addAlert(inner, 1, 1, "A1")
	store := &brokenBackfillStore{InMemStore: inner}

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	err := engine.Run(context.Background())
	require.Error(t, err)

	// The stored run must not claim success when the second pass never ran.
	assert.Equal(t, backtest.StatusFailed, run.Status)
	stored, ok := inner.Runs[run.ID]
	require.True(t, ok)
	assert.Equal(t, backtest.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "backfill")
	require.NotNil(t, stored.CompletedAt)
}

func TestEngineRerunDoesNotDuplicateTrades(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10")
	addFlatBar(store, 1, 3, "11", "11")
	addRatio(store, 1, 1, "100")
	addAlert(store, 1, 1, "A1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))
	require.Len(t, store.Trades, 2)

	// Re-executing the same run replaces its rows instead of appending.
	rerun := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, rerun.Run(context.Background()))
	assert.Len(t, store.Trades, 2)
	assert.Equal(t, 2, run.TotalTrades)
}

func TestEngineBackfillsDailyStatBMJ(t *testing.T) {
	store := datastore.NewInMemStore()
	store.Symbols = []marketdata.Symbol{{ID: 1, Code: "AAA", IsActive: true}}
	addFlatBar(store, 1, 1, "10", "10")
	addFlatBar(store, 1, 2, "10", "10")
	addFlatBar(store, 1, 3, "12", "12")
	addFlatBar(store, 1, 4, "12", "12")
	addRatio(store, 1, 1, "100")
	addRatio(store, 1, 2, "100")
	addAlert(store, 1, 1, "A1")
	addAlert(store, 1, 2, "B1")

	run := newRun("1000", "50")
	engine := backtest.NewEngine(run, engineScenario(), buySellRules(t), store, joblog.NewNop())
	require.NoError(t, engine.Run(context.Background()))

	// One stat row per symbol per day, every one rewritten with
	// BMJ = BT / trading days after completion.
	require.Len(t, store.Stats, 4)
	for _, st := range store.Stats {
		require.True(t, st.BMJ.Valid)
		expected := st.BT.Div(decimal.NewFromInt(int64(run.TradingDays)))
		assert.True(t, st.BMJ.Decimal.Equal(expected))
	}
}
