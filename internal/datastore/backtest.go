package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/backtest"
	"github.com/your-org/momet-screener/internal/marketdata"
)

// CreateRun inserts a new backtest run in CREATED state.
func (r *Repository) CreateRun(ctx context.Context, run *backtest.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = backtest.StatusCreated
	run.CreatedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx, `
        INSERT INTO backtest_runs (id, name, scenario_id, strategy_id, cp, ct, x, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `, run.ID, run.Name, run.ScenarioID, run.StrategyID, run.CP, run.CT, run.X, run.Status, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RunByID loads one backtest run.
func (r *Repository) RunByID(ctx context.Context, id uuid.UUID) (*backtest.Run, error) {
	var (
		run       backtest.Run
		dateStart *time.Time
		dateEnd   *time.Time
		days      *int
	)
	err := r.db.QueryRow(ctx, `
        SELECT id, name, scenario_id, strategy_id, cp, ct, x,
               date_start, date_end, status, total_bt, total_bmj,
               total_trades, trading_days, error_message,
               created_at, started_at, completed_at
        FROM backtest_runs
        WHERE id = $1;
    `, id).Scan(&run.ID, &run.Name, &run.ScenarioID, &run.StrategyID,
		&run.CP, &run.CT, &run.X, &dateStart, &dateEnd, &run.Status,
		&run.TotalBT, &run.TotalBMJ, &run.TotalTrades, &days,
		&run.ErrorMessage, &run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if dateStart != nil {
		run.DateStart = marketdata.Day(*dateStart)
	}
	if dateEnd != nil {
		run.DateEnd = marketdata.Day(*dateEnd)
	}
	if days != nil {
		run.TradingDays = *days
	}
	return &run, nil
}

// UpdateRun persists the run's mutable fields: period, status, results and
// timestamps.
func (r *Repository) UpdateRun(ctx context.Context, run *backtest.Run) error {
	var dateStart, dateEnd interface{}
	if !run.DateStart.IsZero() {
		dateStart = run.DateStart
	}
	if !run.DateEnd.IsZero() {
		dateEnd = run.DateEnd
	}

	_, err := r.db.Exec(ctx, `
        UPDATE backtest_runs SET
            date_start = $2, date_end = $3, status = $4,
            total_bt = $5, total_bmj = $6, total_trades = $7,
            trading_days = $8, error_message = $9,
            started_at = $10, completed_at = $11
        WHERE id = $1;
    `, run.ID, dateStart, dateEnd, run.Status,
		run.TotalBT, run.TotalBMJ, run.TotalTrades,
		run.TradingDays, run.ErrorMessage, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

// SetCTOverride records a per-symbol starting-capital override for a run.
func (r *Repository) SetCTOverride(ctx context.Context, runID uuid.UUID, symbolID int64, ct decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO backtest_run_symbol_settings (run_id, symbol_id, ct_override)
        VALUES ($1, $2, $3)
        ON CONFLICT (run_id, symbol_id) DO UPDATE SET ct_override = EXCLUDED.ct_override;
    `, runID, symbolID, ct)
	if err != nil {
		return fmt.Errorf("set CT override: %w", err)
	}
	return nil
}

// CTOverrides returns the per-symbol starting-capital overrides of a run.
func (r *Repository) CTOverrides(ctx context.Context, runID uuid.UUID) (map[int64]decimal.Decimal, error) {
	rows, err := r.db.Query(ctx, `
        SELECT symbol_id, ct_override
        FROM backtest_run_symbol_settings
        WHERE run_id = $1;
    `, runID)
	if err != nil {
		return nil, fmt.Errorf("query CT overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var symbolID int64
		var ct decimal.Decimal
		if err := rows.Scan(&symbolID, &ct); err != nil {
			return nil, fmt.Errorf("scan CT override: %w", err)
		}
		overrides[symbolID] = ct
	}
	return overrides, rows.Err()
}

// InsertTrades replaces the run's trades using COPY. Trade rows carry no
// natural key, so idempotence comes from clearing the run's rows first.
func (r *Repository) InsertTrades(ctx context.Context, trades []backtest.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM backtest_trades WHERE run_id = $1;`,
		trades[0].RunID); err != nil {
		return fmt.Errorf("clear trades: %w", err)
	}

	rows := make([][]interface{}, len(trades))
	for i, t := range trades {
		rows[i] = []interface{}{
			t.RunID, t.SymbolID, t.SignalDate, t.ExecutionDate,
			string(t.Action), t.Signal, t.Quantity, t.Price,
			t.CashBefore, t.CashAfter, t.GainPct,
		}
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"backtest_trades"},
		[]string{"run_id", "symbol_id", "signal_date", "execution_date",
			"action", "signal", "quantity", "price",
			"cash_before", "cash_after", "gain_pct"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy %d trades: %w", len(trades), err)
	}
	return nil
}

// TradesByRun returns a run's trades ordered by execution date.
func (r *Repository) TradesByRun(ctx context.Context, runID uuid.UUID) ([]backtest.Trade, error) {
	rows, err := r.db.Query(ctx, `
        SELECT run_id, symbol_id, signal_date, execution_date, action, signal,
               quantity, price, cash_before, cash_after, gain_pct
        FROM backtest_trades
        WHERE run_id = $1
        ORDER BY execution_date, symbol_id;
    `, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []backtest.Trade
	for rows.Next() {
		var t backtest.Trade
		err := rows.Scan(&t.RunID, &t.SymbolID, &t.SignalDate, &t.ExecutionDate,
			&t.Action, &t.Signal, &t.Quantity, &t.Price,
			&t.CashBefore, &t.CashAfter, &t.GainPct)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.SignalDate = marketdata.Day(t.SignalDate)
		t.ExecutionDate = marketdata.Day(t.ExecutionDate)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// UpsertDailyStats bulk-writes one day's stat snapshots, replacing existing
// rows for the same (run, symbol, date).
func (r *Repository) UpsertDailyStats(ctx context.Context, stats []backtest.DailyStat) error {
	if len(stats) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range stats {
		batch.Queue(`
            INSERT INTO backtest_daily_stats
                (run_id, symbol_id, date, n, g, s_g_n, bt, bmj, cash, position_qty)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
            ON CONFLICT (run_id, COALESCE(symbol_id, -1), date) DO UPDATE SET
                n = EXCLUDED.n, g = EXCLUDED.g, s_g_n = EXCLUDED.s_g_n,
                bt = EXCLUDED.bt, bmj = EXCLUDED.bmj,
                cash = EXCLUDED.cash, position_qty = EXCLUDED.position_qty;
        `, s.RunID, s.SymbolID, s.Date, s.N, s.G, s.SGN, s.BT, s.BMJ, s.Cash, s.PositionQty)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d daily stats: %w", len(stats), err)
	}
	return nil
}

// BackfillDailyStatBMJ rewrites every stat row's BMJ as BT / tradingDays.
// This runs as a second pass after the daily loop, once the trading-day count
// is known.
func (r *Repository) BackfillDailyStatBMJ(ctx context.Context, runID uuid.UUID, tradingDays int) error {
	if tradingDays <= 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
        UPDATE backtest_daily_stats
        SET bmj = bt / $2
        WHERE run_id = $1;
    `, runID, tradingDays)
	if err != nil {
		return fmt.Errorf("backfill BMJ: %w", err)
	}
	return nil
}
