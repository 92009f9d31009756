package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/indicator"
	"github.com/your-org/momet-screener/internal/marketdata"
)

// LastMetricDate returns the most recent computed metric date for a
// (symbol, scenario) pair, with ok=false when nothing has been computed yet.
func (r *Repository) LastMetricDate(ctx context.Context, symbolID, scenarioID int64) (time.Time, bool, error) {
	var date time.Time
	err := r.db.QueryRow(ctx, `
        SELECT date FROM daily_metrics
        WHERE symbol_id = $1 AND scenario_id = $2
        ORDER BY date DESC LIMIT 1;
    `, symbolID, scenarioID).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last metric date: %w", err)
	}
	return marketdata.Day(date), true, nil
}

// UpsertMetrics bulk-writes indicator records, replacing existing rows for
// the same (symbol, scenario, date).
func (r *Repository) UpsertMetrics(ctx context.Context, metrics []indicator.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
            INSERT INTO daily_metrics
                (symbol_id, scenario_id, date, p, m, x, m1, x1, t, q, s,
                 k1, k2, k3, k4, v, slope_p, ratio_p, amp_h)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
                    $12, $13, $14, $15, $16, $17, $18, $19)
            ON CONFLICT (symbol_id, scenario_id, date) DO UPDATE SET
                p = EXCLUDED.p, m = EXCLUDED.m, x = EXCLUDED.x,
                m1 = EXCLUDED.m1, x1 = EXCLUDED.x1, t = EXCLUDED.t,
                q = EXCLUDED.q, s = EXCLUDED.s,
                k1 = EXCLUDED.k1, k2 = EXCLUDED.k2,
                k3 = EXCLUDED.k3, k4 = EXCLUDED.k4,
                v = EXCLUDED.v, slope_p = EXCLUDED.slope_p,
                ratio_p = EXCLUDED.ratio_p, amp_h = EXCLUDED.amp_h;
        `, m.SymbolID, m.ScenarioID, m.Date, m.P, m.M, m.X, m.M1, m.X1,
			m.T, m.Q, m.S, m.K1, m.K2, m.K3, m.K4, m.V, m.SlopeP, m.RatioP, m.AmpH)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d metrics: %w", len(metrics), err)
	}
	return nil
}

// UpsertAlerts bulk-writes alert events, replacing existing rows for the same
// (symbol, scenario, date).
func (r *Repository) UpsertAlerts(ctx context.Context, alerts []indicator.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(`
            INSERT INTO alerts (symbol_id, scenario_id, date, alert_codes)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (symbol_id, scenario_id, date) DO UPDATE SET
                alert_codes = EXCLUDED.alert_codes;
        `, a.SymbolID, a.ScenarioID, a.Date, a.CodesCSV())
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d alerts: %w", len(alerts), err)
	}
	return nil
}

// MetricsBetween returns a symbol's metrics for a scenario within
// [start, end], chronological.
func (r *Repository) MetricsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.Metric, error) {
	rows, err := r.db.Query(ctx, `
        SELECT symbol_id, scenario_id, date, p, m, x, m1, x1, t, q, s,
               k1, k2, k3, k4, v, slope_p, ratio_p, amp_h
        FROM daily_metrics
        WHERE symbol_id = $1 AND scenario_id = $2 AND date >= $3 AND date <= $4
        ORDER BY date ASC;
    `, symbolID, scenarioID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []indicator.Metric
	for rows.Next() {
		var m indicator.Metric
		err := rows.Scan(&m.SymbolID, &m.ScenarioID, &m.Date, &m.P,
			&m.M, &m.X, &m.M1, &m.X1, &m.T, &m.Q, &m.S,
			&m.K1, &m.K2, &m.K3, &m.K4, &m.V, &m.SlopeP, &m.RatioP, &m.AmpH)
		if err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Date = marketdata.Day(m.Date)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// AlertsBetween returns a symbol's alert events for a scenario within
// [start, end], chronological.
func (r *Repository) AlertsBetween(ctx context.Context, symbolID, scenarioID int64, start, end time.Time) ([]indicator.AlertEvent, error) {
	rows, err := r.db.Query(ctx, `
        SELECT symbol_id, scenario_id, date, alert_codes
        FROM alerts
        WHERE symbol_id = $1 AND scenario_id = $2 AND date >= $3 AND date <= $4
        ORDER BY date ASC;
    `, symbolID, scenarioID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []indicator.AlertEvent
	for rows.Next() {
		var a indicator.AlertEvent
		var codes string
		if err := rows.Scan(&a.SymbolID, &a.ScenarioID, &a.Date, &codes); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Date = marketdata.Day(a.Date)
		a.Codes = indicator.ParseCodes(codes)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertDigestRow is one line of the daily alert digest: an alert joined with
// its symbol, scenario and tradability indicators.
type AlertDigestRow struct {
	SymbolCode   string
	ScenarioName string
	Codes        string
	RatioP       decimal.NullDecimal
	AmpH         decimal.NullDecimal
}

// AlertDigestRows loads all alerts of one day with their context, for the
// notification digest.
func (r *Repository) AlertDigestRows(ctx context.Context, date time.Time) ([]AlertDigestRow, error) {
	rows, err := r.db.Query(ctx, `
        SELECT s.code, sc.name, a.alert_codes, dm.ratio_p, dm.amp_h
        FROM alerts a
        JOIN symbols s ON s.id = a.symbol_id
        JOIN scenarios sc ON sc.id = a.scenario_id
        LEFT JOIN daily_metrics dm
            ON dm.symbol_id = a.symbol_id
           AND dm.scenario_id = a.scenario_id
           AND dm.date = a.date
        WHERE a.date = $1
        ORDER BY s.code, sc.name;
    `, date)
	if err != nil {
		return nil, fmt.Errorf("query alert digest: %w", err)
	}
	defer rows.Close()

	var out []AlertDigestRow
	for rows.Next() {
		var row AlertDigestRow
		if err := rows.Scan(&row.SymbolCode, &row.ScenarioName, &row.Codes, &row.RatioP, &row.AmpH); err != nil {
			return nil, fmt.Errorf("scan alert digest row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
