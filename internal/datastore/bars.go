package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/your-org/momet-screener/internal/marketdata"
)

// UpsertBars writes bars in one batch, replacing any existing row for the
// same (symbol, date).
func (r *Repository) UpsertBars(ctx context.Context, bars []marketdata.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
            INSERT INTO daily_bars (symbol_id, date, open, high, low, close, volume)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            ON CONFLICT (symbol_id, date) DO UPDATE SET
                open = EXCLUDED.open, high = EXCLUDED.high,
                low = EXCLUDED.low, close = EXCLUDED.close,
                volume = EXCLUDED.volume;
        `, b.SymbolID, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert %d bars: %w", len(bars), err)
	}
	return nil
}

// BarsFrom returns the symbol's bars on or after from in chronological order.
// A zero from returns the full history.
func (r *Repository) BarsFrom(ctx context.Context, symbolID int64, from time.Time) ([]marketdata.DailyBar, error) {
	query := `
        SELECT symbol_id, date, open, high, low, close, volume
        FROM daily_bars
        WHERE symbol_id = $1 AND ($2::date IS NULL OR date >= $2)
        ORDER BY date ASC;
    `
	var fromArg interface{}
	if !from.IsZero() {
		fromArg = from
	}
	return r.scanBars(ctx, query, symbolID, fromArg)
}

// BarsBetween returns the symbol's bars within [start, end], chronological.
func (r *Repository) BarsBetween(ctx context.Context, symbolID int64, start, end time.Time) ([]marketdata.DailyBar, error) {
	query := `
        SELECT symbol_id, date, open, high, low, close, volume
        FROM daily_bars
        WHERE symbol_id = $1 AND date >= $2 AND date <= $3
        ORDER BY date ASC;
    `
	return r.scanBars(ctx, query, symbolID, start, end)
}

func (r *Repository) scanBars(ctx context.Context, query string, args ...interface{}) ([]marketdata.DailyBar, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []marketdata.DailyBar
	for rows.Next() {
		var b marketdata.DailyBar
		if err := rows.Scan(&b.SymbolID, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Date = marketdata.Day(b.Date)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// BarDateRange returns the first and last bar dates of a symbol. ok is false
// when the symbol has no bars at all.
func (r *Repository) BarDateRange(ctx context.Context, symbolID int64) (first, last time.Time, ok bool, err error) {
	query := `
        SELECT MIN(date), MAX(date)
        FROM daily_bars
        WHERE symbol_id = $1;
    `
	var minDate, maxDate *time.Time
	if err = r.db.QueryRow(ctx, query, symbolID).Scan(&minDate, &maxDate); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("bar date range: %w", err)
	}
	if minDate == nil || maxDate == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return marketdata.Day(*minDate), marketdata.Day(*maxDate), true, nil
}

// LastBarDate returns the most recent bar date of a symbol, with ok=false
// when none is stored.
func (r *Repository) LastBarDate(ctx context.Context, symbolID int64) (time.Time, bool, error) {
	var date time.Time
	err := r.db.QueryRow(ctx, `
        SELECT date FROM daily_bars WHERE symbol_id = $1 ORDER BY date DESC LIMIT 1;
    `, symbolID).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last bar date: %w", err)
	}
	return marketdata.Day(date), true, nil
}
