package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReadBarsCSV parses daily bars from a CSV stream with the header
// date,open,high,low,close,volume. Rows keep their file order; dates must be
// ISO (2006-01-02).
func ReadBarsCSV(r io.Reader, symbolID int64) ([]DailyBar, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", required)
		}
	}

	var bars []DailyBar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read CSV line %d: %w", line, err)
		}

		date, err := time.ParseInLocation("2006-01-02", record[col["date"]], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse date: %w", line, err)
		}
		open, err := decimal.NewFromString(record[col["open"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse open: %w", line, err)
		}
		high, err := decimal.NewFromString(record[col["high"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse high: %w", line, err)
		}
		low, err := decimal.NewFromString(record[col["low"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse low: %w", line, err)
		}
		closeP, err := decimal.NewFromString(record[col["close"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: parse close: %w", line, err)
		}
		volume, err := strconv.ParseInt(record[col["volume"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: parse volume: %w", line, err)
		}
		if volume < 0 {
			return nil, fmt.Errorf("line %d: negative volume", line)
		}

		bars = append(bars, DailyBar{
			SymbolID: symbolID,
			Date:     date,
			Open:     open, High: high, Low: low, Close: closeP,
			Volume: volume,
		})
	}
	return bars, nil
}
