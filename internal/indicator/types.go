package indicator

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metric is one day's computed indicator record for a (symbol, scenario)
// pair. Fields downstream of a rolling window stay null until the window has
// been fully populated.
type Metric struct {
	SymbolID   int64
	ScenarioID int64
	Date       time.Time

	// Weighted price, always present on an emitted record.
	P decimal.Decimal

	// Rolling extremes over N1 and their N2-smoothed values.
	M  decimal.NullDecimal
	X  decimal.NullDecimal
	M1 decimal.NullDecimal
	X1 decimal.NullDecimal

	// Channel.
	T decimal.NullDecimal
	Q decimal.NullDecimal
	S decimal.NullDecimal

	// Signals.
	K1 decimal.NullDecimal
	K2 decimal.NullDecimal
	K3 decimal.NullDecimal
	K4 decimal.NullDecimal

	// Trend and tradability.
	V      decimal.NullDecimal
	SlopeP decimal.NullDecimal
	RatioP decimal.NullDecimal
	AmpH   decimal.NullDecimal
}

// AlertEvent is the set of crossing alerts fired for a (symbol, scenario)
// on one day. Codes keep the fixed K1..K4 scan order.
type AlertEvent struct {
	SymbolID   int64
	ScenarioID int64
	Date       time.Time
	Codes      []string
}

// CodesCSV renders the codes as the stored comma-separated form, e.g. "A1,E1".
func (a AlertEvent) CodesCSV() string {
	return strings.Join(a.Codes, ",")
}

// ParseCodes splits a stored comma-separated code list.
func ParseCodes(csv string) []string {
	var out []string
	for _, c := range strings.Split(csv, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
