package backtest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/strategy"
)

// Status is the lifecycle state of a backtest run.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ForcedCloseSignal marks the end-of-run liquidation of a still-open
// position.
const ForcedCloseSignal = "FORCED_CLOSE"

// Run is one backtest execution with its parameters and aggregate results.
type Run struct {
	ID         uuid.UUID
	Name       string
	ScenarioID int64
	StrategyID int64

	// CP is the global capital cap (0 = unlimited). It is recorded on the
	// run but does not constrain per-ticker sizing.
	CP decimal.Decimal
	// CT is the starting capital per ticker, unless overridden per symbol.
	CT decimal.Decimal
	// X is the tradability threshold on ratio_P, in percent, inclusive.
	X decimal.Decimal

	// Auto-derived from the intersection of available bar history.
	DateStart time.Time
	DateEnd   time.Time

	Status       Status
	TotalBT      decimal.NullDecimal
	TotalBMJ     decimal.NullDecimal
	TotalTrades  int
	TradingDays  int
	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Trade is one executed BUY or SELL.
type Trade struct {
	RunID         uuid.UUID
	SymbolID      int64
	SignalDate    time.Time
	ExecutionDate time.Time
	Action        strategy.Action
	Signal        string
	Quantity      int64
	Price         decimal.Decimal
	CashBefore    decimal.Decimal
	CashAfter     decimal.Decimal
	// GainPct is only set on SELL trades.
	GainPct decimal.NullDecimal
}

// DailyStat is the per-day snapshot of one symbol's simulation state.
// A nil SymbolID denotes a run-wide aggregate row.
type DailyStat struct {
	RunID    uuid.UUID
	SymbolID *int64
	Date     time.Time

	// N is the closed-trade count, G the last realized gain, SGN the mean of
	// all realized gains, BT = SGN * N.
	N   int
	G   decimal.NullDecimal
	SGN decimal.Decimal
	BT  decimal.Decimal
	// BMJ is back-filled as BT / trading-day count once the run completes.
	BMJ decimal.NullDecimal

	Cash        decimal.Decimal
	PositionQty int64
}
