package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/strategy"
)

// pendingOrder is a signal waiting for next-day execution.
type pendingOrder struct {
	signalDate time.Time
	action     strategy.Action
	signal     string
}

// tickerState is the ephemeral per-symbol simulation state, owned exclusively
// by one engine instance for the run's lifetime.
type tickerState struct {
	symbol marketdata.Symbol
	cash   decimal.Decimal

	positionQty int64
	entryPrice  decimal.Decimal
	entryDate   time.Time

	closedTrades int
	gains        []decimal.Decimal
	trades       []Trade
	pending      []pendingOrder
}

func newTickerState(sym marketdata.Symbol, ct decimal.Decimal) *tickerState {
	return &tickerState{symbol: sym, cash: ct}
}

func (s *tickerState) flat() bool { return s.positionQty == 0 }

// executeBuy opens a position at the given price, spending as much of the
// available cash as whole units allow. A zero quantity is a no-op, never an
// error.
func (s *tickerState) executeBuy(run *Run, order pendingOrder, execDate time.Time, price decimal.Decimal) {
	if !s.flat() {
		return
	}
	qty := s.cash.Div(price).Floor().IntPart()
	if qty <= 0 {
		return
	}

	cost := price.Mul(decimal.NewFromInt(qty))
	cashBefore := s.cash
	s.cash = s.cash.Sub(cost)
	s.positionQty = qty
	s.entryPrice = price
	s.entryDate = order.signalDate

	s.trades = append(s.trades, Trade{
		RunID:         run.ID,
		SymbolID:      s.symbol.ID,
		SignalDate:    order.signalDate,
		ExecutionDate: execDate,
		Action:        strategy.ActionBuy,
		Signal:        order.signal,
		Quantity:      qty,
		Price:         price,
		CashBefore:    cashBefore,
		CashAfter:     s.cash,
	})
}

// executeSell liquidates the full position at the given price and records the
// realized gain percentage.
func (s *tickerState) executeSell(run *Run, order pendingOrder, execDate time.Time, price decimal.Decimal) {
	if s.flat() {
		return
	}

	qty := s.positionQty
	proceeds := price.Mul(decimal.NewFromInt(qty))
	gainPct := price.Sub(s.entryPrice).Div(s.entryPrice).Mul(decimal.NewFromInt(100)).Round(4)

	cashBefore := s.cash
	s.cash = s.cash.Add(proceeds)
	s.positionQty = 0
	s.entryPrice = decimal.Zero
	s.entryDate = time.Time{}

	s.closedTrades++
	s.gains = append(s.gains, gainPct)

	s.trades = append(s.trades, Trade{
		RunID:         run.ID,
		SymbolID:      s.symbol.ID,
		SignalDate:    order.signalDate,
		ExecutionDate: execDate,
		Action:        strategy.ActionSell,
		Signal:        order.signal,
		Quantity:      qty,
		Price:         price,
		CashBefore:    cashBefore,
		CashAfter:     s.cash,
		GainPct:       decimal.NullDecimal{Decimal: gainPct, Valid: true},
	})
}

// meanGain returns the mean of all realized gains so far, zero when no trade
// has closed yet.
func (s *tickerState) meanGain() decimal.Decimal {
	if len(s.gains) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, g := range s.gains {
		sum = sum.Add(g)
	}
	return sum.Div(decimal.NewFromInt(int64(len(s.gains)))).Round(4)
}

// lastGain returns the most recent realized gain, if any.
func (s *tickerState) lastGain() (decimal.Decimal, bool) {
	if len(s.gains) == 0 {
		return decimal.Zero, false
	}
	return s.gains[len(s.gains)-1], true
}
