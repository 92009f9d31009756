// Package indicator derives the daily rolling-window indicator cascade and
// its crossing alerts from raw OHLCV bars.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/marketdata"
	"github.com/your-org/momet-screener/internal/scenario"
	"github.com/your-org/momet-screener/pkg/rolling"
)

// Alert codes by signal and crossing direction. Each Ki flipping from a
// strict negative to a strict positive sign emits the first code of its pair,
// the opposite flip emits the second.
var crossingCodes = [4][2]string{
	{"A1", "B1"}, // K1
	{"C1", "D1"}, // K2
	{"E1", "F1"}, // K3
	{"G1", "H1"}, // K4
}

var hundred = decimal.NewFromInt(100)

// Calculator walks one symbol's bar history in chronological order and
// produces a Metric plus zero or more alert codes per trading day. It owns
// the rolling caches, so one Calculator must never be shared across symbols
// or fed out of order.
type Calculator struct {
	scn       *scenario.Scenario
	weightSum decimal.Decimal

	pWin     *rolling.Window // P values, length N1
	mWin     *rolling.Window // M values, length N2
	xWin     *rolling.Window // X values, length N2
	vWin     *rolling.Window // V values, length N3
	slopeWin *rolling.Window // slope_P values, length N4

	prevClose decimal.NullDecimal

	// Last strictly-signed value of each K. Zero carries no sign, so a move
	// away from zero only counts as a crossing against the last strict sign.
	lastKSign [4]int
}

// NewCalculator validates the scenario and prepares the rolling caches.
func NewCalculator(scn *scenario.Scenario) (*Calculator, error) {
	if err := scn.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		scn:       scn,
		weightSum: scn.WeightSum(),
		pWin:      rolling.NewWindow(scn.N1),
		mWin:      rolling.NewWindow(scn.N2),
		xWin:      rolling.NewWindow(scn.N2),
		vWin:      rolling.NewWindow(scn.N3),
		slopeWin:  rolling.NewWindow(scn.N4),
	}, nil
}

// Step consumes the next bar. It returns the day's metric, the alert codes
// fired that day and whether a record was emitted at all: until N1 days of P
// are available the day contributes nothing (a hard gate, not a partial
// window).
func (c *Calculator) Step(bar marketdata.DailyBar) (Metric, []string, bool) {
	p := c.weightedPrice(bar)
	c.pWin.Push(p)

	// Daily variation needs yesterday's close, even on gated days.
	var v decimal.NullDecimal
	if c.prevClose.Valid && !c.prevClose.Decimal.IsZero() {
		v = valid(bar.Close.Sub(c.prevClose.Decimal).Mul(hundred).Div(c.prevClose.Decimal).Round(4))
		c.vWin.Push(v.Decimal)
	}
	c.prevClose = valid(bar.Close)

	if !c.pWin.Full() {
		return Metric{}, nil, false
	}

	m := Metric{
		SymbolID:   bar.SymbolID,
		ScenarioID: c.scn.ID,
		Date:       bar.Date,
		P:          p,
		M:          valid(c.pWin.Max()),
		X:          valid(c.pWin.Min()),
		V:          v,
	}
	c.mWin.Push(m.M.Decimal)
	c.xWin.Push(m.X.Decimal)

	var codes []string
	if c.mWin.Full() {
		m1 := c.mWin.Mean()
		x1 := c.xWin.Mean()
		t := m1.Sub(x1).Div(c.scn.E)
		m.M1 = valid(m1.Round(4))
		m.X1 = valid(x1.Round(4))
		m.T = valid(t.Round(4))
		m.Q = valid(m1.Sub(t).Round(4))
		m.S = valid(m1.Add(t).Round(4))
		m.K1 = valid(p.Sub(m1).Round(4))
		m.K2 = valid(p.Sub(x1).Round(4))
		m.K3 = valid(p.Sub(m.Q.Decimal).Round(4))
		m.K4 = valid(p.Sub(m.S.Decimal).Round(4))
		codes = c.detectCrossings([4]decimal.Decimal{
			m.K1.Decimal, m.K2.Decimal, m.K3.Decimal, m.K4.Decimal,
		})
	}

	if c.vWin.Full() {
		slope := c.vWin.Mean().Round(4)
		m.SlopeP = valid(slope)
		c.slopeWin.Push(slope)

		if c.slopeWin.Full() {
			nbPos, sumPos := c.slopeWin.PositiveStats()
			m.RatioP = valid(decimal.NewFromInt(int64(nbPos)).Mul(hundred).
				Div(decimal.NewFromInt(int64(c.scn.N4))).Round(2))
			if nbPos > 0 {
				m.AmpH = valid(sumPos.Mul(hundred).
					Div(decimal.NewFromInt(int64(nbPos * c.scn.N3))).Round(2))
			} else {
				m.AmpH = valid(decimal.Zero)
			}
		}
	}

	return m, codes, true
}

// weightedPrice computes P = (a*close + b*high + c*low + d*open) / (a+b+c+d),
// rounded half-up to 4 decimal places. The weight sum was checked at
// construction time.
func (c *Calculator) weightedPrice(bar marketdata.DailyBar) decimal.Decimal {
	sum := c.scn.A.Mul(bar.Close).
		Add(c.scn.B.Mul(bar.High)).
		Add(c.scn.C.Mul(bar.Low)).
		Add(c.scn.D.Mul(bar.Open))
	return sum.Div(c.weightSum).Round(4)
}

// detectCrossings compares today's K signs against the last strictly-signed
// values and emits the fixed code for every strict sign flip. The first day
// with K values never fires.
func (c *Calculator) detectCrossings(ks [4]decimal.Decimal) []string {
	var codes []string
	for i, k := range ks {
		sign := k.Sign()
		if sign == 0 {
			continue
		}
		if last := c.lastKSign[i]; last != 0 && last != sign {
			if sign > 0 {
				codes = append(codes, crossingCodes[i][0])
			} else {
				codes = append(codes, crossingCodes[i][1])
			}
		}
		c.lastKSign[i] = sign
	}
	return codes
}

func valid(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
