package rolling

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func push(w *Window, vals ...string) {
	for _, v := range vals {
		w.Push(d(v))
	}
}

func TestWindowFillAndEvict(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, 0, w.Len())
	assert.False(t, w.Full())

	push(w, "1", "2")
	assert.Equal(t, 2, w.Len())
	assert.False(t, w.Full())

	push(w, "3")
	require.True(t, w.Full())

	// A fourth value evicts the oldest.
	push(w, "4")
	assert.Equal(t, 3, w.Len())
	vals := w.Values()
	require.Len(t, vals, 3)
	assert.True(t, vals[0].Equal(d("2")))
	assert.True(t, vals[2].Equal(d("4")))
}

func TestWindowMaxMin(t *testing.T) {
	w := NewWindow(4)
	push(w, "3", "-1", "7", "2")
	assert.True(t, w.Max().Equal(d("7")))
	assert.True(t, w.Min().Equal(d("-1")))

	// Eviction of the current max must be reflected.
	push(w, "0")
	assert.True(t, w.Max().Equal(d("7")))
	push(w, "0") // evicts -1
	push(w, "0") // evicts 7
	assert.True(t, w.Max().Equal(d("2")))
}

func TestWindowMean(t *testing.T) {
	w := NewWindow(4)
	push(w, "1", "2", "3")
	// Mean over the held values, not the capacity.
	assert.True(t, w.Mean().Equal(d("2")))
	push(w, "6")
	assert.True(t, w.Mean().Equal(d("3")))
}

func TestWindowPositiveStats(t *testing.T) {
	w := NewWindow(5)
	push(w, "1.5", "-2", "0", "3", "-0.5")
	n, sum := w.PositiveStats()
	assert.Equal(t, 2, n)
	assert.True(t, sum.Equal(d("4.5")))
}

func TestWindowEmptyPanics(t *testing.T) {
	w := NewWindow(2)
	assert.Panics(t, func() { w.Max() })
	assert.Panics(t, func() { w.Mean() })
	assert.Panics(t, func() { NewWindow(0) })
}
