// Package rolling provides a fixed-size rolling window over decimal values.
package rolling

import "github.com/shopspring/decimal"

// Window holds the most recent values in a circular buffer.
// Only the last `size` pushed values are retained.
type Window struct {
	vals  []decimal.Decimal
	size  int
	head  int // next slot to write
	count int
}

// NewWindow creates a new Window with the given size.
func NewWindow(size int) *Window {
	if size <= 0 {
		panic("rolling window size must be positive")
	}
	return &Window{
		vals: make([]decimal.Decimal, size),
		size: size,
	}
}

// Push adds a value to the window, evicting the oldest one if full.
func (w *Window) Push(v decimal.Decimal) {
	w.vals[w.head] = v
	w.head = (w.head + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// Len returns the number of values currently held.
func (w *Window) Len() int { return w.count }

// Full reports whether the window holds exactly `size` values.
func (w *Window) Full() bool { return w.count == w.size }

// Max returns the maximum value in the window. It panics on an empty window.
func (w *Window) Max() decimal.Decimal {
	w.mustNotBeEmpty()
	max := w.vals[w.index(0)]
	for i := 1; i < w.count; i++ {
		if v := w.vals[w.index(i)]; v.GreaterThan(max) {
			max = v
		}
	}
	return max
}

// Min returns the minimum value in the window. It panics on an empty window.
func (w *Window) Min() decimal.Decimal {
	w.mustNotBeEmpty()
	min := w.vals[w.index(0)]
	for i := 1; i < w.count; i++ {
		if v := w.vals[w.index(i)]; v.LessThan(min) {
			min = v
		}
	}
	return min
}

// Sum returns the sum of all values in the window.
func (w *Window) Sum() decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i < w.count; i++ {
		sum = sum.Add(w.vals[w.index(i)])
	}
	return sum
}

// Mean returns the arithmetic mean of the window. It panics on an empty window.
func (w *Window) Mean() decimal.Decimal {
	w.mustNotBeEmpty()
	return w.Sum().Div(decimal.NewFromInt(int64(w.count)))
}

// PositiveStats returns the count and sum of strictly positive values.
func (w *Window) PositiveStats() (int, decimal.Decimal) {
	n := 0
	sum := decimal.Zero
	for i := 0; i < w.count; i++ {
		if v := w.vals[w.index(i)]; v.IsPositive() {
			n++
			sum = sum.Add(v)
		}
	}
	return n, sum
}

// Values returns the held values in the order they were pushed.
func (w *Window) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.vals[w.index(i)]
	}
	return out
}

// index maps a chronological offset (0 = oldest) to a buffer slot.
func (w *Window) index(i int) int {
	if w.count < w.size {
		return i
	}
	return (w.head + i) % w.size
}

func (w *Window) mustNotBeEmpty() {
	if w.count == 0 {
		panic("rolling window is empty")
	}
}
