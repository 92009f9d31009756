package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/momet-screener/internal/joblog"
)

type fakeSource struct {
	bars      []DailyBar
	err       error
	lastStart time.Time
	calls     int
}

func (f *fakeSource) FetchTimeSeries(ctx context.Context, sym Symbol, startDate, endDate time.Time) ([]DailyBar, error) {
	f.calls++
	f.lastStart = startDate
	return f.bars, f.err
}

type fakeBarStore struct {
	last     time.Time
	hasLast  bool
	upserted []DailyBar
}

func (f *fakeBarStore) LastBarDate(ctx context.Context, symbolID int64) (time.Time, bool, error) {
	return f.last, f.hasLast, nil
}

func (f *fakeBarStore) UpsertBars(ctx context.Context, bars []DailyBar) error {
	f.upserted = append(f.upserted, bars...)
	return nil
}

func sampleBar(day int) DailyBar {
	p := decimal.NewFromInt(10)
	return DailyBar{
		SymbolID: 1,
		Date:     time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Open:     p, High: p, Low: p, Close: p,
		Volume: 100,
	}
}

func TestFetchSymbolResumesAfterLastBar(t *testing.T) {
	source := &fakeSource{bars: []DailyBar{sampleBar(11)}}
	store := &fakeBarStore{
		last:    time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		hasLast: true,
	}
	fetcher := NewFetcher(source, store, joblog.NewNop())

	count, err := fetcher.FetchSymbol(context.Background(), Symbol{ID: 1, Code: "AAA"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), source.lastStart)
	assert.Len(t, store.upserted, 1)
}

func TestFetchSymbolFullHistoryWhenEmpty(t *testing.T) {
	source := &fakeSource{bars: []DailyBar{sampleBar(1), sampleBar(2)}}
	store := &fakeBarStore{}
	fetcher := NewFetcher(source, store, joblog.NewNop())

	count, err := fetcher.FetchSymbol(context.Background(), Symbol{ID: 1, Code: "AAA"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, source.lastStart.IsZero())
}

func TestFetchSymbolAlreadyUpToDate(t *testing.T) {
	source := &fakeSource{}
	store := &fakeBarStore{last: Day(time.Now().UTC()), hasLast: true}
	fetcher := NewFetcher(source, store, joblog.NewNop())

	count, err := fetcher.FetchSymbol(context.Background(), Symbol{ID: 1, Code: "AAA"})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, source.calls)
	assert.Empty(t, store.upserted)
}

func TestFetchAllCountsFailures(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	store := &fakeBarStore{}
	fetcher := NewFetcher(source, store, joblog.NewNop())

	result := fetcher.FetchAll(context.Background(), []Symbol{
		{ID: 1, Code: "AAA"},
		{ID: 2, Code: "BBB"},
	})
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Succeeded)
}
