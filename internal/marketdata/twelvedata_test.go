package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/momet-screener/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *TwelveDataClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewTwelveDataClient(config.TwelveDataConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		// High enough that the limiter never blocks the test.
		RequestsPerMinute: 600000,
	})
	require.NoError(t, err)
	return client
}

func TestNewTwelveDataClientRequiresKey(t *testing.T) {
	_, err := NewTwelveDataClient(config.TwelveDataConfig{BaseURL: "http://x"})
	require.Error(t, err)
}

func TestFetchTimeSeries(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1day", r.URL.Query().Get("interval"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start_date"))

		// Newest first, with one malformed row in the middle.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"values": []map[string]string{
				{"datetime": "2024-01-03", "open": "11", "high": "12", "low": "10", "close": "11.5", "volume": "300"},
				{"datetime": "2024-01-02", "open": "not-a-number", "high": "12", "low": "10", "close": "11", "volume": "200"},
				{"datetime": "2024-01-01", "open": "10", "high": "11", "low": "9", "close": "10.5", "volume": "100"},
			},
		})
	})

	sym := Symbol{ID: 1, Code: "AAPL", Exchange: "NASDAQ"}
	bars, err := client.FetchTimeSeries(context.Background(), sym,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Malformed rows are dropped, the rest comes back chronological.
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Date)
	assert.Equal(t, "10.5", bars[0].Close.String())
	assert.Equal(t, int64(1), bars[0].SymbolID)
}

func TestFetchTimeSeriesAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "error",
			"message": "symbol not found",
		})
	})

	_, err := client.FetchTimeSeries(context.Background(), Symbol{Code: "NOPE"}, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestFetchTimeSeriesHTTPError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchTimeSeries(context.Background(), Symbol{Code: "AAPL"}, time.Time{}, time.Time{})
	require.Error(t, err)
}

func TestValidateSymbol(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "AAPL" {
			_, _ = w.Write([]byte(`{"symbol":"AAPL","close":"190.5"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":404,"message":"not found"}`))
	})

	ok, err := client.ValidateSymbol(context.Background(), Symbol{Code: "AAPL"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.ValidateSymbol(context.Background(), Symbol{Code: "NOPE"})
	require.NoError(t, err)
	assert.False(t, ok)
}
