package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/your-org/momet-screener/internal/config"
)

// TwelveDataClient fetches daily bars from the Twelve Data REST API.
// Outbound calls are rate limited client-side to stay within the plan budget.
type TwelveDataClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// NewTwelveDataClient builds a client from configuration. The API key is
// required.
func NewTwelveDataClient(cfg config.TwelveDataConfig) (*TwelveDataClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TWELVE_DATA_API_KEY not configured")
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 8
	}
	return &TwelveDataClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}, nil
}

type timeSeriesResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Values  []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
}

// FetchTimeSeries returns the symbol's daily bars within the optional date
// range, in chronological order. Bars the API returns malformed are skipped.
func (c *TwelveDataClient) FetchTimeSeries(ctx context.Context, sym Symbol, startDate, endDate time.Time) ([]DailyBar, error) {
	params := url.Values{}
	params.Set("symbol", sym.Code)
	params.Set("interval", "1day")
	params.Set("exchange", sym.Exchange)
	params.Set("outputsize", "5000")
	params.Set("format", "JSON")
	if !startDate.IsZero() {
		params.Set("start_date", startDate.Format("2006-01-02"))
	}
	if !endDate.IsZero() {
		params.Set("end_date", endDate.Format("2006-01-02"))
	}

	var resp timeSeriesResponse
	if err := c.get(ctx, "time_series", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("twelve data error for %s: %s", sym.Code, resp.Message)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("no data returned for %s", sym.Code)
	}

	bars := make([]DailyBar, 0, len(resp.Values))
	for _, v := range resp.Values {
		bar, err := parseBar(sym.ID, v.Datetime, v.Open, v.High, v.Low, v.Close, v.Volume)
		if err != nil {
			continue
		}
		bars = append(bars, bar)
	}

	// The API returns newest first.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// ValidateSymbol checks whether the provider knows the symbol at all.
func (c *TwelveDataClient) ValidateSymbol(ctx context.Context, sym Symbol) (bool, error) {
	params := url.Values{}
	params.Set("symbol", sym.Code)
	params.Set("exchange", sym.Exchange)

	var quote map[string]json.RawMessage
	if err := c.get(ctx, "quote", params, &quote); err != nil {
		return false, err
	}
	_, hasClose := quote["close"]
	_, hasPrice := quote["price"]
	return hasClose || hasPrice, nil
}

func (c *TwelveDataClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("apikey", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode()), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func parseBar(symbolID int64, date, open, high, low, closeP, volume string) (DailyBar, error) {
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	o, err := decimal.NewFromString(open)
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse open %q: %w", open, err)
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse high %q: %w", high, err)
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse low %q: %w", low, err)
	}
	cl, err := decimal.NewFromString(closeP)
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse close %q: %w", closeP, err)
	}
	vol, err := strconv.ParseFloat(volume, 64)
	if err != nil || vol < 0 {
		return DailyBar{}, fmt.Errorf("parse volume %q: %w", volume, err)
	}
	return DailyBar{
		SymbolID: symbolID,
		Date:     d,
		Open:     o, High: h, Low: l, Close: cl,
		Volume: int64(vol),
	}, nil
}
