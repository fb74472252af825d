// Package yahoo fetches intraday candles from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"stock-autotrader/internal/api"
	"stock-autotrader/internal/interfaces"
	"stock-autotrader/internal/types"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type Client struct {
	http  *api.Client
	retry *api.RetryConfig
}

var _ interfaces.CandleSource = (*Client)(nil)

// New creates a chart client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...api.ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base := []api.ClientOption{
		api.WithBaseURL(strings.TrimRight(baseURL, "/")),
		api.WithTimeout(20 * time.Second),
		api.WithHeaders(api.YahooFinanceHeaders()),
		api.WithLogging(true),
	}
	return &Client{
		http:  api.NewClient(append(base, opts...)...),
		retry: api.DefaultRetryConfig(),
	}
}

func (c *Client) chart(ctx context.Context, symbol, interval, period string) (chartResult, error) {
	req := api.NewRequest(http.MethodGet, "/v8/finance/chart/"+url.PathEscape(symbol)).
		WithContext(ctx).
		WithQuery("interval", interval).
		WithQuery("range", period)

	resp, err := c.http.DoWithRetry(req, c.retry)
	if err != nil {
		return chartResult{}, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	var cr chartResponse
	if err := resp.ParseJSON(&cr); err != nil {
		return chartResult{}, err
	}
	if cr.Chart.Error != nil {
		return chartResult{}, fmt.Errorf("yahoo chart %s: %s: %s: %w", symbol, cr.Chart.Error.Code, cr.Chart.Error.Description, types.ErrTransient)
	}
	if len(cr.Chart.Result) == 0 {
		return chartResult{}, fmt.Errorf("yahoo chart %s: empty result: %w", symbol, types.ErrTransient)
	}
	return cr.Chart.Result[0], nil
}

// Candles returns candles oldest first. Rows with any missing OHLC value are dropped and
// duplicate timestamps keep the last row seen.
func (c *Client) Candles(ctx context.Context, symbol, interval, period string) ([]types.Candle, error) {
	res, err := c.chart(ctx, symbol, interval, period)
	if err != nil {
		return nil, err
	}
	return candlesFrom(res), nil
}

// CurrentPrice returns the latest regular-market price. Used as the quote feed in DRY_RUN.
func (c *Client) CurrentPrice(ctx context.Context, symbol, exchange string) (float64, error) {
	res, err := c.chart(ctx, symbol, "1m", "1d")
	if err != nil {
		return 0, err
	}
	if p := res.Meta.RegularMarketPrice; p > 0 {
		return p, nil
	}
	cs := candlesFrom(res)
	if len(cs) == 0 {
		return 0, fmt.Errorf("no quote for %s: %w", symbol, types.ErrTransient)
	}
	return cs[len(cs)-1].Close, nil
}

func candlesFrom(res chartResult) []types.Candle {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]

	byTs := make(map[int64]types.Candle, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		open, high, low, cl := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		if open == nil || high == nil || low == nil || cl == nil {
			continue
		}
		var vol float64
		if v := at(q.Volume, i); v != nil {
			vol = *v
		}
		byTs[ts] = types.Candle{Ts: ts, Open: *open, High: *high, Low: *low, Close: *cl, Vol: vol}
	}

	out := make([]types.Candle, 0, len(byTs))
	for _, c := range byTs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}
