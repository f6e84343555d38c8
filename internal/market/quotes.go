package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	chartPathPrefix = "/v8/finance/chart/"
	batchQuotePath  = "/v7/finance/quote"
)

// ErrNoData indicates the provider returned no session data for a symbol.
var ErrNoData = errors.New("market: no session data")

// QuoteSource retrieves session day-low prices.
type QuoteSource interface {
	// DayLow returns the most recent session's low for one symbol.
	DayLow(ctx context.Context, symbol string) (decimal.Decimal, error)
	// DayLows returns session lows for a set of symbols in one call.
	// Symbols the provider has no data for are simply absent from the map.
	DayLows(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// QuoteOptions parameterise the quote client.
type QuoteOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Quotes fetches day-low prices from a Yahoo-Finance-shaped quote API.
type Quotes struct {
	opts    QuoteOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewQuotes constructs a quote client.
func NewQuotes(opts QuoteOptions, logger zerolog.Logger) *Quotes {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Quotes{
		opts:    opts,
		logger:  logger.With().Str("component", "quotes").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// DayLow retrieves the latest session low for a single symbol via the
// one-day chart endpoint.
func (q *Quotes) DayLow(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Decimal{}, errors.New("symbol required")
	}

	endpoint := q.baseURL + chartPathPrefix + url.PathEscape(symbol) + "?range=1d&interval=1d"
	payload, err := q.get(ctx, endpoint)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode chart response: %w", err)
	}
	if chart.Chart.Error != nil {
		return decimal.Decimal{}, fmt.Errorf("chart api: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return decimal.Decimal{}, ErrNoData
	}

	lows := chart.Chart.Result[0].Indicators.Quote[0].Low
	for i := len(lows) - 1; i >= 0; i-- {
		if lows[i] != nil {
			return decimal.NewFromFloat(*lows[i]), nil
		}
	}
	return decimal.Decimal{}, ErrNoData
}

// DayLows retrieves session lows for all symbols in a single batched call.
// Symbols missing from the response are omitted from the result; only a
// failure of the batch itself is an error.
func (q *Quotes) DayLows(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	endpoint := q.baseURL + batchQuotePath + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	payload, err := q.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var batch batchQuoteResponse
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("decode quote response: %w", err)
	}
	if batch.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote api: %s", batch.QuoteResponse.Error.Description)
	}

	lows := make(map[string]decimal.Decimal, len(batch.QuoteResponse.Result))
	for _, quote := range batch.QuoteResponse.Result {
		if quote.Symbol == "" || quote.RegularMarketDayLow == nil {
			continue
		}
		lows[quote.Symbol] = decimal.NewFromFloat(*quote.RegularMarketDayLow)
	}
	return lows, nil
}

func (q *Quotes) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(q.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "zonewatcher/1.0")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, nil
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Low []*float64 `json:"low"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type batchQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol              string   `json:"symbol"`
			RegularMarketDayLow *float64 `json:"regularMarketDayLow"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"quoteResponse"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func parseHTTPError(status int, payload []byte) error {
	var wrapped struct {
		Chart struct {
			Error *apiError `json:"error"`
		} `json:"chart"`
		QuoteResponse struct {
			Error *apiError `json:"error"`
		} `json:"quoteResponse"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		if wrapped.Chart.Error != nil && wrapped.Chart.Error.Description != "" {
			return fmt.Errorf("quote api error (%d): %s", status, wrapped.Chart.Error.Description)
		}
		if wrapped.QuoteResponse.Error != nil && wrapped.QuoteResponse.Error.Description != "" {
			return fmt.Errorf("quote api error (%d): %s", status, wrapped.QuoteResponse.Error.Description)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("quote api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("quote api error (%d)", status)
}

var _ QuoteSource = (*Quotes)(nil)
