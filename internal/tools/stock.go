package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidTicker is returned for input that cannot be a ticker symbol.
var ErrInvalidTicker = errors.New("invalid ticker symbol")

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// NormalizeTicker trims and upper-cases a ticker and checks its shape.
func NormalizeTicker(input string) (string, error) {
	t := strings.ToUpper(strings.Trim(strings.TrimSpace(input), `"'$`))
	if !tickerPattern.MatchString(t) {
		return "", fmt.Errorf("%w %q", ErrInvalidTicker, input)
	}
	return t, nil
}

// PriceProvider returns the latest close for a ticker.
type PriceProvider interface {
	LatestPrice(ctx context.Context, ticker string) (float64, error)
}

// YahooProvider reads prices from the Yahoo Finance chart endpoint.
type YahooProvider struct {
	BaseURL string
	Client  *http.Client

	group singleflight.Group
}

// DefaultYahooBaseURL is the public chart API.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// NewYahooProvider returns a provider with a bounded HTTP client.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		BaseURL: DefaultYahooBaseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// LatestPrice returns the most recent daily close. Concurrent lookups of
// the same ticker share one request.
func (p *YahooProvider) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	v, err, _ := p.group.Do(ticker, func() (any, error) {
		return p.fetch(ctx, ticker)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (p *YahooProvider) fetch(ctx context.Context, ticker string) (float64, error) {
	u := p.BaseURL + url.PathEscape(ticker) + "?range=5d&interval=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if chart.Chart.Error != nil {
		return 0, fmt.Errorf("%s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if len(chart.Chart.Result) == 0 {
		return 0, fmt.Errorf("no data found for %s", ticker)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) > 0 {
		closes := result.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil {
				return *closes[i], nil
			}
		}
	}
	if result.Meta.RegularMarketPrice > 0 {
		return result.Meta.RegularMarketPrice, nil
	}
	return 0, fmt.Errorf("no price data found for %s", ticker)
}

// FormatPrice renders the stock tool's answer.
func FormatPrice(ticker string, price float64) string {
	return fmt.Sprintf("The current price of %s is $%s", ticker, decimal.NewFromFloat(price).StringFixed(2))
}

// StockPriceTool looks up the latest price of a ticker.
func StockPriceTool(provider PriceProvider) *Tool {
	return &Tool{
		Name:        "get_stock_price",
		Kind:        KindStockPrice,
		Description: "Get the current price of a stock. Input should be a valid stock ticker symbol (e.g., AAPL, MSFT).",
		Params:      InputParam("Stock ticker symbol, e.g. AAPL"),
		Execute: func(ctx context.Context, call Call) (string, error) {
			ticker, err := NormalizeTicker(call.Input)
			if err != nil {
				return "", err
			}
			price, err := provider.LatestPrice(ctx, ticker)
			if err != nil {
				// Kept verbatim as the observation; see errorObservation.
				return "", fmt.Errorf("Error fetching stock price: %w", err)
			}
			return FormatPrice(ticker, price), nil
		},
	}
}
