package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Client is a Yahoo Finance API client used for quotes and symbol search
type Client struct {
	quoteBaseURL  string
	searchBaseURL string
	client        *http.Client
	maxRetries    int
	log           zerolog.Logger
}

// Config holds client configuration
type Config struct {
	QuoteBaseURL  string
	SearchBaseURL string
	Timeout       time.Duration
	MaxRetries    int
}

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.QuoteBaseURL == "" {
		cfg.QuoteBaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = "https://query2.finance.yahoo.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	return &Client{
		quoteBaseURL:  strings.TrimRight(cfg.QuoteBaseURL, "/"),
		searchBaseURL: strings.TrimRight(cfg.SearchBaseURL, "/"),
		client:        &http.Client{Timeout: cfg.Timeout},
		maxRetries:    cfg.MaxRetries,
		log:           log.With().Str("client", "yahoo").Logger(),
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []map[string]interface{} `json:"result"`
		Error  interface{}              `json:"error"`
	} `json:"quoteResponse"`
}

type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
}

// GetQuote fetches the latest quote for a symbol, retrying with exponential
// backoff. Price preference: currentPrice, regularMarketPrice, previousClose.
// A quote without any usable price is an error.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		info, err := c.getQuoteInfo(ctx, symbol)
		if err != nil {
			lastErr = err
		} else if quote := quoteFromInfo(symbol, info); quote != nil {
			return quote, nil
		} else {
			lastErr = fmt.Errorf("no usable price for %s", symbol)
		}

		if attempt < c.maxRetries-1 {
			waitTime := time.Duration(1<<uint(attempt)) * time.Second // exponential backoff
			c.log.Warn().Err(lastErr).
				Str("symbol", symbol).
				Int("attempt", attempt+1).
				Dur("wait", waitTime).
				Msg("Failed to get quote, retrying")

			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}

// quoteFromInfo builds a Quote from a raw result map, or nil when the result
// carries no usable price
func quoteFromInfo(symbol string, info map[string]interface{}) *Quote {
	price := getFloat64(info, "currentPrice")
	if price <= 0 {
		price = getFloat64(info, "regularMarketPrice")
	}
	if price <= 0 {
		price = getFloat64(info, "previousClose")
	}
	if price <= 0 {
		return nil
	}

	name := getString(info, "longName")
	if name == "" {
		name = getString(info, "shortName")
	}

	marketTime := time.Now()
	if ts := getInt64(info, "regularMarketTime"); ts > 0 {
		marketTime = time.Unix(ts, 0)
	}

	return &Quote{
		Symbol:     symbol,
		Name:       name,
		Price:      price,
		MarketTime: marketTime,
	}
}

// Search performs a free-text symbol search, filtered to equities and ETFs
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	params := url.Values{}
	params.Add("q", query)

	reqURL := c.searchBaseURL + "/v1/finance/search?" + params.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	var results []SearchResult
	for _, q := range result.Quotes {
		if q.QuoteType != "EQUITY" && q.QuoteType != "ETF" {
			continue
		}
		name := q.ShortName
		if name == "" {
			name = q.LongName
		}
		results = append(results, SearchResult{
			Symbol:   strings.ToUpper(q.Symbol),
			Name:     name,
			Exchange: q.Exchange,
		})
	}

	c.log.Debug().Str("query", query).Int("results", len(results)).Msg("Symbol search completed")

	return results, nil
}

// getQuoteInfo fetches the raw quote result for a symbol
func (c *Client) getQuoteInfo(ctx context.Context, symbol string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,currentPrice,regularMarketPrice,previousClose,"+
		"regularMarketTime,longName,shortName,quoteType")

	reqURL := c.quoteBaseURL + "/v7/finance/quote?" + params.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}

	if result.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote API error: %v", result.QuoteResponse.Error)
	}

	if len(result.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for symbol %s", symbol)
	}

	return result.QuoteResponse.Result[0], nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Yahoo rejects requests without a browser-like user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// Helper functions to safely extract values from a result map

func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	}
	return 0
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
