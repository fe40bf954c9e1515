package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RateProvider returns how many ARS one USD buys
type RateProvider interface {
	Name() string
	Rate(ctx context.Context) (float64, error)
}

// DolarAPIProvider fetches the official USD/ARS sell rate from dolarapi.com
type DolarAPIProvider struct {
	baseURL string
	client  *http.Client
}

// NewDolarAPIProvider creates a new dolarapi.com provider
func NewDolarAPIProvider(baseURL string, timeout time.Duration) *DolarAPIProvider {
	if baseURL == "" {
		baseURL = "https://dolarapi.com"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DolarAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *DolarAPIProvider) Name() string { return "dolarapi" }

// Rate fetches the official sell ("venta") rate
func (p *DolarAPIProvider) Rate(ctx context.Context) (float64, error) {
	reqURL := p.baseURL + "/v1/dolares/oficial"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("dolarapi returned status %d", resp.StatusCode)
	}

	var payload struct {
		Venta float64 `json:"venta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	if payload.Venta <= 0 {
		return 0, fmt.Errorf("dolarapi returned invalid rate %v", payload.Venta)
	}

	return payload.Venta, nil
}

// YahooRateProvider fetches ARS=X from the Yahoo chart API
type YahooRateProvider struct {
	baseURL string
	client  *http.Client
}

// NewYahooRateProvider creates a new Yahoo currency provider
func NewYahooRateProvider(baseURL string, timeout time.Duration) *YahooRateProvider {
	if baseURL == "" {
		baseURL = "https://query2.finance.yahoo.com"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &YahooRateProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *YahooRateProvider) Name() string { return "yahoo" }

// Rate fetches the last regular market price of the ARS=X pair
func (p *YahooRateProvider) Rate(ctx context.Context) (float64, error) {
	reqURL := p.baseURL + "/v8/finance/chart/ARS=X?interval=1h&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("yahoo chart API returned status %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(payload.Chart.Result) == 0 {
		return 0, fmt.Errorf("no chart data for ARS=X")
	}

	rate := payload.Chart.Result[0].Meta.RegularMarketPrice
	if rate <= 0 {
		return 0, fmt.Errorf("yahoo returned invalid rate %v", rate)
	}

	return rate, nil
}
