package yahoo

import "time"

// Quote is the latest market quote for a symbol
type Quote struct {
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name,omitempty"`
	Price      float64   `json:"price"`
	MarketTime time.Time `json:"market_time"`
}

// SearchResult is one candidate from a free-text symbol search
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}
