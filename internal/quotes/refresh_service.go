package quotes

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carterapp/cartera/internal/clients/yahoo"
	"github.com/carterapp/cartera/internal/events"
	"github.com/carterapp/cartera/internal/ledger"
)

// ErrRefreshRunning is returned when a refresh is requested while one is
// already in flight
var ErrRefreshRunning = errors.New("refresh already running")

// fetchWorkers bounds the number of concurrent provider calls per batch
const fetchWorkers = 4

// State is the refresh lifecycle state
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is a snapshot of the last/current refresh
type Status struct {
	State      State              `json:"state"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Prices     map[string]float64 `json:"prices,omitempty"`
	Failures   int                `json:"failures"`
}

// QuoteProvider fetches the latest quote for a symbol
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error)
}

// Store is the slice of the ledger the refresh path needs
type Store interface {
	Positions() ([]ledger.Position, error)
	UpdateCurrentPrice(symbol string, price float64) error
}

// RefreshService fetches current prices for all held symbols and writes them
// into the position table.
//
// Fetches run on a bounded pool of goroutines, but every write goes through
// the single goroutine draining the results channel, so the store only ever
// sees one writer.
type RefreshService struct {
	provider     QuoteProvider
	store        Store
	eventManager *events.Manager
	log          zerolog.Logger

	mu     sync.Mutex
	status Status
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	provider QuoteProvider,
	store Store,
	eventManager *events.Manager,
	log zerolog.Logger,
) *RefreshService {
	return &RefreshService{
		provider:     provider,
		store:        store,
		eventManager: eventManager,
		log:          log.With().Str("service", "refresh").Logger(),
		status:       Status{State: StateIdle},
	}
}

// Status returns a snapshot of the refresh state
func (s *RefreshService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.status
	snapshot.Prices = make(map[string]float64, len(s.status.Prices))
	for k, v := range s.status.Prices {
		snapshot.Prices[k] = v
	}
	return snapshot
}

type fetchResult struct {
	symbol string
	price  float64
	failed bool
}

// RefreshAll fetches the latest price for every held symbol and writes the
// results back. A failed or empty fetch resolves to price 0 for that symbol
// and never aborts the batch: the batch succeeds as long as it completes.
func (s *RefreshService) RefreshAll(ctx context.Context) (map[string]float64, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	if s.eventManager != nil {
		s.eventManager.Emit(events.RefreshStart, "quotes", nil)
	}

	positions, err := s.store.Positions()
	if err != nil {
		s.finish(StateFailed, nil, 0)
		return nil, err
	}

	symbols := make([]string, 0, len(positions))
	for _, pos := range positions {
		symbols = append(symbols, pos.Symbol)
	}

	prices, failures := s.fetchAll(ctx, symbols)

	// Apply from this goroutine only. A symbol liquidated while its fetch
	// was in flight is a no-op inside the store.
	for symbol, price := range prices {
		if err := s.store.UpdateCurrentPrice(symbol, price); err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to store price")
		}
	}

	s.finish(StateSucceeded, prices, failures)

	if s.eventManager != nil {
		s.eventManager.Emit(events.RefreshComplete, "quotes", map[string]interface{}{
			"symbols":  len(symbols),
			"failures": failures,
		})
	}

	s.log.Info().
		Int("symbols", len(symbols)).
		Int("failures", failures).
		Msg("Price refresh completed")

	return prices, nil
}

// fetchAll runs provider fetches on a bounded worker pool and drains every
// result. Failures resolve to a zero price.
func (s *RefreshService) fetchAll(ctx context.Context, symbols []string) (map[string]float64, int) {
	jobs := make(chan string)
	results := make(chan fetchResult)

	var wg sync.WaitGroup
	workers := fetchWorkers
	if len(symbols) < workers {
		workers = len(symbols)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				results <- s.fetchOne(ctx, symbol)
			}
		}()
	}

	go func() {
		for _, symbol := range symbols {
			jobs <- symbol
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	prices := make(map[string]float64, len(symbols))
	failures := 0
	for res := range results {
		prices[res.symbol] = res.price
		if res.failed {
			failures++
		}
	}

	return prices, failures
}

func (s *RefreshService) fetchOne(ctx context.Context, symbol string) fetchResult {
	quote, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote fetch failed, recording zero price")
		return fetchResult{symbol: symbol, price: 0, failed: true}
	}

	return fetchResult{symbol: symbol, price: quote.Price}
}

func (s *RefreshService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State == StateRunning {
		return ErrRefreshRunning
	}

	now := time.Now()
	s.status = Status{State: StateRunning, StartedAt: &now}
	return nil
}

func (s *RefreshService) finish(state State, prices map[string]float64, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.status.State = state
	s.status.FinishedAt = &now
	s.status.Prices = prices
	s.status.Failures = failures
}
