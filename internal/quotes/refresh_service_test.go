package quotes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterapp/cartera/internal/clients/yahoo"
	"github.com/carterapp/cartera/internal/ledger"
	"github.com/carterapp/cartera/pkg/logger"
)

type fakeProvider struct {
	mu     sync.Mutex
	prices map[string]float64 // missing symbol = provider failure
	block  chan struct{}      // when set, fetches wait until closed
}

func (p *fakeProvider) GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[symbol]
	if !ok {
		return nil, errors.New("provider failure")
	}
	return &yahoo.Quote{Symbol: symbol, Price: price, MarketTime: time.Now()}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	positions []ledger.Position
	updates   map[string]float64
	err       error
}

func (s *fakeStore) Positions() ([]ledger.Position, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.positions, nil
}

func (s *fakeStore) UpdateCurrentPrice(symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string]float64)
	}
	s.updates[symbol] = price
	return nil
}

func newRefresh(provider *fakeProvider, store *fakeStore) *RefreshService {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	return NewRefreshService(provider, store, nil, log)
}

func TestRefreshAllWritesPrices(t *testing.T) {
	provider := &fakeProvider{prices: map[string]float64{"AAPL": 190.5, "TSLA": 250.0}}
	store := &fakeStore{positions: []ledger.Position{
		{Symbol: "AAPL", Quantity: 10},
		{Symbol: "TSLA", Quantity: 5},
	}}
	svc := newRefresh(provider, store)

	prices, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"AAPL": 190.5, "TSLA": 250.0}, prices)
	assert.Equal(t, map[string]float64{"AAPL": 190.5, "TSLA": 250.0}, store.updates)

	status := svc.Status()
	assert.Equal(t, StateSucceeded, status.State)
	assert.Equal(t, 0, status.Failures)
	require.NotNil(t, status.FinishedAt)
}

func TestRefreshAllPartialFailure(t *testing.T) {
	// B has no quote: its fetch fails, resolves to 0, batch still succeeds.
	provider := &fakeProvider{prices: map[string]float64{"A": 42.0}}
	store := &fakeStore{positions: []ledger.Position{
		{Symbol: "A", Quantity: 1},
		{Symbol: "B", Quantity: 1},
	}}
	svc := newRefresh(provider, store)

	prices, err := svc.RefreshAll(context.Background())
	require.NoError(t, err, "a per-symbol failure must not fail the batch")

	assert.Equal(t, 42.0, prices["A"])
	assert.Equal(t, 0.0, prices["B"])
	assert.Equal(t, 0.0, store.updates["B"])

	status := svc.Status()
	assert.Equal(t, StateSucceeded, status.State)
	assert.Equal(t, 1, status.Failures)
}

func TestRefreshAllEmptyPortfolio(t *testing.T) {
	svc := newRefresh(&fakeProvider{}, &fakeStore{})

	prices, err := svc.RefreshAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Equal(t, StateSucceeded, svc.Status().State)
}

func TestRefreshAllStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db gone")}
	svc := newRefresh(&fakeProvider{}, store)

	_, err := svc.RefreshAll(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StateFailed, svc.Status().State)
}

func TestRefreshRejectsConcurrentRun(t *testing.T) {
	block := make(chan struct{})
	provider := &fakeProvider{prices: map[string]float64{"A": 1}, block: block}
	store := &fakeStore{positions: []ledger.Position{{Symbol: "A", Quantity: 1}}}
	svc := newRefresh(provider, store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.RefreshAll(context.Background())
		assert.NoError(t, err)
	}()

	// Wait until the first run is in flight.
	require.Eventually(t, func() bool {
		return svc.Status().State == StateRunning
	}, time.Second, 5*time.Millisecond)

	_, err := svc.RefreshAll(context.Background())
	assert.ErrorIs(t, err, ErrRefreshRunning)

	close(block)
	<-done
	assert.Equal(t, StateSucceeded, svc.Status().State)
}

func TestRefreshJobSkipsWhenRunning(t *testing.T) {
	block := make(chan struct{})
	provider := &fakeProvider{prices: map[string]float64{"A": 1}, block: block}
	store := &fakeStore{positions: []ledger.Position{{Symbol: "A", Quantity: 1}}}
	svc := newRefresh(provider, store)
	job := NewRefreshJob(svc, nil, logger.New(logger.Config{Level: "error"}))

	assert.Equal(t, "price_refresh", job.Name())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RefreshAll(context.Background())
	}()

	require.Eventually(t, func() bool {
		return svc.Status().State == StateRunning
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, job.Run(), "overlapping scheduled run is skipped, not an error")

	close(block)
	<-done
}
