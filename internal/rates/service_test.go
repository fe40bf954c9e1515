package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterapp/cartera/pkg/logger"
)

type fakeProvider struct {
	name  string
	rate  float64
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Rate(ctx context.Context) (float64, error) {
	p.calls++
	if p.err != nil {
		return 0, p.err
	}
	return p.rate, nil
}

func TestRatePrimaryWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", rate: 1050.5}
	fallback := &fakeProvider{name: "fallback", rate: 999}
	svc := NewService([]RateProvider{primary, fallback}, logger.New(logger.Config{Level: "error"}))

	rate, err := svc.Rate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "USD/ARS", rate.Pair)
	assert.Equal(t, 1050.5, rate.Value)
	assert.Equal(t, "primary", rate.Provider)
	assert.Equal(t, 0, fallback.calls, "fallback must not be consulted when primary succeeds")
}

func TestRateFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	fallback := &fakeProvider{name: "fallback", rate: 1042}
	svc := NewService([]RateProvider{primary, fallback}, logger.New(logger.Config{Level: "error"}))

	rate, err := svc.Rate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1042.0, rate.Value)
	assert.Equal(t, "fallback", rate.Provider)
	assert.Equal(t, 1, primary.calls)
}

func TestRateUnavailableWhenAllFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	fallback := &fakeProvider{name: "fallback", err: errors.New("also down")}
	svc := NewService([]RateProvider{primary, fallback}, logger.New(logger.Config{Level: "error"}))

	_, err := svc.Rate(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestDolarAPIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/dolares/oficial", r.URL.Path)
		fmt.Fprint(w, `{"moneda": "USD", "casa": "oficial", "compra": 1000.0, "venta": 1050.0}`)
	}))
	defer srv.Close()

	provider := NewDolarAPIProvider(srv.URL, time.Second)
	rate, err := provider.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1050.0, rate, "the sell (venta) rate is used")
}

func TestDolarAPIProviderZeroRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"venta": 0}`)
	}))
	defer srv.Close()

	provider := NewDolarAPIProvider(srv.URL, time.Second)
	_, err := provider.Rate(context.Background())
	assert.Error(t, err, "a zero rate is a provider failure, never a usable value")
}

func TestYahooRateProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "ARS=X")
		fmt.Fprint(w, `{"chart": {"result": [{"meta": {"regularMarketPrice": 1047.25}}]}}`)
	}))
	defer srv.Close()

	provider := NewYahooRateProvider(srv.URL, time.Second)
	rate, err := provider.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1047.25, rate)
}

func TestYahooRateProviderEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart": {"result": []}}`)
	}))
	defer srv.Close()

	provider := NewYahooRateProvider(srv.URL, time.Second)
	_, err := provider.Rate(context.Background())
	assert.Error(t, err)
}
