package rates

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrRateUnavailable is returned when every provider in the chain failed or
// returned a zero rate. A stale or zero rate is never passed off as real.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Rate is a fetched exchange rate with its source attribution
type Rate struct {
	Pair      string    `json:"pair"`
	Value     float64   `json:"value"`
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Service resolves the USD/ARS rate through a fixed-preference provider
// chain: the first provider that returns a positive rate wins.
type Service struct {
	providers []RateProvider
	log       zerolog.Logger
}

// NewService creates a new rate service. Providers are consulted in the
// given order.
func NewService(providers []RateProvider, log zerolog.Logger) *Service {
	return &Service{
		providers: providers,
		log:       log.With().Str("service", "rates").Logger(),
	}
}

// Rate fetches the USD/ARS rate, falling back through the provider chain
func (s *Service) Rate(ctx context.Context) (Rate, error) {
	for _, provider := range s.providers {
		value, err := provider.Rate(ctx)
		if err != nil {
			s.log.Warn().Err(err).
				Str("provider", provider.Name()).
				Msg("Rate provider failed, trying next")
			continue
		}

		s.log.Debug().
			Str("provider", provider.Name()).
			Float64("rate", value).
			Msg("Rate fetched")

		return Rate{
			Pair:      "USD/ARS",
			Value:     value,
			Provider:  provider.Name(),
			FetchedAt: time.Now(),
		}, nil
	}

	return Rate{}, ErrRateUnavailable
}
