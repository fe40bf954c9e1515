package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterapp/cartera/internal/clients/yahoo"
	"github.com/carterapp/cartera/internal/quotes"
	"github.com/carterapp/cartera/internal/rates"
)

// handleTriggerRefresh starts a price refresh batch in the background
func (s *Server) handleTriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh.Status().State == quotes.StateRunning {
		s.writeError(w, http.StatusConflict, quotes.ErrRefreshRunning.Error())
		return
	}

	go func() {
		if _, err := s.refresh.RefreshAll(context.Background()); err != nil &&
			!errors.Is(err, quotes.ErrRefreshRunning) {
			s.log.Error().Err(err).Msg("Background refresh failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleRefreshStatus returns the state of the last/current refresh
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.refresh.Status())
}

// handleGetQuote fetches a single live quote, used by the add-position flow
// to resolve the company name and current price
func (s *Server) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := s.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, quote)
}

// handleSearch performs a free-text symbol search, used to recover from an
// unrecognized symbol entry
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	results, err := s.quotes.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if results == nil {
		results = []yahoo.SearchResult{}
	}

	s.writeJSON(w, http.StatusOK, results)
}

// handleGetRate returns the USD/ARS rate through the provider chain.
// When every provider fails the rate is reported unavailable, never zero.
func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.rates.Rate(r.Context())
	if err != nil {
		if errors.Is(err, rates.ErrRateUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, rate)
}
