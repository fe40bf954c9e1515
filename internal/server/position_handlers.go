package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterapp/cartera/internal/ledger"
)

// handleGetPositions returns a snapshot of all open positions with their
// derived valuation fields
func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	views, err := s.ledger.Views()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if views == nil {
		views = []ledger.PositionView{}
	}

	s.writeJSON(w, http.StatusOK, views)
}

// handleGetSummary returns portfolio totals
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summary()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if summary.Positions == nil {
		summary.Positions = []ledger.PositionView{}
	}

	s.writeJSON(w, http.StatusOK, summary)
}

type setPositionRequest struct {
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

// handleSetPosition is the manual correction path: it overwrites quantity
// and avg_price for an open position, bypassing the transaction log
func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req setPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.ledger.SetPosition(symbol, req.Quantity, req.AvgPrice)
	switch {
	case errors.Is(err, ledger.ErrNoPosition):
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	case ledger.IsValidationError(err):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "corrected", "symbol": symbol})
}

// handleDeletePosition removes a position row; transaction history stays
func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := s.ledger.DeletePosition(symbol); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "symbol": symbol})
}
