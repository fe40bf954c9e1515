package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/carterapp/cartera/internal/ledger"
)

// handleGetTransactions returns transaction history, most recent first
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := s.ledger.History(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if history == nil {
		history = []ledger.Transaction{}
	}

	s.writeJSON(w, http.StatusOK, history)
}

type recordTransactionRequest struct {
	Date     string  `json:"date"`
	Symbol   string  `json:"symbol"`
	Company  string  `json:"company"`
	Action   string  `json:"action"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// handleRecordTransaction records a BUY or SELL. Validation failures map to
// 422, domain-state rejections (oversell, sell without a position) to 409.
func (s *Server) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action, err := ledger.ActionFromString(req.Action)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Autofill the company name from the quote provider, best effort.
	company := req.Company
	if company == "" && action == ledger.ActionBuy && s.quotes != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if quote, err := s.quotes.GetQuote(ctx, req.Symbol); err == nil {
			company = quote.Name
		}
	}

	tx, err := s.ledger.Record(ledger.Transaction{
		Date:     req.Date,
		Symbol:   req.Symbol,
		Company:  company,
		Action:   action,
		Quantity: req.Quantity,
		Price:    req.Price,
	})
	switch {
	case ledger.IsValidationError(err):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, ledger.ErrNoPosition), errors.Is(err, ledger.ErrInsufficientQuantity):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, tx)
}
