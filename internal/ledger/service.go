package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/carterapp/cartera/internal/events"
	"github.com/rs/zerolog"
)

// Service owns the transaction log and the derived position table.
//
// All mutations are serialized behind a single mutex: UI-driven writes and
// refresh-completion writes go through the same service instance, so there is
// exactly one logical writer. Reads return snapshots, never live views.
type Service struct {
	mu           sync.Mutex
	transactions *TransactionRepository
	positions    *PositionRepository
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewService creates a new ledger service
func NewService(
	transactions *TransactionRepository,
	positions *PositionRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		transactions: transactions,
		positions:    positions,
		eventManager: eventManager,
		log:          log.With().Str("service", "ledger").Logger(),
	}
}

// Record validates a transaction, appends it to the log and folds it into
// the position table.
//
// A SELL with no open position is rejected with ErrNoPosition, and a SELL
// for more than the held quantity is rejected with ErrInsufficientQuantity.
// Rejected transactions are not logged.
func (s *Service) Record(tx Transaction) (Transaction, error) {
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.positions.GetBySymbol(tx.Symbol)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to load position: %w", err)
	}

	if tx.Action == ActionSell {
		if pos == nil {
			return Transaction{}, fmt.Errorf("%w: %s", ErrNoPosition, tx.Symbol)
		}
		if tx.Quantity > pos.Quantity {
			return Transaction{}, fmt.Errorf("%w: requested %v, held %v",
				ErrInsufficientQuantity, tx.Quantity, pos.Quantity)
		}
	}

	// Log first: the position table is a fold over the log.
	id, err := s.transactions.Append(tx)
	if err != nil {
		return Transaction{}, err
	}
	tx.ID = id

	if err := s.apply(pos, tx); err != nil {
		return Transaction{}, err
	}

	if s.eventManager != nil {
		s.eventManager.Emit(events.TransactionRecorded, "ledger", map[string]interface{}{
			"id":       tx.ID,
			"symbol":   tx.Symbol,
			"action":   string(tx.Action),
			"quantity": tx.Quantity,
			"price":    tx.Price,
		})
	}

	return tx, nil
}

// apply folds one transaction into the position table. The caller holds the
// lock and has already validated the transaction against pos.
func (s *Service) apply(pos *Position, tx Transaction) error {
	next, open := fold(pos, tx)
	if !open {
		// Full liquidation: drop the row, keep the log.
		return s.positions.Delete(tx.Symbol)
	}
	return s.positions.Upsert(next)
}

// fold applies a single transaction to a position (nil means no open
// position) and reports whether the position remains open afterwards.
//
// BUY creates or grows the position with a quantity-weighted average cost.
// SELL shrinks quantity and leaves the cost basis untouched.
func fold(pos *Position, tx Transaction) (Position, bool) {
	if pos == nil {
		if tx.Action == ActionSell {
			return Position{}, false
		}
		return Position{
			Symbol:   tx.Symbol,
			Company:  tx.Company,
			Quantity: tx.Quantity,
			AvgPrice: tx.Price,
		}, true
	}

	next := *pos

	switch tx.Action {
	case ActionBuy:
		newQty := pos.Quantity + tx.Quantity
		next.Quantity = newQty
		next.AvgPrice = (pos.Quantity*pos.AvgPrice + tx.Quantity*tx.Price) / newQty
		if tx.Company != "" {
			next.Company = tx.Company
		}
	case ActionSell:
		newQty := pos.Quantity - tx.Quantity
		if newQty <= 0 {
			return Position{}, false
		}
		next.Quantity = newQty
	}

	return next, true
}

// Positions returns a snapshot of all open positions
func (s *Service) Positions() ([]Position, error) {
	return s.positions.GetAll()
}

// Views returns a snapshot of all open positions with derived valuation
func (s *Service) Views() ([]PositionView, error) {
	positions, err := s.positions.GetAll()
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, pos.View())
	}

	return views, nil
}

// Summary computes portfolio totals across all open positions.
// An empty portfolio yields all-zero totals, never NaN.
func (s *Service) Summary() (Summary, error) {
	views, err := s.Views()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Positions: views, PositionCount: len(views)}
	for _, v := range views {
		summary.TotalInvested += v.Invested
		summary.TotalValue += v.Value
		summary.TotalProfitLoss += v.ProfitLoss
	}

	if summary.TotalInvested > 0 {
		summary.ProfitLossPct = summary.TotalProfitLoss / summary.TotalInvested * 100
	}

	return summary, nil
}

// History returns logged transactions, most recent first
func (s *Service) History(limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.transactions.History(limit)
}

// UpdateCurrentPrice sets the market price for an open position. A symbol
// with no open position is a no-op, so stale refresh results for liquidated
// positions are dropped on arrival.
func (s *Service) UpdateCurrentPrice(symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.positions.UpdatePrice(symbol, price)
}

// SetPosition overwrites quantity and avg_price for a symbol, bypassing the
// transaction log. This is the manual correction path: after it the position
// no longer matches the fold of its transaction history, which is deliberate
// and logged.
func (s *Service) SetPosition(symbol string, quantity, avgPrice float64) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, quantity)
	}
	if avgPrice < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, avgPrice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.positions.Set(symbol, quantity, avgPrice)
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}

	s.log.Warn().
		Str("symbol", symbol).
		Float64("quantity", quantity).
		Float64("avg_price", avgPrice).
		Msg("Position manually corrected, diverges from transaction history")

	if s.eventManager != nil {
		s.eventManager.Emit(events.PositionCorrected, "ledger", map[string]interface{}{
			"symbol":    symbol,
			"quantity":  quantity,
			"avg_price": avgPrice,
		})
	}

	return nil
}

// DeletePosition removes a position row; transaction history is retained
func (s *Service) DeletePosition(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.positions.Delete(symbol); err != nil {
		return err
	}

	if s.eventManager != nil {
		s.eventManager.Emit(events.PositionDeleted, "ledger", map[string]interface{}{
			"symbol": symbol,
		})
	}

	return nil
}

// Replay folds the full transaction log for a symbol from empty state.
// For any history that was applied through Record, the result matches the
// maintained position row (current_price excluded, it is refresh-owned).
func (s *Service) Replay(symbol string) (Position, bool, error) {
	txs, err := s.transactions.ListBySymbol(symbol)
	if err != nil {
		return Position{}, false, err
	}

	var pos *Position
	for _, tx := range txs {
		next, open := fold(pos, tx)
		if !open {
			pos = nil
			continue
		}
		pos = &next
	}

	if pos == nil {
		return Position{}, false, nil
	}
	return *pos, true, nil
}

// ReplayAll folds the full log into a fresh position table keyed by symbol
func (s *Service) ReplayAll() (map[string]Position, error) {
	txs, err := s.transactions.ListAll()
	if err != nil {
		return nil, err
	}

	held := make(map[string]*Position)
	for _, tx := range txs {
		next, open := fold(held[tx.Symbol], tx)
		if !open {
			delete(held, tx.Symbol)
			continue
		}
		held[tx.Symbol] = &next
	}

	result := make(map[string]Position, len(held))
	for symbol, pos := range held {
		result[symbol] = *pos
	}

	return result, nil
}

// TransactionCount returns the size of the transaction log
func (s *Service) TransactionCount() (int, error) {
	return s.transactions.Count()
}
