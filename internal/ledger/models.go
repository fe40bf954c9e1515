package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used for transaction dates (DD/MM/YYYY)
const DateLayout = "02/01/2006"

// Domain errors returned by the ledger service.
const (
	ErrInvalidSymbol        Error = "symbol cannot be empty"
	ErrInvalidQuantity      Error = "quantity must be positive"
	ErrInvalidPrice         Error = "price cannot be negative"
	ErrInvalidAction        Error = "action must be BUY or SELL"
	ErrInvalidDate          Error = "date must be a valid DD/MM/YYYY date"
	ErrNoPosition           Error = "no open position for symbol"
	ErrInsufficientQuantity Error = "sell quantity exceeds held quantity"
)

// Error is a typed ledger domain error
type Error string

func (e Error) Error() string { return string(e) }

// IsValidationError reports whether err is a bad-input error (as opposed to a
// domain-state rejection such as an oversell)
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidDate)
}

// Action represents the transaction direction (BUY or SELL)
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// IsValid checks if the action is valid
func (a Action) IsValid() bool {
	return a == ActionBuy || a == ActionSell
}

// ActionFromString creates an Action from a string (case-insensitive)
func ActionFromString(value string) (Action, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, value)
	}
}

// Transaction is an immutable entry in the append-only transaction log
type Transaction struct {
	ID        int64   `json:"id"`
	Date      string  `json:"date"` // DD/MM/YYYY
	Symbol    string  `json:"symbol"`
	Company   string  `json:"company,omitempty"`
	Action    Action  `json:"action"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	CreatedAt string  `json:"created_at,omitempty"` // ISO datetime, set on insert
}

// Validate checks transaction fields and normalizes the symbol.
// An empty date defaults to today.
func (t *Transaction) Validate() error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if t.Symbol == "" {
		return ErrInvalidSymbol
	}

	if !t.Action.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, t.Action)
	}

	if t.Quantity <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, t.Quantity)
	}

	if t.Price < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, t.Price)
	}

	t.Date = strings.TrimSpace(t.Date)
	if t.Date == "" {
		t.Date = time.Now().Format(DateLayout)
	} else if _, err := time.Parse(DateLayout, t.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, t.Date)
	}

	return nil
}

// Position is the derived current holding for a symbol
type Position struct {
	Symbol       string  `json:"symbol"`
	Company      string  `json:"company,omitempty"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
	LastUpdated  string  `json:"last_updated,omitempty"` // ISO datetime
}

// PositionView is a position plus its derived valuation fields.
// The derived fields are recomputed on every read, never stored.
type PositionView struct {
	Position
	Value      float64 `json:"value"`
	Invested   float64 `json:"invested"`
	ProfitLoss float64 `json:"profit_loss"`
}

// Summary holds portfolio totals across all positions
type Summary struct {
	TotalInvested   float64        `json:"total_invested"`
	TotalValue      float64        `json:"total_value"`
	TotalProfitLoss float64        `json:"total_profit_loss"`
	ProfitLossPct   float64        `json:"profit_loss_pct"`
	PositionCount   int            `json:"position_count"`
	Positions       []PositionView `json:"positions"`
}

// View computes the derived valuation fields for a position
func (p Position) View() PositionView {
	value := p.Quantity * p.CurrentPrice
	invested := p.Quantity * p.AvgPrice
	return PositionView{
		Position:   p,
		Value:      value,
		Invested:   invested,
		ProfitLoss: value - invested,
	}
}
