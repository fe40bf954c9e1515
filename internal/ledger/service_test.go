package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterapp/cartera/internal/database"
	"github.com/carterapp/cartera/pkg/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error", Pretty: false})
	txRepo := NewTransactionRepository(db.Conn(), log)
	posRepo := NewPositionRepository(db.Conn(), log)

	return NewService(txRepo, posRepo, nil, log)
}

func buy(symbol string, qty, price float64) Transaction {
	return Transaction{Symbol: symbol, Action: ActionBuy, Quantity: qty, Price: price, Date: "05/01/2026"}
}

func sell(symbol string, qty, price float64) Transaction {
	return Transaction{Symbol: symbol, Action: ActionSell, Quantity: qty, Price: price, Date: "06/01/2026"}
}

func TestRecordWeightedAverage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)
	_, err = svc.Record(buy("AAPL", 5, 130))
	require.NoError(t, err)

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 15.0, positions[0].Quantity)
	assert.Equal(t, 110.0, positions[0].AvgPrice)
}

func TestSellPreservesCostBasis(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)
	_, err = svc.Record(buy("AAPL", 5, 130))
	require.NoError(t, err)
	_, err = svc.Record(sell("AAPL", 5, 200))
	require.NoError(t, err)

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.Equal(t, 10.0, positions[0].Quantity)
	assert.Equal(t, 110.0, positions[0].AvgPrice, "selling must not alter the cost basis")
}

func TestFullLiquidationRemovesPosition(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("TSLA", 10, 50))
	require.NoError(t, err)
	_, err = svc.Record(sell("TSLA", 10, 80))
	require.NoError(t, err)

	positions, err := svc.Positions()
	require.NoError(t, err)
	assert.Empty(t, positions, "fully liquidated position must not appear")

	// History retains both entries.
	history, err := svc.History(10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ActionSell, history[0].Action)
	assert.Equal(t, ActionBuy, history[1].Action)
}

func TestSellRejections(t *testing.T) {
	svc := newTestService(t)

	// SELL with no open position.
	_, err := svc.Record(sell("MSFT", 5, 300))
	assert.ErrorIs(t, err, ErrNoPosition)

	// Oversell is rejected, not clamped.
	_, err = svc.Record(buy("MSFT", 10, 300))
	require.NoError(t, err)
	_, err = svc.Record(sell("MSFT", 50, 300))
	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	// Rejected transactions are not logged.
	count, err := svc.TransactionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 10.0, positions[0].Quantity)
}

func TestRecordValidation(t *testing.T) {
	svc := newTestService(t)

	tests := []struct {
		name    string
		tx      Transaction
		wantErr error
	}{
		{
			name:    "empty symbol",
			tx:      Transaction{Symbol: "  ", Action: ActionBuy, Quantity: 1, Price: 1},
			wantErr: ErrInvalidSymbol,
		},
		{
			name:    "zero quantity",
			tx:      Transaction{Symbol: "AAPL", Action: ActionBuy, Quantity: 0, Price: 1},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative quantity",
			tx:      Transaction{Symbol: "AAPL", Action: ActionBuy, Quantity: -3, Price: 1},
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "negative price",
			tx:      Transaction{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, Price: -1},
			wantErr: ErrInvalidPrice,
		},
		{
			name:    "bad action",
			tx:      Transaction{Symbol: "AAPL", Action: "HOLD", Quantity: 1, Price: 1},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "bad date",
			tx:      Transaction{Symbol: "AAPL", Action: ActionBuy, Quantity: 1, Price: 1, Date: "2026-01-05"},
			wantErr: ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(tt.tx)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidationError(err))
		})
	}

	// Nothing was logged.
	count, err := svc.TransactionCount()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRecordNormalizesSymbolAndDefaultsDate(t *testing.T) {
	svc := newTestService(t)

	tx, err := svc.Record(Transaction{Symbol: " aapl ", Action: ActionBuy, Quantity: 2, Price: 10})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", tx.Symbol)
	assert.NotEmpty(t, tx.Date, "empty date defaults to today")
	assert.Greater(t, tx.ID, int64(0))
}

func TestReplayIdempotence(t *testing.T) {
	svc := newTestService(t)

	steps := []Transaction{
		buy("AAPL", 10, 100),
		buy("AAPL", 5, 130),
		sell("AAPL", 5, 200),
		buy("AAPL", 2.5, 120),
		sell("AAPL", 1.5, 90),
		buy("GOOG", 4, 150),
		sell("GOOG", 4, 160),
		buy("GOOG", 1, 170),
	}
	for _, tx := range steps {
		_, err := svc.Record(tx)
		require.NoError(t, err)
	}

	replayed, err := svc.ReplayAll()
	require.NoError(t, err)

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, len(replayed))

	for _, pos := range positions {
		folded, ok := replayed[pos.Symbol]
		require.True(t, ok, "replayed table missing %s", pos.Symbol)
		assert.InDelta(t, folded.Quantity, pos.Quantity, 1e-9)
		assert.InDelta(t, folded.AvgPrice, pos.AvgPrice, 1e-9)
	}

	// Single-symbol replay agrees too.
	pos, open, err := svc.Replay("AAPL")
	require.NoError(t, err)
	require.True(t, open)
	assert.InDelta(t, 11.0, pos.Quantity, 1e-9)

	// A liquidated-then-reopened symbol restarts its cost basis.
	goog, open, err := svc.Replay("GOOG")
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, 1.0, goog.Quantity)
	assert.Equal(t, 170.0, goog.AvgPrice)
}

func TestSummaryEmptyPortfolio(t *testing.T) {
	svc := newTestService(t)

	summary, err := svc.Summary()
	require.NoError(t, err)

	assert.Equal(t, 0.0, summary.TotalInvested)
	assert.Equal(t, 0.0, summary.TotalValue)
	assert.Equal(t, 0.0, summary.TotalProfitLoss)
	assert.Equal(t, 0.0, summary.ProfitLossPct, "no division by zero on an empty portfolio")
	assert.Equal(t, 0, summary.PositionCount)
}

func TestSummaryDerivedFields(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateCurrentPrice("AAPL", 120))

	summary, err := svc.Summary()
	require.NoError(t, err)
	require.Len(t, summary.Positions, 1)

	view := summary.Positions[0]
	assert.Equal(t, 1200.0, view.Value)
	assert.Equal(t, 1000.0, view.Invested)
	assert.Equal(t, 200.0, view.ProfitLoss)

	assert.Equal(t, 1000.0, summary.TotalInvested)
	assert.Equal(t, 1200.0, summary.TotalValue)
	assert.Equal(t, 200.0, summary.TotalProfitLoss)
	assert.InDelta(t, 20.0, summary.ProfitLossPct, 1e-9)
}

func TestUpdateCurrentPriceIgnoresUnknownSymbol(t *testing.T) {
	svc := newTestService(t)

	// Stale refresh result for a symbol that is no longer held.
	require.NoError(t, svc.UpdateCurrentPrice("GONE", 42))

	positions, err := svc.Positions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestUpdateCurrentPriceNeverTouchesBasis(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)
	require.NoError(t, svc.UpdateCurrentPrice("AAPL", 250))

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.Equal(t, 250.0, positions[0].CurrentPrice)
	assert.Equal(t, 10.0, positions[0].Quantity)
	assert.Equal(t, 100.0, positions[0].AvgPrice)
}

func TestSetPositionManualCorrection(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)

	require.NoError(t, svc.SetPosition("AAPL", 8, 95))

	positions, err := svc.Positions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 8.0, positions[0].Quantity)
	assert.Equal(t, 95.0, positions[0].AvgPrice)

	// The correction bypasses the log: replay intentionally diverges now.
	folded, open, err := svc.Replay("AAPL")
	require.NoError(t, err)
	require.True(t, open)
	assert.Equal(t, 10.0, folded.Quantity)

	// No open position to correct.
	err = svc.SetPosition("NOPE", 1, 1)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestDeletePositionKeepsHistory(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(buy("AAPL", 10, 100))
	require.NoError(t, err)

	require.NoError(t, svc.DeletePosition("AAPL"))

	positions, err := svc.Positions()
	require.NoError(t, err)
	assert.Empty(t, positions)

	count, err := svc.TransactionCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActionFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"BUY", ActionBuy, false},
		{"buy", ActionBuy, false},
		{" Sell ", ActionSell, false},
		{"", "", true},
		{"SHORT", "", true},
	}

	for _, tt := range tests {
		got, err := ActionFromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}
