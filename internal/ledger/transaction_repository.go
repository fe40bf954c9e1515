package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TransactionRepository handles the append-only transaction log.
// Rows are never updated or deleted.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// Append inserts a new transaction record and returns its id
func (r *TransactionRepository) Append(tx Transaction) (int64, error) {
	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO transactions
		(date, symbol, company, action, quantity, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		tx.Date,
		strings.ToUpper(strings.TrimSpace(tx.Symbol)),
		tx.Company,
		string(tx.Action),
		tx.Quantity,
		tx.Price,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction id: %w", err)
	}

	r.log.Info().
		Int64("id", id).
		Str("symbol", tx.Symbol).
		Str("action", string(tx.Action)).
		Float64("quantity", tx.Quantity).
		Float64("price", tx.Price).
		Msg("Transaction appended")

	return id, nil
}

// History retrieves transactions, most recent first
func (r *TransactionRepository) History(limit int) ([]Transaction, error) {
	query := `
		SELECT id, date, symbol, company, action, quantity, price, created_at
		FROM transactions
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction history: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListBySymbol retrieves all transactions for a symbol in application order
func (r *TransactionRepository) ListBySymbol(symbol string) ([]Transaction, error) {
	query := `
		SELECT id, date, symbol, company, action, quantity, price, created_at
		FROM transactions
		WHERE symbol = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions by symbol: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// ListAll retrieves the full log in application order
func (r *TransactionRepository) ListAll() ([]Transaction, error) {
	query := `
		SELECT id, date, symbol, company, action, quantity, price, created_at
		FROM transactions
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	return r.collect(rows)
}

// Count returns the total number of logged transactions
func (r *TransactionRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

func (r *TransactionRepository) collect(rows *sql.Rows) ([]Transaction, error) {
	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var action string
		if err := rows.Scan(
			&tx.ID,
			&tx.Date,
			&tx.Symbol,
			&tx.Company,
			&action,
			&tx.Quantity,
			&tx.Price,
			&tx.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Action = Action(action)
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}
