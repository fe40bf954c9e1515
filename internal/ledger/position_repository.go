package ledger

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all positions ordered by symbol
func (r *PositionRepository) GetAll() ([]Position, error) {
	query := `
		SELECT symbol, company, quantity, avg_price, current_price, last_updated
		FROM positions
		ORDER BY symbol ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetBySymbol returns a position by symbol, or nil if there is no open position
func (r *PositionRepository) GetBySymbol(symbol string) (*Position, error) {
	query := `
		SELECT symbol, company, quantity, avg_price, current_price, last_updated
		FROM positions
		WHERE symbol = ?
	`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query position by symbol: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // Position not found
	}

	pos, err := scanPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}

	return &pos, nil
}

// Count returns the number of open positions
func (r *PositionRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}

	return count, nil
}

// Upsert inserts or replaces a position
func (r *PositionRepository) Upsert(position Position) error {
	position.Symbol = strings.ToUpper(strings.TrimSpace(position.Symbol))

	lastUpdated := position.LastUpdated
	if lastUpdated == "" {
		lastUpdated = time.Now().Format(time.RFC3339)
	}

	query := `
		INSERT OR REPLACE INTO positions
		(symbol, company, quantity, avg_price, current_price, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		position.Symbol,
		position.Company,
		position.Quantity,
		position.AvgPrice,
		position.CurrentPrice,
		lastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	r.log.Debug().Str("symbol", position.Symbol).Msg("Position upserted")
	return nil
}

// Delete removes a position row; the transaction log is untouched
func (r *PositionRepository) Delete(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	result, err := r.db.Exec("DELETE FROM positions WHERE symbol = ?", symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Info().Str("symbol", symbol).Int64("rows_affected", rowsAffected).Msg("Position deleted")
	return nil
}

// UpdatePrice sets the current market price for an open position.
// Quantity and avg_price are never touched by this path. A symbol with no
// open position is a silent no-op (stale fetch results are discarded here).
func (r *PositionRepository) UpdatePrice(symbol string, price float64) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := time.Now().Format(time.RFC3339)

	query := `
		UPDATE positions SET
			current_price = ?,
			last_updated = ?
		WHERE symbol = ?
	`

	result, err := r.db.Exec(query, price, now, symbol)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Debug().
		Str("symbol", symbol).
		Float64("price", price).
		Int64("rows_affected", rowsAffected).
		Msg("Position price updated")

	return nil
}

// Set overwrites quantity and avg_price for an existing position (manual
// correction path). Returns the number of rows updated.
func (r *PositionRepository) Set(symbol string, quantity, avgPrice float64) (int64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := time.Now().Format(time.RFC3339)

	query := `
		UPDATE positions SET
			quantity = ?,
			avg_price = ?,
			last_updated = ?
		WHERE symbol = ?
	`

	result, err := r.db.Exec(query, quantity, avgPrice, now, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to set position: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Info().
		Str("symbol", symbol).
		Float64("quantity", quantity).
		Float64("avg_price", avgPrice).
		Int64("rows_affected", rowsAffected).
		Msg("Position overwritten")

	return rowsAffected, nil
}

func scanPosition(rows *sql.Rows) (Position, error) {
	var pos Position
	var company, lastUpdated sql.NullString
	var currentPrice sql.NullFloat64

	err := rows.Scan(
		&pos.Symbol,
		&company,
		&pos.Quantity,
		&pos.AvgPrice,
		&currentPrice,
		&lastUpdated,
	)
	if err != nil {
		return pos, err
	}

	if company.Valid {
		pos.Company = company.String
	}
	if currentPrice.Valid {
		pos.CurrentPrice = currentPrice.Float64
	}
	if lastUpdated.Valid {
		pos.LastUpdated = lastUpdated.String
	}

	pos.Symbol = strings.ToUpper(strings.TrimSpace(pos.Symbol))

	return pos, nil
}
