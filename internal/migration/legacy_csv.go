package migration

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/carterapp/cartera/internal/events"
	"github.com/carterapp/cartera/internal/ledger"
)

// BackupSuffix is appended to the legacy file after a successful import
const BackupSuffix = ".bak"

// Ledger is the slice of the ledger service the migration needs
type Ledger interface {
	Record(tx ledger.Transaction) (ledger.Transaction, error)
	TransactionCount() (int, error)
}

// LegacyCSVMigrator replays a legacy flat portfolio file
// (Symbol,Company,Quantity,BuyPrice,BuyDate) into the transaction store as
// synthetic BUY transactions, then archives the file.
//
// The migration is idempotent: it runs only when the legacy file exists and
// the store holds no transactions yet, and the archived file is never
// re-imported.
type LegacyCSVMigrator struct {
	path         string
	ledger       Ledger
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewLegacyCSVMigrator creates a new migrator for the given file path
func NewLegacyCSVMigrator(path string, l Ledger, eventManager *events.Manager, log zerolog.Logger) *LegacyCSVMigrator {
	return &LegacyCSVMigrator{
		path:         path,
		ledger:       l,
		eventManager: eventManager,
		log:          log.With().Str("component", "legacy_migration").Logger(),
	}
}

// Run performs the one-time migration. Returns the number of imported rows.
func (m *LegacyCSVMigrator) Run() (int, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		m.log.Debug().Str("path", m.path).Msg("No legacy file, nothing to migrate")
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to stat legacy file: %w", err)
	}

	count, err := m.ledger.TransactionCount()
	if err != nil {
		return 0, fmt.Errorf("failed to check store state: %w", err)
	}
	if count > 0 {
		// Store already populated: never re-import. The file is left in
		// place so nothing is silently discarded.
		m.log.Warn().
			Str("path", m.path).
			Int("transactions", count).
			Msg("Legacy file present but store already populated, skipping import")
		return 0, nil
	}

	rows, err := m.read()
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, row := range rows {
		if _, err := m.ledger.Record(row); err != nil {
			return imported, fmt.Errorf("failed to replay legacy row for %s: %w", row.Symbol, err)
		}
		imported++
	}

	backup := m.path + BackupSuffix
	if err := os.Rename(m.path, backup); err != nil {
		return imported, fmt.Errorf("failed to archive legacy file: %w", err)
	}

	m.log.Info().
		Int("imported", imported).
		Str("backup", backup).
		Msg("Legacy portfolio migrated")

	if m.eventManager != nil {
		m.eventManager.Emit(events.MigrationComplete, "migration", map[string]interface{}{
			"imported": imported,
			"backup":   backup,
		})
	}

	return imported, nil
}

// read parses the legacy CSV into synthetic BUY transactions. Columns are
// resolved by header name, extra columns are ignored.
func (m *LegacyCSVMigrator) read() ([]ledger.Transaction, error) {
	f, err := os.Open(m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"symbol", "quantity", "buyprice"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("legacy file missing column %q", required)
		}
	}

	var txs []ledger.Transaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read legacy row %d: %w", line, err)
		}
		line++

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		quantity, err := strconv.ParseFloat(field("quantity"), 64)
		if err != nil {
			return nil, fmt.Errorf("legacy row %d: bad quantity %q", line, field("quantity"))
		}
		price, err := strconv.ParseFloat(field("buyprice"), 64)
		if err != nil {
			return nil, fmt.Errorf("legacy row %d: bad price %q", line, field("buyprice"))
		}

		date := field("buydate")
		if date == "" {
			date = time.Now().Format(ledger.DateLayout)
		}

		txs = append(txs, ledger.Transaction{
			Date:     date,
			Symbol:   strings.ToUpper(field("symbol")),
			Company:  field("company"),
			Action:   ledger.ActionBuy,
			Quantity: quantity,
			Price:    price,
		})
	}

	return txs, nil
}
