package db

import (
	"database/sql"
	"log"
	"strings"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

// GetDataMigrations return all data migrations
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Lowercase wallet addresses in ledger tables",
			Up:          lowercaseWalletAddresses,
		},
		{
			Version:     "data_002",
			Description: "Keep only the newest active listing per ticket",
			Up:          deactivateDuplicateListings,
		},
	}
}

// lowercaseWalletAddresses rows written before address normalization kept checksum case,
// which breaks owner comparisons against chain reads
func lowercaseWalletAddresses(db *sql.DB) error {
	columns := map[string][]string{
		"nft_tickets":           {"owner_wallet_address", "contract_address"},
		"marketplace_listings":  {"seller_wallet_address"},
		"nft_transactions":      {"from_wallet_address", "to_wallet_address"},
		"pending_ledger_writes": {"wallet_address"},
	}

	for table, cols := range columns {
		for _, col := range cols {
			result, err := db.Exec(`UPDATE ` + table + ` SET ` + col + ` = LOWER(` + col + `) WHERE ` + col + ` <> LOWER(` + col + `)`)
			if err != nil {
				log.Printf("❌ Failed to normalize %s.%s: %v", table, col, err)
				return err
			}
			rowsAffected, _ := result.RowsAffected()
			log.Printf("✅ Normalized %d rows in %s.%s", rowsAffected, table, col)
		}
	}
	return nil
}

// deactivateDuplicateListings a ticket may have at most one active listing
func deactivateDuplicateListings(db *sql.DB) error {
	result, err := db.Exec(`
		UPDATE marketplace_listings ml
		SET is_active = false, deactivation_reason = 'stale', deactivated_at = NOW()
		WHERE ml.is_active = true
		  AND EXISTS (
			SELECT 1 FROM marketplace_listings newer
			WHERE newer.nft_ticket_id = ml.nft_ticket_id
			  AND newer.is_active = true
			  AND newer.created_at > ml.created_at
		  )
	`)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	log.Printf("✅ Deactivated %d duplicate active listings", rowsAffected)
	return nil
}

// RunDataMigrations runs every data migration not yet recorded in schema_migrations_log
func RunDataMigrations(db *sql.DB) error {
	for _, migration := range GetDataMigrations() {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count)

		if err != nil {
			if !strings.Contains(err.Error(), "does not exist") {
				return err
			}
			log.Printf("📋 Creating schema_migrations_log table...")
			if _, createErr := db.Exec(`
				CREATE TABLE IF NOT EXISTS schema_migrations_log (
					id SERIAL PRIMARY KEY,
					version VARCHAR(50) NOT NULL UNIQUE,
					description TEXT,
					executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)
			`); createErr != nil {
				return createErr
			}
			count = 0
		}

		if count > 0 {
			log.Printf("📋 Data migration %s already applied", migration.Version)
			continue
		}

		log.Printf("🚀 Running data migration: %s", migration.Description)
		if err := migration.Up(db); err != nil {
			return err
		}

		if _, err := db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return err
		}
		log.Printf("✅ Data migration %s completed", migration.Version)
	}
	return nil
}
