package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"ticket-backend/internal/config"
	"ticket-backend/internal/db"

	_ "github.com/lib/pq"
)

type check struct {
	table   string
	columns []string
}

// columns the reconciliation join and the listing lookups rely on
var requiredColumns = []check{
	{"events", []string{"id", "nft_enabled", "nft_supply", "nft_price"}},
	{"nft_tickets", []string{"id", "token_id", "contract_address", "event_id", "owner_wallet_address", "is_used"}},
	{"marketplace_listings", []string{"id", "nft_ticket_id", "seller_wallet_address", "price_eth", "is_active"}},
	{"nft_transactions", []string{"id", "nft_ticket_id", "transaction_hash", "transaction_type"}},
	{"pending_ledger_writes", []string{"id", "kind", "status", "next_retry_at"}},
}

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml)")
	migrate := flag.Bool("migrate", false, "run pending data migrations")
	flag.Parse()

	fmt.Println("🔍 Verifying database connection and ledger schema...")
	fmt.Println(strings.Repeat("=", 60))

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if err := config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		dsn = config.AppConfig.Database.DSN
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	failed := false
	for _, c := range requiredColumns {
		missing := 0
		for _, column := range c.columns {
			var exists bool
			err := sqlDB.QueryRow(`
				SELECT EXISTS (
					SELECT 1 FROM information_schema.columns
					WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2
				)`, c.table, column).Scan(&exists)
			if err != nil {
				log.Fatalf("Failed to query columns of %s: %v", c.table, err)
			}
			if !exists {
				fmt.Printf("❌ %s.%s is missing\n", c.table, column)
				missing++
			}
		}
		if missing > 0 {
			failed = true
		} else {
			fmt.Printf("✅ %s columns present\n", c.table)
		}
	}

	// the join key between chain tokens and mirror rows must be unique
	var indexDef sql.NullString
	err = sqlDB.QueryRow(`
		SELECT indexdef FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = 'nft_tickets'
		  AND indexdef ILIKE '%UNIQUE%'
		  AND indexdef ILIKE '%token_id%'
		  AND indexdef ILIKE '%contract_address%'
		LIMIT 1`).Scan(&indexDef)
	switch {
	case err == sql.ErrNoRows:
		fmt.Println("❌ nft_tickets has no unique index on (token_id, contract_address)")
		failed = true
	case err != nil:
		log.Fatalf("Failed to query indexes: %v", err)
	default:
		fmt.Printf("✅ Join key index: %s\n", indexDef.String)
	}

	var duplicates int
	if err := sqlDB.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT nft_ticket_id FROM marketplace_listings
			WHERE is_active = true
			GROUP BY nft_ticket_id HAVING COUNT(*) > 1
		) d`).Scan(&duplicates); err != nil {
		log.Fatalf("Failed to count duplicate listings: %v", err)
	}
	if duplicates > 0 {
		fmt.Printf("⚠️ %d ticket(s) have more than one active listing\n", duplicates)
	}

	if *migrate {
		fmt.Println("\n🔧 Running data migrations...")
		if err := db.RunDataMigrations(sqlDB); err != nil {
			log.Fatalf("Data migrations failed: %v", err)
		}
		fmt.Println("✅ Data migrations complete")
	}

	if failed {
		fmt.Println("\n❌ Schema verification failed, start ticket-server once to run AutoMigrate")
		os.Exit(1)
	}
	fmt.Println("\n✅ Schema verification passed")
}
