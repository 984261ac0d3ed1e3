package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ticket-backend/internal/app"
	"ticket-backend/internal/config"
	"ticket-backend/internal/services"
)

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml)")
	walletAddr := flag.String("wallet", "", "wallet address to reconcile")
	eventID := flag.Uint64("event", 0, "event id to reconcile")
	tokenID := flag.Uint64("token", 0, "reconcile a single token instead of a wallet/event pair")
	repair := flag.Bool("repair", false, "write the chain state into the ledger (default: report only)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Parse()

	if *tokenID == 0 && (*walletAddr == "" || *eventID == 0) {
		fmt.Println("Usage: reconcile -wallet 0x... -event N [-repair]")
		fmt.Println("       reconcile -token N [-repair]")
		os.Exit(2)
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	container, err := app.NewServiceContainer(ctx, config.AppConfig)
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer container.Cleanup()
	recon := container.Reconciliation

	switch {
	case *tokenID != 0 && *repair:
		result, err := recon.RepairToken(ctx, *tokenID)
		exitOnError(err)
		printJSON(result)
	case *tokenID != 0:
		ticket, err := container.Ledger.Tickets.GetByToken(ctx, container.Gateway.ContractAddress(), *tokenID)
		exitOnError(err)
		report, err := recon.Check(ctx, ticket.OwnerWalletAddress, ticket.EventID)
		exitOnError(err)
		printReport(report)
	case *repair:
		result, err := recon.Repair(ctx, *walletAddr, *eventID)
		exitOnError(err)
		printJSON(result)
		if !result.After.Consistent() {
			os.Exit(1)
		}
	default:
		report, err := recon.Check(ctx, *walletAddr, *eventID)
		exitOnError(err)
		printReport(report)
	}
}

func printReport(report *services.DivergenceReport) {
	printJSON(report)
	if report.Consistent() {
		fmt.Println("✅ Chain and ledger agree")
		return
	}
	fmt.Printf("⚠️ %d divergence(s): %d missing_offchain, %d stale_owner, %d phantom_offchain\n",
		len(report.Divergences),
		report.Count(services.DivergenceMissingOffchain),
		report.Count(services.DivergenceStaleOwner),
		report.Count(services.DivergencePhantomOffchain))
	os.Exit(1)
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func exitOnError(err error) {
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}
