package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ticket-backend/internal/config"
	"ticket-backend/internal/middleware"
)

func main() {
	userID := flag.String("user", "organizer-1", "off-chain user id")
	wallet := flag.String("wallet", "", "wallet address to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	configPath := flag.String("config", "", "config file (default config.yaml)")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if err := config.LoadConfig(*configPath); err == nil {
			secret = config.AppConfig.Auth.JWTSecret
		}
	}
	if secret == "" {
		fmt.Println("Error: set JWT_SECRET or auth.jwtSecret in the config file")
		os.Exit(1)
	}

	tokenString, err := middleware.GenerateToken([]byte(secret), *userID, *wallet, *ttl)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  User ID: %s\n", *userID)
	if *wallet != "" {
		fmt.Printf("  Wallet: %s\n", *wallet)
	}
	fmt.Printf("  Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/wallet\n", tokenString)
}
