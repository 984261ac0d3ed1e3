package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// JWTClaims JWT Claims structure
type JWTClaims struct {
	UserID string `json:"user_id"`          // off-chain account id
	Wallet string `json:"wallet,omitempty"` // wallet the account last connected with
	jwt.RegisteredClaims
}

// ErrorResponse error envelope of every failed API call
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code"`
}
