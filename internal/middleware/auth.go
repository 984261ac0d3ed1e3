package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ticket-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Context keys set by RequireAuth
const (
	ContextUserID = "user_id"
	ContextWallet = "wallet"
)

const tokenIssuer = "ticket-backend"

// GenerateToken signs a token for an off-chain account
func GenerateToken(secret []byte, userID, wallet string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := dto.JWTClaims{
		UserID: userID,
		Wallet: strings.ToLower(wallet),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken parses and verifies an HS256 token
func ValidateToken(secret []byte, tokenString string) (*dto.JWTClaims, error) {
	claims := &dto.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AuthMiddleware JWT
type AuthMiddleware struct {
	logger *logrus.Logger
	secret []byte
}

// NewAuthMiddleware createJWT
func NewAuthMiddleware(logger *logrus.Logger, secret string) *AuthMiddleware {
	if secret == "" {
		logger.Warn("JWT secret is empty, authenticated routes will reject every request")
	}
	return &AuthMiddleware{
		logger: logger,
		secret: []byte(secret),
	}
}

// RequireAuth JWT
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "MISSING_AUTH_HEADER", "Authentication required", "Missing Authorization header. Please provide a valid JWT token.")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, "INVALID_AUTH_FORMAT", "Invalid authorization format", "Authorization header must be in format: Bearer <token>")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" || len(a.secret) == 0 {
			a.reject(c, "EMPTY_TOKEN", "Empty token", "Token cannot be empty")
			return
		}

		claims, err := ValidateToken(a.secret, tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("JWT verification failed")
			a.reject(c, "INVALID_TOKEN", "Invalid or expired token", err.Error())
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextWallet, claims.Wallet)

		a.logger.WithFields(logrus.Fields{
			"path":    c.Request.URL.Path,
			"method":  c.Request.Method,
			"user_id": claims.UserID,
			"wallet":  claims.Wallet,
		}).Debug("JWT verified")

		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, code, errMsg, message string) {
	a.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}).Warn("JWT authentication failed")

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
		Success: false,
		Error:   errMsg,
		Message: message,
		Code:    code,
	})
}

// UserID returns the authenticated account id, if any
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// OptionalAuth sets the account keys when a valid token is present and never rejects
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") && len(a.secret) > 0 {
			if claims, err := ValidateToken(a.secret, strings.TrimPrefix(authHeader, "Bearer ")); err == nil {
				c.Set(ContextUserID, claims.UserID)
				c.Set(ContextWallet, claims.Wallet)
			} else {
				a.logger.WithFields(logrus.Fields{
					"path":  c.Request.URL.Path,
					"error": err.Error(),
				}).Debug("Ignoring invalid optional token")
			}
		}
		c.Next()
	}
}
