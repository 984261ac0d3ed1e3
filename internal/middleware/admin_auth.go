package middleware

import (
	"net/http"
	"time"

	"ticket-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware guards repair endpoints with a TOTP code
type AdminAuthMiddleware struct {
	logger *logrus.Logger
	secret string
	now    func() time.Time
}

// NewAdminAuthMiddleware creates the admin guard
func NewAdminAuthMiddleware(logger *logrus.Logger, totpSecret string) *AdminAuthMiddleware {
	if totpSecret == "" {
		logger.Warn("⚠️ ADMIN_TOTP_SECRET not set, admin endpoints are disabled")
	}
	return &AdminAuthMiddleware{logger: logger, secret: totpSecret, now: time.Now}
}

// RequireTOTP requires a valid code in the X-Admin-TOTP header
func (a *AdminAuthMiddleware) RequireTOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "Admin access not configured",
				Message: "Server misconfiguration: ADMIN_TOTP_SECRET not set",
				Code:    "ADMIN_DISABLED",
			})
			return
		}

		code := c.GetHeader("X-Admin-TOTP")
		if code == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Admin auth failed - missing TOTP code")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "Authentication required",
				Code:  "MISSING_TOTP",
			})
			return
		}

		valid, err := totp.ValidateCustom(code, a.secret, a.now().UTC(), totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !valid {
			a.logger.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"method":    c.Request.Method,
				"client_ip": c.ClientIP(),
			}).Warn("Admin auth failed - invalid TOTP code")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "Invalid TOTP code",
				Code:  "INVALID_TOTP",
			})
			return
		}

		c.Set("admin", true)
		c.Next()
	}
}
