package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("secret")
	token, err := GenerateToken(secret, "user-1", "0xAbCd000000000000000000000000000000000000", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "0xabcd000000000000000000000000000000000000", claims.Wallet)

	_, err = ValidateToken([]byte("other"), token)
	assert.Error(t, err)

	expired, err := GenerateToken(secret, "user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(secret, expired)
	assert.Error(t, err)

	anonymous, err := GenerateToken(secret, "", "", time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken(secret, anonymous)
	assert.Error(t, err)
}

func TestRequireAuthSetsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware(testLogger(), "secret")
	r := gin.New()
	r.GET("/me", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	token, err := GenerateToken([]byte("secret"), "user-1", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"basic", "Basic abc", http.StatusUnauthorized, "INVALID_AUTH_FORMAT"},
		{"garbage", "Bearer abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"valid", "Bearer " + token, http.StatusOK, "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestOptionalAuthNeverRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := NewAuthMiddleware(testLogger(), "secret")
	r := gin.New()
	r.GET("/feed", auth.OptionalAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "user=%s", UserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user=", w.Body.String())
}

func TestAllowedIPs(t *testing.T) {
	l := NewLocalhostOnly(testLogger(), []string{"10.0.0.0/8", "203.0.113.7", "bad/cidr"})

	assert.True(t, l.isAllowedIP("127.0.0.1"))
	assert.True(t, l.isAllowedIP("::1"))
	assert.True(t, l.isAllowedIP("10.20.30.40"))
	assert.True(t, l.isAllowedIP("203.0.113.7"))
	assert.False(t, l.isAllowedIP("203.0.113.8"))
	assert.False(t, l.isAllowedIP("not-an-ip"))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://tickets.example"}, AllowCredentials: true}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://tickets.example")
	w := serve(r, req)
	assert.Equal(t, "https://tickets.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	w = serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Admin-TOTP")
}

func TestRequireTOTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const secret = "JBSWY3DPEHPK3PXP"
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	admin := NewAdminAuthMiddleware(testLogger(), secret)
	admin.now = func() time.Time { return fixed }
	r := gin.New()
	r.POST("/repair", admin.RequireTOTP(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(code string) int {
		req := httptest.NewRequest(http.MethodPost, "/repair", nil)
		if code != "" {
			req.Header.Set("X-Admin-TOTP", code)
		}
		return serve(r, req).Code
	}

	valid, err := totp.GenerateCode(secret, fixed)
	require.NoError(t, err)
	stale, err := totp.GenerateCode(secret, fixed.Add(-5*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, send(valid))
	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send(stale))

	disabled := gin.New()
	disabled.POST("/repair", NewAdminAuthMiddleware(testLogger(), "").RequireTOTP(), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := serve(disabled, httptest.NewRequest(http.MethodPost, "/repair", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
