package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_ValidateAPIKey(t *testing.T) {
	auth := NewAuthService("my-api-key", "my-secret")

	assert.True(t, auth.ValidateAPIKey("my-api-key"))
	assert.False(t, auth.ValidateAPIKey("wrong-key"))
	assert.False(t, auth.ValidateAPIKey(""))
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	auth := NewAuthService("api-key", "jwt-secret")

	token, err := auth.GenerateToken("admin", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := NewAuthService("api-key", "jwt-secret")

	expired, err := auth.GenerateToken("admin", -time.Hour)
	require.NoError(t, err)

	other := NewAuthService("api-key", "other-secret")
	wrongSecret, err := other.GenerateToken("admin", time.Hour)
	require.NoError(t, err)

	// Signed with our secret but not issued by this agent.
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	foreignSigned, err := foreign.SignedString([]byte("jwt-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":        expired,
		"wrong secret":   wrongSecret,
		"foreign issuer": foreignSigned,
		"garbage":        "invalid.token.here",
		"empty":          "",
	} {
		_, err := auth.ValidateToken(token)
		assert.Error(t, err, name)
	}
}

func TestExtractToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		target string
		want   string
	}{
		{"bearer header", "Bearer my-token", "/", "my-token"},
		{"raw header", "raw-token", "/", "raw-token"},
		{"query param", "", "/?token=query-token", "query-token"},
		{"header wins over query", "Bearer header-token", "/?token=query-token", "header-token"},
		{"missing", "", "/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, ExtractToken(c))
		})
	}
}
