package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithToken(t *testing.T, tokenStr, secret string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	token, err := jwt.Parse(tokenStr, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	c.Set("user", token)
	return c
}

func TestGenerateTokenRoundtrip(t *testing.T) {
	secret := "test-secret"
	tokenStr, expiresAt, err := GenerateToken("user-123", "staff_mechanic", secret, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	c := contextWithToken(t, tokenStr, secret)

	userID, err := UserIDFromContext(c)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.Equal(t, "staff_mechanic", RoleFromContext(c))
}

func TestGenerateTokenValidation(t *testing.T) {
	_, _, err := GenerateToken("", "customer", "secret", time.Hour)
	assert.Error(t, err)

	_, _, err = GenerateToken("u1", "customer", "", time.Hour)
	assert.Error(t, err)

	_, _, err = GenerateToken("u1", "customer", "secret", 0)
	assert.Error(t, err)
}

func TestUserIDFromContextWithoutToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	_, err := UserIDFromContext(c)
	assert.Error(t, err)
	assert.Empty(t, RoleFromContext(c))
}
