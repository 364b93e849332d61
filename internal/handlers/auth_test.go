package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fixline/fixline/internal/identity"
)

type memPasswordStore struct {
	hashes map[string]string
}

func (s *memPasswordStore) GetPasswordHash(_ context.Context, userID string) (string, error) {
	return s.hashes[userID], nil
}

func (s *memPasswordStore) SetPassword(_ context.Context, userID, hash string) error {
	s.hashes[userID] = hash
	return nil
}

func newAuthFixture(t *testing.T) *AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	users := newMemIdentityStore(
		identity.User{ID: "staff-1", Role: identity.RoleStaffMechanic, Username: "kim", APIKey: identity.HashAPIKey("workshop-api-key")},
	)
	registry := identity.NewRegistry(nil, users)
	passwords := &memPasswordStore{hashes: map[string]string{"staff-1": string(hash)}}
	return NewAuthHandler(nil, registry, passwords, "test-secret", time.Hour)
}

func postLogin(t *testing.T, h *AuthHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Login(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestLoginWithAPIKey(t *testing.T) {
	h := newAuthFixture(t)
	rec := postLogin(t, h, `{"api_key":"workshop-api-key"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "staff-1", resp.UserID)
	assert.Equal(t, string(identity.RoleStaffMechanic), resp.Role)
}

func TestLoginWithPassword(t *testing.T) {
	h := newAuthFixture(t)
	rec := postLogin(t, h, `{"username":"kim","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newAuthFixture(t)

	rec := postLogin(t, h, `{"api_key":"wrong-key"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postLogin(t, h, `{"username":"kim","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postLogin(t, h, `{"username":"nobody","password":"hunter2hunter2"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postLogin(t, h, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
