package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/fixline/fixline/internal/auth"
	"github.com/fixline/fixline/internal/identity"
)

// PasswordStore reads and writes the bcrypt digests backing password
// logins.
type PasswordStore interface {
	GetPasswordHash(ctx context.Context, userID string) (string, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

// AuthHandler issues session tokens and registers staff accounts.
type AuthHandler struct {
	registry  *identity.Registry
	passwords PasswordStore
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(log *slog.Logger, registry *identity.Registry, passwords PasswordStore, secret string, expiresIn time.Duration) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		registry:  registry,
		passwords: passwords,
		secret:    secret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
	e.POST("/auth/register", h.RegisterUser)
}

type loginRequest struct {
	APIKey   string `json:"api_key"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
}

// Login authenticates with either an api key or username and password.
// Both paths answer the same generic 401 so callers cannot probe which
// part was wrong.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	var (
		user identity.User
		err  error
	)
	switch {
	case strings.TrimSpace(req.APIKey) != "":
		user, err = h.registry.Resolve(ctx, identity.CredentialAPIKey, req.APIKey)
	case strings.TrimSpace(req.Username) != "":
		user, err = h.registry.Resolve(ctx, identity.CredentialUsername, req.Username)
		if err == nil {
			err = h.checkPassword(ctx, user.ID, req.Password)
		}
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "api_key or username is required")
	}
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return httpError(err)
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, string(user.Role), h.secret, h.expiresIn)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info("login", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	return c.JSON(http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		UserID:    user.ID,
		Role:      string(user.Role),
	})
}

func (h *AuthHandler) checkPassword(ctx context.Context, userID, password string) error {
	hash, err := h.passwords.GetPasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if hash == "" {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

type registerRequest struct {
	Role        string `json:"role" validate:"required,oneof=staff_admin staff_mechanic customer"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Username    string `json:"username" validate:"omitempty,min=3,max=64"`
	Password    string `json:"password" validate:"omitempty,min=8,max=128"`
	APIKey      string `json:"api_key" validate:"omitempty,min=16"`
	Phone       string `json:"phone" validate:"omitempty,e164"`
	TelegramID  string `json:"telegram_id"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// RegisterUser creates an account. Admin only: staff onboarding is an
// operator action, customers are created implicitly on first contact.
func (h *AuthHandler) RegisterUser(c echo.Context) error {
	if auth.RoleFromContext(c) != string(identity.RoleStaffAdmin) {
		return echo.NewHTTPError(http.StatusForbidden, "admin role required")
	}
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Username != "" && req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password is required with username")
	}

	ctx := c.Request().Context()
	user := identity.User{
		Role:        identity.Role(req.Role),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Username:    strings.TrimSpace(req.Username),
		Phone:       strings.TrimSpace(req.Phone),
		TelegramID:  strings.TrimSpace(req.TelegramID),
	}
	if strings.TrimSpace(req.APIKey) != "" {
		user.APIKey = identity.HashAPIKey(req.APIKey)
	}
	created, err := h.registry.Register(ctx, user)
	if err != nil {
		return httpError(err)
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return httpError(err)
		}
		if err := h.passwords.SetPassword(ctx, created.ID, string(hash)); err != nil {
			return httpError(err)
		}
	}
	return c.JSON(http.StatusCreated, registerResponse{
		UserID: created.ID,
		Role:   string(created.Role),
	})
}
