// Package handlers is the HTTP and WebSocket transport layer on Echo.
package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/fixline/fixline/internal/assign"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/media"
	"github.com/fixline/fixline/internal/router"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var validate = validator.New()

// bindAndValidate decodes the request body and checks its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// httpError maps domain sentinel errors onto HTTP statuses so handlers
// never branch on them individually.
func httpError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrChatNotFound),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, media.ErrAttachmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrDuplicateIdentity):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, assign.ErrNoActiveStaff):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, chat.ErrInvalidMessageType),
		errors.Is(err, chat.ErrAttachmentRequired),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrSameSide),
		errors.Is(err, router.ErrNoDestination),
		errors.Is(err, media.ErrInvalidAttachmentType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrAttachmentTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
