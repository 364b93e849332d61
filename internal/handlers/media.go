package handlers

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/media"
)

// MediaHandler uploads attachments ahead of a send and serves stored
// attachments back by locator.
type MediaHandler struct {
	store  *media.Store
	logger *slog.Logger
}

func NewMediaHandler(log *slog.Logger, store *media.Store) *MediaHandler {
	if log == nil {
		log = slog.Default()
	}
	return &MediaHandler{
		store:  store,
		logger: log.With(slog.String("handler", "media")),
	}
}

func (h *MediaHandler) Register(e *echo.Echo) {
	e.POST("/media", h.Upload)
	// Locators contain path segments, so the route is a wildcard.
	e.GET("/media/*", h.Serve)
}

type uploadResponse struct {
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

// Upload accepts one multipart file and returns the locator to reference
// in a subsequent message send.
func (h *MediaHandler) Upload(c echo.Context) error {
	msgType, err := chat.ParseMessageType(c.FormValue("type"))
	if err != nil {
		return httpError(err)
	}
	if msgType == chat.TypeText {
		return echo.NewHTTPError(http.StatusBadRequest, "a media message type is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}
	if fileHeader.Size > h.store.MaxBytes() {
		return httpError(media.ErrAttachmentTooLarge)
	}
	src, err := fileHeader.Open()
	if err != nil {
		return httpError(err)
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, h.store.MaxBytes()+1))
	if err != nil {
		return httpError(err)
	}

	ref, err := h.store.Save(c.Request().Context(), data, fileHeader.Filename, msgType)
	if err != nil {
		return httpError(err)
	}
	h.logger.Info("attachment stored", slog.String("ref", ref), slog.String("type", string(msgType)))
	return c.JSON(http.StatusCreated, uploadResponse{Ref: ref, Type: string(msgType)})
}

// Serve streams a stored attachment.
func (h *MediaHandler) Serve(c echo.Context) error {
	ref := c.Param("*")
	data, err := h.store.Read(c.Request().Context(), ref)
	if err != nil {
		return httpError(err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(ref))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Blob(http.StatusOK, contentType, data)
}
