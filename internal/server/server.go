package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fixline/fixline/internal/auth"
	"github.com/fixline/fixline/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(log *slog.Logger, addr string, jwtSecret string, pingHandler *handlers.PingHandler, authHandler *handlers.AuthHandler, chatsHandler *handlers.ChatsHandler, wsHandler *handlers.WSHandler, telegramHandler *handlers.TelegramHandler, mediaHandler *handlers.MediaHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		if path == "/ping" || path == "/health" || path == "/auth/login" || path == "/metrics" {
			return true
		}
		// Platform webhooks cannot present a bearer token.
		if strings.HasPrefix(path, "/telegram/") {
			return true
		}
		return false
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if authHandler != nil {
		authHandler.Register(e)
	}
	if chatsHandler != nil {
		chatsHandler.Register(e)
	}
	if wsHandler != nil {
		wsHandler.Register(e)
	}
	if telegramHandler != nil {
		telegramHandler.Register(e)
	}
	if mediaHandler != nil {
		mediaHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
