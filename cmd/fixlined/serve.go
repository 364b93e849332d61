package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"golang.org/x/crypto/bcrypt"

	"github.com/fixline/fixline/internal/assign"
	"github.com/fixline/fixline/internal/bridge"
	"github.com/fixline/fixline/internal/bridge/telegram"
	"github.com/fixline/fixline/internal/chat"
	"github.com/fixline/fixline/internal/config"
	"github.com/fixline/fixline/internal/db"
	"github.com/fixline/fixline/internal/handlers"
	"github.com/fixline/fixline/internal/identity"
	"github.com/fixline/fixline/internal/live"
	"github.com/fixline/fixline/internal/logging"
	"github.com/fixline/fixline/internal/media"
	"github.com/fixline/fixline/internal/metrics"
	"github.com/fixline/fixline/internal/router"
	"github.com/fixline/fixline/internal/server"
	"github.com/fixline/fixline/internal/store"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideMetrics,
			store.New,
			provideIdentityRegistry,
			provideLiveRegistry,
			live.NewSweeper,
			provideAssignStrategy,
			provideChatResolver,
			provideChatService,
			provideMediaStore,
			provideTelegramAdapter,
			provideRouter,
			handlers.NewPingHandler,
			provideAuthHandler,
			provideChatsHandler,
			handlers.NewWSHandler,
			provideTelegramHandler,
			handlers.NewMediaHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideMetrics() *metrics.Metrics {
	return metrics.Registry("fixline")
}

func provideIdentityRegistry(log *slog.Logger, st *store.Store) *identity.Registry {
	return identity.NewRegistry(log, st)
}

func provideLiveRegistry(log *slog.Logger, st *store.Store) *live.Registry {
	return live.NewRegistry(log, st)
}

func provideAssignStrategy(liveReg *live.Registry) assign.Strategy {
	return assign.NewFirstConnected(liveReg)
}

func provideChatResolver(log *slog.Logger, st *store.Store) *chat.Resolver {
	return chat.NewResolver(log, st)
}

func provideChatService(log *slog.Logger, st *store.Store) *chat.Service {
	return chat.NewService(log, st)
}

func provideMediaStore(log *slog.Logger, cfg config.Config) (*media.Store, error) {
	return media.NewStore(log, cfg.Media.Dir, cfg.Media.MaxBytes)
}

func provideTelegramAdapter(log *slog.Logger, cfg config.Config, mediaStore *media.Store) (*telegram.Adapter, error) {
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return nil, nil
	}
	return telegram.New(log, cfg.Telegram, mediaStore)
}

func provideRouter(log *slog.Logger, st *store.Store, registry *identity.Registry, resolver *chat.Resolver, picker assign.Strategy, liveReg *live.Registry, adapter *telegram.Adapter, m *metrics.Metrics) *router.Router {
	// A nil adapter must stay out of the bridge slot or the interface
	// value would be non-nil with a nil pointer inside.
	var b bridge.Bridge
	if adapter != nil {
		b = adapter
	}
	return router.New(log, st, registry, resolver, picker, liveReg, b, m)
}

func provideAuthHandler(log *slog.Logger, registry *identity.Registry, st *store.Store, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, registry, st, cfg.Auth.JWTSecret, cfg.Auth.ExpiresIn())
}

func provideChatsHandler(log *slog.Logger, registry *identity.Registry, chatService *chat.Service, liveReg *live.Registry) *handlers.ChatsHandler {
	return handlers.NewChatsHandler(log, registry, chatService, liveReg)
}

func provideTelegramHandler(log *slog.Logger, registry *identity.Registry, adapter *telegram.Adapter, mediaStore *media.Store, msgRouter *router.Router, m *metrics.Metrics) *handlers.TelegramHandler {
	if adapter == nil {
		return nil
	}
	return handlers.NewTelegramHandler(log, registry, adapter, mediaStore, msgRouter, m)
}

func provideServer(log *slog.Logger, cfg config.Config, ping *handlers.PingHandler, authHandler *handlers.AuthHandler, chats *handlers.ChatsHandler, ws *handlers.WSHandler, tg *handlers.TelegramHandler, mediaHandler *handlers.MediaHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret, ping, authHandler, chats, ws, tg, mediaHandler)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied")
	return nil
}

func startSweeper(lc fx.Lifecycle, sweeper *live.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return sweeper.Start(ctx) },
		OnStop:  func(ctx context.Context) error { sweeper.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, st *store.Store, registry *identity.Registry, liveReg *live.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := ensureAdminUser(ctx, logger, registry, st, cfg); err != nil {
				return err
			}
			liveReg.ReconcilePresence(ctx)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			liveReg.Shutdown(ctx)
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// ensureAdminUser bootstraps the first staff admin from config so a fresh
// deployment can log in.
func ensureAdminUser(ctx context.Context, log *slog.Logger, registry *identity.Registry, st *store.Store, cfg config.Config) error {
	username := strings.TrimSpace(cfg.Admin.Username)
	password := strings.TrimSpace(cfg.Admin.Password)
	if username == "" || password == "" {
		return fmt.Errorf("admin username/password required in config.toml")
	}
	if _, err := registry.Resolve(ctx, identity.CredentialUsername, username); err == nil {
		return nil
	} else if !errors.Is(err, identity.ErrUserNotFound) {
		return err
	}
	if password == "change-your-password-here" {
		log.Warn("admin password uses default placeholder; please update config.toml")
	}

	created, err := registry.Register(ctx, identity.User{
		Role:        identity.RoleStaffAdmin,
		DisplayName: strings.TrimSpace(cfg.Admin.DisplayName),
		Username:    username,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := st.SetPassword(ctx, created.ID, string(hashed)); err != nil {
		return err
	}
	log.Info("admin user created", slog.String("username", username))
	return nil
}
