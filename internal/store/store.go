// Package store is the Postgres persistence layer. It implements the
// narrow store interfaces declared by the identity, chat, live, and
// router packages on top of a single pgx pool.
package store

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs all queries against one shared pool. Methods map pgx
// not-found and unique-violation errors onto the domain sentinel errors
// so callers never see driver types.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates the Postgres store.
func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:   pool,
		logger: log.With(slog.String("service", "store")),
	}
}
