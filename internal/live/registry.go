package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fixline/fixline/internal/identity"
)

// CloseReason explains why a handle is being closed.
type CloseReason string

const (
	// CloseSuperseded marks a handle displaced by a newer connection for
	// the same identity.
	CloseSuperseded CloseReason = "superseded by new connection"
	// CloseShutdown marks handles closed during registry shutdown.
	CloseShutdown CloseReason = "server shutting down"
)

// Handle is a live transport endpoint for one identity. Implementations
// must tolerate Deliver and Close being called from different goroutines.
type Handle interface {
	Deliver(frame OutboundFrame) error
	Close(reason CloseReason) error
}

// OutboundFrame is the payload pushed to a live handle.
type OutboundFrame struct {
	Kind    string `json:"kind"`
	ChatID  string `json:"chat_id,omitempty"`
	Message any    `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// PresenceStore persists the online flag; the registry itself is never
// authoritative for conversation state.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
	ListOnlineUserIDs(ctx context.Context) ([]string, error)
}

type entry struct {
	handle Handle
	staff  bool
}

// Registry tracks the single live handle per identity. Policy is
// last-connect-wins: a new connection supersedes and closes the previous
// one. Mutations are serialized per identity, so operations on different
// identities proceed independently.
type Registry struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	entries  map[string]*entry
	order    []string // staff ids in registration order
	presence PresenceStore
	logger   *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(log *slog.Logger, presence PresenceStore) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		locks:    map[string]*sync.Mutex{},
		entries:  map[string]*entry{},
		presence: presence,
		logger:   log.With(slog.String("service", "live")),
	}
}

func (r *Registry) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// Connect registers the handle for the user and reports whether it
// displaced a previous one. A previously registered handle is closed
// immediately with CloseSuperseded.
func (r *Registry) Connect(ctx context.Context, user identity.User, h Handle) bool {
	l := r.lockFor(user.ID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	prev := r.entries[user.ID]
	r.entries[user.ID] = &entry{handle: h, staff: user.Role.IsStaff()}
	if user.Role.IsStaff() && !containsID(r.order, user.ID) {
		r.order = append(r.order, user.ID)
	}
	r.mu.Unlock()

	if prev != nil {
		if err := prev.handle.Close(CloseSuperseded); err != nil {
			r.logger.Warn("close superseded handle failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		r.logger.Info("connection superseded", slog.String("user_id", user.ID))
	}

	if r.presence != nil {
		if err := r.presence.SetOnline(ctx, user.ID, true); err != nil {
			r.logger.Warn("set online failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	r.logger.Info("connected", slog.String("user_id", user.ID), slog.Bool("staff", user.Role.IsStaff()))
	return prev != nil
}

// Disconnect removes the mapping and flips the identity offline only if
// the registered handle is the one being disconnected, and reports
// whether the mapping was removed. A stale disconnect from a superseded
// connection must not mark a reconnected identity offline.
func (r *Registry) Disconnect(ctx context.Context, userID string, h Handle) bool {
	l := r.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	current, ok := r.entries[userID]
	if !ok || current.handle != h {
		r.mu.Unlock()
		r.logger.Debug("stale disconnect ignored", slog.String("user_id", userID))
		return false
	}
	delete(r.entries, userID)
	r.order = removeID(r.order, userID)
	r.mu.Unlock()

	if r.presence != nil {
		if err := r.presence.SetOnline(ctx, userID, false); err != nil {
			r.logger.Warn("set offline failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	r.logger.Info("disconnected", slog.String("user_id", userID))
	return true
}

// Get returns the live handle for the identity, if any.
func (r *Registry) Get(userID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// ActiveStaff returns connected staff ids in registration order. The
// ordering is a documented, replaceable assignment policy, not a
// performance contract.
func (r *Registry) ActiveStaff() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Shutdown closes every registered handle and flips all identities
// offline.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := r.entries
	r.entries = map[string]*entry{}
	r.order = nil
	r.mu.Unlock()

	for userID, e := range entries {
		if err := e.handle.Close(CloseShutdown); err != nil {
			r.logger.Debug("close on shutdown failed", slog.String("user_id", userID), slog.Any("error", err))
		}
		if r.presence != nil {
			if err := r.presence.SetOnline(ctx, userID, false); err != nil {
				r.logger.Warn("set offline failed", slog.String("user_id", userID), slog.Any("error", err))
			}
		}
	}
}

// ReconcilePresence flips offline any user the database still shows
// online but that has no live handle here, e.g. after an unclean restart.
func (r *Registry) ReconcilePresence(ctx context.Context) {
	if r.presence == nil {
		return
	}
	ids, err := r.presence.ListOnlineUserIDs(ctx)
	if err != nil {
		r.logger.Warn("list online users failed", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		if _, ok := r.Get(id); ok {
			continue
		}
		if err := r.presence.SetOnline(ctx, id, false); err != nil {
			r.logger.Warn("reconcile offline failed", slog.String("user_id", id), slog.Any("error", err))
		}
	}
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
