package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixline/fixline/internal/identity"
)

// pairStore mimics the database's pair-unique insert: the first insert
// for a pair wins, later ones read back the winner's row.
type pairStore struct {
	mu    sync.Mutex
	rows  map[[2]string]Chat
	wins  int
	races int
}

func newPairStore() *pairStore {
	return &pairStore{rows: map[[2]string]Chat{}}
}

func (s *pairStore) InsertChatIfAbsent(_ context.Context, c Chat) (Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{c.StaffID, c.CustomerID}
	if existing, ok := s.rows[key]; ok {
		s.races++
		return existing, false, nil
	}
	c.ID = "chat-" + c.StaffID + "-" + c.CustomerID
	s.rows[key] = c
	s.wins++
	return c, true, nil
}

var (
	mechanic = identity.User{ID: "s1", Role: identity.RoleStaffMechanic}
	driver   = identity.User{ID: "c1", Role: identity.RoleCustomer}
)

func TestGetOrCreateClassifiesByRole(t *testing.T) {
	store := newPairStore()
	r := NewResolver(nil, store)
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, mechanic, driver, "web")
	require.NoError(t, err)
	// Argument order does not matter; the pair is canonical.
	second, err := r.GetOrCreate(ctx, driver, mechanic, "telegram")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "s1", first.StaffID)
	assert.Equal(t, "c1", first.CustomerID)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 1, store.wins)
}

func TestGetOrCreateRejectsSameSide(t *testing.T) {
	r := NewResolver(nil, newPairStore())
	ctx := context.Background()

	admin := identity.User{ID: "s2", Role: identity.RoleStaffAdmin}
	_, err := r.GetOrCreate(ctx, mechanic, admin, "web")
	assert.ErrorIs(t, err, ErrSameSide)

	other := identity.User{ID: "c2", Role: identity.RoleCustomer}
	_, err = r.GetOrCreate(ctx, driver, other, "web")
	assert.ErrorIs(t, err, ErrSameSide)
}

func TestGetOrCreateConcurrentSingleFlight(t *testing.T) {
	store := newPairStore()
	r := NewResolver(nil, store)
	ctx := context.Background()

	const n = 32
	results := make([]Chat, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.GetOrCreate(ctx, mechanic, driver, "web")
			require.NoError(t, err)
			results[i] = c
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, store.wins)
	for _, c := range results {
		assert.Equal(t, results[0].ID, c.ID)
	}
}
