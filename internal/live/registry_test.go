package live

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixline/fixline/internal/identity"
)

type fakeHandle struct {
	mu          sync.Mutex
	frames      []OutboundFrame
	closeReason CloseReason
	closed      bool
}

func (h *fakeHandle) Deliver(frame OutboundFrame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, frame)
	return nil
}

func (h *fakeHandle) Close(reason CloseReason) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.closeReason = reason
	return nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: map[string]bool{}}
}

func (p *fakePresence) SetOnline(_ context.Context, userID string, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
	return nil
}

func (p *fakePresence) ListOnlineUserIDs(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, on := range p.online {
		if on {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var (
	staff    = identity.User{ID: "staff-1", Role: identity.RoleStaffMechanic}
	customer = identity.User{ID: "cust-1", Role: identity.RoleCustomer}
)

func TestConnectSupersedesPrevious(t *testing.T) {
	presence := newFakePresence()
	r := NewRegistry(nil, presence)
	ctx := context.Background()

	first := &fakeHandle{}
	second := &fakeHandle{}
	r.Connect(ctx, staff, first)
	r.Connect(ctx, staff, second)

	assert.True(t, first.closed)
	assert.Equal(t, CloseSuperseded, first.closeReason)
	assert.False(t, second.closed)

	h, ok := r.Get(staff.ID)
	require.True(t, ok)
	assert.Same(t, second, h.(*fakeHandle))
	assert.True(t, presence.online[staff.ID])
}

func TestStaleDisconnectIgnored(t *testing.T) {
	presence := newFakePresence()
	r := NewRegistry(nil, presence)
	ctx := context.Background()

	first := &fakeHandle{}
	second := &fakeHandle{}
	r.Connect(ctx, staff, first)
	r.Connect(ctx, staff, second)

	// The superseded connection's read loop winds down late and calls
	// Disconnect. The identity must stay online on the new handle.
	r.Disconnect(ctx, staff.ID, first)

	h, ok := r.Get(staff.ID)
	require.True(t, ok)
	assert.Same(t, second, h.(*fakeHandle))
	assert.True(t, presence.online[staff.ID])

	r.Disconnect(ctx, staff.ID, second)
	_, ok = r.Get(staff.ID)
	assert.False(t, ok)
	assert.False(t, presence.online[staff.ID])
}

func TestConnectAndDisconnectReportRegistrationChanges(t *testing.T) {
	// Callers keeping a connection count need to know that a supersede
	// replaces a registration rather than adding one, and that a stale
	// disconnect removes nothing.
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	first := &fakeHandle{}
	second := &fakeHandle{}
	assert.False(t, r.Connect(ctx, staff, first))
	assert.True(t, r.Connect(ctx, staff, second))

	assert.False(t, r.Disconnect(ctx, staff.ID, first))
	assert.True(t, r.Disconnect(ctx, staff.ID, second))
	assert.False(t, r.Disconnect(ctx, staff.ID, second))
}

func TestActiveStaffOrderAndCustomerExclusion(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	other := identity.User{ID: "staff-2", Role: identity.RoleStaffAdmin}
	r.Connect(ctx, staff, &fakeHandle{})
	r.Connect(ctx, customer, &fakeHandle{})
	r.Connect(ctx, other, &fakeHandle{})

	assert.Equal(t, []string{"staff-1", "staff-2"}, r.ActiveStaff())

	// Reconnecting does not move a staff member to the back.
	r.Connect(ctx, staff, &fakeHandle{})
	assert.Equal(t, []string{"staff-1", "staff-2"}, r.ActiveStaff())

	r.Disconnect(ctx, staff.ID, nil)
	// nil is never the registered handle; order unchanged.
	assert.Equal(t, []string{"staff-1", "staff-2"}, r.ActiveStaff())
}

func TestShutdownClosesAll(t *testing.T) {
	presence := newFakePresence()
	r := NewRegistry(nil, presence)
	ctx := context.Background()

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}
	r.Connect(ctx, staff, h1)
	r.Connect(ctx, customer, h2)

	r.Shutdown(ctx)

	assert.True(t, h1.closed)
	assert.Equal(t, CloseShutdown, h1.closeReason)
	assert.True(t, h2.closed)
	assert.Empty(t, r.ActiveStaff())
	assert.False(t, presence.online[staff.ID])
	assert.False(t, presence.online[customer.ID])
}

func TestReconcilePresence(t *testing.T) {
	presence := newFakePresence()
	presence.online["ghost-1"] = true
	r := NewRegistry(nil, presence)
	ctx := context.Background()

	r.Connect(ctx, staff, &fakeHandle{})
	r.ReconcilePresence(ctx)

	assert.False(t, presence.online["ghost-1"])
	assert.True(t, presence.online[staff.ID])
}

func TestConcurrentConnectLeavesOneHandle(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	handles := make([]*fakeHandle, 16)
	for i := range handles {
		handles[i] = &fakeHandle{}
		wg.Add(1)
		go func(h *fakeHandle) {
			defer wg.Done()
			r.Connect(ctx, staff, h)
		}(handles[i])
	}
	wg.Wait()

	winner, ok := r.Get(staff.ID)
	require.True(t, ok)
	closed := 0
	for _, h := range handles {
		if h.closed {
			assert.Equal(t, CloseSuperseded, h.closeReason)
			closed++
		} else {
			assert.Same(t, winner.(*fakeHandle), h)
		}
	}
	assert.Equal(t, len(handles)-1, closed)
}
