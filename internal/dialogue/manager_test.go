package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/relaybot/internal/state"
	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []types.OutboundMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg types.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) last() types.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[len(s.msgs)-1]
}

type stubVerifier struct {
	mu      sync.Mutex
	results map[verifier.Role]verifier.Result
	calls   int
	gate    chan struct{}
}

func (v *stubVerifier) Login(_ context.Context, role verifier.Role, _, _ string) verifier.Result {
	if v.gate != nil {
		<-v.gate
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.results[role]
}

func inbound(input Input) Inbound {
	return Inbound{ChatID: 10, UserID: 1, Input: input}
}

func drive(t *testing.T, m *Manager, inputs ...Input) {
	t.Helper()
	for _, in := range inputs {
		require.NoError(t, m.Handle(context.Background(), inbound(in)))
	}
}

func TestManagerOwnerLoginThenLogout(t *testing.T) {
	store := state.NewSessionStore()
	sender := &recordingSender{}
	v := &stubVerifier{results: map[verifier.Role]verifier.Result{
		verifier.RoleOwner: verifier.OK(verifier.Identity{ID: "U1"}, "T"),
	}}
	m := NewManager(store, sender, v)

	drive(t, m, Start{}, Text{Value: "owner"}, Text{Value: "o@x.io"}, Text{Value: "secret"})

	chat, ok := store.FindOwnerByBackendID("U1")
	require.True(t, ok)
	require.Equal(t, types.ChatID(10), chat)
	require.Equal(t, 0, m.Count())
	require.Equal(t, msgOwnerWelcome, sender.last().Text)

	drive(t, m, Start{})
	_, ok = store.FindOwnerByBackendID("U1")
	require.False(t, ok)
	require.Equal(t, 1, m.Count())
}

func TestManagerOwnerLoginIdempotent(t *testing.T) {
	store := state.NewSessionStore()
	v := &stubVerifier{results: map[verifier.Role]verifier.Result{
		verifier.RoleOwner: verifier.OK(verifier.Identity{ID: "U1"}, "T"),
	}}
	m := NewManager(store, &recordingSender{}, v)

	for i := 0; i < 2; i++ {
		drive(t, m, Start{}, Text{Value: "owner"}, Text{Value: "o@x.io"}, Text{Value: "secret"})
	}
	snap := store.Snapshot()
	require.Len(t, snap.Owners, 1)
	require.Equal(t, "U1", snap.Owners[0].BackendID)
}

func TestManagerStaffLogin(t *testing.T) {
	store := state.NewSessionStore()
	v := &stubVerifier{results: map[verifier.Role]verifier.Result{
		verifier.RoleStaff: verifier.OK(verifier.Identity{ID: "S1", WebsiteID: "W1", Name: "Ann"}, "T"),
	}}
	m := NewManager(store, &recordingSender{}, v)

	drive(t, m, Start{}, Text{Value: "staff"}, Text{Value: "s@x.io"}, Text{Value: "pw"})

	require.Len(t, store.ListStaffForTenant("W1"), 1)
	require.Empty(t, store.ListStaffForTenant("W2"))
}

func TestManagerBlankInputDoesNotTouchStore(t *testing.T) {
	store := state.NewSessionStore()
	v := &stubVerifier{}
	m := NewManager(store, &recordingSender{}, v)

	drive(t, m, Start{}, Text{Value: "staff"}, Text{Value: " "}, Text{Value: "s@x.io"}, Text{Value: ""})

	d, ok := m.Lookup(10, 1)
	require.True(t, ok)
	require.Equal(t, AwaitingStaffPassword, d.State)
	require.Equal(t, 0, v.calls)
	snap := store.Snapshot()
	require.Empty(t, snap.Owners)
	require.Empty(t, snap.Staff)
}

func TestManagerOwnerRetryAfterRejection(t *testing.T) {
	v := &stubVerifier{results: map[verifier.Role]verifier.Result{
		verifier.RoleOwner: verifier.Rejected(401, "Invalid credentials"),
	}}
	m := NewManager(state.NewSessionStore(), &recordingSender{}, v)

	drive(t, m, Start{}, Text{Value: "owner"}, Text{Value: "o@x.io"}, Text{Value: "wrong"})

	d, ok := m.Lookup(10, 1)
	require.True(t, ok)
	require.Equal(t, AwaitingOwnerPassword, d.State)
	require.Empty(t, d.Pending)
}

func TestManagerCancelDiscardsLateResult(t *testing.T) {
	store := state.NewSessionStore()
	sender := &recordingSender{}
	v := &stubVerifier{
		results: map[verifier.Role]verifier.Result{verifier.RoleOwner: verifier.OK(verifier.Identity{ID: "U1"}, "T")},
		gate:    make(chan struct{}),
	}

	var mu sync.Mutex
	var resubmitted []Inbound
	m := NewManager(store, sender, v, WithResubmit(func(in Inbound) error {
		mu.Lock()
		defer mu.Unlock()
		resubmitted = append(resubmitted, in)
		return nil
	}))

	drive(t, m, Start{}, Text{Value: "owner"}, Text{Value: "o@x.io"}, Text{Value: "pw"}, Cancel{})
	require.Equal(t, msgCancelled, sender.last().Text)

	close(v.gate)
	m.Wait()

	mu.Lock()
	require.Len(t, resubmitted, 1)
	late := resubmitted[0]
	mu.Unlock()

	require.NoError(t, m.Handle(context.Background(), late))
	_, ok := store.FindOwnerByBackendID("U1")
	require.False(t, ok)
	require.Equal(t, msgCancelled, sender.last().Text)
}

func TestManagerReturnsSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("boom")}
	m := NewManager(state.NewSessionStore(), sender, &stubVerifier{})

	err := m.Handle(context.Background(), inbound(Start{}))
	require.Error(t, err)
	require.Equal(t, 1, m.Count())
}

func TestManagerExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(state.NewSessionStore(), &recordingSender{}, &stubVerifier{}, WithClock(func() time.Time { return now }))

	drive(t, m, Start{})
	require.NoError(t, m.Handle(context.Background(), Inbound{ChatID: 20, UserID: 2, Input: Start{}}))

	now = now.Add(10 * time.Minute)
	require.NoError(t, m.Handle(context.Background(), Inbound{ChatID: 20, UserID: 2, Input: Text{Value: "staff"}}))

	now = now.Add(10 * time.Minute)
	require.Equal(t, 1, m.Expire(15*time.Minute))
	_, ok := m.Lookup(10, 1)
	require.False(t, ok)
	_, ok = m.Lookup(20, 2)
	require.True(t, ok)
}
