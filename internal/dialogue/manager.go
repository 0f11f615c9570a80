package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

// Inbound is one input addressed to the conversation of (ChatID, UserID).
type Inbound struct {
	ChatID types.ChatID
	UserID types.UserID
	Input  Input
}

// Key returns the conversation's lane key.
func (in Inbound) Key() types.SessionKey {
	return ConversationKey(in.ChatID, in.UserID)
}

type convKey struct {
	chat types.ChatID
	user types.UserID
}

// Manager owns the live conversations and carries out transition effects.
// Callers must not feed two inputs for the same conversation concurrently;
// the gateway queue guarantees that in production.
type Manager struct {
	store    types.SessionStore
	sender   types.Sender
	verifier verifier.Verifier
	resubmit func(Inbound) error
	now      func() time.Time

	mu        sync.Mutex
	dialogues map[convKey]Dialogue
	wg        sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithResubmit routes verifier answers back through fn instead of handling
// them inline. fn is usually the gateway's enqueue.
func WithResubmit(fn func(Inbound) error) Option {
	return func(m *Manager) { m.resubmit = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(store types.SessionStore, sender types.Sender, v verifier.Verifier, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		sender:    sender,
		verifier:  v,
		now:       time.Now,
		dialogues: make(map[convKey]Dialogue),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetResubmit sets the resubmit hook after construction. The gateway and the
// manager reference each other, so one side is wired late.
func (m *Manager) SetResubmit(fn func(Inbound) error) {
	m.resubmit = fn
}

// Handle applies one input and executes the resulting effects. Reply failures
// are returned after all effects ran.
func (m *Manager) Handle(ctx context.Context, in Inbound) error {
	key := convKey{chat: in.ChatID, user: in.UserID}

	m.mu.Lock()
	d, ok := m.dialogues[key]
	if !ok {
		d = Dialogue{ChatID: in.ChatID, UserID: in.UserID}
	}
	next, effects := Transition(d, in.Input, Env{Now: m.now(), Ticket: types.NewTicket()})
	if next.State.Active() {
		m.dialogues[key] = next
	} else {
		delete(m.dialogues, key)
	}
	m.mu.Unlock()

	if d.State != next.State {
		slog.Debug("dialogue transition", "chat_id", in.ChatID, "user_id", in.UserID,
			"from", d.State.String(), "to", next.State.String())
	}

	var errs []error
	for _, effect := range effects {
		if err := m.execute(ctx, in, effect); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) execute(ctx context.Context, in Inbound, effect Effect) error {
	switch e := effect.(type) {
	case Reply:
		msg := types.OutboundMessage{ChatID: in.ChatID, Text: e.Text, Choices: e.Choices}
		if err := m.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("send reply to chat %s: %w", in.ChatID, err)
		}
	case Logout:
		owner := m.store.DeleteOwner(e.UserID)
		staff := m.store.DeleteStaff(e.ChatID)
		if owner || staff {
			slog.Info("logged out", "user_id", e.UserID, "chat_id", e.ChatID, "owner", owner, "staff", staff)
		}
	case StoreOwner:
		m.store.PutOwner(e.UserID, e.Session)
		slog.Info("owner authenticated", "user_id", e.UserID, "chat_id", e.Session.ChatID, "backend_id", e.Session.BackendID)
	case StoreStaff:
		m.store.PutStaff(e.ChatID, e.Session)
		slog.Info("staff authenticated", "chat_id", e.ChatID, "staff_id", e.Session.StaffID, "website_id", e.Session.WebsiteID)
	case Verify:
		m.verify(ctx, in, e)
	}
	return nil
}

// verify calls the verifier on a context detached from the caller's, so a
// cancel does not abort the request; the stale answer is dropped by ticket.
func (m *Manager) verify(ctx context.Context, in Inbound, e Verify) {
	detached := context.WithoutCancel(ctx)
	call := func() Inbound {
		res := m.verifier.Login(detached, e.Role, e.Email, e.Password)
		slog.Info("login attempt", "chat_id", in.ChatID, "user_id", in.UserID, "role", string(e.Role),
			"outcome", res.Outcome.String(), "status", res.Status, "error", res.Err)
		return Inbound{ChatID: in.ChatID, UserID: in.UserID, Input: LoginResult{Ticket: e.Ticket, Result: res}}
	}

	if m.resubmit == nil {
		if err := m.Handle(detached, call()); err != nil {
			slog.Error("handle login result", "chat_id", in.ChatID, "error", err)
		}
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := call()
		if err := m.resubmit(result); err != nil {
			slog.Error("resubmit login result", "chat_id", in.ChatID, "error", err)
		}
	}()
}

// Wait blocks until every in-flight verifier call has been resubmitted.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Lookup returns the live conversation for (chatID, userID).
func (m *Manager) Lookup(chatID types.ChatID, userID types.UserID) (Dialogue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dialogues[convKey{chat: chatID, user: userID}]
	return d, ok
}

// Count returns the number of live conversations.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dialogues)
}

// Expire forgets conversations idle for longer than idle and returns how many
// were dropped. A pending verifier answer for a dropped conversation is
// discarded when it arrives.
func (m *Manager) Expire(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, d := range m.dialogues {
		if d.UpdatedAt.Before(cutoff) {
			delete(m.dialogues, key)
			n++
		}
	}
	return n
}
