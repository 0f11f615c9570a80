// internal/state/session.go
package state

import (
	"sort"
	"sync"
	"time"

	"github.com/user/relaybot/internal/types"
)

// SessionStore keeps authenticated sessions in process memory. Owner sessions
// are keyed by Telegram user, staff sessions by chat. Nothing survives a
// restart.
type SessionStore struct {
	mu     sync.RWMutex
	owners map[types.UserID]types.OwnerSession
	staff  map[types.ChatID]types.StaffSession
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		owners: make(map[types.UserID]types.OwnerSession),
		staff:  make(map[types.ChatID]types.StaffSession),
	}
}

// PutOwner stores the owner session for userID, replacing any previous one.
func (s *SessionStore) PutOwner(userID types.UserID, session types.OwnerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	s.owners[userID] = session
}

// DeleteOwner removes the owner session for userID and reports whether one existed.
func (s *SessionStore) DeleteOwner(userID types.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owners[userID]
	delete(s.owners, userID)
	return ok
}

// FindOwnerByBackendID scans owner sessions for the given backend identity id
// and returns the chat it is bound to. When several Telegram users are logged
// in as the same owner, the one with the lowest user id wins.
func (s *SessionStore) FindOwnerByBackendID(backendID string) (types.ChatID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		chatID types.ChatID
		best   types.UserID
		found  bool
	)
	for userID, sess := range s.owners {
		if sess.BackendID != backendID {
			continue
		}
		if !found || userID < best {
			chatID, best, found = sess.ChatID, userID, true
		}
	}
	return chatID, found
}

// PutStaff stores the staff session for chatID, replacing any previous one.
func (s *SessionStore) PutStaff(chatID types.ChatID, session types.StaffSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.ChatID = chatID
	s.staff[chatID] = session
}

// DeleteStaff removes the staff session for chatID and reports whether one existed.
func (s *SessionStore) DeleteStaff(chatID types.ChatID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.staff[chatID]
	delete(s.staff, chatID)
	return ok
}

// ListStaffForTenant returns copies of every staff session whose website id
// equals tenantID.
func (s *SessionStore) ListStaffForTenant(tenantID string) []types.StaffSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.StaffSession
	for _, sess := range s.staff {
		if sess.WebsiteID == tenantID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Snapshot returns a sorted copy of all sessions.
func (s *SessionStore) Snapshot() types.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := types.SessionSnapshot{
		Owners: make([]types.OwnerEntry, 0, len(s.owners)),
		Staff:  make([]types.StaffSession, 0, len(s.staff)),
		At:     time.Now(),
	}
	for uid, sess := range s.owners {
		snap.Owners = append(snap.Owners, types.OwnerEntry{UserID: uid, OwnerSession: sess})
	}
	for _, sess := range s.staff {
		snap.Staff = append(snap.Staff, sess)
	}
	sort.Slice(snap.Owners, func(i, j int) bool { return snap.Owners[i].UserID < snap.Owners[j].UserID })
	sort.Slice(snap.Staff, func(i, j int) bool { return snap.Staff[i].ChatID < snap.Staff[j].ChatID })
	return snap
}
