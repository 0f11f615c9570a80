// internal/types/interfaces.go
package types

import "context"

// SessionStore holds authenticated owner and staff sessions. Implementations
// must be safe for concurrent use.
type SessionStore interface {
	PutOwner(userID UserID, session OwnerSession)
	DeleteOwner(userID UserID) bool
	FindOwnerByBackendID(backendID string) (ChatID, bool)
	PutStaff(chatID ChatID, session StaffSession)
	DeleteStaff(chatID ChatID) bool
	ListStaffForTenant(tenantID string) []StaffSession
	Snapshot() SessionSnapshot
}

// Sender delivers outbound chat messages.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}
