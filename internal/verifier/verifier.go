package verifier

import (
	"context"
	"time"
)

// Role selects which backend login endpoint a credential pair is checked against.
type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

// Verifier validates an email/password pair against the backend.
// Implementations report every outcome through Result instead of an error so
// that callers can match on it exhaustively.
type Verifier interface {
	Login(ctx context.Context, role Role, email, password string) Result
}

// Config holds the backend login endpoints.
type Config struct {
	OwnerURL string
	StaffURL string
	Timeout  time.Duration
}
