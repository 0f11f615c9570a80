// internal/types/ids.go
package types

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type RunID string
type Ticket string

// ChatID identifies a Telegram chat (the delivery destination).
type ChatID int64

// UserID identifies a Telegram user.
type UserID int64

func (c ChatID) String() string { return strconv.FormatInt(int64(c), 10) }
func (u UserID) String() string { return strconv.FormatInt(int64(u), 10) }

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewTicket() Ticket {
	return Ticket(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}
