// Package dialogue implements the per-conversation login flow as a pure
// state machine plus a Manager that carries out its effects.
package dialogue

import (
	"fmt"
	"time"

	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

// State is the position of a conversation in the login flow.
type State int

const (
	// Idle is the zero value: no conversation in progress.
	Idle State = iota
	AwaitingRoleChoice
	AwaitingOwnerEmail
	AwaitingOwnerPassword
	AwaitingStaffEmail
	AwaitingStaffPassword
	// Done is terminal. The Manager forgets conversations that reach it.
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRoleChoice:
		return "awaiting_role_choice"
	case AwaitingOwnerEmail:
		return "awaiting_owner_email"
	case AwaitingOwnerPassword:
		return "awaiting_owner_password"
	case AwaitingStaffEmail:
		return "awaiting_staff_email"
	case AwaitingStaffPassword:
		return "awaiting_staff_password"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether the state belongs to an in-flight conversation.
func (s State) Active() bool {
	return s != Idle && s != Done
}

// Dialogue is the transient state of one login conversation.
type Dialogue struct {
	ChatID    types.ChatID
	UserID    types.UserID
	State     State
	Role      verifier.Role
	Email     string
	Pending   types.Ticket
	UpdatedAt time.Time
}

// Key identifies the conversation in the gateway queue.
func (d Dialogue) Key() types.SessionKey {
	return ConversationKey(d.ChatID, d.UserID)
}

// ConversationKey builds the lane key for a (chat, user) pair.
func ConversationKey(chatID types.ChatID, userID types.UserID) types.SessionKey {
	return types.NewSessionKey("telegram", userID.String(), chatID.String())
}
