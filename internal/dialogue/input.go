package dialogue

import (
	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

// Input is something that drives a conversation forward.
type Input interface {
	input()
}

// Start begins (or restarts) the login flow and logs the user out.
type Start struct{}

// Cancel aborts the flow.
type Cancel struct{}

// Text is typed text.
type Text struct {
	Value string
}

// ChooseRole is a tap on one of the role buttons. Only the role prompt
// accepts it.
type ChooseRole struct {
	Role verifier.Role
}

// LoginResult carries the verifier's answer back into the conversation that
// asked for it. Ticket must match the conversation's pending ticket.
type LoginResult struct {
	Ticket types.Ticket
	Result verifier.Result
}

func (Start) input()       {}
func (Cancel) input()      {}
func (Text) input()        {}
func (ChooseRole) input()  {}
func (LoginResult) input() {}

// Effect is a side effect requested by a transition.
type Effect interface {
	effect()
}

// Reply sends a message to the conversation's chat.
type Reply struct {
	Text    string
	Choices []types.Choice
}

// Logout removes the owner session of UserID and the staff session of ChatID.
type Logout struct {
	UserID types.UserID
	ChatID types.ChatID
}

// Verify asks the verifier to check credentials. The answer must come back
// as a LoginResult carrying Ticket.
type Verify struct {
	Ticket   types.Ticket
	Role     verifier.Role
	Email    string
	Password string
}

// StoreOwner records an authenticated owner.
type StoreOwner struct {
	UserID  types.UserID
	Session types.OwnerSession
}

// StoreStaff records an authenticated staff member.
type StoreStaff struct {
	ChatID  types.ChatID
	Session types.StaffSession
}

func (Reply) effect()      {}
func (Logout) effect()     {}
func (Verify) effect()     {}
func (StoreOwner) effect() {}
func (StoreStaff) effect() {}
