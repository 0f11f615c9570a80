package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

// User-facing texts.
const (
	msgChooseRole      = "Welcome! Are you logging in as an owner or as staff?"
	msgUnknownRole     = "Unknown role. Send /start to try again."
	msgAskOwnerEmail   = "Owner login. Please enter your email:"
	msgAskStaffEmail   = "Staff login. Please enter your email:"
	msgEmptyEmail      = "Email cannot be empty. Please enter your email:"
	msgAskPassword     = "Please enter your password:"
	msgEmptyPassword   = "Password cannot be empty. Please enter your password:"
	msgChecking        = "Checking your credentials..."
	msgStillChecking   = "Still checking your credentials, please wait."
	msgOwnerWelcome    = "Logged in as owner. Notifications for your account will be delivered to this chat."
	msgMalformed       = "Login succeeded but the response was incomplete. Please contact support."
	msgRejected        = "Login failed. Please check your credentials."
	msgOwnerRetry      = "Please enter your password again, or send /cancel."
	msgStaffRetry      = "Send /start to try again."
	msgTransport       = "Something went wrong while contacting the login service. Please try again later."
	msgCancelled       = "Login cancelled."
	msgNothingToCancel = "Nothing to cancel. Send /start to log in."
	msgSendStart       = "Send /start to log in."
	msgStaleButton     = "That button is no longer active."
)

// RoleCallbackPrefix marks inline button data that selects a role.
const RoleCallbackPrefix = "role:"

// RoleChoices are the inline buttons offered with the role prompt.
var RoleChoices = []types.Choice{
	{Label: "Owner", Data: RoleCallbackPrefix + string(verifier.RoleOwner)},
	{Label: "Staff", Data: RoleCallbackPrefix + string(verifier.RoleStaff)},
}

// Env supplies the non-deterministic values a transition may need.
type Env struct {
	Now time.Time
	// Ticket is assigned to a verification started by this step.
	Ticket types.Ticket
}

// Transition computes the next dialogue and the effects to carry out. It does
// no I/O.
func Transition(d Dialogue, in Input, env Env) (Dialogue, []Effect) {
	switch in := in.(type) {
	case Start:
		next := Dialogue{
			ChatID:    d.ChatID,
			UserID:    d.UserID,
			State:     AwaitingRoleChoice,
			UpdatedAt: env.Now,
		}
		return next, []Effect{
			Logout{UserID: d.UserID, ChatID: d.ChatID},
			Reply{Text: msgChooseRole, Choices: RoleChoices},
		}

	case Cancel:
		if !d.State.Active() {
			return d, []Effect{Reply{Text: msgNothingToCancel}}
		}
		return finish(d, env), []Effect{Reply{Text: msgCancelled}}

	case Text:
		return onText(d, in.Value, env)

	case ChooseRole:
		if d.State != AwaitingRoleChoice {
			return d, []Effect{Reply{Text: msgStaleButton}}
		}
		return chooseRole(d, in.Role, env)

	case LoginResult:
		if d.Pending == "" || in.Ticket != d.Pending {
			return d, nil
		}
		return onLoginResult(d, in.Result, env)
	}
	return d, nil
}

func onText(d Dialogue, text string, env Env) (Dialogue, []Effect) {
	trimmed := strings.TrimSpace(text)

	switch d.State {
	case AwaitingRoleChoice:
		return chooseRole(d, verifier.Role(strings.ToLower(trimmed)), env)

	case AwaitingOwnerEmail, AwaitingStaffEmail:
		d.UpdatedAt = env.Now
		if trimmed == "" {
			return d, []Effect{Reply{Text: msgEmptyEmail}}
		}
		d.Email = trimmed
		if d.State == AwaitingOwnerEmail {
			d.State = AwaitingOwnerPassword
		} else {
			d.State = AwaitingStaffPassword
		}
		return d, []Effect{Reply{Text: msgAskPassword}}

	case AwaitingOwnerPassword, AwaitingStaffPassword:
		d.UpdatedAt = env.Now
		if d.Pending != "" {
			return d, []Effect{Reply{Text: msgStillChecking}}
		}
		if trimmed == "" {
			return d, []Effect{Reply{Text: msgEmptyPassword}}
		}
		d.Pending = env.Ticket
		return d, []Effect{
			Reply{Text: msgChecking},
			Verify{Ticket: env.Ticket, Role: d.Role, Email: d.Email, Password: text},
		}
	}

	return d, []Effect{Reply{Text: msgSendStart}}
}

func chooseRole(d Dialogue, role verifier.Role, env Env) (Dialogue, []Effect) {
	switch role {
	case verifier.RoleOwner:
		d.Role = verifier.RoleOwner
		d.State = AwaitingOwnerEmail
		d.UpdatedAt = env.Now
		return d, []Effect{Reply{Text: msgAskOwnerEmail}}
	case verifier.RoleStaff:
		d.Role = verifier.RoleStaff
		d.State = AwaitingStaffEmail
		d.UpdatedAt = env.Now
		return d, []Effect{Reply{Text: msgAskStaffEmail}}
	default:
		return finish(d, env), []Effect{Reply{Text: msgUnknownRole}}
	}
}

func onLoginResult(d Dialogue, res verifier.Result, env Env) (Dialogue, []Effect) {
	d.Pending = ""
	d.UpdatedAt = env.Now

	switch res.Outcome {
	case verifier.OutcomeOK:
		if d.Role == verifier.RoleOwner {
			session := types.OwnerSession{
				ChatID:    d.ChatID,
				BackendID: res.Identity.ID,
				Token:     res.Token,
				Email:     d.Email,
				CreatedAt: env.Now,
				ExpiresAt: res.Identity.ExpiresAt,
			}
			return finish(d, env), []Effect{
				StoreOwner{UserID: d.UserID, Session: session},
				Reply{Text: msgOwnerWelcome},
			}
		}
		session := types.StaffSession{
			ChatID:    d.ChatID,
			StaffID:   res.Identity.ID,
			Email:     d.Email,
			WebsiteID: res.Identity.WebsiteID,
			Name:      res.Identity.Name,
			Token:     res.Token,
			CreatedAt: env.Now,
			ExpiresAt: res.Identity.ExpiresAt,
		}
		return finish(d, env), []Effect{
			StoreStaff{ChatID: d.ChatID, Session: session},
			Reply{Text: staffWelcome(session)},
		}

	case verifier.OutcomeMalformed:
		return finish(d, env), []Effect{Reply{Text: msgMalformed}}

	case verifier.OutcomeRejected:
		msg := res.Message
		if msg == "" {
			msg = msgRejected
		}
		// Owners may retry the password in place; staff must start over.
		if d.Role == verifier.RoleOwner {
			return d, []Effect{Reply{Text: msg + "\n" + msgOwnerRetry}}
		}
		return finish(d, env), []Effect{Reply{Text: msg + "\n" + msgStaffRetry}}

	default:
		return finish(d, env), []Effect{Reply{Text: msgTransport}}
	}
}

func staffWelcome(s types.StaffSession) string {
	name := s.Name
	if name == "" {
		name = s.Email
	}
	return fmt.Sprintf("Welcome, %s! Notifications for website %s will be delivered to this chat.", name, s.WebsiteID)
}

// finish moves d to Done and drops the transient credentials.
func finish(d Dialogue, env Env) Dialogue {
	return Dialogue{
		ChatID:    d.ChatID,
		UserID:    d.UserID,
		State:     Done,
		Role:      d.Role,
		UpdatedAt: env.Now,
	}
}
