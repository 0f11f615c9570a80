// internal/types/models.go
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// OwnerSession is an authenticated owner bound to the chat they logged in from.
type OwnerSession struct {
	ChatID    ChatID    `json:"chat_id"`
	BackendID string    `json:"backend_id"`
	Token     string    `json:"-"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// StaffSession is an authenticated staff member, keyed by chat rather than user.
type StaffSession struct {
	ChatID    ChatID    `json:"chat_id"`
	StaffID   string    `json:"staff_id"`
	Email     string    `json:"email"`
	WebsiteID string    `json:"website_id"`
	Name      string    `json:"name"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// OwnerEntry pairs an owner session with the user it is keyed by.
type OwnerEntry struct {
	UserID UserID `json:"user_id"`
	OwnerSession
}

// SessionSnapshot is a point-in-time copy of the session store. Tokens are
// never serialized.
type SessionSnapshot struct {
	Owners []OwnerEntry   `json:"owners"`
	Staff  []StaffSession `json:"staff"`
	At     time.Time      `json:"at"`
}

// Choice is an inline button offered with an outbound message.
type Choice struct {
	Label string
	Data  string
}

// OutboundMessage is a chat message to deliver. Markdown selects the
// transport's MarkdownV2 dialect; callers must escape interpolated values.
type OutboundMessage struct {
	ChatID   ChatID
	Text     string
	Markdown bool
	Choices  []Choice
}

// FlexString decodes a JSON string, number or boolean into its string form.
// Backends send ids both as "42" and 42; routing compares them as strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	case '{', '[':
		return fmt.Errorf("flex string: unsupported JSON value %s", data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			*f = FlexString(n.String())
			return nil
		}
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("flex string: %w", err)
		}
		*f = FlexString(fmt.Sprint(b))
		return nil
	}
}

func (f FlexString) String() string { return string(f) }
