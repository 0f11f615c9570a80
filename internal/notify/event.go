// Package notify turns backend notification events into chat messages for
// the authenticated owner and staff sessions they target.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/relaybot/internal/types"
)

// ErrMissingMessage is returned when an event has no message field.
var ErrMissingMessage = errors.New("missing required field: message")

const defaultWebsiteID = "N/A"

// Event is an inbound notification. The sender is not authenticated.
type Event struct {
	Message        *string           `json:"message"`
	WebsiteID      *types.FlexString `json:"websiteId"`
	NotifyOwner    bool              `json:"notifyOwner"`
	NotifyAllStaff bool              `json:"notifyAllStaff"`
	OwnerID        types.FlexString  `json:"ownerId"`
}

// Website returns the tenant id as a string, "N/A" when absent.
func (e Event) Website() string {
	if e.WebsiteID == nil {
		return defaultWebsiteID
	}
	return e.WebsiteID.String()
}

// Text returns the message body. Validate must have succeeded.
func (e Event) Text() string {
	if e.Message == nil {
		return ""
	}
	return *e.Message
}

// Validate checks the mandatory fields. An empty message is accepted.
func (e Event) Validate() error {
	if e.Message == nil {
		return ErrMissingMessage
	}
	return nil
}

// ParseEvent decodes and validates a JSON event.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
