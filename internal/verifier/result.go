package verifier

import (
	"fmt"
	"time"
)

// Outcome classifies a login attempt.
type Outcome int

const (
	// OutcomeOK means the backend accepted the credentials and returned an
	// identity id and token.
	OutcomeOK Outcome = iota
	// OutcomeRejected means the backend answered with a non-200 status.
	OutcomeRejected
	// OutcomeMalformed means the backend answered 200 without an id or token.
	OutcomeMalformed
	// OutcomeTransportFailure covers network errors, timeouts and unparseable bodies.
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Identity is the backend identity returned on a successful login.
// WebsiteID and Name are only populated for staff.
type Identity struct {
	ID        string
	WebsiteID string
	Name      string
	ExpiresAt time.Time
}

// Result is the outcome of a single Login call.
type Result struct {
	Outcome  Outcome
	Identity Identity
	Token    string
	// Message is the server-supplied error text for OutcomeRejected, if any.
	Message string
	Status  int
	Err     error
}

// OK builds a successful result.
func OK(identity Identity, token string) Result {
	return Result{Outcome: OutcomeOK, Identity: identity, Token: token, Status: 200}
}

// Rejected builds a result for a non-200 answer.
func Rejected(status int, message string) Result {
	return Result{Outcome: OutcomeRejected, Status: status, Message: message}
}

// Malformed builds a result for a 200 answer that lacks an id or token.
func Malformed(err error) Result {
	return Result{Outcome: OutcomeMalformed, Status: 200, Err: err}
}

// TransportFailure builds a result for a failed call.
func TransportFailure(err error) Result {
	return Result{Outcome: OutcomeTransportFailure, Err: err}
}
