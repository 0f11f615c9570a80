package gateway

import (
	"context"
	"time"

	"github.com/user/relaybot/internal/dialogue"
	"github.com/user/relaybot/internal/types"
)

// RunStatus represents the lifecycle state of a Run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run tracks the processing of one dialogue input.
type Run struct {
	ID        types.RunID
	Key       types.SessionKey
	Inbound   dialogue.Inbound
	Status    RunStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	Ctx       context.Context
}

// NewRun creates a Run in the Queued state for the given input.
func NewRun(in dialogue.Inbound) *Run {
	return &Run{
		ID:        types.NewRunID(),
		Key:       in.Key(),
		Inbound:   in,
		Status:    RunStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (r *Run) start() {
	now := time.Now()
	r.StartedAt = &now
	r.Status = RunStatusRunning
}

func (r *Run) finish(err error) {
	now := time.Now()
	r.EndedAt = &now
	r.Error = err
	if err != nil {
		r.Status = RunStatusFailed
	} else {
		r.Status = RunStatusComplete
	}
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(*r.StartedAt)
}
