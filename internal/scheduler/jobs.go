package scheduler

import (
	"log/slog"
	"time"

	"github.com/user/relaybot/internal/types"
)

// Expirer drops conversations idle for longer than a duration.
type Expirer interface {
	Expire(idle time.Duration) int
}

// Counter reports how many conversations are live.
type Counter interface {
	Count() int
}

// DialogueSweep returns the job that forgets abandoned login dialogues.
func DialogueSweep(e Expirer, idle time.Duration) Job {
	return Job{
		Name:     "dialogue-sweep",
		Schedule: "@every 1m",
		Run: func() {
			if n := e.Expire(idle); n > 0 {
				slog.Info("expired idle dialogues", "count", n, "idle", idle)
			}
		},
	}
}

// LaneCounter reports how many conversations hold a gateway lane.
type LaneCounter interface {
	Lanes() int
}

// SessionStats returns the job that logs session, dialogue and lane counts.
func SessionStats(store types.SessionStore, dialogues Counter, lanes LaneCounter) Job {
	return Job{
		Name:     "session-stats",
		Schedule: "@hourly",
		Run: func() {
			snap := store.Snapshot()
			slog.Info("session stats",
				"owners", len(snap.Owners),
				"staff", len(snap.Staff),
				"dialogues", dialogues.Count(),
				"lanes", lanes.Lanes(),
			)
		},
	}
}
