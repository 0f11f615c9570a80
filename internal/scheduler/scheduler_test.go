// internal/scheduler/scheduler_test.go
package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/relaybot/internal/state"
	"github.com/user/relaybot/internal/types"
)

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32

	sched := New()
	if err := sched.Add(Job{Name: "every-second", Schedule: "* * * * * *", Run: func() { fires.Add(1) }}); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("job did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	sched := New()
	if err := sched.Add(Job{Name: "broken", Schedule: "not a cron", Run: func() {}}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if len(sched.jobs) != 0 {
		t.Errorf("invalid job must not be registered")
	}
}

func TestSchedulerStartRegistersEntries(t *testing.T) {
	sched := New()
	for _, job := range []Job{
		{Name: "hourly", Schedule: "@hourly", Run: func() {}},
		{Name: "minutely", Schedule: "@every 1m", Run: func() {}},
	} {
		if err := sched.Add(job); err != nil {
			t.Fatal(err)
		}
	}
	if err := sched.Start(); err != nil {
		t.Fatal(err)
	}
	defer sched.Stop()

	if got := len(sched.cron.Entries()); got != 2 {
		t.Errorf("expected 2 cron entries, got %d", got)
	}
}

type fakeExpirer struct {
	idle  time.Duration
	count int
}

func (f *fakeExpirer) Expire(idle time.Duration) int {
	f.idle = idle
	return f.count
}

func (f *fakeExpirer) Count() int { return 3 }

type fakeLanes struct{ called bool }

func (f *fakeLanes) Lanes() int {
	f.called = true
	return 2
}

func TestDialogueSweepJob(t *testing.T) {
	e := &fakeExpirer{count: 2}
	job := DialogueSweep(e, 15*time.Minute)
	if job.Name != "dialogue-sweep" {
		t.Errorf("unexpected name %s", job.Name)
	}
	if _, err := cronParser.Parse(job.Schedule); err != nil {
		t.Fatalf("invalid schedule: %v", err)
	}
	job.Run()
	if e.idle != 15*time.Minute {
		t.Errorf("expected idle 15m, got %v", e.idle)
	}
}

func TestSessionStatsJob(t *testing.T) {
	store := state.NewSessionStore()
	store.PutOwner(1, types.OwnerSession{ChatID: 1, BackendID: "U1"})

	lanes := &fakeLanes{}
	job := SessionStats(store, &fakeExpirer{}, lanes)
	if _, err := cronParser.Parse(job.Schedule); err != nil {
		t.Fatalf("invalid schedule: %v", err)
	}
	job.Run()
	if !lanes.called {
		t.Error("expected lane count to be reported")
	}
}
