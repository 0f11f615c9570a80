// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is a named maintenance task run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func()
}

// Scheduler runs registered jobs on their cron schedules.
type Scheduler struct {
	mu   sync.Mutex
	jobs []Job
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithParser(cronParser)),
	}
}

// Add registers a job. The schedule is validated immediately.
func (s *Scheduler) Add(job Job) error {
	if _, err := cronParser.Parse(job.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Start registers all jobs as cron entries and starts the cron ticker.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		_, err := s.cron.AddFunc(job.Schedule, func() {
			slog.Debug("cron firing job", "name", job.Name)
			job.Run()
		})
		if err != nil {
			return fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
		slog.Info("scheduled job", "name", job.Name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron ticker and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
