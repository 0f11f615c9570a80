package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/relaybot/internal/types"
)

const (
	laneBuffer = 100

	// defaultLaneIdle is how long an empty lane waits for input before its
	// goroutine exits.
	defaultLaneIdle = time.Minute
)

// Queue manages per-conversation lanes with a global concurrency semaphore.
// Each conversation gets its own FIFO channel (lane) so that its inputs are
// processed sequentially, while the semaphore limits the total number of
// concurrent processors across all conversations.
type Queue struct {
	lanes     map[types.SessionKey]chan *Run
	semaphore *semaphore.Weighted
	processor func(*Run) error
	active    atomic.Int64
	laneIdle  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a Queue that allows up to maxConcurrent runs to execute
// simultaneously across all lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.SessionKey]chan *Run),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		laneIdle:  defaultLaneIdle,
	}
}

// SetLaneIdle sets how long an empty lane is kept before it is retired. Must
// be called before Start.
func (q *Queue) SetLaneIdle(d time.Duration) {
	if d > 0 {
		q.laneIdle = d
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Run to its conversation's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full or
// the queue is stopped.
func (q *Queue) Enqueue(run *Run) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue stopped")
	}

	lane, exists := q.lanes[run.Key]
	if !exists {
		lane = make(chan *Run, laneBuffer)
		q.lanes[run.Key] = lane
		q.wg.Add(1)
		go q.processLane(run.Key, lane)
	}

	select {
	case lane <- run:
		q.active.Add(1)
		return nil
	default:
		return fmt.Errorf("queue full for conversation %s", run.Key)
	}
}

// processLane drains a single lane, acquiring a semaphore slot before running
// the processor synchronously. This keeps strict FIFO ordering within a
// conversation while the semaphore limits cross-conversation parallelism.
func (q *Queue) processLane(key types.SessionKey, lane chan *Run) {
	defer q.wg.Done()
	idle := time.NewTimer(q.laneIdle)
	defer idle.Stop()
	for {
		select {
		case <-idle.C:
			if q.retire(key, lane) {
				return
			}
			idle.Reset(q.laneIdle)
		case run, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.active.Add(-1)
				return
			}
			if q.processor != nil {
				run.Ctx = q.ctx
				run.start()
				err := q.processor(run)
				run.finish(err)
				if err != nil {
					slog.Error("run failed", "run_id", string(run.ID), "conversation", string(key), "error", err)
				} else {
					slog.Debug("run complete", "run_id", string(run.ID), "conversation", string(key), "duration", run.Duration())
				}
			}
			q.semaphore.Release(1)
			q.active.Add(-1)
			idle.Reset(q.laneIdle)
		case <-q.ctx.Done():
			return
		}
	}
}

// retire removes an empty lane so its goroutine can exit. Enqueue sends
// under the same lock, so nothing can reach a lane once it is unmapped; the
// next input for key creates a fresh one.
func (q *Queue) retire(key types.SessionKey, lane chan *Run) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(lane) > 0 {
		return false
	}
	if q.lanes[key] == lane {
		delete(q.lanes, key)
	}
	slog.Debug("lane retired", "conversation", string(key))
	return true
}

// Lanes returns the number of conversations that have a lane.
func (q *Queue) Lanes() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.lanes)
}

// WaitIdle blocks until no runs are queued or being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Run.
func (q *Queue) SetProcessor(fn func(*Run) error) {
	q.processor = fn
}
