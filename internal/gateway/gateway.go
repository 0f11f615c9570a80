package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/user/relaybot/internal/dialogue"
)

// Handler processes one dialogue input. *dialogue.Manager satisfies it.
type Handler interface {
	Handle(ctx context.Context, in dialogue.Inbound) error
}

// Gateway serializes dialogue inputs per conversation and hands them to a
// Handler.
type Gateway struct {
	handler Handler
	Queue   *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway with the given concurrency limit for simultaneous
// input processing.
func New(handler Handler, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		handler: handler,
		Queue:   NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// HandleInbound wraps the input in a Run and enqueues it on its
// conversation's lane.
func (g *Gateway) HandleInbound(in dialogue.Inbound) error {
	run := NewRun(in)
	if err := g.Queue.Enqueue(run); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// WaitIdle waits for in-flight runs to finish.
func (g *Gateway) WaitIdle(timeout time.Duration) bool {
	return g.Queue.WaitIdle(timeout)
}

func (g *Gateway) process(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return g.handler.Handle(ctx, run.Inbound)
}
