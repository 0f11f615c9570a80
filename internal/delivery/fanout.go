// internal/delivery/fanout.go
package delivery

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/user/relaybot/internal/types"
)

const defaultLimit = 8

// Result counts the outcome of one fan-out.
type Result struct {
	Delivered int
	Failed    int
}

// Fanout sends one message to many chats with bounded concurrency.
// A failed destination is logged and never stops the others.
type Fanout struct {
	sender types.Sender
	limit  int
}

// NewFanout creates a Fanout that keeps at most limit sends in flight.
func NewFanout(sender types.Sender, limit int) *Fanout {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Fanout{sender: sender, limit: limit}
}

// Send delivers msg to every chat in chatIDs. msg.ChatID is ignored.
func (f *Fanout) Send(ctx context.Context, chatIDs []types.ChatID, msg types.OutboundMessage) Result {
	var delivered, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(f.limit)
	for _, chatID := range chatIDs {
		out := msg
		out.ChatID = chatID
		g.Go(func() error {
			if err := f.sender.Send(ctx, out); err != nil {
				failed.Add(1)
				slog.Error("delivery failed", "chat_id", chatID, "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return Result{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}
