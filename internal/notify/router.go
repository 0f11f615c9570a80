package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/relaybot/internal/delivery"
	"github.com/user/relaybot/internal/types"
)

// Report summarizes what a single Route call dispatched.
type Report struct {
	Owner  int
	Staff  int
	Failed int
}

// Router resolves event targets against the session store.
type Router struct {
	store  types.SessionStore
	fanout *delivery.Fanout
}

// NewRouter creates a Router.
func NewRouter(store types.SessionStore, fanout *delivery.Fanout) *Router {
	return &Router{store: store, fanout: fanout}
}

// Route validates e and dispatches it to the owner and staff chats it targets.
// Missing recipients and delivery failures are logged, not returned.
func (r *Router) Route(ctx context.Context, e Event) (Report, error) {
	if err := e.Validate(); err != nil {
		return Report{}, err
	}

	website := e.Website()
	msg := types.OutboundMessage{Text: FormatMessage(website, e.Text()), Markdown: true}
	var report Report

	if e.NotifyOwner && e.OwnerID != "" {
		if chatID, ok := r.store.FindOwnerByBackendID(e.OwnerID.String()); ok {
			res := r.fanout.Send(ctx, []types.ChatID{chatID}, msg)
			report.Owner += res.Delivered
			report.Failed += res.Failed
		} else {
			slog.Info("no owner session for notification", "owner_id", e.OwnerID.String())
		}
	}

	if e.NotifyAllStaff {
		staff := r.store.ListStaffForTenant(website)
		if len(staff) == 0 {
			slog.Info("no staff sessions for notification", "website_id", website)
		} else {
			chats := make([]types.ChatID, len(staff))
			for i, s := range staff {
				chats[i] = s.ChatID
			}
			res := r.fanout.Send(ctx, chats, msg)
			report.Staff += res.Delivered
			report.Failed += res.Failed
		}
	}

	slog.Info("notification routed", "website_id", website,
		"owner", report.Owner, "staff", report.Staff, "failed", report.Failed)
	return report, nil
}

// FormatMessage renders the notification text in MarkdownV2 with both values
// escaped.
func FormatMessage(websiteID, message string) string {
	return fmt.Sprintf("🔔 *New notification for website %s*\n\n%s",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, websiteID),
		tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, message))
}
