package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/relaybot/internal/dialogue"
	"github.com/user/relaybot/internal/types"
	"github.com/user/relaybot/internal/verifier"
)

const (
	maxTelegramMessage = 4096

	// WebhookPath is where Telegram delivers updates.
	WebhookPath = "/telegram/webhook"

	usageText = "Available commands:\n/start - log in as owner or staff (logs out any current session)\n/cancel - abort the login in progress\n/help - show this message"
)

// Adapter bridges Telegram to the dialogue gateway and delivers outbound
// messages.
type Adapter struct {
	bot    *tgbotapi.BotAPI
	submit func(dialogue.Inbound) error
}

// New creates a Telegram adapter against the public Bot API.
func New(token string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

// NewWithEndpoint creates an adapter against a custom Bot API endpoint, in
// tgbotapi.APIEndpoint format.
func NewWithEndpoint(token, endpoint string, client *http.Client) (*Adapter, error) {
	if client == nil {
		client = &http.Client{}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

// SetSubmitter sets where translated dialogue inputs go, usually the
// gateway's HandleInbound.
func (a *Adapter) SetSubmitter(fn func(dialogue.Inbound) error) {
	a.submit = fn
}

// Username returns the bot's username as reported by getMe.
func (a *Adapter) Username() string {
	return a.bot.Self.UserName
}

// RegisterWebhook points Telegram at baseURL + WebhookPath.
func (a *Adapter) RegisterWebhook(baseURL string) error {
	url := strings.TrimRight(baseURL, "/") + WebhookPath
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := a.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	slog.Info("webhook registered", "url", url)
	return nil
}

// HandleUpdate translates an update and queues it for its conversation.
// The returned error means the update could not be queued.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if cb := update.CallbackQuery; cb != nil {
		if _, err := a.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			slog.Warn("answer callback failed", "error", err)
		}
	}

	act := translate(update)
	switch {
	case act.reply != "":
		return a.Send(ctx, types.OutboundMessage{ChatID: act.chatID, Text: act.reply})
	case act.inbound != nil:
		if a.submit == nil {
			return fmt.Errorf("no submitter configured")
		}
		if err := a.submit(*act.inbound); err != nil {
			slog.Error("drop update", "update_id", update.UpdateID, "chat_id", act.chatID, "error", err)
			return err
		}
	}
	return nil
}

// action is what an update asks for: a dialogue input, a direct reply, or
// nothing.
type action struct {
	chatID  types.ChatID
	inbound *dialogue.Inbound
	reply   string
}

func translate(update tgbotapi.Update) action {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
			return action{}
		}
		role, ok := strings.CutPrefix(cb.Data, dialogue.RoleCallbackPrefix)
		if !ok {
			return action{}
		}
		chatID := types.ChatID(cb.Message.Chat.ID)
		return action{chatID: chatID, inbound: &dialogue.Inbound{
			ChatID: chatID,
			UserID: types.UserID(cb.From.ID),
			Input:  dialogue.ChooseRole{Role: verifier.Role(role)},
		}}
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.Text == "" {
		return action{}
	}
	chatID := types.ChatID(msg.Chat.ID)
	in := dialogue.Inbound{ChatID: chatID, UserID: types.UserID(msg.From.ID)}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			in.Input = dialogue.Start{}
		case "cancel":
			in.Input = dialogue.Cancel{}
		default:
			return action{chatID: chatID, reply: usageText}
		}
		return action{chatID: chatID, inbound: &in}
	}

	in.Input = dialogue.Text{Value: msg.Text}
	return action{chatID: chatID, inbound: &in}
}

// Send delivers msg, split into Telegram-sized parts. Choices are attached to
// the last part as an inline keyboard. A MarkdownV2 part that Telegram cannot
// parse is resent as plain text.
func (a *Adapter) Send(_ context.Context, msg types.OutboundMessage) error {
	parts := splitMessage(msg.Text, msg.Markdown)
	for i, part := range parts {
		out := tgbotapi.NewMessage(int64(msg.ChatID), part)
		if msg.Markdown {
			out.ParseMode = tgbotapi.ModeMarkdownV2
		}
		if i == len(parts)-1 && len(msg.Choices) > 0 {
			out.ReplyMarkup = keyboard(msg.Choices)
		}
		_, err := a.bot.Send(out)
		if err != nil && msg.Markdown && isParseError(err) {
			slog.Warn("markdown rejected, resending as plain text", "chat_id", msg.ChatID, "error", err)
			out.ParseMode = ""
			out.Text = unescapeMarkdown(part)
			_, err = a.bot.Send(out)
		}
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

// unescapeMarkdown drops MarkdownV2 escape backslashes.
func unescapeMarkdown(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

func keyboard(choices []types.Choice) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, len(choices))
	for i, c := range choices {
		row[i] = tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data)
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// splitMessage cuts text into parts of at most maxTelegramMessage runes. For
// MarkdownV2 text a cut never separates a backslash from the character it
// escapes.
func splitMessage(text string, markdown bool) []string {
	runes := []rune(text)
	if len(runes) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(runes) > 0 {
		end := min(maxTelegramMessage, len(runes))
		if markdown && end < len(runes) && danglingEscape(runes[:end]) {
			end--
		}
		parts = append(parts, string(runes[:end]))
		runes = runes[end:]
	}
	return parts
}

// danglingEscape reports whether part ends in an unpaired backslash.
func danglingEscape(part []rune) bool {
	n := 0
	for i := len(part) - 1; i >= 0 && part[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}
