// Package telegram delivers approval actions to operators over a Telegram
// bot and turns their button presses back into decisions.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stakevault/backend/internal/apperrors"
	"github.com/stakevault/backend/internal/approval"
	"github.com/stakevault/backend/internal/logger"
)

// Sender is the part of tgbotapi.BotAPI the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Resolver applies an operator decision
type Resolver interface {
	Resolve(ctx context.Context, decision approval.Decision) error
}

// Bot sends approval actions to the admin chats and handles the
// Approve/Reject callbacks coming back from them
type Bot struct {
	api      Sender
	admins   map[int64]bool
	resolver Resolver
	log      *logger.Logger
}

// NewBot creates a Bot. resolver may be set later with SetResolver.
func NewBot(api Sender, adminChatIDs []int64, log *logger.Logger) *Bot {
	admins := make(map[int64]bool, len(adminChatIDs))
	for _, id := range adminChatIDs {
		admins[id] = true
	}
	return &Bot{
		api:    api,
		admins: admins,
		log:    log.Component("telegram"),
	}
}

// SetResolver sets where decisions are routed
func (b *Bot) SetResolver(r Resolver) {
	b.resolver = r
}

// Notify sends the action with an inline Approve/Reject keyboard to every
// admin chat. It fails only when no admin chat received it.
func (b *Bot) Notify(ctx context.Context, action approval.Action) error {
	if len(b.admins) == 0 {
		return errors.New("no admin chats configured")
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", approval.CallbackData(action.Kind, approval.Approve, action.ID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", approval.CallbackData(action.Kind, approval.Reject, action.ID)),
		),
	)

	text := formatAction(action)
	var lastErr error
	delivered := 0
	for chatID := range b.admins {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = keyboard
		if _, err := b.api.Send(msg); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Str("action_id", action.ID.String()).Msg("Failed to send approval request")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("failed to deliver approval request: %w", lastErr)
	}
	b.log.Info().Str("kind", string(action.Kind)).Str("action_id", action.ID.String()).Int("chats", delivered).Msg("Approval request sent")
	return nil
}

// SendText sends a plain message to a user chat
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Run handles updates until ctx is done or the channel closes
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	b.log.Info().Int("admins", len(b.admins)).Msg("Listening for approval callbacks")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update. Only callback queries from admin
// chats are acted on.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	query := update.CallbackQuery
	if query == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	chatID := query.Message.Chat.ID
	if !b.admins[chatID] {
		b.log.Warn().Int64("chat_id", chatID).Msg("Ignoring callback from non-admin chat")
		b.answer(query.ID, "Not allowed")
		return
	}

	decision, err := approval.ParseCallbackData(query.Data)
	if err != nil {
		b.log.Warn().Err(err).Str("data", query.Data).Msg("Malformed callback")
		b.answer(query.ID, "Unknown action")
		return
	}
	decision.Actor = actor(query.From)
	if decision.Verdict == approval.Reject {
		decision.Reason = "rejected by operator"
	}

	if b.resolver == nil {
		b.answer(query.ID, "Approvals are not available")
		return
	}

	outcome := b.resolve(ctx, decision)
	b.answer(query.ID, outcome)

	edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, query.Message.Text+"\n\n"+outcome)
	if _, err := b.api.Request(edit); err != nil {
		b.log.Warn().Err(err).Msg("Failed to update approval message")
	}
}

func (b *Bot) resolve(ctx context.Context, d approval.Decision) string {
	err := b.resolver.Resolve(ctx, d)
	switch {
	case err == nil:
		b.log.Info().Str("kind", string(d.Kind)).Str("id", d.ID.String()).Str("verdict", string(d.Verdict)).Str("actor", d.Actor).Msg("Decision applied")
		if d.Verdict == approval.Approve {
			return "✅ Approved by " + d.Actor
		}
		return "❌ Rejected by " + d.Actor
	case errors.Is(err, apperrors.ErrInvalidState):
		return "⚠️ Already processed"
	case errors.Is(err, apperrors.ErrNotFound):
		return "⚠️ Not found"
	default:
		b.log.Error().Err(err).Str("kind", string(d.Kind)).Str("id", d.ID.String()).Msg("Failed to apply decision")
		return "⚠️ Failed: " + err.Error()
	}
}

func (b *Bot) answer(queryID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.log.Warn().Err(err).Msg("Failed to answer callback")
	}
}

func actor(u *tgbotapi.User) string {
	if u == nil {
		return "telegram"
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return fmt.Sprintf("telegram:%d", u.ID)
}

func formatAction(a approval.Action) string {
	var sb strings.Builder
	sb.WriteString(a.Summary)
	sb.WriteString("\n")
	for _, f := range a.Fields {
		fmt.Fprintf(&sb, "\n%s: %s", f.Label, f.Value)
	}
	fmt.Fprintf(&sb, "\n\nUser: %s\nID: %s", a.UserID, a.ID)
	return sb.String()
}

var _ approval.Notifier = (*Bot)(nil)
