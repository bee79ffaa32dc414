package bot

import (
	"context"
	"strings"

	"druktour/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const pendingListLimit = 10

const helpText = `Druk Tour itinerary review bot.

New change requests arrive here with Approve and Reject buttons.

/pending - list requests waiting for a decision
/cancel - abort a rejection in progress`

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	zerolog.Ctx(ctx).Debug().Int64("user_id", userID).Str("text", text).Msg("Handling message")

	state, err := b.stateService.GetUserState(ctx, userID)
	if err != nil {
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	if state != nil && state.CurrentStep == models.StateAwaitingRejectReason {
		b.handleRejectReason(ctx, message, state)
		return
	}

	switch text {
	case "/start", "/help":
		b.sendMessage(chatID, helpText)
	case "/pending":
		b.sendPending(ctx, chatID)
	case "/cancel":
		b.sendMessage(chatID, "Nothing to cancel.")
	default:
		b.sendMessage(chatID, "Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) handleRejectReason(ctx context.Context, message *tgbotapi.Message, state *models.UserState) {
	userID := message.From.ID
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)
	requestID := state.GetString("request_id")

	if err := b.stateService.ClearUserState(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("clear state failed")
	}

	switch text {
	case "/cancel":
		b.sendMessage(chatID, "Rejection cancelled. The request stays pending.")
		return
	case "/skip":
		text = ""
	}

	req, err := b.reviews.Decide(ctx, requestID, models.DecisionReject, actor(userID), text)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("request_id", requestID).Msg("reject failed")
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	b.sendMessage(chatID, "❌ Rejected. The traveller keeps the previous itinerary for booking "+req.BookingID+".")
}

func (b *Bot) sendPending(ctx context.Context, chatID int64) {
	reqs, err := b.reviews.ListPending(ctx, pendingListLimit)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list pending failed")
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	if len(reqs) == 0 {
		b.sendMessage(chatID, "No requests are waiting for review.")
		return
	}
	for _, req := range reqs {
		text := submissionText("", "", req.BookingID, req.SubmittedBy, req.Summary)
		if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, reviewKeyboard(req.ID)); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("request_id", req.ID).Msg("send pending request failed")
		}
	}
}
