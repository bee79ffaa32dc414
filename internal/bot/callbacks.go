package bot

import (
	"context"

	"druktour/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	l := zerolog.Ctx(ctx)
	userID := callback.From.ID

	action, requestID, ok := parseCallbackData(callback.Data)
	if !ok {
		l.Warn().Str("data", callback.Data).Int64("user_id", userID).Msg("unknown callback data")
		b.answer(callback.ID, "Unknown action")
		return
	}

	switch action {
	case actionApprove:
		req, err := b.reviews.Decide(ctx, requestID, models.DecisionApprove, actor(userID), "")
		if err != nil {
			l.Warn().Err(err).Str("request_id", requestID).Msg("approve failed")
			b.answer(callback.ID, errorMessage(err))
			return
		}
		b.answer(callback.ID, "Approved")
		b.closeReviewMessage(callback, "✅ Approved by you")
		l.Info().Str("request_id", req.ID).Str("booking_id", req.BookingID).Int64("user_id", userID).Msg("request approved from bot")

	case actionReject:
		if err := b.stateService.AwaitRejectReason(ctx, userID, requestID); err != nil {
			l.Error().Err(err).Str("request_id", requestID).Msg("store reject state failed")
			b.answer(callback.ID, errorMessage(err))
			return
		}
		b.answer(callback.ID, "")
		if callback.Message != nil {
			b.sendMessage(callback.Message.Chat.ID, "Send the reason for rejecting this change, /skip to reject without a comment or /cancel to keep it pending.")
		}
	}
}

func (b *Bot) answer(callbackID, text string) {
	if err := b.tgService.AnswerCallback(callbackID, text); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
}

// closeReviewMessage appends the outcome to the notification and drops its
// buttons so the request cannot be decided twice from the same chat.
func (b *Bot) closeReviewMessage(callback *tgbotapi.CallbackQuery, outcome string) {
	msg := callback.Message
	if msg == nil {
		return
	}
	text := escapeMarkdown(msg.Text) + "\n\n" + outcome
	if _, err := b.tgService.EditMessage(msg.Chat.ID, msg.MessageID, text, nil); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", msg.Chat.ID).Msg("edit review message failed")
	}
}
