package bot

import (
	"fmt"
	"strings"

	"druktour/internal/events"
	"druktour/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func callbackData(action, requestID string) string {
	return action + ":" + requestID
}

func parseCallbackData(data string) (action, requestID string, ok bool) {
	action, requestID, ok = strings.Cut(data, ":")
	if !ok || requestID == "" {
		return "", "", false
	}
	switch action {
	case actionApprove, actionReject:
		return action, requestID, true
	}
	return "", "", false
}

func reviewKeyboard(requestID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", callbackData(actionApprove, requestID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", callbackData(actionReject, requestID)),
		),
	)
}

// submissionText renders a pending request for reviewers.
func submissionText(tourName, leadTraveler, bookingID, submittedBy, summary string) string {
	var sb strings.Builder
	sb.WriteString("🆕 *Itinerary change for review*\n\n")
	if tourName != "" {
		fmt.Fprintf(&sb, "🏔 Tour: %s\n", escapeMarkdown(tourName))
	}
	if leadTraveler != "" {
		fmt.Fprintf(&sb, "👤 Lead traveller: %s\n", escapeMarkdown(leadTraveler))
	}
	fmt.Fprintf(&sb, "🆔 Booking: %s\n", escapeMarkdown(bookingID))
	fmt.Fprintf(&sb, "✍️ Submitted by: %s\n", escapeMarkdown(submittedBy))
	if summary = strings.TrimSpace(summary); summary != "" {
		fmt.Fprintf(&sb, "\n%s", escapeMarkdown(summary))
	}
	return sb.String()
}

func decisionText(status models.ApprovalStatus, bookingID, reviewer, comment string) string {
	icon, verb := "✅", "approved"
	if status == models.ApprovalRejected {
		icon, verb = "❌", "rejected"
	}
	text := fmt.Sprintf("%s Itinerary for booking %s %s by %s", icon, escapeMarkdown(bookingID), verb, escapeMarkdown(reviewer))
	if comment = strings.TrimSpace(comment); comment != "" {
		text += "\n💬 " + escapeMarkdown(comment)
	}
	return text
}

func (b *Bot) onSubmitted(event *events.Event) error {
	var p events.ItineraryEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	if p.RequestID == "" {
		return fmt.Errorf("%s event without request id for booking %s", event.Type, p.BookingID)
	}

	keyboard := reviewKeyboard(p.RequestID)
	text := submissionText(p.TourName, p.LeadTraveler, p.BookingID, p.EditorID, p.Summary)
	if err := b.tgService.Broadcast(b.reviewerIDs(), text, &keyboard); err != nil {
		b.logger.Error().Err(err).Str("request_id", p.RequestID).Msg("notify reviewers failed")
		return err
	}
	b.logger.Info().Str("request_id", p.RequestID).Str("booking_id", p.BookingID).Int("reviewers", len(b.reviewerIDs())).Msg("reviewers notified")
	return nil
}

// onDecided tells every reviewer how a request ended, including decisions
// made through the HTTP API.
func (b *Bot) onDecided(event *events.Event) error {
	var p events.ItineraryEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", event.Type, err)
	}
	text := decisionText(models.ApprovalStatus(p.Status), p.BookingID, p.Reviewer, p.Comment)
	if err := b.tgService.Broadcast(b.reviewerIDs(), text, nil); err != nil {
		b.logger.Error().Err(err).Str("request_id", p.RequestID).Msg("decision broadcast failed")
		return err
	}
	return nil
}
