package bot

import (
	"context"
	"os"
	"strconv"
	"time"

	"druktour/internal/config"
	"druktour/internal/domain"
	"druktour/internal/events"
	"druktour/internal/metrics"
	"druktour/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot notifies reviewers of submitted itineraries and takes their
// approve/reject decisions from inline buttons.
type Bot struct {
	tgService    domain.TelegramService
	config       *config.Config
	stateService domain.StateManager
	reviews      domain.Reviewer
	reviewers    map[int64]struct{}
	logger       *zerolog.Logger
}

func NewBot(
	tgService domain.TelegramService,
	cfg *config.Config,
	stateService domain.StateManager,
	reviews domain.Reviewer,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	reviewers := make(map[int64]struct{}, len(cfg.Reviewers))
	for _, id := range cfg.Reviewers {
		reviewers[id] = struct{}{}
	}

	return &Bot{
		tgService:    tgService,
		config:       cfg,
		stateService: stateService,
		reviews:      reviews,
		reviewers:    reviewers,
		logger:       logger,
	}
}

// Subscribe hooks the bot to itinerary events on the bus.
func (b *Bot) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventItinerarySubmitted, b.onSubmitted)
	bus.Subscribe(events.EventItineraryApproved, b.onDecided)
	bus.Subscribe(events.EventItineraryRejected, b.onDecided)
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Int("reviewers", len(b.reviewers)).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates.
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	kind := "ignored"
	defer func() {
		metrics.ObserveBotUpdate(kind, time.Since(start).Seconds())
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(&kind, func() {
		var userID int64
		switch {
		case update.Message != nil && update.Message.From != nil:
			userID = update.Message.From.ID
		case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
			userID = update.CallbackQuery.From.ID
		}
		if userID == 0 {
			return
		}

		if !b.isReviewer(userID) {
			l.Debug().Int64("user_id", userID).Msg("update from non-reviewer ignored")
			if update.Message != nil {
				b.sendMessage(update.Message.Chat.ID, "This bot only serves Druk Tour itinerary reviewers.")
			}
			return
		}

		if !b.allow(updateCtx, userID) {
			kind = "rate_limited"
			if update.Message != nil {
				b.sendMessage(update.Message.Chat.ID, "⚠️ Too many requests. Please wait a moment.")
			}
			return
		}

		if update.CallbackQuery != nil {
			kind = "callback"
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message != nil {
			kind = "message"
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func (b *Bot) allow(ctx context.Context, userID int64) bool {
	limit := b.config.Bot.RateLimitMessages
	if limit <= 0 {
		limit = models.RateLimitMessages
	}
	window := b.config.Bot.RateLimitWindow
	if window <= 0 {
		window = models.RateLimitWindow
	}
	allowed, err := b.stateService.CheckRateLimit(ctx, userID, limit, time.Duration(window)*time.Second)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	}
	return allowed
}

func (b *Bot) isReviewer(userID int64) bool {
	_, ok := b.reviewers[userID]
	return ok
}

func (b *Bot) reviewerIDs() []int64 {
	return b.config.Reviewers
}

// actor is how a Telegram reviewer appears to the review service.
func actor(userID int64) models.Actor {
	return models.Actor{ID: "tg:" + strconv.FormatInt(userID, 10), Role: models.RoleTourManager}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message failed")
	}
}
