package domain

import (
	"context"
	"time"

	"druktour/internal/itinerary"
	"druktour/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the booking backend's durable store.
type Repository interface {
	CreateBooking(ctx context.Context, booking *models.TourBooking, days []models.ItineraryDay) error
	GetBooking(ctx context.Context, id string) (*models.TourBooking, error)
	ListBookingsByStatus(ctx context.Context, status models.ApprovalStatus, limit int) ([]models.TourBooking, error)
	GetItinerary(ctx context.Context, bookingID string) (*models.Itinerary, error)
	SaveItinerary(ctx context.Context, bookingID string, baseVersion int64, days []models.ItineraryDay, summary, editorID string) (int64, error)
	ListItineraryChanges(ctx context.Context, bookingID string) ([]models.ItineraryChange, error)
	CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, id string) (*models.ApprovalRequest, error)
	ListApprovalRequests(ctx context.Context, bookingID string) ([]models.ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context, limit int) ([]models.ApprovalRequest, error)
	DecideApproval(ctx context.Context, id string, decision models.Decision, reviewer, comment string) (*models.ApprovalRequest, error)
}

// SessionRepository stores edit sessions between requests.
// GetSession returns nil, nil when no session exists.
type SessionRepository interface {
	GetSession(ctx context.Context, key itinerary.SessionKey) (*itinerary.Record, error)
	SaveSession(ctx context.Context, record *itinerary.Record) error
	DeleteSession(ctx context.Context, key itinerary.SessionKey) error
}

// StateRepository keeps reviewer bot conversation state and rate limits.
type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// SessionStore is what the Redis, memory and failover repositories provide.
type SessionStore interface {
	SessionRepository
	StateRepository
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	Broadcast(chatIDs []int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// StateManager is the reviewer bot's view of conversation state.
type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	ClearUserState(ctx context.Context, userID int64) error
	AwaitRejectReason(ctx context.Context, userID int64, requestID string) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// ApprovalSheetsWriter mirrors approval requests into the review spreadsheet.
type ApprovalSheetsWriter interface {
	UpsertApproval(ctx context.Context, req *models.ApprovalRequest) error
	UpdateApprovalStatus(ctx context.Context, requestID string, status models.ApprovalStatus, reviewer string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, req *models.ApprovalRequest) error
}

// Reviewer decides pending approval requests.
type Reviewer interface {
	Decide(ctx context.Context, requestID string, decision models.Decision, reviewer models.Actor, comment string) (*models.ApprovalRequest, error)
	ListPending(ctx context.Context, limit int) ([]models.ApprovalRequest, error)
	GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error)
}
