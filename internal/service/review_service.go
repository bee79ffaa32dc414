package service

import (
	"context"
	"errors"

	"druktour/internal/domain"
	"druktour/internal/events"
	"druktour/internal/metrics"
	"druktour/internal/models"

	"github.com/rs/zerolog"
)

var ErrReviewNotPermitted = errors.New("caller may not review itineraries")

// ReviewService resolves approval requests on behalf of staff.
type ReviewService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewReviewService(repo domain.Repository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *ReviewService {
	return &ReviewService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// Decide approves or rejects a pending request. Approval replaces the
// booking's itinerary with the submitted days.
func (s *ReviewService) Decide(ctx context.Context, requestID string, decision models.Decision, reviewer models.Actor, comment string) (*models.ApprovalRequest, error) {
	if !reviewer.Role.Permissions().CanReviewItinerary {
		return nil, ErrReviewNotPermitted
	}
	status, err := decision.Status()
	if err != nil {
		return nil, err
	}

	req, err := s.repo.DecideApproval(ctx, requestID, decision, reviewer.ID, comment)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", requestID).Str("decision", string(decision)).Msg("review decision failed")
		return nil, err
	}
	metrics.IncReviewDecision(string(decision))

	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueTask(ctx, models.TaskUpdateApprovalStatus, req); err != nil {
			s.logger.Error().Err(err).Str("request_id", req.ID).Msg("sheets enqueue error")
		}
	}

	eventType := events.EventItineraryApproved
	if status == models.ApprovalRejected {
		eventType = events.EventItineraryRejected
	}
	if s.eventBus != nil {
		payload := events.ItineraryEventPayload{
			BookingID: req.BookingID,
			RequestID: req.ID,
			Summary:   req.Summary,
			EditorID:  req.SubmittedBy,
			Status:    string(status),
			Reviewer:  reviewer.ID,
			Comment:   comment,
		}
		if req.DecidedAt != nil {
			payload.OccurredAt = *req.DecidedAt
		}
		if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", eventType).Str("request_id", req.ID).Msg("publish event error")
		}
	}

	s.logger.Info().Str("request_id", req.ID).Str("booking_id", req.BookingID).Str("status", string(status)).Str("reviewer", reviewer.ID).Msg("approval request decided")
	return req, nil
}

func (s *ReviewService) ListPending(ctx context.Context, limit int) ([]models.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListPendingApprovals(ctx, limit)
}

func (s *ReviewService) GetRequest(ctx context.Context, requestID string) (*models.ApprovalRequest, error) {
	return s.repo.GetApprovalRequest(ctx, requestID)
}

func (s *ReviewService) ListForBooking(ctx context.Context, bookingID string) ([]models.ApprovalRequest, error) {
	return s.repo.ListApprovalRequests(ctx, bookingID)
}
