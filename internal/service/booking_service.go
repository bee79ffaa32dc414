package service

import (
	"context"

	"druktour/internal/domain"
	"druktour/internal/itinerary"
	"druktour/internal/models"

	"github.com/rs/zerolog"
)

// ItineraryView is the read-only itinerary page of a booking.
type ItineraryView struct {
	Booking   *models.TourBooking   `json:"booking"`
	Version   int64                 `json:"version"`
	Badge     itinerary.StatusBadge `json:"badge"`
	Days      []models.ItineraryDay `json:"days"`
	CanEdit   bool                  `json:"can_edit"`
	CanExport bool                  `json:"can_export"`
}

// BookingService exposes bookings owned by the reservation system.
type BookingService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewBookingService(repo domain.Repository, logger *zerolog.Logger) *BookingService {
	return &BookingService{repo: repo, logger: logger}
}

// ImportBooking stores a booking pushed by the reservation system together
// with its itinerary.
func (s *BookingService) ImportBooking(ctx context.Context, booking *models.TourBooking, days []models.ItineraryDay) error {
	if err := s.repo.CreateBooking(ctx, booking, days); err != nil {
		return err
	}
	s.logger.Info().Str("booking_id", booking.ID).Int("days", len(days)).Msg("booking imported")
	return nil
}

// GetItinerary returns the stored itinerary as the given actor sees it.
func (s *BookingService) GetItinerary(ctx context.Context, bookingID string, actor models.Actor) (*ItineraryView, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	itin, err := s.repo.GetItinerary(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	perms := actor.Role.Permissions()
	return &ItineraryView{
		Booking:   booking,
		Version:   itin.Version,
		Badge:     itinerary.Badge(itin.ApprovalStatus),
		Days:      itin.Days,
		CanEdit:   perms.CanCustomizeItinerary,
		CanExport: perms.CanExportItinerary,
	}, nil
}

func (s *BookingService) ListChanges(ctx context.Context, bookingID string) ([]models.ItineraryChange, error) {
	if _, err := s.repo.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListItineraryChanges(ctx, bookingID)
}
