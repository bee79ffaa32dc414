package models

import "time"

// TourBooking is the booking that owns an itinerary.
type TourBooking struct {
	ID               string         `json:"id"`
	TourName         string         `json:"tour_name"`
	LeadTraveler     string         `json:"lead_traveler"`
	StartDate        time.Time      `json:"start_date"`
	ApprovalStatus   ApprovalStatus `json:"approval_status"`
	ItineraryVersion int64          `json:"itinerary_version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ItineraryChange is a saved revision of an itinerary.
type ItineraryChange struct {
	ID        int64     `json:"id"`
	BookingID string    `json:"booking_id"`
	Version   int64     `json:"version"`
	Summary   string    `json:"summary"`
	EditorID  string    `json:"editor_id"`
	CreatedAt time.Time `json:"created_at"`
}
