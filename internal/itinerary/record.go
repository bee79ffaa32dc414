package itinerary

import (
	"net/url"
	"time"

	"druktour/internal/models"
)

// SessionKey identifies one editor's session on one booking.
type SessionKey struct {
	BookingID string `json:"booking_id"`
	EditorID  string `json:"editor_id"`
}

// String joins the escaped ids with ':', which never occurs inside an
// escaped part, so distinct keys never share a string.
func (k SessionKey) String() string {
	return url.QueryEscape(k.BookingID) + ":" + url.QueryEscape(k.EditorID)
}

// Record is a stored edit session: the workflow state plus the itinerary
// version the working copy was taken from.
type Record struct {
	Key         SessionKey  `json:"key"`
	Role        models.Role `json:"role"`
	BaseVersion int64       `json:"base_version"`
	State       State       `json:"state"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
