package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ItineraryDay is one day of a booked tour plan.
type ItineraryDay struct {
	ID            string   `json:"id"`
	DayNumber     int      `json:"day_number"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Activities    []string `json:"activities"`
	Accommodation string   `json:"accommodation,omitempty"`
	Meals         []string `json:"meals"`
	Notes         string   `json:"notes,omitempty"`
}

// Clone returns a deep copy of the day.
func (d ItineraryDay) Clone() ItineraryDay {
	d.Activities = cloneStrings(d.Activities)
	d.Meals = cloneStrings(d.Meals)
	return d
}

// CloneDays deep-copies an itinerary, keeping the order.
func CloneDays(days []ItineraryDay) []ItineraryDay {
	if days == nil {
		return nil
	}
	out := make([]ItineraryDay, len(days))
	for i := range days {
		out[i] = days[i].Clone()
	}
	return out
}

// EqualDays reports whether two itineraries hold the same days in the same
// order. Nil and empty lists compare equal.
func EqualDays(a, b []ItineraryDay) bool {
	return slices.EqualFunc(a, b, func(x, y ItineraryDay) bool {
		return x.ID == y.ID &&
			x.DayNumber == y.DayNumber &&
			x.Title == y.Title &&
			x.Description == y.Description &&
			x.Accommodation == y.Accommodation &&
			x.Notes == y.Notes &&
			slices.Equal(x.Activities, y.Activities) &&
			slices.Equal(x.Meals, y.Meals)
	})
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// DayField names a scalar field of ItineraryDay.
type DayField string

const (
	FieldTitle         DayField = "title"
	FieldDescription   DayField = "description"
	FieldAccommodation DayField = "accommodation"
	FieldNotes         DayField = "notes"

	// Not editable through field updates.
	FieldMeals      DayField = "meals"
	FieldActivities DayField = "activities"
)

// Editable reports whether the field can be set with a plain string value.
func (f DayField) Editable() bool {
	switch f {
	case FieldTitle, FieldDescription, FieldAccommodation, FieldNotes:
		return true
	default:
		return false
	}
}

// ErrUnknownField is returned for field names outside the day schema.
var ErrUnknownField = errors.New("unknown day field")

// ParseDayField normalizes a field name coming from a client.
func ParseDayField(raw string) (DayField, error) {
	f := DayField(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FieldTitle, FieldDescription, FieldAccommodation, FieldNotes, FieldMeals, FieldActivities:
		return f, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownField, raw)
	}
}

// Itinerary is the stored itinerary of a booking together with its baseline version.
type Itinerary struct {
	BookingID      string         `json:"booking_id"`
	Version        int64          `json:"version"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Days           []ItineraryDay `json:"days"`
}
