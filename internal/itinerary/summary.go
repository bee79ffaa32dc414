package itinerary

import (
	"fmt"
	"strings"

	"druktour/internal/models"
)

// BuildChangeSummary names every modified day in itinerary order, e.g.
// "Day 2: Modified Temple Visit; Day 4: Modified Punakha Dzong".
func BuildChangeSummary(days []models.ItineraryDay, modified func(dayID string) bool) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		if modified(d.ID) {
			parts = append(parts, fmt.Sprintf("Day %d: Modified %s", d.DayNumber, d.Title))
		}
	}
	return strings.Join(parts, "; ")
}

// ChangeSummary is the default summary for the session's working copy.
func (s *Session) ChangeSummary() string {
	if !s.editing {
		return ""
	}
	return BuildChangeSummary(s.working, s.IsModified)
}
