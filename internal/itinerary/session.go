// Package itinerary holds the edit session and approval workflow for a single
// booking itinerary. Types here are owned by one caller at a time and are not
// safe for concurrent use.
package itinerary

import (
	"errors"
	"fmt"

	"druktour/internal/models"
)

var (
	ErrUnknownDay         = errors.New("unknown itinerary day")
	ErrActivityIndex      = errors.New("activity index out of range")
	ErrReadOnlyField      = errors.New("field is not editable")
	ErrNotEditing         = errors.New("itinerary is not in edit mode")
	ErrEditNotPermitted   = errors.New("caller may not customize this itinerary")
	ErrNoChanges          = errors.New("itinerary has no unsaved changes")
	ErrInvalidTransition  = errors.New("action not available in current state")
	ErrSubmissionInFlight = errors.New("approval submission in progress")
	ErrSubmitterPanic     = errors.New("approval submitter panicked")
)

// Session keeps the working copy of an itinerary and tracks which days
// changed since edit mode was entered.
type Session struct {
	initial   []models.ItineraryDay
	working   []models.ItineraryDay
	originals map[string]models.ItineraryDay
	editing   bool
	unsaved   bool
}

// NewSession starts a session over the initial itinerary. The slice is copied.
func NewSession(initial []models.ItineraryDay) *Session {
	return &Session{
		initial:   models.CloneDays(initial),
		originals: make(map[string]models.ItineraryDay),
	}
}

// Enter switches into edit mode with a fresh working copy. No-op when already editing.
func (s *Session) Enter() {
	if s.editing {
		return
	}
	s.working = models.CloneDays(s.initial)
	s.originals = make(map[string]models.ItineraryDay)
	s.editing = true
	s.recompute()
}

func (s *Session) Editing() bool { return s.editing }

// Days returns a copy of the working copy while editing, the initial itinerary otherwise.
func (s *Session) Days() []models.ItineraryDay {
	if s.editing {
		return models.CloneDays(s.working)
	}
	return models.CloneDays(s.initial)
}

// Initial returns a copy of the itinerary the session reverts to.
func (s *Session) Initial() []models.ItineraryDay {
	return models.CloneDays(s.initial)
}

// IsModified reports whether the day changed in this session.
func (s *Session) IsModified(dayID string) bool {
	_, ok := s.originals[dayID]
	return ok
}

// Original returns the day as it was before its first edit in this session.
func (s *Session) Original(dayID string) (models.ItineraryDay, bool) {
	day, ok := s.originals[dayID]
	if !ok {
		return models.ItineraryDay{}, false
	}
	return day.Clone(), true
}

// ModifiedDays returns the ids of changed days in itinerary order.
func (s *Session) ModifiedDays() []string {
	var ids []string
	for _, d := range s.working {
		if s.IsModified(d.ID) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func (s *Session) HasUnsavedChanges() bool { return s.unsaved }

// UpdateDayField sets one of the scalar fields of a day.
func (s *Session) UpdateDayField(dayID string, field models.DayField, value string) error {
	if !field.Editable() {
		return fmt.Errorf("%w: %s", ErrReadOnlyField, field)
	}
	day, err := s.mutable(dayID)
	if err != nil {
		return err
	}
	switch field {
	case models.FieldTitle:
		day.Title = value
	case models.FieldDescription:
		day.Description = value
	case models.FieldAccommodation:
		day.Accommodation = value
	case models.FieldNotes:
		day.Notes = value
	}
	s.recompute()
	return nil
}

// AddActivity appends an empty activity and returns its index.
func (s *Session) AddActivity(dayID string) (int, error) {
	day, err := s.mutable(dayID)
	if err != nil {
		return -1, err
	}
	day.Activities = append(day.Activities, "")
	s.recompute()
	return len(day.Activities) - 1, nil
}

func (s *Session) UpdateActivity(dayID string, index int, value string) error {
	if err := s.checkActivity(dayID, index); err != nil {
		return err
	}
	day, _ := s.mutable(dayID)
	day.Activities[index] = value
	s.recompute()
	return nil
}

func (s *Session) RemoveActivity(dayID string, index int) error {
	if err := s.checkActivity(dayID, index); err != nil {
		return err
	}
	day, _ := s.mutable(dayID)
	day.Activities = append(day.Activities[:index], day.Activities[index+1:]...)
	s.recompute()
	return nil
}

// Discard drops the working copy and leaves edit mode.
func (s *Session) Discard() {
	s.working = models.CloneDays(s.initial)
	s.originals = make(map[string]models.ItineraryDay)
	s.editing = false
	s.recompute()
}

// MarkSaved clears modification tracking after the working copy was
// persisted; the saved copy becomes the baseline Discard reverts to.
func (s *Session) MarkSaved() {
	s.initial = models.CloneDays(s.working)
	s.originals = make(map[string]models.ItineraryDay)
	s.recompute()
}

func (s *Session) checkActivity(dayID string, index int) error {
	if !s.editing {
		return ErrNotEditing
	}
	i := s.indexOf(dayID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDay, dayID)
	}
	if index < 0 || index >= len(s.working[i].Activities) {
		return fmt.Errorf("%w: day %s index %d", ErrActivityIndex, dayID, index)
	}
	return nil
}

// mutable returns the working day, capturing its snapshot on first use.
func (s *Session) mutable(dayID string) (*models.ItineraryDay, error) {
	if !s.editing {
		return nil, ErrNotEditing
	}
	i := s.indexOf(dayID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDay, dayID)
	}
	if _, ok := s.originals[dayID]; !ok {
		s.originals[dayID] = s.working[i].Clone()
	}
	return &s.working[i], nil
}

func (s *Session) indexOf(dayID string) int {
	for i := range s.working {
		if s.working[i].ID == dayID {
			return i
		}
	}
	return -1
}

func (s *Session) recompute() {
	s.unsaved = len(s.originals) > 0
}
