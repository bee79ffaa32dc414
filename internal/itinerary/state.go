package itinerary

import (
	"errors"

	"druktour/internal/models"
)

// State is the storable form of a Workflow, used to carry an edit session
// across requests.
type State struct {
	BookingID   string                         `json:"booking_id"`
	Phase       Phase                          `json:"phase"`
	Status      models.ApprovalStatus          `json:"status"`
	CanEdit     bool                           `json:"can_edit"`
	Editing     bool                           `json:"editing"`
	Initial     []models.ItineraryDay          `json:"initial"`
	Working     []models.ItineraryDay          `json:"working,omitempty"`
	Originals   map[string]models.ItineraryDay `json:"originals,omitempty"`
	Draft       string                         `json:"draft,omitempty"`
	DraftEdited bool                           `json:"draft_edited,omitempty"`
	LastError   string                         `json:"last_error,omitempty"`
}

// State captures the workflow. An in-flight submission is recorded as an
// open approval dialog.
func (w *Workflow) State() State {
	st := State{
		BookingID:   w.bookingID,
		Phase:       w.phase,
		Status:      w.status,
		CanEdit:     w.canEdit,
		Editing:     w.session.editing,
		Initial:     models.CloneDays(w.session.initial),
		Draft:       w.draft,
		DraftEdited: w.draftEdited,
	}
	if st.Phase == PhaseSubmitting {
		st.Phase = PhaseReviewing
	}
	if w.session.editing {
		st.Working = models.CloneDays(w.session.working)
		st.Originals = make(map[string]models.ItineraryDay, len(w.session.originals))
		for id, d := range w.session.originals {
			st.Originals[id] = d.Clone()
		}
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
	}
	return st
}

// RestoreWorkflow rebuilds a workflow from a stored State.
func RestoreWorkflow(st State, saver Saver, submitter Submitter) *Workflow {
	w := NewWorkflow(st.BookingID, st.Initial, st.Status, st.CanEdit, saver, submitter)
	switch {
	case !st.Editing:
		w.phase = PhaseViewing
	case st.Phase == PhaseSubmitting:
		w.phase = PhaseReviewing
	case st.Phase == "" || st.Phase == PhaseViewing:
		w.phase = PhaseEditing
	default:
		w.phase = st.Phase
	}
	if st.Editing {
		w.session.editing = true
		w.session.working = models.CloneDays(st.Working)
		for id, d := range st.Originals {
			w.session.originals[id] = d.Clone()
		}
		w.session.recompute()
	}
	w.draft = st.Draft
	w.draftEdited = st.DraftEdited
	if st.LastError != "" {
		w.lastErr = errors.New(st.LastError)
	}
	return w
}
