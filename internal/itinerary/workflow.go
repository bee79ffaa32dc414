package itinerary

import (
	"context"
	"strings"

	"druktour/internal/models"
)

// Phase is the workflow's position in the edit/approval state machine.
type Phase string

const (
	PhaseViewing    Phase = "viewing"
	PhaseEditing    Phase = "editing"
	PhaseReviewing  Phase = "reviewing" // approval dialog open
	PhaseSubmitting Phase = "submitting"
)

// Saver persists a working copy as the new itinerary baseline.
// It must not change the approval status.
type Saver interface {
	SaveItinerary(ctx context.Context, bookingID string, days []models.ItineraryDay, summary string) error
}

// Submitter hands a working copy to staff review and moves the status to pending.
type Submitter interface {
	SubmitForApproval(ctx context.Context, bookingID string, days []models.ItineraryDay, summary string) error
}

// Workflow drives one booking's itinerary through viewing, editing and approval.
type Workflow struct {
	bookingID string
	canEdit   bool
	status    models.ApprovalStatus

	session *Session
	phase   Phase

	draft       string
	draftEdited bool
	pending     *Submission
	lastErr     error

	saver     Saver
	submitter Submitter
}

func NewWorkflow(bookingID string, initial []models.ItineraryDay, status models.ApprovalStatus, canEdit bool, saver Saver, submitter Submitter) *Workflow {
	if status == "" {
		status = models.ApprovalNone
	}
	return &Workflow{
		bookingID: bookingID,
		canEdit:   canEdit,
		status:    status,
		session:   NewSession(initial),
		phase:     PhaseViewing,
		saver:     saver,
		submitter: submitter,
	}
}

func (w *Workflow) BookingID() string { return w.bookingID }
func (w *Workflow) Phase() Phase { return w.phase }
func (w *Workflow) Session() *Session { return w.session }
func (w *Workflow) CanEdit() bool { return w.canEdit }
func (w *Workflow) Status() models.ApprovalStatus { return w.status }
func (w *Workflow) Badge() StatusBadge { return Badge(w.status) }
func (w *Workflow) SetCanEdit(canEdit bool) { w.canEdit = canEdit }
func (w *Workflow) SetStatus(s models.ApprovalStatus) { w.status = s }

// LastError is the failure of the most recent submission, cleared on retry.
func (w *Workflow) LastError() error { return w.lastErr }

// Summary is the text currently in the approval dialog.
func (w *Workflow) Summary() string { return w.draft }

// Actions reports which user actions are currently enabled.
func (w *Workflow) Actions() Actions {
	unsaved := w.session.HasUnsavedChanges()
	return Actions{
		Customize: w.phase == PhaseViewing && w.canEdit,
		Cancel:    w.phase == PhaseEditing || w.phase == PhaseReviewing,
		Save:      w.phase == PhaseEditing && unsaved,
		Submit:    w.phase == PhaseEditing && unsaved,
		Confirm:   w.phase == PhaseReviewing && unsaved,
	}
}

// Actions is the enabled state of the editor's buttons.
type Actions struct {
	Customize bool `json:"customize"`
	Cancel    bool `json:"cancel"`
	Save      bool `json:"save"`
	Submit    bool `json:"submit"`
	Confirm   bool `json:"confirm"`
}

// Customize enters edit mode. Calling it while already editing does nothing.
func (w *Workflow) Customize() error {
	switch w.phase {
	case PhaseEditing, PhaseReviewing:
		return nil
	case PhaseSubmitting:
		return ErrSubmissionInFlight
	}
	if !w.canEdit {
		return ErrEditNotPermitted
	}
	w.session.Enter()
	w.phase = PhaseEditing
	return nil
}

func (w *Workflow) UpdateDayField(dayID string, field models.DayField, value string) error {
	if err := w.requireEditing(); err != nil {
		return err
	}
	return w.session.UpdateDayField(dayID, field, value)
}

func (w *Workflow) AddActivity(dayID string) (int, error) {
	if err := w.requireEditing(); err != nil {
		return -1, err
	}
	return w.session.AddActivity(dayID)
}

func (w *Workflow) UpdateActivity(dayID string, index int, value string) error {
	if err := w.requireEditing(); err != nil {
		return err
	}
	return w.session.UpdateActivity(dayID, index, value)
}

func (w *Workflow) RemoveActivity(dayID string, index int) error {
	if err := w.requireEditing(); err != nil {
		return err
	}
	return w.session.RemoveActivity(dayID, index)
}

// Cancel discards all unsaved changes without asking and returns to viewing.
func (w *Workflow) Cancel() error {
	switch w.phase {
	case PhaseSubmitting:
		return ErrSubmissionInFlight
	case PhaseViewing:
		return nil
	}
	w.session.Discard()
	w.resetDialog()
	w.phase = PhaseViewing
	return nil
}

// Save persists the working copy with the default summary and keeps editing.
// Modification flags are cleared only when the saver succeeds.
func (w *Workflow) Save(ctx context.Context) error {
	if err := w.requireEditing(); err != nil {
		return err
	}
	if !w.session.HasUnsavedChanges() {
		return ErrNoChanges
	}
	summary := w.session.ChangeSummary()
	if err := w.saver.SaveItinerary(ctx, w.bookingID, w.session.Days(), summary); err != nil {
		return err
	}
	w.session.MarkSaved()
	return nil
}

// OpenApproval opens the approval dialog prefilled with the default summary.
func (w *Workflow) OpenApproval() (string, error) {
	if err := w.requireEditing(); err != nil {
		return "", err
	}
	if !w.session.HasUnsavedChanges() {
		return "", ErrNoChanges
	}
	w.draft = w.session.ChangeSummary()
	w.draftEdited = false
	w.lastErr = nil
	w.phase = PhaseReviewing
	return w.draft, nil
}

// SetSummary replaces the dialog's summary with user text.
func (w *Workflow) SetSummary(text string) error {
	if w.phase == PhaseSubmitting {
		return ErrSubmissionInFlight
	}
	if w.phase != PhaseReviewing {
		return ErrInvalidTransition
	}
	w.draft = text
	w.draftEdited = true
	return nil
}

// CloseApproval dismisses the dialog and goes back to editing.
func (w *Workflow) CloseApproval() error {
	if w.phase == PhaseSubmitting {
		return ErrSubmissionInFlight
	}
	if w.phase != PhaseReviewing {
		return ErrInvalidTransition
	}
	w.resetDialog()
	w.phase = PhaseEditing
	return nil
}

// Submit starts the submit-for-approval call in the background. The dialog
// stays open until Settle observes the outcome.
func (w *Workflow) Submit(ctx context.Context) (*Submission, error) {
	if w.phase == PhaseSubmitting {
		return nil, ErrSubmissionInFlight
	}
	if w.phase != PhaseReviewing {
		return nil, ErrInvalidTransition
	}
	if !w.session.HasUnsavedChanges() {
		return nil, ErrNoChanges
	}

	summary := w.session.ChangeSummary()
	if w.draftEdited && strings.TrimSpace(w.draft) != "" {
		summary = w.draft
	}

	sub := newSubmission(w.bookingID, summary, w.session.Days())
	w.pending = sub
	w.lastErr = nil
	w.phase = PhaseSubmitting
	go sub.run(ctx, w.submitter)
	return sub, nil
}

// Settle applies a finished submission. On success the session leaves edit
// mode and the status becomes pending; on failure the dialog stays open with
// the error kept for display. Returns false while the submission is in flight.
func (w *Workflow) Settle() bool {
	sub := w.pending
	if sub == nil {
		return true
	}
	switch sub.State() {
	case SubmissionInFlight:
		return false
	case SubmissionSucceeded:
		w.session.Discard()
		w.resetDialog()
		w.status = models.ApprovalPending
		w.phase = PhaseViewing
	case SubmissionFailed:
		w.lastErr = sub.Err()
		w.phase = PhaseReviewing
	}
	w.pending = nil
	return true
}

// Pending returns the in-flight submission, if any.
func (w *Workflow) Pending() *Submission { return w.pending }

func (w *Workflow) requireEditing() error {
	switch w.phase {
	case PhaseEditing:
		return nil
	case PhaseSubmitting:
		return ErrSubmissionInFlight
	case PhaseViewing:
		return ErrNotEditing
	default:
		return ErrInvalidTransition
	}
}

func (w *Workflow) resetDialog() {
	w.draft = ""
	w.draftEdited = false
	w.lastErr = nil
}
