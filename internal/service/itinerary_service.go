package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"druktour/internal/database"
	"druktour/internal/domain"
	"druktour/internal/events"
	"druktour/internal/itinerary"
	"druktour/internal/metrics"
	"druktour/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound  = errors.New("no edit session for this booking")
	ErrSubmissionFailed = errors.New("approval submission failed")
)

// SessionView is what a client needs to render the editor.
type SessionView struct {
	BookingID         string                `json:"booking_id"`
	EditorID          string                `json:"editor_id"`
	Phase             itinerary.Phase       `json:"phase"`
	Status            models.ApprovalStatus `json:"approval_status"`
	Badge             itinerary.StatusBadge `json:"badge"`
	Days              []models.ItineraryDay `json:"days"`
	ModifiedDays      []string              `json:"modified_days"`
	HasUnsavedChanges bool                  `json:"has_unsaved_changes"`
	Actions           itinerary.Actions     `json:"actions"`
	DefaultSummary    string                `json:"default_summary,omitempty"`
	Summary           string                `json:"summary,omitempty"`
	BaseVersion       int64                 `json:"base_version"`
	LastError         string                `json:"last_error,omitempty"`
	Submission        *SubmissionResult     `json:"submission,omitempty"`
}

// SubmissionResult reports how a submit-for-approval call settled.
type SubmissionResult struct {
	State     string `json:"state"`
	RequestID string `json:"request_id,omitempty"`
	Summary   string `json:"summary"`
	Error     string `json:"error,omitempty"`
}

// ItineraryService runs edit sessions for the stateless API. Every operation
// loads the session record, applies one workflow step under the session's
// lock and stores the record again.
type ItineraryService struct {
	repo          domain.Repository
	sessions      domain.SessionRepository
	eventBus      domain.EventPublisher
	sheetsWorker  domain.SyncWorker
	submitTimeout time.Duration
	locks         *keyedMutex
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewItineraryService(
	repo domain.Repository,
	sessions domain.SessionRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	submitTimeout time.Duration,
	logger *zerolog.Logger,
) *ItineraryService {
	if submitTimeout <= 0 {
		submitTimeout = 15 * time.Second
	}
	return &ItineraryService{
		repo:          repo,
		sessions:      sessions,
		eventBus:      eventBus,
		sheetsWorker:  sheetsWorker,
		submitTimeout: submitTimeout,
		locks:         newKeyedMutex(),
		logger:        logger,
		now:           time.Now,
	}
}

// editSession binds one stored record to its restored workflow. It is also
// the workflow's Saver and Submitter, so collaborator calls see the record's
// base version and editor.
type editSession struct {
	svc       *ItineraryService
	rec       *itinerary.Record
	wf        *itinerary.Workflow
	requestID string
	// committed is set once a collaborator has written to the booking store.
	committed bool
}

func (e *editSession) SaveItinerary(ctx context.Context, bookingID string, days []models.ItineraryDay, summary string) error {
	version, err := e.svc.repo.SaveItinerary(ctx, bookingID, e.rec.BaseVersion, days, summary, e.rec.Key.EditorID)
	if errors.Is(err, database.ErrConcurrentModification) {
		if adopted, ok := e.adoptStoredVersion(ctx, bookingID, days); ok {
			e.svc.logger.Warn().Str("booking_id", bookingID).Str("editor_id", e.rec.Key.EditorID).
				Int64("base_version", e.rec.BaseVersion).Int64("stored_version", adopted).
				Msg("working copy already stored, adopting stored version")
			e.rec.BaseVersion = adopted
			e.committed = true
			return nil
		}
	}
	if err != nil {
		return err
	}
	e.committed = true
	changed := len(e.wf.Session().ModifiedDays())
	e.rec.BaseVersion = version
	e.svc.publish(events.EventItinerarySaved, events.ItineraryEventPayload{
		BookingID:   bookingID,
		Version:     version,
		Summary:     summary,
		EditorID:    e.rec.Key.EditorID,
		Status:      string(e.wf.Status()),
		DaysChanged: changed,
		OccurredAt:  e.svc.now(),
	})
	return nil
}

// adoptStoredVersion covers a save whose session write was lost: the stored
// itinerary is newer than the record's base but already equals the working copy.
func (e *editSession) adoptStoredVersion(ctx context.Context, bookingID string, days []models.ItineraryDay) (int64, bool) {
	stored, err := e.svc.repo.GetItinerary(ctx, bookingID)
	if err != nil || stored.Version <= e.rec.BaseVersion {
		return 0, false
	}
	return stored.Version, models.EqualDays(stored.Days, days)
}

// pendingDuplicate finds a pending request this editor already created from
// the same base and days.
func (e *editSession) pendingDuplicate(ctx context.Context, bookingID string, days []models.ItineraryDay) *models.ApprovalRequest {
	reqs, err := e.svc.repo.ListApprovalRequests(ctx, bookingID)
	if err != nil {
		return nil
	}
	for i := range reqs {
		r := &reqs[i]
		if r.Status == models.ApprovalPending &&
			r.SubmittedBy == e.rec.Key.EditorID &&
			r.BaseVersion == e.rec.BaseVersion &&
			models.EqualDays(r.Days, days) {
			return r
		}
	}
	return nil
}

func (e *editSession) SubmitForApproval(ctx context.Context, bookingID string, days []models.ItineraryDay, summary string) error {
	if dup := e.pendingDuplicate(ctx, bookingID, days); dup != nil {
		e.svc.logger.Warn().Str("booking_id", bookingID).Str("editor_id", e.rec.Key.EditorID).
			Str("request_id", dup.ID).Msg("identical request already pending, not resubmitting")
		e.requestID = dup.ID
		e.committed = true
		return nil
	}

	req := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		Summary:     summary,
		Days:        days,
		BaseVersion: e.rec.BaseVersion,
		SubmittedBy: e.rec.Key.EditorID,
	}
	if err := e.svc.repo.CreateApprovalRequest(ctx, req); err != nil {
		return err
	}
	e.requestID = req.ID
	e.committed = true

	e.svc.enqueueSync(ctx, models.TaskUpsertApproval, req)
	payload := events.ItineraryEventPayload{
		BookingID:  bookingID,
		RequestID:  req.ID,
		Summary:    summary,
		EditorID:   req.SubmittedBy,
		Status:     string(models.ApprovalPending),
		OccurredAt: req.SubmittedAt,
	}
	if booking, err := e.svc.repo.GetBooking(ctx, bookingID); err == nil {
		payload.TourName = booking.TourName
		payload.LeadTraveler = booking.LeadTraveler
	}
	e.svc.publish(events.EventItinerarySubmitted, payload)
	return nil
}

func (e *editSession) view() *SessionView {
	wf := e.wf
	sess := wf.Session()
	v := &SessionView{
		BookingID:         e.rec.Key.BookingID,
		EditorID:          e.rec.Key.EditorID,
		Phase:             wf.Phase(),
		Status:            wf.Status(),
		Badge:             wf.Badge(),
		Days:              sess.Days(),
		ModifiedDays:      sess.ModifiedDays(),
		HasUnsavedChanges: sess.HasUnsavedChanges(),
		Actions:           wf.Actions(),
		DefaultSummary:    sess.ChangeSummary(),
		BaseVersion:       e.rec.BaseVersion,
	}
	if wf.Phase() == itinerary.PhaseReviewing {
		v.Summary = wf.Summary()
	}
	if err := wf.LastError(); err != nil {
		v.LastError = err.Error()
	}
	return v
}

func (s *ItineraryService) restore(rec *itinerary.Record) *editSession {
	es := &editSession{svc: s, rec: rec}
	es.wf = itinerary.RestoreWorkflow(rec.State, es, es)
	return es
}

func (s *ItineraryService) load(ctx context.Context, key itinerary.SessionKey) (*editSession, error) {
	rec, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	return s.restore(rec), nil
}

// store keeps the session while it is in edit mode and drops it once the
// workflow is back to viewing.
func (s *ItineraryService) store(ctx context.Context, es *editSession) error {
	if es.wf.Phase() == itinerary.PhaseViewing {
		if err := s.sessions.DeleteSession(ctx, es.rec.Key); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	}
	es.rec.State = es.wf.State()
	es.rec.UpdatedAt = s.now()
	if err := s.sessions.SaveSession(ctx, es.rec); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// commitStoreAttempts bounds how often a session write is retried after the
// booking store already holds the change.
const commitStoreAttempts = 3

// storeCommitted writes the session after a collaborator succeeded. The change
// is already durable, so a store failure is logged rather than returned.
func (s *ItineraryService) storeCommitted(ctx context.Context, es *editSession, op string) {
	var err error
	for attempt := 1; attempt <= commitStoreAttempts; attempt++ {
		if err = s.store(ctx, es); err == nil {
			return
		}
	}
	s.logger.Error().Err(err).Str("op", op).Str("booking_id", es.rec.Key.BookingID).
		Str("editor_id", es.rec.Key.EditorID).Int64("base_version", es.rec.BaseVersion).
		Msg("session not stored after committed change")
}

// StartSession enters edit mode for the editor. An editor who already has a
// session gets it back unchanged.
func (s *ItineraryService) StartSession(ctx context.Context, bookingID string, editor models.Actor) (*SessionView, error) {
	key := itinerary.SessionKey{BookingID: bookingID, EditorID: editor.ID}
	unlock := s.locks.Lock(key.String())
	defer unlock()

	itin, err := s.repo.GetItinerary(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	canEdit := editor.Role.Permissions().CanCustomizeItinerary

	rec, err := s.sessions.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if rec != nil && rec.State.Editing {
		es := s.restore(rec)
		es.wf.SetStatus(itin.ApprovalStatus)
		es.wf.SetCanEdit(canEdit)
		return es.view(), nil
	}

	es := &editSession{svc: s, rec: &itinerary.Record{Key: key, Role: editor.Role, BaseVersion: itin.Version}}
	es.wf = itinerary.NewWorkflow(bookingID, itin.Days, itin.ApprovalStatus, canEdit, es, es)
	if err := es.wf.Customize(); err != nil {
		metrics.IncSessionOp("customize", err)
		s.logger.Warn().Err(err).Str("booking_id", bookingID).Str("editor_id", editor.ID).Str("role", string(editor.Role)).Msg("customize refused")
		return nil, err
	}
	metrics.IncSessionOp("customize", nil)
	if err := s.store(ctx, es); err != nil {
		return nil, err
	}
	s.logger.Info().Str("booking_id", bookingID).Str("editor_id", editor.ID).Int64("base_version", itin.Version).Msg("edit session started")
	return es.view(), nil
}

// GetSession returns the editor's session with the approval status refreshed.
func (s *ItineraryService) GetSession(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	es, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if booking, err := s.repo.GetBooking(ctx, key.BookingID); err == nil {
		es.wf.SetStatus(booking.ApprovalStatus)
	}
	return es.view(), nil
}

// CancelSession discards the working copy without asking and ends the session.
func (s *ItineraryService) CancelSession(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	return s.mutate(ctx, key, "cancel", func(es *editSession) error {
		return es.wf.Cancel()
	})
}

func (s *ItineraryService) UpdateDayField(ctx context.Context, key itinerary.SessionKey, dayID, field, value string) (*SessionView, error) {
	return s.mutate(ctx, key, "update_field", func(es *editSession) error {
		f, err := models.ParseDayField(field)
		if err != nil {
			return err
		}
		return es.wf.UpdateDayField(dayID, f, value)
	})
}

// AddActivity appends an empty activity and returns its index.
func (s *ItineraryService) AddActivity(ctx context.Context, key itinerary.SessionKey, dayID string) (*SessionView, int, error) {
	index := -1
	view, err := s.mutate(ctx, key, "add_activity", func(es *editSession) error {
		var err error
		index, err = es.wf.AddActivity(dayID)
		return err
	})
	return view, index, err
}

func (s *ItineraryService) UpdateActivity(ctx context.Context, key itinerary.SessionKey, dayID string, index int, value string) (*SessionView, error) {
	return s.mutate(ctx, key, "update_activity", func(es *editSession) error {
		return es.wf.UpdateActivity(dayID, index, value)
	})
}

func (s *ItineraryService) RemoveActivity(ctx context.Context, key itinerary.SessionKey, dayID string, index int) (*SessionView, error) {
	return s.mutate(ctx, key, "remove_activity", func(es *editSession) error {
		return es.wf.RemoveActivity(dayID, index)
	})
}

// Save persists the working copy with the default summary. The session stays
// in edit mode with the saved copy as its new baseline.
func (s *ItineraryService) Save(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	return s.mutate(ctx, key, "save", func(es *editSession) error {
		return es.wf.Save(ctx)
	})
}

// OpenApproval opens the approval dialog with the default summary.
func (s *ItineraryService) OpenApproval(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	return s.mutate(ctx, key, "open_approval", func(es *editSession) error {
		_, err := es.wf.OpenApproval()
		return err
	})
}

func (s *ItineraryService) SetSummary(ctx context.Context, key itinerary.SessionKey, text string) (*SessionView, error) {
	return s.mutate(ctx, key, "set_summary", func(es *editSession) error {
		return es.wf.SetSummary(text)
	})
}

func (s *ItineraryService) CloseApproval(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	return s.mutate(ctx, key, "close_approval", func(es *editSession) error {
		return es.wf.CloseApproval()
	})
}

// Submit sends the working copy for approval and waits for it to settle.
// A failed submission keeps the dialog open: the returned view carries the
// error and the error wraps ErrSubmissionFailed. The call outlives a
// cancelled request context, bounded by the submit timeout.
func (s *ItineraryService) Submit(ctx context.Context, key itinerary.SessionKey) (*SessionView, error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	es, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	subCtx, cancel := context.WithTimeout(detached, s.submitTimeout)
	defer cancel()

	started := s.now()
	sub, err := es.wf.Submit(subCtx)
	if err != nil {
		metrics.IncSessionOp("submit", err)
		s.logRejected(key, "submit", err)
		return nil, err
	}
	<-sub.Done()
	es.wf.Settle()
	metrics.ObserveSubmission(sub.State().String(), s.now().Sub(started).Seconds())

	result := &SubmissionResult{
		State:     sub.State().String(),
		RequestID: es.requestID,
		Summary:   sub.Summary(),
	}
	if subErr := sub.Err(); subErr != nil {
		result.Error = subErr.Error()
	}

	if es.committed {
		s.storeCommitted(detached, es, "submit")
	} else if err := s.store(detached, es); err != nil {
		return nil, err
	}
	view := es.view()
	view.Submission = result

	if sub.State() == itinerary.SubmissionFailed {
		s.logger.Warn().Err(sub.Err()).Str("booking_id", key.BookingID).Str("editor_id", key.EditorID).Msg("approval submission failed")
		return view, fmt.Errorf("%w: %w", ErrSubmissionFailed, sub.Err())
	}
	s.logger.Info().Str("booking_id", key.BookingID).Str("editor_id", key.EditorID).Str("request_id", es.requestID).Msg("itinerary submitted for approval")
	return view, nil
}

func (s *ItineraryService) mutate(ctx context.Context, key itinerary.SessionKey, op string, fn func(es *editSession) error) (*SessionView, error) {
	unlock := s.locks.Lock(key.String())
	defer unlock()

	es, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := fn(es); err != nil {
		metrics.IncSessionOp(op, err)
		s.logRejected(key, op, err)
		return nil, err
	}
	metrics.IncSessionOp(op, nil)

	if es.committed {
		s.storeCommitted(ctx, es, op)
		return es.view(), nil
	}
	if err := s.store(ctx, es); err != nil {
		return nil, err
	}
	return es.view(), nil
}

// logRejected reports bad day or activity references loudly; ordinary state
// refusals are only debug noise.
func (s *ItineraryService) logRejected(key itinerary.SessionKey, op string, err error) {
	event := s.logger.Debug()
	if errors.Is(err, itinerary.ErrUnknownDay) || errors.Is(err, itinerary.ErrActivityIndex) || errors.Is(err, models.ErrUnknownField) {
		event = s.logger.Warn()
	}
	event.Err(err).Str("op", op).Str("booking_id", key.BookingID).Str("editor_id", key.EditorID).Msg("session operation rejected")
}

func (s *ItineraryService) publish(eventType string, payload events.ItineraryEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func (s *ItineraryService) enqueueSync(ctx context.Context, taskType string, req *models.ApprovalRequest) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, req); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
