package service

import (
	"context"
	"sync"
	"testing"

	"druktour/internal/database"
	"druktour/internal/events"
	"druktour/internal/itinerary"
	"druktour/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyFor(a models.Actor) itinerary.SessionKey {
	return itinerary.SessionKey{BookingID: "BK-1", EditorID: a.ID}
}

func TestStartSession_RequiresEditPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "BK-1", guide)
	assert.ErrorIs(t, err, itinerary.ErrEditNotPermitted)

	_, err = h.svc.GetSession(ctx, keyFor(guide))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartSession_UnknownBooking(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), "BK-404", tourist)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestStartSession_EntersEditMode(t *testing.T) {
	h := newHarness(t)
	view, err := h.svc.StartSession(context.Background(), "BK-1", tourist)
	require.NoError(t, err)

	assert.Equal(t, itinerary.PhaseEditing, view.Phase)
	assert.Len(t, view.Days, 3)
	assert.Empty(t, view.ModifiedDays)
	assert.False(t, view.HasUnsavedChanges)
	assert.False(t, view.Actions.Save)
	assert.False(t, view.Actions.Submit)
	assert.True(t, view.Actions.Cancel)
	assert.Equal(t, int64(1), view.BaseVersion)
	assert.False(t, view.Badge.Visible)
}

func TestStartSession_KeepsExistingWorkingCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, keyFor(tourist), "d1", "notes", "Window seat")
	require.NoError(t, err)

	view, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	assert.Equal(t, "Window seat", view.Days[0].Notes)
	assert.Equal(t, []string{"d1"}, view.ModifiedDays)
}

func TestSessionEdits_PersistAcrossCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)

	_, err = h.svc.UpdateDayField(ctx, key, "d2", "notes", "Start early")
	require.NoError(t, err)
	view, idx, err := h.svc.AddActivity(ctx, key, "d3")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{""}, view.Days[2].Activities)

	_, err = h.svc.UpdateActivity(ctx, key, "d3", 0, "Buddha Dordenma")
	require.NoError(t, err)

	view, err = h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"d2", "d3"}, view.ModifiedDays)
	assert.True(t, view.HasUnsavedChanges)
	assert.Equal(t, "Day 2: Modified Temple Visit; Day 3: Modified Thimphu", view.DefaultSummary)
	assert.Equal(t, []string{"Buddha Dordenma"}, view.Days[2].Activities)

	view, err = h.svc.RemoveActivity(ctx, key, "d3", 0)
	require.NoError(t, err)
	assert.Empty(t, view.Days[2].Activities)
	assert.Contains(t, view.ModifiedDays, "d3")
}

func TestSessionEdits_InvalidReferencesLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)

	_, err = h.svc.UpdateDayField(ctx, key, "d9", "title", "x")
	assert.ErrorIs(t, err, itinerary.ErrUnknownDay)
	_, err = h.svc.UpdateActivity(ctx, key, "d2", 5, "x")
	assert.ErrorIs(t, err, itinerary.ErrActivityIndex)
	_, err = h.svc.UpdateDayField(ctx, key, "d2", "meals", "x")
	assert.ErrorIs(t, err, itinerary.ErrReadOnlyField)
	_, err = h.svc.UpdateDayField(ctx, key, "d2", "day_number", "4")
	assert.ErrorIs(t, err, models.ErrUnknownField)

	view, err := h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, view.ModifiedDays)
	assert.False(t, view.HasUnsavedChanges)
}

func TestSave_PersistsAndKeepsEditing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)

	_, err = h.svc.Save(ctx, key)
	assert.ErrorIs(t, err, itinerary.ErrNoChanges)

	_, err = h.svc.UpdateDayField(ctx, key, "d2", "title", "Taktsang Monastery")
	require.NoError(t, err)

	view, err := h.svc.Save(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, itinerary.PhaseEditing, view.Phase)
	assert.False(t, view.HasUnsavedChanges)
	assert.Empty(t, view.ModifiedDays)
	assert.Equal(t, int64(2), view.BaseVersion)

	itin, err := h.repo.GetItinerary(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), itin.Version)
	assert.Equal(t, "Taktsang Monastery", itin.Days[1].Title)
	assert.Equal(t, models.ApprovalNone, itin.ApprovalStatus)

	changes, err := h.bookings.ListChanges(ctx, "BK-1")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "Day 2: Modified Taktsang Monastery", changes[0].Summary)
	assert.Equal(t, "alice", changes[0].EditorID)

	assert.Equal(t, []string{events.EventItinerarySaved}, h.eventTypes())
	assert.Equal(t, 1, h.lastEvent(t).DaysChanged)
}

func TestSave_StaleBaseVersionConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := models.Actor{ID: "bob", Role: models.RoleTourist}

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.StartSession(ctx, "BK-1", bob)
	require.NoError(t, err)

	_, err = h.svc.UpdateDayField(ctx, keyFor(tourist), "d1", "notes", "alice")
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, keyFor(bob), "d1", "notes", "bob")
	require.NoError(t, err)

	_, err = h.svc.Save(ctx, keyFor(tourist))
	require.NoError(t, err)

	_, err = h.svc.Save(ctx, keyFor(bob))
	assert.ErrorIs(t, err, database.ErrConcurrentModification)

	view, err := h.svc.GetSession(ctx, keyFor(bob))
	require.NoError(t, err)
	assert.True(t, view.HasUnsavedChanges, "failed save keeps the changes")
}

func TestSubmit_UsesEditedSummaryAndEndsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d2", "notes", "Need a slower pace")
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, key)
	assert.ErrorIs(t, err, itinerary.ErrInvalidTransition, "submit needs the dialog")

	view, err := h.svc.OpenApproval(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, itinerary.PhaseReviewing, view.Phase)
	assert.Equal(t, "Day 2: Modified Temple Visit", view.Summary)

	_, err = h.svc.UpdateDayField(ctx, key, "d1", "notes", "x")
	assert.ErrorIs(t, err, itinerary.ErrInvalidTransition, "dialog blocks edits")

	_, err = h.svc.SetSummary(ctx, key, "Please slow down day 2")
	require.NoError(t, err)

	view, err = h.svc.Submit(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, view.Submission)
	assert.Equal(t, "succeeded", view.Submission.State)
	assert.Equal(t, "Please slow down day 2", view.Submission.Summary)
	assert.NotEmpty(t, view.Submission.RequestID)
	assert.Equal(t, itinerary.PhaseViewing, view.Phase)
	assert.Equal(t, models.ApprovalPending, view.Status)
	assert.Equal(t, "Pending Approval", view.Badge.Label)
	assert.False(t, view.HasUnsavedChanges)

	_, err = h.svc.GetSession(ctx, key)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	req, err := h.review.GetRequest(ctx, view.Submission.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "Please slow down day 2", req.Summary)
	assert.Equal(t, "Need a slower pace", req.Days[1].Notes)
	assert.Equal(t, "alice", req.SubmittedBy)

	assert.Equal(t, []string{models.TaskUpsertApproval + ":" + req.ID}, h.sync.Tasks())
	assert.Equal(t, []string{events.EventItinerarySubmitted}, h.eventTypes())
	payload := h.lastEvent(t)
	assert.Equal(t, "Western Bhutan Explorer", payload.TourName)
	assert.Equal(t, req.ID, payload.RequestID)
}

func TestSubmit_BlankSummaryFallsBackToDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d3", "accommodation", "Hotel Druk")
	require.NoError(t, err)
	_, err = h.svc.OpenApproval(ctx, key)
	require.NoError(t, err)
	_, err = h.svc.SetSummary(ctx, key, "   ")
	require.NoError(t, err)

	view, err := h.svc.Submit(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Day 3: Modified Thimphu", view.Submission.Summary)
}

func TestSubmit_FailureKeepsDialogAndRetrySucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)
	h.repo.failSubmits = 1

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d1", "title", "Paro Arrival")
	require.NoError(t, err)
	_, err = h.svc.OpenApproval(ctx, key)
	require.NoError(t, err)

	view, err := h.svc.Submit(ctx, key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailed)
	require.NotNil(t, view)
	assert.Equal(t, "failed", view.Submission.State)
	assert.Equal(t, itinerary.PhaseReviewing, view.Phase)
	assert.Contains(t, view.LastError, "booking backend unavailable")
	assert.True(t, view.HasUnsavedChanges)
	assert.True(t, view.Actions.Confirm)

	stored, err := h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, itinerary.PhaseReviewing, stored.Phase)
	assert.Equal(t, models.ApprovalNone, stored.Status)

	view, err = h.svc.Submit(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", view.Submission.State)
	assert.Empty(t, view.LastError)
}

func TestCancelSession_DiscardsWithoutSaving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d1", "title", "Changed")
	require.NoError(t, err)

	view, err := h.svc.CancelSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, itinerary.PhaseViewing, view.Phase)
	assert.Equal(t, "Arrival in Paro", view.Days[0].Title)
	assert.False(t, view.HasUnsavedChanges)

	_, err = h.svc.GetSession(ctx, key)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	itin, err := h.repo.GetItinerary(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), itin.Version)
	assert.Empty(t, h.eventTypes())
}

func TestSessionEdits_SerializedPerSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := h.svc.AddActivity(ctx, key, "d3")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Len(t, view.Days[2].Activities, n)
	assert.Equal(t, 0, h.svc.locks.size())
}

func TestGetSession_RefreshesApprovalStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bob := models.Actor{ID: "bob", Role: models.RoleTourist}

	_, err := h.svc.StartSession(ctx, "BK-1", bob)
	require.NoError(t, err)

	_, err = h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, keyFor(tourist), "d1", "notes", "x")
	require.NoError(t, err)
	_, err = h.svc.OpenApproval(ctx, keyFor(tourist))
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, keyFor(tourist))
	require.NoError(t, err)

	view, err := h.svc.GetSession(ctx, keyFor(bob))
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, view.Status)
	assert.Equal(t, itinerary.ToneWarning, view.Badge.Tone)
}

func TestSave_SessionWriteFailureAfterCommitIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d1", "notes", "veg")
	require.NoError(t, err)

	h.sessions.failNext(1, 0)
	view, err := h.svc.Save(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.BaseVersion)

	view, err = h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.BaseVersion)
	assert.False(t, view.HasUnsavedChanges)

	_, err = h.svc.UpdateDayField(ctx, key, "d2", "notes", "early start")
	require.NoError(t, err)
	view, err = h.svc.Save(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.BaseVersion)
}

func TestSave_AdoptsStoredVersionWhenSessionWriteWasLost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d1", "notes", "veg")
	require.NoError(t, err)

	h.sessions.failNext(commitStoreAttempts, 0)
	view, err := h.svc.Save(ctx, key)
	require.NoError(t, err, "the itinerary was saved even though the session was not")
	assert.Equal(t, int64(2), view.BaseVersion)

	stale, err := h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stale.BaseVersion)
	assert.True(t, stale.HasUnsavedChanges)

	view, err = h.svc.Save(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), view.BaseVersion)
	assert.False(t, view.HasUnsavedChanges)

	itin, err := h.repo.GetItinerary(ctx, "BK-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), itin.Version)
	assert.Equal(t, "veg", itin.Days[0].Notes)
	changes, err := h.bookings.ListChanges(ctx, "BK-1")
	require.NoError(t, err)
	assert.Len(t, changes, 1)

	_, err = h.svc.UpdateDayField(ctx, key, "d3", "accommodation", "Hotel Druk")
	require.NoError(t, err)
	view, err = h.svc.Save(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.BaseVersion)
}

func TestSubmit_SessionDeleteFailureStillReportsSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d2", "notes", "slower pace")
	require.NoError(t, err)
	_, err = h.svc.OpenApproval(ctx, key)
	require.NoError(t, err)

	h.sessions.failNext(0, 1)
	view, err := h.svc.Submit(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, view.Submission)
	assert.Equal(t, "succeeded", view.Submission.State)
	assert.Equal(t, itinerary.PhaseViewing, view.Phase)

	_, err = h.svc.GetSession(ctx, key)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	reqs, err := h.repo.ListApprovalRequests(ctx, "BK-1")
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestSubmit_ResubmitAfterLostDeleteReusesPendingRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := keyFor(tourist)

	_, err := h.svc.StartSession(ctx, "BK-1", tourist)
	require.NoError(t, err)
	_, err = h.svc.UpdateDayField(ctx, key, "d2", "notes", "slower pace")
	require.NoError(t, err)
	_, err = h.svc.OpenApproval(ctx, key)
	require.NoError(t, err)

	h.sessions.failNext(0, commitStoreAttempts)
	first, err := h.svc.Submit(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, first.Submission)

	stale, err := h.svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, itinerary.PhaseReviewing, stale.Phase)

	second, err := h.svc.Submit(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, second.Submission)
	assert.Equal(t, first.Submission.RequestID, second.Submission.RequestID)

	reqs, err := h.repo.ListApprovalRequests(ctx, "BK-1")
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
	assert.Len(t, h.sync.Tasks(), 1)
	assert.Equal(t, []string{events.EventItinerarySubmitted}, h.eventTypes())

	_, err = h.svc.GetSession(ctx, key)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
