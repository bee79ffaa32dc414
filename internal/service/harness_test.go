package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"druktour/internal/database"
	"druktour/internal/events"
	"druktour/internal/itinerary"
	"druktour/internal/models"
	"druktour/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var (
	tourist = models.Actor{ID: "alice", Role: models.RoleTourist}
	manager = models.Actor{ID: "karma", Role: models.RoleTourManager}
	guide   = models.Actor{ID: "pema", Role: models.RoleGuide}
)

// flakyRepo fails the next failSubmits approval submissions.
type flakyRepo struct {
	*database.DB
	mu          sync.Mutex
	failSubmits int
}

func (r *flakyRepo) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	r.mu.Lock()
	fail := r.failSubmits > 0
	if fail {
		r.failSubmits--
	}
	r.mu.Unlock()
	if fail {
		return errors.New("booking backend unavailable")
	}
	return r.DB.CreateApprovalRequest(ctx, req)
}

// flakySessions fails the next failSaves session writes and failDeletes
// session deletes.
type flakySessions struct {
	*repository.MemoryStateRepository
	mu          sync.Mutex
	failSaves   int
	failDeletes int
}

func (f *flakySessions) take(n *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *n > 0 {
		*n--
		return true
	}
	return false
}

func (f *flakySessions) SaveSession(ctx context.Context, rec *itinerary.Record) error {
	if f.take(&f.failSaves) {
		return errors.New("redis down")
	}
	return f.MemoryStateRepository.SaveSession(ctx, rec)
}

func (f *flakySessions) DeleteSession(ctx context.Context, key itinerary.SessionKey) error {
	if f.take(&f.failDeletes) {
		return errors.New("redis down")
	}
	return f.MemoryStateRepository.DeleteSession(ctx, key)
}

func (f *flakySessions) failNext(saves, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSaves, f.failDeletes = saves, deletes
}

type recordingSync struct {
	mu    sync.Mutex
	tasks []string
}

func (r *recordingSync) EnqueueTask(_ context.Context, taskType string, req *models.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, taskType+":"+req.ID)
	return nil
}

func (r *recordingSync) Tasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tasks...)
}

type harness struct {
	repo     *flakyRepo
	sessions *flakySessions
	bus      *events.EventBus
	sync     *recordingSync
	svc      *ItineraryService
	review   *ReviewService
	bookings *BookingService

	mu     sync.Mutex
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{
		repo:     &flakyRepo{DB: db},
		sessions: &flakySessions{MemoryStateRepository: repository.NewMemoryStateRepository(time.Hour, time.Hour)},
		bus:      events.NewEventBus(),
		sync:     &recordingSync{},
	}
	for _, et := range []string{events.EventItinerarySaved, events.EventItinerarySubmitted, events.EventItineraryApproved, events.EventItineraryRejected} {
		h.bus.Subscribe(et, func(e *events.Event) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.events = append(h.events, *e)
			return nil
		})
	}
	h.svc = NewItineraryService(h.repo, h.sessions, h.bus, h.sync, 5*time.Second, &logger)
	h.review = NewReviewService(h.repo, h.bus, h.sync, &logger)
	h.bookings = NewBookingService(h.repo, &logger)

	require.NoError(t, h.bookings.ImportBooking(context.Background(), &models.TourBooking{
		ID:           "BK-1",
		TourName:     "Western Bhutan Explorer",
		LeadTraveler: "Sonam Choden",
		StartDate:    time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
	}, sampleDays()))
	return h
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func (h *harness) lastEvent(t *testing.T) events.ItineraryEventPayload {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.events)
	var p events.ItineraryEventPayload
	require.NoError(t, h.events[len(h.events)-1].Decode(&p))
	return p
}

func sampleDays() []models.ItineraryDay {
	return []models.ItineraryDay{
		{ID: "d1", DayNumber: 1, Title: "Arrival in Paro", Activities: []string{"Airport pickup"}, Meals: []string{"Dinner"}},
		{ID: "d2", DayNumber: 2, Title: "Temple Visit", Activities: []string{"Tiger's Nest hike"}, Meals: []string{"Breakfast"}},
		{ID: "d3", DayNumber: 3, Title: "Thimphu", Activities: []string{}, Meals: []string{"Breakfast"}},
	}
}
