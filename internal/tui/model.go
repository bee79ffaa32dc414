// Package tui is a terminal front end for the itinerary editor. It drives the
// same ItineraryService as the HTTP API, so every edit goes through the
// workflow and the session store.
package tui

import (
	"context"

	"druktour/internal/itinerary"
	"druktour/internal/models"
	"druktour/internal/service"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Editor is the slice of *service.ItineraryService the terminal editor uses.
type Editor interface {
	StartSession(ctx context.Context, bookingID string, editor models.Actor) (*service.SessionView, error)
	CancelSession(ctx context.Context, key itinerary.SessionKey) (*service.SessionView, error)
	UpdateDayField(ctx context.Context, key itinerary.SessionKey, dayID, field, value string) (*service.SessionView, error)
	AddActivity(ctx context.Context, key itinerary.SessionKey, dayID string) (*service.SessionView, int, error)
	UpdateActivity(ctx context.Context, key itinerary.SessionKey, dayID string, index int, value string) (*service.SessionView, error)
	RemoveActivity(ctx context.Context, key itinerary.SessionKey, dayID string, index int) (*service.SessionView, error)
	Save(ctx context.Context, key itinerary.SessionKey) (*service.SessionView, error)
	OpenApproval(ctx context.Context, key itinerary.SessionKey) (*service.SessionView, error)
	SetSummary(ctx context.Context, key itinerary.SessionKey, text string) (*service.SessionView, error)
	CloseApproval(ctx context.Context, key itinerary.SessionKey) (*service.SessionView, error)
	Submit(ctx context.Context, key itinerary.SessionKey) (*service.SessionView, error)
}

// Viewer loads the stored itinerary shown outside edit mode.
type Viewer interface {
	GetItinerary(ctx context.Context, bookingID string, actor models.Actor) (*service.ItineraryView, error)
}

type screen int

const (
	screenView     screen = iota // stored itinerary, read only
	screenEdit                   // working copy
	screenInput                  // single-line field or activity editor
	screenApproval               // approval dialog with summary
)

type inputKind int

const (
	inputField inputKind = iota
	inputActivity
)

type inputTarget struct {
	kind  inputKind
	field models.DayField
	index int
}

// Model is the bubbletea model for one booking and one editor.
type Model struct {
	ctx    context.Context
	editor Editor
	viewer Viewer
	actor  models.Actor
	key    itinerary.SessionKey

	screen  screen
	itin    *service.ItineraryView
	session *service.SessionView

	dayIdx int
	actIdx int

	input   textinput.Model
	target  inputTarget
	summary textarea.Model
	spinner spinner.Model

	submitting bool
	status     string
	err        error

	width  int
	height int
}

func New(ctx context.Context, editor Editor, viewer Viewer, bookingID string, actor models.Actor) *Model {
	in := textinput.New()
	in.CharLimit = 500
	in.Width = 60

	ta := textarea.New()
	ta.Placeholder = "Describe the change for the reviewer"
	ta.SetWidth(60)
	ta.SetHeight(5)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = accentStyle

	return &Model{
		ctx:     ctx,
		editor:  editor,
		viewer:  viewer,
		actor:   actor,
		key:     itinerary.SessionKey{BookingID: bookingID, EditorID: actor.ID},
		screen:  screenView,
		input:   in,
		summary: ta,
		spinner: sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return m.loadItinerary()
}

// days returns what the current screen displays.
func (m *Model) days() []models.ItineraryDay {
	if m.session != nil && m.screen != screenView {
		return m.session.Days
	}
	if m.itin != nil {
		return m.itin.Days
	}
	return nil
}

func (m *Model) currentDay() (models.ItineraryDay, bool) {
	days := m.days()
	if m.dayIdx < 0 || m.dayIdx >= len(days) {
		return models.ItineraryDay{}, false
	}
	return days[m.dayIdx], true
}

// clampCursors keeps the day and activity cursors inside the displayed data.
func (m *Model) clampCursors() {
	days := m.days()
	if m.dayIdx >= len(days) {
		m.dayIdx = len(days) - 1
	}
	if m.dayIdx < 0 {
		m.dayIdx = 0
	}
	day, ok := m.currentDay()
	if !ok || len(day.Activities) == 0 {
		m.actIdx = 0
		return
	}
	if m.actIdx >= len(day.Activities) {
		m.actIdx = len(day.Activities) - 1
	}
	if m.actIdx < 0 {
		m.actIdx = 0
	}
}
