package tui

import (
	"errors"
	"fmt"
	"strings"

	"druktour/internal/itinerary"
	"druktour/internal/models"
	"druktour/internal/service"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type itineraryMsg struct {
	view *service.ItineraryView
	err  error
}

// sessionMsg carries the outcome of one session operation.
type sessionMsg struct {
	op    string
	view  *service.SessionView
	index int
	err   error
}

type submitMsg struct {
	view *service.SessionView
	err  error
}

func (m *Model) loadItinerary() tea.Cmd {
	return func() tea.Msg {
		view, err := m.viewer.GetItinerary(m.ctx, m.key.BookingID, m.actor)
		return itineraryMsg{view: view, err: err}
	}
}

func (m *Model) sessionCmd(op string, fn func() (*service.SessionView, error)) tea.Cmd {
	return func() tea.Msg {
		view, err := fn()
		return sessionMsg{op: op, view: view, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case itineraryMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.itin = msg.view
		m.clampCursors()
		return m, nil

	case sessionMsg:
		return m, m.applySession(msg)

	case submitMsg:
		m.submitting = false
		if msg.view != nil {
			m.session = msg.view
		}
		if msg.err != nil {
			m.err = msg.err
			if errors.Is(msg.err, service.ErrSubmissionFailed) {
				m.screen = screenApproval
				return m, m.summary.Focus()
			}
			return m, nil
		}
		m.err = nil
		m.status = "Submitted for approval"
		m.leaveEdit()
		return m, m.loadItinerary()

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenView:
			return m, m.handleViewKey(msg)
		case screenEdit:
			return m, m.handleEditKey(msg)
		case screenInput:
			return m, m.handleInputKey(msg)
		case screenApproval:
			return m, m.handleApprovalKey(msg)
		}
	}
	return m, nil
}

// applySession takes a finished session operation into the model.
func (m *Model) applySession(msg sessionMsg) tea.Cmd {
	if msg.err != nil {
		m.err = msg.err
		return nil
	}
	m.err = nil
	m.session = msg.view

	switch msg.op {
	case "customize":
		m.screen = screenEdit
		m.status = "Editing"
	case "cancel":
		m.status = "Changes discarded"
		m.leaveEdit()
		return m.loadItinerary()
	case "save":
		m.status = fmt.Sprintf("Saved as version %d", msg.view.BaseVersion)
		return m.loadItinerary()
	case "open_approval":
		m.screen = screenApproval
		m.summary.SetValue(msg.view.Summary)
		m.summary.CursorEnd()
		return m.summary.Focus()
	case "close_approval":
		m.screen = screenEdit
		m.summary.Blur()
	case "add_activity":
		m.actIdx = msg.index
		m.status = ""
		return m.beginInput(inputTarget{kind: inputActivity, index: msg.index}, "")
	default:
		m.status = ""
	}
	m.clampCursors()
	return nil
}

func (m *Model) leaveEdit() {
	m.screen = screenView
	m.session = nil
	m.summary.Blur()
	m.summary.Reset()
	m.input.Blur()
	m.clampCursors()
}

func (m *Model) moveDay(delta int) {
	m.dayIdx += delta
	m.actIdx = 0
	m.clampCursors()
}

func (m *Model) handleViewKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "esc":
		return tea.Quit
	case "up", "k":
		m.moveDay(-1)
	case "down", "j":
		m.moveDay(1)
	case "c":
		if m.itin != nil && !m.itin.CanEdit {
			m.err = itinerary.ErrEditNotPermitted
			return nil
		}
		return m.sessionCmd("customize", func() (*service.SessionView, error) {
			return m.editor.StartSession(m.ctx, m.key.BookingID, m.actor)
		})
	case "r":
		return m.loadItinerary()
	}
	return nil
}

func (m *Model) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	day, ok := m.currentDay()
	switch msg.String() {
	case "up", "k":
		m.moveDay(-1)
	case "down", "j":
		m.moveDay(1)
	case "left", "h":
		m.actIdx--
		m.clampCursors()
	case "right", "l":
		m.actIdx++
		m.clampCursors()
	case "t":
		if ok {
			return m.beginInput(inputTarget{kind: inputField, field: models.FieldTitle}, day.Title)
		}
	case "d":
		if ok {
			return m.beginInput(inputTarget{kind: inputField, field: models.FieldDescription}, day.Description)
		}
	case "n":
		if ok {
			return m.beginInput(inputTarget{kind: inputField, field: models.FieldNotes}, day.Notes)
		}
	case "o":
		if ok {
			return m.beginInput(inputTarget{kind: inputField, field: models.FieldAccommodation}, day.Accommodation)
		}
	case "a":
		if ok {
			return func() tea.Msg {
				view, index, err := m.editor.AddActivity(m.ctx, m.key, day.ID)
				return sessionMsg{op: "add_activity", view: view, index: index, err: err}
			}
		}
	case "e":
		if ok && len(day.Activities) > 0 {
			return m.beginInput(inputTarget{kind: inputActivity, index: m.actIdx}, day.Activities[m.actIdx])
		}
	case "x":
		if ok && len(day.Activities) > 0 {
			index := m.actIdx
			return m.sessionCmd("remove_activity", func() (*service.SessionView, error) {
				return m.editor.RemoveActivity(m.ctx, m.key, day.ID, index)
			})
		}
	case "s":
		return m.sessionCmd("save", func() (*service.SessionView, error) {
			return m.editor.Save(m.ctx, m.key)
		})
	case "p":
		return m.sessionCmd("open_approval", func() (*service.SessionView, error) {
			return m.editor.OpenApproval(m.ctx, m.key)
		})
	case "esc":
		return m.sessionCmd("cancel", func() (*service.SessionView, error) {
			return m.editor.CancelSession(m.ctx, m.key)
		})
	}
	return nil
}

func (m *Model) beginInput(target inputTarget, value string) tea.Cmd {
	m.target = target
	m.screen = screenInput
	m.input.SetValue(value)
	m.input.CursorEnd()
	switch target.kind {
	case inputActivity:
		m.input.Prompt = fmt.Sprintf("activity %d> ", target.index+1)
	default:
		m.input.Prompt = string(target.field) + "> "
	}
	return m.input.Focus()
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.input.Blur()
		m.screen = screenEdit
		return nil
	case tea.KeyEnter:
		m.input.Blur()
		m.screen = screenEdit
		day, ok := m.currentDay()
		if !ok {
			return nil
		}
		value := m.input.Value()
		target := m.target
		if target.kind == inputActivity {
			return m.sessionCmd("update_activity", func() (*service.SessionView, error) {
				return m.editor.UpdateActivity(m.ctx, m.key, day.ID, target.index, value)
			})
		}
		return m.sessionCmd("update_field", func() (*service.SessionView, error) {
			return m.editor.UpdateDayField(m.ctx, m.key, day.ID, string(target.field), value)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) handleApprovalKey(msg tea.KeyMsg) tea.Cmd {
	if m.submitting {
		return nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		return m.sessionCmd("close_approval", func() (*service.SessionView, error) {
			return m.editor.CloseApproval(m.ctx, m.key)
		})
	case tea.KeyCtrlS:
		text := m.summary.Value()
		m.submitting = true
		m.err = nil
		m.status = "Submitting..."
		submit := func() tea.Msg {
			if strings.TrimSpace(text) != "" {
				if _, err := m.editor.SetSummary(m.ctx, m.key, text); err != nil {
					return submitMsg{err: err}
				}
			}
			view, err := m.editor.Submit(m.ctx, m.key)
			return submitMsg{view: view, err: err}
		}
		return tea.Batch(m.spinner.Tick, submit)
	}
	var cmd tea.Cmd
	m.summary, cmd = m.summary.Update(msg)
	return cmd
}
