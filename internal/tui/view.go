package tui

import (
	"fmt"
	"strings"

	"druktour/internal/itinerary"
	"druktour/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD93D"))
	accentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#555555")).Padding(0, 1)
	dialogStyle   = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("#5B8DEF")).Padding(1, 2)
)

var badgeStyles = map[itinerary.Tone]lipgloss.Style{
	itinerary.ToneWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#F7B801")).Padding(0, 1),
	itinerary.ToneSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#4CAF50")).Padding(0, 1),
	itinerary.ToneDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#D64545")).Padding(0, 1),
}

func (m *Model) View() string {
	if m.itin == nil {
		if m.err != nil {
			return errorStyle.Render("Error: "+m.err.Error()) + "\n" + hintStyle.Render("q to quit")
		}
		return hintStyle.Render("Loading itinerary...")
	}

	var sb strings.Builder
	sb.WriteString(m.header())
	sb.WriteString("\n\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(28).Render(m.dayList()),
		paneStyle.Width(max(40, m.width-36)).Render(m.dayDetail()),
	)
	sb.WriteString(body)
	sb.WriteString("\n")

	switch m.screen {
	case screenInput:
		sb.WriteString("\n" + m.input.View() + "\n")
	case screenApproval:
		sb.WriteString("\n" + m.approvalDialog() + "\n")
	}

	sb.WriteString("\n" + m.statusLine() + "\n")
	sb.WriteString(hintStyle.Render(m.hints()))
	return sb.String()
}

func (m *Model) header() string {
	b := m.itin.Booking
	title := titleStyle.Render(fmt.Sprintf("%s · %s", b.TourName, b.LeadTraveler))
	meta := normalStyle.Render(fmt.Sprintf("  starts %s · version %d", b.StartDate.Format("2006-01-02"), m.itin.Version))

	badge := m.itin.Badge
	if m.session != nil {
		badge = m.session.Badge
	}
	line := title + meta
	if badge.Visible {
		style, ok := badgeStyles[badge.Tone]
		if !ok {
			style = normalStyle
		}
		line += "  " + style.Render(badge.Label)
	}
	if m.screen != screenView {
		mode := "EDITING"
		if m.session != nil && m.session.HasUnsavedChanges {
			mode += " *"
		}
		line += "  " + modifiedStyle.Render(mode)
	}
	return line
}

func (m *Model) isModified(dayID string) bool {
	if m.session == nil {
		return false
	}
	for _, id := range m.session.ModifiedDays {
		if id == dayID {
			return true
		}
	}
	return false
}

func (m *Model) dayList() string {
	var lines []string
	for i, d := range m.days() {
		label := fmt.Sprintf("Day %d  %s", d.DayNumber, d.Title)
		if m.isModified(d.ID) {
			label += " •"
		}
		if i == m.dayIdx {
			lines = append(lines, selectedStyle.Render("> "+label))
		} else {
			lines = append(lines, normalStyle.Render("  "+label))
		}
	}
	if len(lines) == 0 {
		return hintStyle.Render("No days")
	}
	return strings.Join(lines, "\n")
}

func (m *Model) dayDetail() string {
	day, ok := m.currentDay()
	if !ok {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(accentStyle.Render(fmt.Sprintf("Day %d: %s", day.DayNumber, day.Title)))
	sb.WriteString("\n")
	if day.Description != "" {
		sb.WriteString(day.Description + "\n")
	}

	sb.WriteString("\n" + titleStyle.Render("Activities") + "\n")
	if len(day.Activities) == 0 {
		sb.WriteString(hintStyle.Render("  none") + "\n")
	}
	for i, a := range day.Activities {
		if a == "" {
			a = "(empty)"
		}
		if m.screen != screenView && i == m.actIdx {
			sb.WriteString(selectedStyle.Render(fmt.Sprintf("> %d. %s", i+1, a)) + "\n")
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, a))
		}
	}

	sb.WriteString(field("Accommodation", day.Accommodation))
	sb.WriteString(field("Meals", strings.Join(day.Meals, ", ")))
	sb.WriteString(field("Notes", day.Notes))
	return sb.String()
}

func field(label, value string) string {
	if value == "" {
		value = hintStyle.Render("-")
	}
	return fmt.Sprintf("\n%s %s", titleStyle.Render(label+":"), value)
}

func (m *Model) approvalDialog() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Submit for approval") + "\n\n")
	sb.WriteString(m.summary.View())
	if m.submitting {
		sb.WriteString("\n\n" + m.spinner.View() + " Sending to reviewers...")
	}
	return dialogStyle.Render(sb.String())
}

func (m *Model) statusLine() string {
	if m.err != nil {
		return errorStyle.Render("Error: " + m.err.Error())
	}
	if m.status != "" {
		return accentStyle.Render(m.status)
	}
	return ""
}

func (m *Model) hints() string {
	switch m.screen {
	case screenEdit:
		return "↑/↓ day · ←/→ activity · t title · d description · o accommodation · n notes · a add · e edit · x remove · s save · p submit · esc cancel"
	case screenInput:
		return "enter apply · esc discard"
	case screenApproval:
		return "ctrl+s submit · esc back to editing"
	}
	hint := "↑/↓ day · r reload · q quit"
	if m.itin != nil && m.itin.CanEdit {
		hint = "c customize · " + hint
	}
	return hint
}

// Summary is what the program prints after it exits.
func (m *Model) Summary() string {
	if m.itin == nil {
		return ""
	}
	status := m.itin.Badge.Label
	if status == "" {
		status = string(models.ApprovalNone)
	}
	return fmt.Sprintf("booking %s at version %d (%s)", m.key.BookingID, m.itin.Version, status)
}
