// Package tui is the terminal review screen for a consolidated week.
package tui

import (
	"fmt"
	"strings"

	"genzweekly/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Decision is what the editor chose on the review screen.
type Decision int

const (
	Undecided Decision = iota
	Approve
	Reject
)

// Model holds the state of the review screen.
type Model struct {
	week        store.ProcessedWeek
	selectedIdx int
	width       int
	height      int
	decision    Decision
	quitting    bool
}

// NewModel returns a review screen for week.
func NewModel(week store.ProcessedWeek) Model {
	return Model{week: week, width: 100}
}

// Decision returns the editor's choice once the program has exited.
func (m Model) Decision() Decision {
	return m.decision
}

// Selected returns the index of the highlighted story.
func (m Model) Selected() int {
	return m.selectedIdx
}

// Init is the first command that will be run. We don't need any for now.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model accordingly.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "a":
			m.decision = Approve
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.decision = Reject
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
			}
		case "down", "j":
			if m.selectedIdx < len(m.week.Stories)-1 {
				m.selectedIdx++
			}
		}
	}

	return m, nil
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6366F1"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EC4899"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	paneWidth := m.width/2 - 5
	if paneWidth < 20 {
		paneWidth = 20
	}
	docStyle := lipgloss.NewStyle().Margin(1, 2)
	listStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)
	detailStyle := lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(1).Width(paneWidth)

	header := titleStyle.Render(fmt.Sprintf("Week %s", m.week.Week.ID)) + "  " +
		mutedStyle.Render(fmt.Sprintf("%d stories · confidence %.2f · %s", len(m.week.Stories), m.week.Confidence, m.week.Status))

	var list strings.Builder
	if len(m.week.Stories) == 0 {
		list.WriteString("No stories selected.")
	}
	for i, story := range m.week.Stories {
		line := fmt.Sprintf("%2d. %s", story.Rank, story.Article.Title)
		if i == m.selectedIdx {
			list.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			list.WriteString("  " + line + "\n")
		}
	}

	detail := "Nothing to display."
	if m.selectedIdx < len(m.week.Stories) {
		story := m.week.Stories[m.selectedIdx]
		detail = fmt.Sprintf("%s\n%s\n\n%s\n\n%s",
			titleStyle.Render(story.Article.Title),
			mutedStyle.Render(fmt.Sprintf("%s · %s · score %.2f", story.Article.Category, story.Article.Source, story.ImportanceScore)),
			story.Article.Summary,
			mutedStyle.Render(story.Article.URL))
		if story.SelectionReason != "" {
			detail += "\n\n" + mutedStyle.Render(story.SelectionReason)
		}
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, listStyle.Render(list.String()), detailStyle.Render(detail))
	help := mutedStyle.Render("[↑/k] Up | [↓/j] Down | [a] Approve | [r] Reject | [q] Quit")

	return docStyle.Render(header + "\n\n" + main + "\n\n" + help)
}

// Run shows the review screen and returns the editor's decision.
func Run(week store.ProcessedWeek) (Decision, error) {
	final, err := tea.NewProgram(NewModel(week), tea.WithAltScreen()).Run()
	if err != nil {
		return Undecided, fmt.Errorf("error running review screen: %w", err)
	}
	return final.(Model).Decision(), nil
}
