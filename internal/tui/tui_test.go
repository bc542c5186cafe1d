package tui

import (
	"strings"
	"testing"

	"genzweekly/internal/core"
	"genzweekly/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testWeek() store.ProcessedWeek {
	return store.ProcessedWeek{
		Week:   core.Week{ID: "2025-W24"},
		Status: store.StatusPending,
		Stories: []core.RankedItem{
			{Article: core.Article{Title: "Finals tonight", Category: "Sports"}, Rank: 1},
			{Article: core.Article{Title: "New phone drops", Category: "Technology"}, Rank: 2},
		},
	}
}

func TestNavigation(t *testing.T) {
	var m tea.Model = NewModel(testWeek())

	steps := []struct {
		key  string
		want int
	}{
		{"k", 0},
		{"j", 1},
		{"j", 1},
		{"k", 0},
	}
	for _, step := range steps {
		m, _ = m.Update(key(step.key))
		if got := m.(Model).Selected(); got != step.want {
			t.Fatalf("After %q expected selection %d, got %d", step.key, step.want, got)
		}
	}
}

func TestDecisions(t *testing.T) {
	tests := []struct {
		key  string
		want Decision
	}{
		{"a", Approve},
		{"r", Reject},
		{"q", Undecided},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, cmd := NewModel(testWeek()).Update(key(tt.key))
			if cmd == nil {
				t.Fatalf("Expected quit command")
			}
			if got := m.(Model).Decision(); got != tt.want {
				t.Errorf("Expected decision %d, got %d", tt.want, got)
			}
		})
	}
}

func TestView(t *testing.T) {
	m, _ := NewModel(testWeek()).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := m.View()

	for _, want := range []string{"Week 2025-W24", "Finals tonight", "New phone drops", "[a] Approve"} {
		if !strings.Contains(view, want) {
			t.Errorf("View should contain %q", want)
		}
	}
}
