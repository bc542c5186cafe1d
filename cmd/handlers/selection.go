package handlers

import (
	"fmt"
	"sort"
	"strings"

	"genzweekly/internal/config"
	"genzweekly/internal/core"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6366F1"))
	rankStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EC4899"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

type storyLine struct {
	Rank     int
	Title    string
	Category string
	Source   string
	Score    float64
}

func storyLines(items []core.RankedItem) []storyLine {
	lines := make([]storyLine, len(items))
	for i, item := range items {
		lines[i] = storyLine{
			Rank:     item.Rank,
			Title:    item.Article.Title,
			Category: item.Article.Category,
			Source:   item.Article.Source,
			Score:    item.ImportanceScore,
		}
	}
	return lines
}

// renderSelection prints a week's ranked stories grouped under a header.
func renderSelection(weekID, status string, confidence float64, lines []storyLine) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Week %s", weekID)))
	b.WriteString(" ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("(%s, confidence %.2f)", status, confidence)))
	b.WriteString("\n\n")

	if len(lines) == 0 {
		b.WriteString("No stories selected.\n")
		return b.String()
	}
	for _, line := range lines {
		b.WriteString(rankStyle.Render(fmt.Sprintf("%2d.", line.Rank)))
		b.WriteString(" " + line.Title + "\n")
		b.WriteString("    " + dimStyle.Render(fmt.Sprintf("%s · %s · %.2f", line.Category, line.Source, line.Score)) + "\n")
	}
	return b.String()
}

// NewSourcesCmd creates the command listing categories and their sources
func NewSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured categories and their sources",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Get()
			fmt.Print(renderSources(cfg.Categories, cfg.SourcesFor))
		},
	}
}

func renderSources(categories []core.CategoryConfig, sourcesFor func(string) []core.Source) string {
	sorted := append([]core.CategoryConfig(nil), categories...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var b strings.Builder
	for _, category := range sorted {
		b.WriteString(headerStyle.Render(category.Name))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" priority %d, min %d", category.Priority, category.MinStories)))
		b.WriteString("\n")

		sources := sourcesFor(category.Name)
		if len(sources) == 0 {
			b.WriteString("   (no sources)\n")
		}
		for _, source := range sources {
			feed := source.RSS
			if feed == "" {
				feed = source.URL
			}
			b.WriteString(fmt.Sprintf("   %-24s %s\n", source.Name, dimStyle.Render(feed)))
		}
	}
	return b.String()
}
