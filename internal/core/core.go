package core

import (
	"fmt"
	"time"
)

// Article represents a scraped news item as it moves through the pipeline.
// Scores are attached progressively by the filtering and ranking stages; use
// WithRelevance and WithComposite to derive a new value instead of mutating
// an item that another collection may still hold.
type Article struct {
	Title          string    `json:"title"`                     // Headline as published
	Summary        string    `json:"summary"`                   // Summary or excerpt (capped at scrape time)
	URL            string    `json:"url"`                       // Canonical article URL, unique per item
	PublishDate    time.Time `json:"publish_date"`              // Zero when the feed carried no usable date
	Source         string    `json:"source"`                    // Publisher name, e.g. "ESPN"
	Category       string    `json:"category"`                  // Configured category name
	ImageURL       string    `json:"image_url,omitempty"`       // Lead image, empty if none found
	RawContent     string    `json:"raw_content,omitempty"`     // Full extracted text if available
	RelevanceScore *float64  `json:"relevance_score,omitempty"` // Audience relevance (0.0-1.0), set by the quality filter
	CompositeScore *float64  `json:"composite_score,omitempty"` // Multi-factor score (0.0-1.0), set by ranking
}

// WithRelevance returns a copy of the article carrying the given relevance score.
func (a Article) WithRelevance(score float64) Article {
	s := Clamp01(score)
	a.RelevanceScore = &s
	return a
}

// WithComposite returns a copy of the article carrying the given composite score.
func (a Article) WithComposite(score float64) Article {
	s := Clamp01(score)
	a.CompositeScore = &s
	return a
}

// Relevance returns the relevance score or def when none has been assigned.
func (a Article) Relevance(def float64) float64 {
	if a.RelevanceScore == nil {
		return def
	}
	return *a.RelevanceScore
}

// Composite returns the composite score or def when none has been assigned.
func (a Article) Composite(def float64) float64 {
	if a.CompositeScore == nil {
		return def
	}
	return *a.CompositeScore
}

// RankedItem is an article selected for the weekly edition.
type RankedItem struct {
	Article         Article `json:"article"`
	Rank            int     `json:"rank"`             // Global position, 1-based and dense
	CategoryRank    int     `json:"category_rank"`    // Position within its category, 1-based
	ImportanceScore float64 `json:"importance_score"` // Composite score (0.0-1.0)
	SelectionReason string  `json:"selection_reason"` // Human readable explanation
}

// CategoryConfig describes a topical bucket and its scheduling policy.
type CategoryConfig struct {
	Name       string `json:"name" yaml:"name" mapstructure:"name"`
	Priority   int    `json:"priority" yaml:"priority" mapstructure:"priority"`          // Lower is scheduled first
	MinStories int    `json:"min_stories" yaml:"min_stories" mapstructure:"min_stories"` // Minimum picks for a balanced edition
}

// Source is a publisher feed configured for a category.
type Source struct {
	Name string `json:"name" yaml:"name" mapstructure:"name"`
	RSS  string `json:"rss,omitempty" yaml:"rss" mapstructure:"rss"`
	URL  string `json:"url,omitempty" yaml:"url" mapstructure:"url"`
}

// Week identifies a Monday-to-Friday publishing window.
type Week struct {
	ID    string    `json:"week_id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeekOf returns the publishing week containing t. The identifier follows the
// "%Y-W%W" convention (weeks start on Monday, week 00 precedes the first Monday).
func WeekOf(t time.Time) Week {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -offset)
	return Week{
		ID:    WeekID(start),
		Start: start,
		End:   start.AddDate(0, 0, 4),
	}
}

// WeekID formats t's week number with Monday as the first day of the week.
func WeekID(t time.Time) string {
	yday := t.YearDay() - 1
	wday := (int(t.Weekday()) + 6) % 7
	week := (yday + 7 - wday) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}

// Clamp01 bounds v to the closed interval [0, 1].
func Clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
