package relevance

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"genzweekly/internal/core"
)

var fixedNow = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

func fixedScorer() *CompositeScorer {
	return &CompositeScorer{Now: func() time.Time { return fixedNow }}
}

func daysAgo(d float64) time.Time {
	return fixedNow.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func TestCompositeScore(t *testing.T) {
	long := strings.Repeat("x", 301)
	tests := []struct {
		name    string
		article core.Article
		want    float64
	}{
		{
			name:    "fresh credible deep",
			article: core.Article{Source: "Reuters", Summary: long, PublishDate: daysAgo(0.5)}.WithRelevance(1),
			want:    0.5 + 0.3 + 0.1 + 0.1,
		},
		{
			name:    "missing relevance defaults to half",
			article: core.Article{Source: "Some Blog", PublishDate: daysAgo(2)},
			want:    0.25 + 0.2 + 0.05 + 0.05,
		},
		{
			name:    "week old",
			article: core.Article{Source: "ESPN", PublishDate: daysAgo(6)}.WithRelevance(0.8),
			want:    0.4 + 0.1 + 0.1 + 0.05,
		},
		{
			name:    "stale",
			article: core.Article{PublishDate: daysAgo(30)}.WithRelevance(0),
			want:    0.1,
		},
		{
			name:    "missing date",
			article: core.Article{Summary: long}.WithRelevance(0.6),
			want:    0.3 + 0.05 + 0.1,
		},
		{
			name:    "exactly 300 chars is shallow",
			article: core.Article{Summary: strings.Repeat("y", 300)}.WithRelevance(0),
			want:    0.1,
		},
		{
			name:    "source match is exact",
			article: core.Article{Source: "reuters"}.WithRelevance(0),
			want:    0.1,
		},
	}

	scorer := fixedScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.article)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCompositeScoreBounded(t *testing.T) {
	scorer := fixedScorer()
	relevances := []float64{-3, 0, 0.5, 1, 7, math.Inf(1)}
	dates := []time.Time{{}, daysAgo(-2), daysAgo(0), daysAgo(3), daysAgo(400)}
	sources := []string{"", "BBC", "unknown"}
	summaries := []string{"", strings.Repeat("z", 1000)}

	for _, r := range relevances {
		for _, d := range dates {
			for _, src := range sources {
				for _, sum := range summaries {
					a := core.Article{Source: src, Summary: sum, PublishDate: d}
					rel := r
					a.RelevanceScore = &rel
					got := scorer.Score(a)
					if got < 0 || got > 1 {
						t.Fatalf("Expected score in [0,1], got %f for relevance=%f date=%v", got, r, d)
					}
				}
			}
		}
	}
}

func TestSelectionReason(t *testing.T) {
	tests := []struct {
		name    string
		article core.Article
		rank    int
		want    string
	}{
		{
			name:    "top story everything",
			article: core.Article{Source: "Reuters", PublishDate: daysAgo(0.2)}.WithRelevance(0.85),
			rank:    1,
			want:    "Top story in Tech, highly relevant, breaking news, from Reuters",
		},
		{
			name:    "second relevant recent",
			article: core.Article{Source: "Random Blog", PublishDate: daysAgo(1.5)}.WithRelevance(0.7),
			rank:    2,
			want:    "#2 in Tech, relevant, recent",
		},
		{
			name:    "placement only",
			article: core.Article{PublishDate: daysAgo(5)}.WithRelevance(0.4),
			rank:    3,
			want:    "#3 in Tech",
		},
		{
			name:    "no score no date",
			article: core.Article{Source: "The Verge"},
			rank:    1,
			want:    "Top story in Tech, from The Verge",
		},
	}

	scorer := fixedScorer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.SelectionReason(tt.article, tt.rank, "Tech")
			if got != tt.want {
				t.Errorf("SelectionReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCredibleSource(t *testing.T) {
	for _, src := range []string{"Reuters", "AP News", "BBC", "ESPN", "TechCrunch", "Bloomberg", "The Verge", "MIT Technology Review AI"} {
		if !IsCredibleSource(src) {
			t.Errorf("Expected %q to be credible", src)
		}
	}
	for _, src := range []string{"", "BBC News", "Daily Rumor"} {
		if IsCredibleSource(src) {
			t.Errorf("Expected %q not to be credible", src)
		}
	}
}

func TestKeywordAssessor(t *testing.T) {
	a := NewKeywordAssessor()
	ctx := context.Background()

	hit, err := a.AssessRelevance(ctx, core.Article{
		Title:   "Student loan relief hits TikTok creators",
		Summary: "College students and creators react to new student loan rules.",
	})
	if err != nil {
		t.Fatalf("AssessRelevance failed: %v", err)
	}
	miss, err := a.AssessRelevance(ctx, core.Article{
		Title:   "Municipal bond yields steady",
		Summary: "Treasury markets were flat in overnight trading.",
	})
	if err != nil {
		t.Fatalf("AssessRelevance failed: %v", err)
	}

	if hit <= miss {
		t.Errorf("Expected matching article to outscore non-matching one, got %f <= %f", hit, miss)
	}
	if hit < 0 || hit > 1 || miss < 0 || miss > 1 {
		t.Errorf("Expected scores in [0,1], got %f and %f", hit, miss)
	}
	if miss != 0.2 {
		t.Errorf("Expected baseline 0.2 without matches, got %f", miss)
	}
}

func TestKeywordAssessorWordBoundaries(t *testing.T) {
	a := &KeywordAssessor{Keywords: []string{"ai"}}
	got, err := a.AssessRelevance(context.Background(), core.Article{Title: "Said the captain", Summary: "Rain again"})
	if err != nil {
		t.Fatalf("AssessRelevance failed: %v", err)
	}
	if got != 0.2 {
		t.Errorf("Expected no partial-word match, got %f", got)
	}
}

func TestKeywordAssessorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewKeywordAssessor().AssessRelevance(ctx, core.Article{}); err == nil {
		t.Error("Expected error on cancelled context")
	}
}
