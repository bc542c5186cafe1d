package ranking

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/relevance"
)

var now = time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC)

func scorer() *relevance.CompositeScorer {
	return &relevance.CompositeScorer{Now: func() time.Time { return now }}
}

var words = []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet"}

func story(category string, i int, rel float64) core.Article {
	return core.Article{
		Title:       fmt.Sprintf("%s headline %s", category, words[i]),
		Summary:     "A summary that is long enough to pass validation for the ranking tests.",
		URL:         fmt.Sprintf("https://example.com/%s/%d", category, i),
		Category:    category,
		Source:      "Example Wire",
		PublishDate: now.Add(-2 * time.Hour),
	}.WithRelevance(rel)
}

func sportsTech() []core.CategoryConfig {
	return []core.CategoryConfig{
		{Name: "Tech", Priority: 2, MinStories: 1},
		{Name: "Sports", Priority: 1, MinStories: 2},
	}
}

func assertDenseRanks(t *testing.T, items []core.RankedItem) {
	t.Helper()
	seen := make(map[int]bool)
	for _, item := range items {
		if item.Rank < 1 || item.Rank > len(items) || seen[item.Rank] {
			t.Fatalf("Expected dense ranks 1..%d, got duplicate or out-of-range %d", len(items), item.Rank)
		}
		seen[item.Rank] = true
	}
}

func TestActMinimumCoverage(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	pool := []core.Article{
		story("Sports", 0, 0.8), story("Sports", 1, 0.8), story("Sports", 2, 0.8),
		story("Tech", 0, 0.8), story("Tech", 1, 0.8),
	}

	out, err := p.Act(context.Background(), Reflection{Pool: pool})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}

	sel := out.Selection
	if len(sel) != 3 {
		t.Fatalf("Expected 3 ranked items, got %d", len(sel))
	}
	counts := map[string]int{}
	for _, item := range sel {
		counts[item.Article.Category]++
	}
	if counts["Sports"] != 2 || counts["Tech"] != 1 {
		t.Errorf("Expected 2 Sports and 1 Tech, got %v", counts)
	}
	// Equal scores keep category priority order.
	if sel[0].Article.Category != "Sports" || sel[1].Article.Category != "Sports" || sel[2].Article.Category != "Tech" {
		t.Errorf("Expected Sports before Tech on ties, got %s, %s, %s",
			sel[0].Article.Category, sel[1].Article.Category, sel[2].Article.Category)
	}
	assertDenseRanks(t, sel)
	if sel[0].CategoryRank != 1 || sel[1].CategoryRank != 2 || sel[2].CategoryRank != 1 {
		t.Errorf("Unexpected category ranks: %d, %d, %d", sel[0].CategoryRank, sel[1].CategoryRank, sel[2].CategoryRank)
	}
	if len(out.Articles) != len(pool) {
		t.Errorf("Expected the pool to be carried forward, got %d articles", len(out.Articles))
	}
}

func TestActScoreOverridesPriority(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	pool := []core.Article{
		story("Sports", 0, 0.4), story("Sports", 1, 0.3),
		story("Tech", 0, 1.0),
	}

	out, err := p.Act(context.Background(), Reflection{Pool: pool})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	first := out.Selection[0]
	if first.Article.Category != "Tech" || first.Rank != 1 {
		t.Errorf("Expected the higher-scoring Tech story at rank 1, got %s at %d", first.Article.Category, first.Rank)
	}
	for i := 1; i < len(out.Selection); i++ {
		if out.Selection[i].ImportanceScore > out.Selection[i-1].ImportanceScore {
			t.Errorf("Expected descending scores at %d", i)
		}
	}
}

func TestActAttachesScoresAndReasons(t *testing.T) {
	p := New([]core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 2}}, scorer(), DefaultConfig())
	pool := []core.Article{story("Sports", 0, 0.6), story("Sports", 1, 0.9)}

	out, err := p.Act(context.Background(), Reflection{Pool: pool})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	top := out.Selection[0]
	if top.Article.Relevance(0) != 0.9 {
		t.Fatalf("Expected the 0.9 story first, got %f", top.Article.Relevance(0))
	}
	if top.Article.CompositeScore == nil || *top.Article.CompositeScore != top.ImportanceScore {
		t.Error("Expected composite score on the article to match importance")
	}
	if top.SelectionReason != "Top story in Sports, highly relevant, breaking news" {
		t.Errorf("Unexpected reason %q", top.SelectionReason)
	}
	if out.Selection[1].SelectionReason != "#2 in Sports, breaking news" {
		t.Errorf("Unexpected reason %q", out.Selection[1].SelectionReason)
	}
	if pool[0].CompositeScore != nil {
		t.Error("Expected pool articles to stay unmodified")
	}
}

func TestActTruncatesToMaxStories(t *testing.T) {
	cats := []core.CategoryConfig{
		{Name: "Sports", Priority: 1, MinStories: 5},
		{Name: "Tech", Priority: 2, MinStories: 5},
	}
	p := New(cats, scorer(), Config{MaxStories: 4})

	var pool []core.Article
	for i := 0; i < 5; i++ {
		pool = append(pool, story("Sports", i, 0.1*float64(i+1)), story("Tech", i, 0.15*float64(i+1)))
	}

	out, err := p.Act(context.Background(), Reflection{Pool: pool})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if len(out.Selection) != 4 {
		t.Fatalf("Expected 4 stories, got %d", len(out.Selection))
	}
	assertDenseRanks(t, out.Selection)
}

func TestActIgnoresUnconfiguredCategories(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	out, err := p.Act(context.Background(), Reflection{Pool: []core.Article{story("Weather", 0, 0.9)}})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if len(out.Selection) != 0 {
		t.Errorf("Expected no stories from unconfigured categories, got %d", len(out.Selection))
	}
}

func TestObserveDeduplicatesAndBuckets(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	dup := story("Sports", 0, 0.3)
	dup.URL = "https://example.com/dup"

	obs, err := p.Observe(context.Background(), Input{Articles: []core.Article{
		story("Sports", 0, 0.9), dup, story("Tech", 0, 0.5),
	}})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if len(obs.Pool) != 2 {
		t.Fatalf("Expected duplicate to be removed, got %d", len(obs.Pool))
	}
	if len(obs.ByCategory["Sports"]) != 1 || len(obs.ByCategory["Tech"]) != 1 {
		t.Errorf("Unexpected buckets: %v", obs.ByCategory)
	}
}

func TestObserveBucketsSelection(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	pool := []core.Article{story("Sports", 0, 0.9), story("Sports", 1, 0.8), story("Tech", 0, 0.5)}
	sel := []core.RankedItem{{Article: pool[0], Rank: 1}}

	obs, err := p.Observe(context.Background(), Input{Articles: pool, Selection: sel})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if len(obs.Pool) != 3 {
		t.Errorf("Expected full pool, got %d", len(obs.Pool))
	}
	if len(obs.ByCategory["Sports"]) != 1 || len(obs.ByCategory["Tech"]) != 0 {
		t.Errorf("Expected buckets over the selection only, got %v", obs.ByCategory)
	}
}

func TestReflectConfidence(t *testing.T) {
	tests := []struct {
		name       string
		categories []core.CategoryConfig
		articles   []core.Article
		want       float64
		missing    int
	}{
		{
			name:       "perfect pool is capped",
			categories: []core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 1}},
			articles:   []core.Article{story("Sports", 0, 0.8), story("Sports", 1, 0.9)},
			want:       MaxConfidence,
		},
		{
			name:       "missing category",
			categories: sportsTech(),
			articles:   []core.Article{story("Sports", 0, 0.8), story("Sports", 1, 0.9)},
			want:       0.25 + 0.25 + 0.2,
			missing:    1,
		},
		{
			name:       "stale low relevance",
			categories: []core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 1}},
			articles: func() []core.Article {
				a, b := story("Sports", 0, 0.2), story("Sports", 1, 0.7)
				a.PublishDate = now.AddDate(0, 0, -10)
				b.PublishDate = time.Time{}
				return []core.Article{a, b}
			}(),
			want: 0.3 + 0.25 + 0.25*0.5,
		},
		{
			name:       "repeated topic halves diversity",
			categories: []core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 0}},
			articles: func() []core.Article {
				a, b := story("Sports", 0, 0.1), story("Sports", 1, 0.1)
				a.Title = "Clippers win the title in game seven tonight"
				b.Title = "Clippers win the title in game seven tonight again"
				return []core.Article{a, b}
			}(),
			want: 0.3 + 0.25*0.5 + 0.2,
		},
		{
			name:       "empty",
			categories: []core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 0}},
			want:       0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.categories, scorer(), DefaultConfig())
			refl, err := p.Reflect(context.Background(), Observation{
				Pool:       tt.articles,
				ByCategory: bucket(tt.articles),
			})
			if err != nil {
				t.Fatalf("Reflect failed: %v", err)
			}
			if math.Abs(refl.Confidence()-tt.want) > 1e-9 {
				t.Errorf("Confidence() = %f, want %f", refl.Confidence(), tt.want)
			}
			if len(refl.Missing) != tt.missing {
				t.Errorf("Expected %d missing categories, got %v", tt.missing, refl.Missing)
			}
		})
	}
}

func TestRankConvergedBeforeAct(t *testing.T) {
	cats := []core.CategoryConfig{{Name: "Sports", Priority: 1, MinStories: 2}}
	p := New(cats, scorer(), Config{ConfidenceThreshold: 0.9})

	result, err := p.Rank(context.Background(), map[string][]core.Article{
		"Sports": {story("Sports", 0, 0.8), story("Sports", 1, 0.9), story("Sports", 2, 0.95)},
	})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if !result.Converged || result.Iterations != 1 {
		t.Errorf("Expected convergence on the first reflection, got converged=%v iterations=%d", result.Converged, result.Iterations)
	}
	if len(result.Stories) != 2 {
		t.Fatalf("Expected a selection of 2 stories, got %d", len(result.Stories))
	}
	assertDenseRanks(t, result.Stories)
	if len(result.Underfilled) != 0 {
		t.Errorf("Expected no under-filled categories, got %v", result.Underfilled)
	}
}

func TestRankReportsUnderfill(t *testing.T) {
	cats := []core.CategoryConfig{
		{Name: "Sports", Priority: 1, MinStories: 1},
		{Name: "Tech", Priority: 2, MinStories: 2},
	}
	p := New(cats, scorer(), DefaultConfig())

	result, err := p.Rank(context.Background(), map[string][]core.Article{
		"Sports": {story("Sports", 0, 0.8)},
		"Tech":   {story("Tech", 0, 0.8)},
	})
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if result.Converged {
		t.Error("Expected the missing Tech minimum to prevent convergence")
	}
	if result.Iterations != 3 {
		t.Errorf("Expected the full budget of 3 iterations, got %d", result.Iterations)
	}
	if len(result.Stories) != 2 {
		t.Fatalf("Expected 2 stories, got %d", len(result.Stories))
	}
	if len(result.Underfilled) != 1 || result.Underfilled[0] != (Underfill{Category: "Tech", Want: 2, Got: 1}) {
		t.Errorf("Unexpected under-fill report: %v", result.Underfilled)
	}
}

func TestRankEmpty(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	result, err := p.Rank(context.Background(), nil)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if len(result.Stories) != 0 {
		t.Errorf("Expected no stories, got %d", len(result.Stories))
	}
	if len(result.Underfilled) != 2 {
		t.Errorf("Expected both categories under-filled, got %v", result.Underfilled)
	}
}

func TestRankCancelled(t *testing.T) {
	p := New(sportsTech(), scorer(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Rank(ctx, map[string][]core.Article{"Sports": {story("Sports", 0, 0.8)}}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
