// Package ranking selects and orders the weekly stories across categories.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"genzweekly/internal/clustering"
	"genzweekly/internal/core"
	"genzweekly/internal/logger"
	"genzweekly/internal/refine"
	"genzweekly/internal/relevance"
)

const (
	// MaxConfidence keeps at least one refinement pass available.
	MaxConfidence = 0.95
	// HighQualityCutoff is the relevance at which an item counts as high quality.
	HighQualityCutoff = 0.7
	// RecentWindow is how fresh an item must be to count as recent.
	RecentWindow = 3 * 24 * time.Hour
)

// Config tunes the ranking loop.
type Config struct {
	MaxIterations       int
	ConfidenceThreshold float64
	MaxStories          int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       3,
		ConfidenceThreshold: 0.85,
		MaxStories:          15,
	}
}

// Input is what Observe consumes: the candidate pool and, after an Act, the
// selection built from it.
type Input struct {
	Articles  []core.Article
	Selection []core.RankedItem
}

// Observation is the deduplicated pool bucketed by category. When a selection
// exists, ByCategory buckets the selected articles so Reflect judges the
// selection rather than the pool.
type Observation struct {
	Pool       []core.Article
	ByCategory map[string][]core.Article
	Selection  []core.RankedItem
}

// Reflection summarizes category balance and quality.
type Reflection struct {
	Pool         []core.Article
	Counts       map[string]int
	Missing      []string
	Diversity    map[string]float64
	AvgDiversity float64
	AvgRelevance float64
	HighQuality  int
	Total        int
	RecentRatio  float64
	Score        float64
}

// Confidence implements refine.Reflection.
func (r Reflection) Confidence() float64 {
	return r.Score
}

// Underfill is a category that received fewer stories than its minimum.
type Underfill struct {
	Category string
	Want     int
	Got      int
}

// Result is the ranked weekly selection.
type Result struct {
	Stories     []core.RankedItem
	Confidence  float64
	Iterations  int
	Converged   bool
	Underfilled []Underfill
}

// Policy is the ranking refinement policy.
type Policy struct {
	categories []core.CategoryConfig
	scorer     *relevance.CompositeScorer
	cfg        Config
	log        *slog.Logger
}

// New creates a Policy. A nil scorer uses the wall clock.
func New(categories []core.CategoryConfig, scorer *relevance.CompositeScorer, cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.MaxStories <= 0 {
		cfg.MaxStories = def.MaxStories
	}
	if scorer == nil {
		scorer = relevance.NewCompositeScorer()
	}

	sorted := make([]core.CategoryConfig, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Policy{
		categories: sorted,
		scorer:     scorer,
		cfg:        cfg,
		log:        logger.With("ranking"),
	}
}

// Observe deduplicates the pool and buckets the articles under review.
func (p *Policy) Observe(ctx context.Context, in Input) (Observation, error) {
	pool := clustering.Dedupe(in.Articles)
	obs := Observation{
		Pool:      pool,
		Selection: in.Selection,
	}

	reviewed := pool
	if len(in.Selection) > 0 {
		reviewed = make([]core.Article, len(in.Selection))
		for i, item := range in.Selection {
			reviewed[i] = item.Article
		}
	}
	obs.ByCategory = bucket(reviewed)

	p.log.Debug("Observed pool",
		"articles", len(in.Articles),
		"unique", len(pool),
		"categories", len(obs.ByCategory),
		"selection", len(in.Selection))
	return obs, nil
}

func bucket(articles []core.Article) map[string][]core.Article {
	out := make(map[string][]core.Article)
	for _, a := range articles {
		out[a.Category] = append(out[a.Category], a)
	}
	return out
}

// Reflect scores category coverage, topic diversity, relevance and freshness.
func (p *Policy) Reflect(ctx context.Context, obs Observation) (Reflection, error) {
	refl := Reflection{
		Pool:      obs.Pool,
		Counts:    make(map[string]int, len(obs.ByCategory)),
		Diversity: make(map[string]float64, len(obs.ByCategory)),
	}

	for name, items := range obs.ByCategory {
		refl.Counts[name] = len(items)
	}
	for _, c := range p.categories {
		if refl.Counts[c.Name] < c.MinStories {
			refl.Missing = append(refl.Missing, c.Name)
		}
	}

	now := p.scorer.Now
	if now == nil {
		now = time.Now
	}
	cutoff := now().Add(-RecentWindow)

	relevanceSum := 0.0
	recent := 0
	diversitySum := 0.0
	for name, items := range obs.ByCategory {
		if len(items) == 0 {
			continue
		}
		d := float64(clustering.CountUniqueTopics(items)) / float64(len(items))
		refl.Diversity[name] = d
		diversitySum += d

		for _, a := range items {
			r := a.Relevance(relevance.DefaultRelevance)
			relevanceSum += r
			if r >= HighQualityCutoff {
				refl.HighQuality++
			}
			if !a.PublishDate.IsZero() && !a.PublishDate.Before(cutoff) {
				recent++
			}
			refl.Total++
		}
	}

	if len(refl.Diversity) > 0 {
		refl.AvgDiversity = diversitySum / float64(len(refl.Diversity))
	}
	if refl.Total > 0 {
		refl.AvgRelevance = relevanceSum / float64(refl.Total)
		refl.RecentRatio = float64(recent) / float64(refl.Total)
	}

	score := 0.25*refl.AvgDiversity + 0.2*refl.RecentRatio
	if len(refl.Missing) == 0 {
		score += 0.3
	}
	if refl.Total > 0 {
		score += 0.25 * float64(refl.HighQuality) / float64(refl.Total)
	}
	refl.Score = min(core.Clamp01(score), MaxConfidence)

	p.log.Info("Selection quality",
		"confidence", refl.Score,
		"missing", refl.Missing,
		"avg_diversity", refl.AvgDiversity,
		"avg_relevance", refl.AvgRelevance,
		"high_quality", refl.HighQuality,
		"recent_ratio", refl.RecentRatio)
	return refl, nil
}

// Act picks the top MinStories of each category by composite score, then
// orders the whole selection by score with a dense 1-based rank.
func (p *Policy) Act(ctx context.Context, refl Reflection) (Input, error) {
	var selection []core.RankedItem

	for _, c := range p.categories {
		var scored []core.Article
		for _, a := range refl.Pool {
			if a.Category == c.Name {
				scored = append(scored, a.WithComposite(p.scorer.Score(a)))
			}
		}
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Composite(0) > scored[j].Composite(0)
		})

		take := min(c.MinStories, len(scored))
		for i, a := range scored[:take] {
			selection = append(selection, core.RankedItem{
				Article:         a,
				CategoryRank:    i + 1,
				ImportanceScore: a.Composite(0),
				SelectionReason: p.scorer.SelectionReason(a, i+1, c.Name),
			})
		}
	}

	// Score wins over category priority here; ties keep priority order.
	sort.SliceStable(selection, func(i, j int) bool {
		return selection[i].ImportanceScore > selection[j].ImportanceScore
	})
	if len(selection) > p.cfg.MaxStories {
		selection = selection[:p.cfg.MaxStories]
	}
	for i := range selection {
		selection[i].Rank = i + 1
	}

	p.log.Info("Ranked selection", "stories", len(selection))
	return Input{Articles: refl.Pool, Selection: selection}, nil
}

// Underfilled lists configured categories whose selection is below minimum.
func (p *Policy) Underfilled(selection []core.RankedItem) []Underfill {
	got := make(map[string]int)
	for _, item := range selection {
		got[item.Article.Category]++
	}
	var out []Underfill
	for _, c := range p.categories {
		if got[c.Name] < c.MinStories {
			out = append(out, Underfill{Category: c.Name, Want: c.MinStories, Got: got[c.Name]})
		}
	}
	return out
}

// Rank runs the loop over the weekly articles and returns the selection.
func (p *Policy) Rank(ctx context.Context, weekly map[string][]core.Article) (Result, error) {
	names := make([]string, 0, len(weekly))
	for name := range weekly {
		names = append(names, name)
	}
	sort.Strings(names)

	var articles []core.Article
	for _, name := range names {
		articles = append(articles, weekly[name]...)
	}
	return p.RankArticles(ctx, articles)
}

// RankArticles is Rank over a flat article list.
func (p *Policy) RankArticles(ctx context.Context, articles []core.Article) (Result, error) {
	var last Reflection
	stages := refine.Stages[Input, Observation, Reflection]{
		Observe: p.Observe,
		Reflect: func(ctx context.Context, obs Observation) (Reflection, error) {
			refl, err := p.Reflect(ctx, obs)
			last = refl
			return refl, err
		},
		Act: p.Act,
	}

	run, err := refine.Run(ctx, Input{Articles: articles}, stages, refine.Options{
		Name:                "ranking",
		MaxIterations:       p.cfg.MaxIterations,
		ConfidenceThreshold: p.cfg.ConfidenceThreshold,
		Logger:              p.log,
	})
	if err != nil {
		return Result{}, fmt.Errorf("ranking: %w", err)
	}

	selection := run.Observation.Selection
	if run.Actions == 0 {
		// Converged on the raw pool: build the selection once.
		next, err := p.Act(ctx, last)
		if err != nil {
			return Result{}, fmt.Errorf("ranking: %w", err)
		}
		selection = next.Selection
	}

	result := Result{
		Stories:     selection,
		Confidence:  run.Confidence,
		Iterations:  run.Iterations,
		Converged:   run.Converged,
		Underfilled: p.Underfilled(selection),
	}
	for _, u := range result.Underfilled {
		p.log.Warn("Category under-filled", "category", u.Category, "want", u.Want, "got", u.Got)
	}
	return result, nil
}
