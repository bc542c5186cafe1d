// Package quality validates scraped articles, scores them for Gen Z relevance
// and keeps the ones worth ranking.
package quality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/llm"
	"genzweekly/internal/logger"
	"genzweekly/internal/refine"
	"genzweekly/internal/relevance"
)

// Validation issue tags.
const (
	IssueTitleTooShort   = "title_too_short"
	IssueSummaryTooShort = "summary_too_short"
	IssueInvalidURL      = "invalid_url"
	IssueNoImage         = "no_image"
)

const (
	MinTitleLength   = 10
	MinSummaryLength = 50
)

// ErrScoringUnavailable is returned when every assessment in a scoring batch
// fails, e.g. because the model key is revoked or over quota.
var ErrScoringUnavailable = errors.New("relevance scoring unavailable")

// Config tunes the filter loop.
type Config struct {
	MaxIterations       int
	ConfidenceThreshold float64
	BatchSize           int           // Articles scored between pauses
	BatchDelay          time.Duration // Pause between scoring batches
	MinKeep             int           // Backfill target when the cutoff keeps too few
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       2,
		ConfidenceThreshold: 0.75,
		BatchSize:           30,
		BatchDelay:          time.Second,
		MinKeep:             5,
	}
}

// Issue records why an article failed validation.
type Issue struct {
	Title string
	URL   string
	Tags  []string
}

// Observation is the validated working set.
type Observation struct {
	Items    []core.Article
	Rejected int
	Issues   []Issue
}

// Reflection carries the scored items and their score distribution.
type Reflection struct {
	Items   []core.Article // Items with RelevanceScore set
	Average float64
	High    int // >= 0.7
	Medium  int // 0.5 - 0.7
	Low     int // < 0.5
	Failed  int // Items that fell back to the default score
}

// Confidence is the average relevance score.
func (r Reflection) Confidence() float64 {
	return r.Average
}

// Policy is the quality-filter refinement policy.
type Policy struct {
	assessor relevance.Assessor
	cfg      Config
	log      *slog.Logger
}

// New creates a Policy. Zero-valued config fields take their defaults.
func New(assessor relevance.Assessor, cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.MinKeep <= 0 {
		cfg.MinKeep = def.MinKeep
	}
	return &Policy{
		assessor: assessor,
		cfg:      cfg,
		log:      logger.With("quality_filter"),
	}
}

// Validate returns the issue tags for a; an empty result means a is usable.
func Validate(a core.Article) []string {
	var tags []string
	if len(a.Title) < MinTitleLength {
		tags = append(tags, IssueTitleTooShort)
	}
	if len(a.Summary) < MinSummaryLength {
		tags = append(tags, IssueSummaryTooShort)
	}
	if !validURL(a.URL) {
		tags = append(tags, IssueInvalidURL)
	}
	if a.ImageURL == "" {
		tags = append(tags, IssueNoImage)
	}
	return tags
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Observe partitions articles into valid items and rejections.
func (p *Policy) Observe(ctx context.Context, articles []core.Article) (Observation, error) {
	obs := Observation{Items: make([]core.Article, 0, len(articles))}
	for _, a := range articles {
		if tags := Validate(a); len(tags) > 0 {
			obs.Rejected++
			obs.Issues = append(obs.Issues, Issue{Title: a.Title, URL: a.URL, Tags: tags})
			continue
		}
		obs.Items = append(obs.Items, a)
	}

	p.log.Info("Data quality check", "passed", len(obs.Items), "total", len(articles))
	if len(obs.Issues) > 0 {
		sample := obs.Issues
		if len(sample) > 3 {
			sample = sample[:3]
		}
		p.log.Debug("Quality issues found", "sample", sample)
	}
	return obs, nil
}

// Reflect scores every item. A failed assessment scores the item at the
// default relevance; only a batch in which every assessment failed is an
// error.
func (p *Policy) Reflect(ctx context.Context, obs Observation) (Reflection, error) {
	refl := Reflection{Items: make([]core.Article, 0, len(obs.Items))}
	total := 0.0

	for start := 0; start < len(obs.Items); start += p.cfg.BatchSize {
		if start > 0 {
			if err := core.Sleep(ctx, p.cfg.BatchDelay); err != nil {
				return refl, err
			}
		}
		end := min(start+p.cfg.BatchSize, len(obs.Items))
		p.log.Debug("Scoring batch", "from", start, "to", end, "total", len(obs.Items))

		batchFailed := 0
		var lastErr error
		for _, a := range obs.Items[start:end] {
			outcome := llm.OutcomeOf(p.assessor.AssessRelevance(ctx, a)).Or(relevance.DefaultRelevance)
			if outcome.Fallback() {
				refl.Failed++
				batchFailed++
				lastErr = outcome.Err()
				p.log.Warn("Error scoring article", "title", truncate(a.Title, 50), "error", outcome.Err())
			}

			scored := a.WithRelevance(outcome.Value())
			score := scored.Relevance(relevance.DefaultRelevance)
			switch {
			case score >= 0.7:
				refl.High++
			case score >= 0.5:
				refl.Medium++
			default:
				refl.Low++
			}
			total += score
			refl.Items = append(refl.Items, scored)
		}
		if batchFailed == end-start {
			return refl, fmt.Errorf("%w: all %d assessments in batch failed: %w", ErrScoringUnavailable, batchFailed, lastErr)
		}
	}

	if len(refl.Items) > 0 {
		refl.Average = total / float64(len(refl.Items))
	}
	p.log.Info("Relevance scores",
		"average", refl.Average,
		"high", refl.High,
		"medium", refl.Medium,
		"low", refl.Low)
	return refl, nil
}

// Cutoff returns the adaptive relevance cutoff for an average score.
func Cutoff(average float64) float64 {
	switch {
	case average >= 0.7:
		return 0.6
	case average >= 0.5:
		return 0.5
	default:
		return 0.4
	}
}

// Act keeps items at or above the adaptive cutoff. If fewer than MinKeep
// survive, the top MinKeep items by score are kept instead.
func (p *Policy) Act(ctx context.Context, refl Reflection) ([]core.Article, error) {
	cutoff := Cutoff(refl.Average)

	kept := make([]core.Article, 0, len(refl.Items))
	for _, a := range refl.Items {
		if a.Relevance(0) >= cutoff {
			kept = append(kept, a)
		}
	}

	if len(kept) < p.cfg.MinKeep && len(refl.Items) > 0 {
		sorted := make([]core.Article, len(refl.Items))
		copy(sorted, refl.Items)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Relevance(0) > sorted[j].Relevance(0)
		})
		kept = sorted[:min(p.cfg.MinKeep, len(sorted))]
		p.log.Info("Backfilled to minimum article count", "kept", len(kept))
	}

	p.log.Info("Filtered articles", "before", len(refl.Items), "after", len(kept), "cutoff", cutoff)
	return kept, nil
}

// Filter runs the loop and returns the surviving scored articles.
func (p *Policy) Filter(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	// On convergence the loop hands back the observation that was reflected
	// on, which predates scoring; the matching reflection has the scores.
	var last Reflection
	stages := refine.Stages[[]core.Article, Observation, Reflection]{
		Observe: p.Observe,
		Reflect: func(ctx context.Context, obs Observation) (Reflection, error) {
			refl, err := p.Reflect(ctx, obs)
			last = refl
			return refl, err
		},
		Act: p.Act,
	}

	result, err := refine.Run(ctx, articles, stages, refine.Options{
		Name:                "quality_filter",
		MaxIterations:       p.cfg.MaxIterations,
		ConfidenceThreshold: p.cfg.ConfidenceThreshold,
		Logger:              p.log,
	})
	if err != nil {
		return nil, fmt.Errorf("quality filter: %w", err)
	}

	if result.Converged {
		return last.Items, nil
	}
	return result.Observation.Items, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
