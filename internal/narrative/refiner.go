package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"genzweekly/internal/core"
	"genzweekly/internal/llm"
	"genzweekly/internal/logger"
	"genzweekly/internal/refine"
)

// MalformedConfidence is assumed when the rubric cannot be obtained, so a
// broken scoring call ends the loop instead of regenerating blindly.
const MalformedConfidence = 0.9

// RefinerConfig tunes the copy refinement loop.
type RefinerConfig struct {
	MaxIterations       int
	ConfidenceThreshold float64
}

// DefaultRefinerConfig returns the production settings.
func DefaultRefinerConfig() RefinerConfig {
	return RefinerConfig{MaxIterations: 3, ConfidenceThreshold: 0.85}
}

// Draft is a version of the newsletter copy. Iteration 0 asks Observe to
// write the first draft; Act increments it.
type Draft struct {
	Content   string
	Stories   []Story
	Iteration int
}

// Assessment is the refiner's reflection on a draft.
type Assessment struct {
	Draft     Draft
	Rubric    Rubric
	Score     float64
	Malformed bool // Scoring failed; Score is MalformedConfidence
}

// Confidence implements refine.Reflection.
func (a Assessment) Confidence() float64 {
	return a.Score
}

// Refined is the final copy.
type Refined struct {
	Content    string
	Confidence float64
	Iterations int
	Converged  bool
}

// Refiner improves newsletter copy until the rubric is satisfied.
type Refiner struct {
	client LLMClient
	cfg    RefinerConfig
	log    *slog.Logger
}

// NewRefiner creates a Refiner.
func NewRefiner(client LLMClient, cfg RefinerConfig) *Refiner {
	def := DefaultRefinerConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	return &Refiner{client: client, cfg: cfg, log: logger.With("content_refiner")}
}

// Observe writes the first draft, or passes an acted-on draft through.
func (r *Refiner) Observe(ctx context.Context, d Draft) (Draft, error) {
	if d.Iteration > 0 {
		return d, nil
	}

	r.log.Debug("Generating initial newsletter content", "stories", len(d.Stories))
	content, err := r.client.GenerateText(ctx, buildNewsletterPrompt(d.Stories), llm.TextGenerationOptions{
		MaxTokens: 3000,
	})
	if err != nil {
		return d, fmt.Errorf("initial newsletter generation failed: %w", err)
	}
	d.Content = strings.TrimSpace(content)
	return d, nil
}

// Reflect scores the draft against the rubric.
func (r *Refiner) Reflect(ctx context.Context, d Draft) (Assessment, error) {
	outcome := llm.OutcomeOf(r.score(ctx, d.Content))
	if outcome.Fallback() {
		if err := ctx.Err(); err != nil {
			return Assessment{}, err
		}
		r.log.Warn("Failed to parse quality assessment, assuming acceptable", "error", outcome.Err(), "iteration", d.Iteration)
		return Assessment{Draft: d, Score: MalformedConfidence, Malformed: true}, nil
	}

	rubric := outcome.Value()
	a := Assessment{
		Draft:  d,
		Rubric: rubric,
		Score:  core.Clamp01(rubric.Confidence()),
	}
	r.log.Info("Quality scores",
		"engagement", rubric.EngagementScore,
		"clarity", rubric.ClarityScore,
		"tone", rubric.ToneScore,
		"relevance", rubric.RelevanceScore,
		"writing", rubric.WritingScore,
		"confidence", a.Score,
		"iteration", d.Iteration)
	return a, nil
}

func (r *Refiner) score(ctx context.Context, content string) (Rubric, error) {
	var rubric Rubric
	err := r.client.GenerateJSON(ctx, buildAssessmentPrompt(content), RubricSchema(), &rubric, llm.TextGenerationOptions{
		MaxTokens:   1000,
		Temperature: 0.3,
	})
	return rubric, err
}

// Act regenerates the draft from the rubric's feedback. Without suggested
// improvements the draft is kept.
func (r *Refiner) Act(ctx context.Context, a Assessment) (Draft, error) {
	next := a.Draft
	next.Iteration++

	if len(a.Rubric.Improvements) == 0 {
		return next, nil
	}

	r.log.Debug("Generating improved version", "iteration", next.Iteration)
	improved, err := r.client.GenerateText(ctx,
		buildImprovementPrompt(a.Draft.Content, a.Rubric.Weaknesses, a.Rubric.Improvements),
		llm.TextGenerationOptions{MaxTokens: 3000, Temperature: 0.7})
	if err != nil {
		return next, fmt.Errorf("newsletter improvement failed: %w", err)
	}
	next.Content = strings.TrimSpace(improved)
	return next, nil
}

// Refine writes newsletter copy for stories and polishes it.
func (r *Refiner) Refine(ctx context.Context, stories []Story) (Refined, error) {
	if len(stories) == 0 {
		return Refined{}, fmt.Errorf("no stories provided")
	}

	run, err := refine.Run(ctx, Draft{Stories: stories}, refine.StagesOf[Draft, Draft, Assessment](r), refine.Options{
		Name:                "content_refiner",
		MaxIterations:       r.cfg.MaxIterations,
		ConfidenceThreshold: r.cfg.ConfidenceThreshold,
		Logger:              r.log,
	})
	if err != nil {
		return Refined{}, fmt.Errorf("content refiner: %w", err)
	}

	return Refined{
		Content:    run.Observation.Content,
		Confidence: run.Confidence,
		Iterations: run.Iterations,
		Converged:  run.Converged,
	}, nil
}
