// Package refine implements the observe -> reflect -> act iteration used to
// filter, rank and polish weekly content. A policy supplies the three stages;
// Run drives them until a reflection is confident enough or the iteration
// budget runs out.
package refine

import (
	"context"
	"fmt"
	"log/slog"

	"genzweekly/internal/core"
	"genzweekly/internal/logger"
)

const (
	// DefaultMaxIterations is used when Options.MaxIterations is not positive.
	DefaultMaxIterations = 3
	// DefaultConfidenceThreshold is used when Options.ConfidenceThreshold is not positive.
	DefaultConfidenceThreshold = 0.8
)

// Reflection is the common shape of every policy's reflect output.
type Reflection interface {
	Confidence() float64
}

// Stages bundles a policy's callbacks. Observe receives either the initial
// task or the previous Act output, so both share the input type In.
type Stages[In any, Obs any, Refl Reflection] struct {
	Observe func(ctx context.Context, in In) (Obs, error)
	Reflect func(ctx context.Context, obs Obs) (Refl, error)
	Act     func(ctx context.Context, refl Refl) (In, error)
}

// Policy is implemented by types that expose the three stages as methods.
type Policy[In any, Obs any, Refl Reflection] interface {
	Observe(ctx context.Context, in In) (Obs, error)
	Reflect(ctx context.Context, obs Obs) (Refl, error)
	Act(ctx context.Context, refl Refl) (In, error)
}

// StagesOf adapts a Policy to Stages.
func StagesOf[In any, Obs any, Refl Reflection](p Policy[In, Obs, Refl]) Stages[In, Obs, Refl] {
	return Stages[In, Obs, Refl]{
		Observe: p.Observe,
		Reflect: p.Reflect,
		Act:     p.Act,
	}
}

// Options bounds a loop run.
type Options struct {
	Name                string  // Used in log lines, e.g. "quality_filter"
	MaxIterations       int     // Maximum reflect calls
	ConfidenceThreshold float64 // Stop once a reflection reaches this confidence
	Logger              *slog.Logger
}

// Result is the outcome of a loop run. Observation is the last observation
// produced; when Converged is true it is the observation that satisfied the
// threshold, not a freshly acted one.
type Result[Obs any] struct {
	Observation Obs
	Confidence  float64 // Confidence of the last reflection
	Iterations  int     // Reflect calls
	Actions     int     // Act calls
	Converged   bool
}

// Run executes the loop. Stage errors abort the run and are returned wrapped;
// running out of iterations is not an error.
func Run[In any, Obs any, Refl Reflection](ctx context.Context, task In, stages Stages[In, Obs, Refl], opts Options) (Result[Obs], error) {
	var result Result[Obs]

	if stages.Observe == nil || stages.Reflect == nil || stages.Act == nil {
		return result, fmt.Errorf("refine %s: observe, reflect and act are all required", opts.Name)
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With("loop", opts.Name)

	obs, err := stages.Observe(ctx, task)
	if err != nil {
		return result, fmt.Errorf("refine %s: initial observe: %w", opts.Name, err)
	}
	result.Observation = obs

	for i := 1; i <= maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("refine %s: iteration %d: %w", opts.Name, i, err)
		}
		log.Debug("Refinement iteration", "iteration", i)

		refl, err := stages.Reflect(ctx, result.Observation)
		if err != nil {
			return result, fmt.Errorf("refine %s: reflect (iteration %d): %w", opts.Name, i, err)
		}
		result.Iterations++
		result.Confidence = core.Clamp01(refl.Confidence())

		if result.Confidence >= threshold {
			result.Converged = true
			log.Info("Refinement converged", "iteration", i, "confidence", result.Confidence)
			return result, nil
		}

		next, err := stages.Act(ctx, refl)
		if err != nil {
			return result, fmt.Errorf("refine %s: act (iteration %d): %w", opts.Name, i, err)
		}
		result.Actions++

		obs, err := stages.Observe(ctx, next)
		if err != nil {
			return result, fmt.Errorf("refine %s: observe (iteration %d): %w", opts.Name, i, err)
		}
		result.Observation = obs
	}

	log.Info("Refinement budget exhausted",
		"iterations", result.Iterations,
		"confidence", result.Confidence,
		"threshold", threshold)
	return result, nil
}
