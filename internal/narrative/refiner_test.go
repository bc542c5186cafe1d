package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"genzweekly/internal/core"
	"genzweekly/internal/llm"

	"google.golang.org/genai"
)

// fakeLLM returns texts in order and decodes rubrics in order. A rubric entry
// that is not valid JSON makes GenerateJSON fail.
type fakeLLM struct {
	texts       []string
	rubrics     []string
	textCalls   int
	jsonCalls   int
	textPrompts []string
	textErr     error
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error) {
	f.textPrompts = append(f.textPrompts, prompt)
	if f.textErr != nil {
		return "", f.textErr
	}
	i := f.textCalls
	f.textCalls++
	if i >= len(f.texts) {
		return f.texts[len(f.texts)-1], nil
	}
	return f.texts[i], nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any, options llm.TextGenerationOptions) error {
	i := f.jsonCalls
	f.jsonCalls++
	raw := f.rubrics[len(f.rubrics)-1]
	if i < len(f.rubrics) {
		raw = f.rubrics[i]
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.New("failed to parse structured response")
	}
	return nil
}

var stories = []Story{
	{Title: "Student loan relief expanded", Category: "Politics", Summary: "Millions of borrowers qualify.", URL: "https://example.com/1"},
	{Title: "Clippers win Game 7", Category: "Sports", Summary: "A buzzer beater ends the series.", URL: "https://example.com/2"},
}

const (
	weakRubric   = `{"engagement_score": 5, "clarity_score": 6, "tone_score": 5, "relevance_score": 6, "writing_score": 6, "strengths": ["clear"], "weaknesses": ["flat intro"], "improvements": ["open with a hook"]}`
	strongRubric = `{"engagement_score": 9, "clarity_score": 9, "tone_score": 9, "relevance_score": 9, "writing_score": 9, "strengths": ["fun"], "weaknesses": [], "improvements": []}`
)

func TestRubricConfidence(t *testing.T) {
	r := Rubric{EngagementScore: 8, ClarityScore: 7, ToneScore: 9, RelevanceScore: 6, WritingScore: 10}
	if got := r.Confidence(); got != 0.8 {
		t.Errorf("Expected sum/50 = 0.8, got %f", got)
	}

	overall := 0.42
	r.OverallConfidence = &overall
	if got := r.Confidence(); got != 0.42 {
		t.Errorf("Expected overall confidence to win, got %f", got)
	}
}

func TestRubricSchema(t *testing.T) {
	schema := RubricSchema()
	if schema.Type != genai.TypeObject {
		t.Fatalf("Expected object schema, got %v", schema.Type)
	}
	for _, key := range []string{"engagement_score", "clarity_score", "tone_score", "relevance_score", "writing_score", "overall_confidence", "strengths", "weaknesses", "improvements"} {
		if _, ok := schema.Properties[key]; !ok {
			t.Errorf("Expected schema property %q", key)
		}
	}
	if schema.Properties["improvements"].Type != genai.TypeArray {
		t.Error("Expected improvements to be an array")
	}
}

func TestRefineConvergesOnGoodDraft(t *testing.T) {
	f := &fakeLLM{texts: []string{"  first draft  "}, rubrics: []string{strongRubric}}
	r := NewRefiner(f, DefaultRefinerConfig())

	out, err := r.Refine(context.Background(), stories)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if out.Content != "first draft" {
		t.Errorf("Expected trimmed first draft, got %q", out.Content)
	}
	if !out.Converged || out.Iterations != 1 {
		t.Errorf("Expected convergence after one reflection, got converged=%v iterations=%d", out.Converged, out.Iterations)
	}
	if f.textCalls != 1 {
		t.Errorf("Expected only the initial generation, got %d text calls", f.textCalls)
	}
	if !strings.Contains(f.textPrompts[0], "Student loan relief expanded") || !strings.Contains(f.textPrompts[0], "Category: Sports") {
		t.Error("Expected the newsletter prompt to list the stories")
	}
}

func TestRefineImprovesWeakDraft(t *testing.T) {
	f := &fakeLLM{
		texts:   []string{"first draft", "second draft"},
		rubrics: []string{weakRubric, strongRubric},
	}
	r := NewRefiner(f, DefaultRefinerConfig())

	out, err := r.Refine(context.Background(), stories)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if out.Content != "second draft" {
		t.Errorf("Expected improved draft, got %q", out.Content)
	}
	if out.Iterations != 2 || !out.Converged {
		t.Errorf("Expected convergence on the second reflection, got %d iterations", out.Iterations)
	}

	improvement := f.textPrompts[1]
	if !strings.Contains(improvement, "first draft") || !strings.Contains(improvement, "- flat intro") || !strings.Contains(improvement, "- open with a hook") {
		t.Errorf("Expected improvement prompt to carry draft and feedback, got %q", improvement)
	}
}

func TestRefineMalformedRubricStops(t *testing.T) {
	f := &fakeLLM{texts: []string{"only draft"}, rubrics: []string{"this is not json"}}
	r := NewRefiner(f, DefaultRefinerConfig())

	out, err := r.Refine(context.Background(), stories)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if out.Confidence != MalformedConfidence {
		t.Errorf("Expected fallback confidence %f, got %f", MalformedConfidence, out.Confidence)
	}
	if !out.Converged || f.textCalls != 1 {
		t.Errorf("Expected the loop to stop without regenerating, got converged=%v text calls=%d", out.Converged, f.textCalls)
	}
}

func TestRefineMalformedBelowThreshold(t *testing.T) {
	f := &fakeLLM{texts: []string{"only draft"}, rubrics: []string{"{broken"}}
	r := NewRefiner(f, RefinerConfig{MaxIterations: 2, ConfidenceThreshold: 0.95})

	out, err := r.Refine(context.Background(), stories)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	// No improvements on a malformed rubric, so the draft passes through.
	if out.Content != "only draft" || f.textCalls != 1 {
		t.Errorf("Expected unchanged draft without extra generation, got %q after %d calls", out.Content, f.textCalls)
	}
	if out.Iterations != 2 || out.Converged {
		t.Errorf("Expected budget exhaustion, got %d iterations converged=%v", out.Iterations, out.Converged)
	}
}

func TestRefineExhaustsBudget(t *testing.T) {
	f := &fakeLLM{texts: []string{"v1", "v2", "v3", "v4"}, rubrics: []string{weakRubric}}
	r := NewRefiner(f, DefaultRefinerConfig())

	out, err := r.Refine(context.Background(), stories)
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if out.Converged || out.Iterations != 3 {
		t.Errorf("Expected 3 unconverged iterations, got %d converged=%v", out.Iterations, out.Converged)
	}
	if out.Content != "v4" {
		t.Errorf("Expected the last regenerated draft, got %q", out.Content)
	}
	if f.jsonCalls != 3 {
		t.Errorf("Expected 3 assessments, got %d", f.jsonCalls)
	}
}

func TestRefineGenerationFailure(t *testing.T) {
	f := &fakeLLM{textErr: errors.New("quota exceeded"), rubrics: []string{strongRubric}}
	r := NewRefiner(f, DefaultRefinerConfig())

	if _, err := r.Refine(context.Background(), stories); err == nil {
		t.Fatal("Expected initial generation failure to abort")
	}
	if _, err := r.Refine(context.Background(), nil); err == nil {
		t.Fatal("Expected error for no stories")
	}
}

func TestActPassThroughWithoutImprovements(t *testing.T) {
	r := NewRefiner(&fakeLLM{}, DefaultRefinerConfig())
	next, err := r.Act(context.Background(), Assessment{Draft: Draft{Content: "keep me", Iteration: 1}})
	if err != nil {
		t.Fatalf("Act failed: %v", err)
	}
	if next.Content != "keep me" || next.Iteration != 2 {
		t.Errorf("Expected pass-through with bumped iteration, got %+v", next)
	}
}

func TestObserveKeepsActedDraft(t *testing.T) {
	client := &fakeLLM{texts: []string{"fresh first draft"}}
	r := NewRefiner(client, DefaultRefinerConfig())

	got, err := r.Observe(context.Background(), Draft{Stories: stories, Iteration: 1})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if client.textCalls != 0 || got.Content != "" || got.Iteration != 1 {
		t.Errorf("Expected acted draft passed through untouched, got %+v after %d calls", got, client.textCalls)
	}

	first, err := r.Observe(context.Background(), Draft{Stories: stories})
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if client.textCalls != 1 || first.Content != "fresh first draft" {
		t.Errorf("Expected first draft generated, got %+v", first)
	}
}

func TestStoriesFrom(t *testing.T) {
	items := []core.RankedItem{
		{Article: core.Article{Title: "A", Category: "Tech", Summary: "s", URL: "u"}, Rank: 1},
	}
	got := StoriesFrom(items)
	if len(got) != 1 || got[0] != (Story{Title: "A", Category: "Tech", Summary: "s", URL: "u"}) {
		t.Errorf("Unexpected stories: %+v", got)
	}
}

func TestGenerateScript(t *testing.T) {
	f := &fakeLLM{texts: []string{"Hey Gen Z! What's good?"}}
	script, err := GenerateScript(context.Background(), f, stories, 5)
	if err != nil {
		t.Fatalf("GenerateScript failed: %v", err)
	}
	if script != "Hey Gen Z! What's good?" {
		t.Errorf("Unexpected script %q", script)
	}
	if !strings.Contains(f.textPrompts[0], "~750 words") || !strings.Contains(f.textPrompts[0], "1. Student loan relief expanded") {
		t.Errorf("Expected sized prompt listing stories, got %q", f.textPrompts[0])
	}

	if _, err := GenerateScript(context.Background(), f, nil, 5); err == nil {
		t.Error("Expected error for no stories")
	}
}
