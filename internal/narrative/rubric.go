package narrative

import (
	"fmt"

	"google.golang.org/genai"
)

// Rubric is the model's assessment of a newsletter draft. Sub-scores are 0-10.
type Rubric struct {
	EngagementScore   float64  `json:"engagement_score"`
	ClarityScore      float64  `json:"clarity_score"`
	ToneScore         float64  `json:"tone_score"`
	RelevanceScore    float64  `json:"relevance_score"`
	WritingScore      float64  `json:"writing_score"`
	OverallConfidence *float64 `json:"overall_confidence,omitempty"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Improvements      []string `json:"improvements"`
}

// Average is the normalized mean of the five sub-scores.
func (r Rubric) Average() float64 {
	return (r.EngagementScore + r.ClarityScore + r.ToneScore + r.RelevanceScore + r.WritingScore) / 50
}

// Confidence prefers the model's own overall confidence over the average.
func (r Rubric) Confidence() float64 {
	if r.OverallConfidence != nil {
		return *r.OverallConfidence
	}
	return r.Average()
}

func scoreSchema(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeNumber,
		Description: description,
	}
}

func listSchema(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

// RubricSchema is the structured-output schema for Rubric.
func RubricSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"engagement_score":   scoreSchema("0-10: is it exciting and attention-grabbing?"),
			"clarity_score":      scoreSchema("0-10: are explanations clear and easy to understand?"),
			"tone_score":         scoreSchema("0-10: does it match \"excited teenager with composure\"?"),
			"relevance_score":    scoreSchema("0-10: does it explain why stories matter to Gen Z?"),
			"writing_score":      scoreSchema("0-10: short sentences, active voice, good flow?"),
			"overall_confidence": scoreSchema("0.0-1.0: how ready the content is to publish"),
			"strengths":          listSchema("What works well"),
			"weaknesses":         listSchema("What does not work"),
			"improvements":       listSchema("Specific, actionable changes"),
		},
		Required: []string{
			"engagement_score", "clarity_score", "tone_score", "relevance_score",
			"writing_score", "strengths", "weaknesses", "improvements",
		},
	}
}

func buildAssessmentPrompt(content string) string {
	return fmt.Sprintf(`Assess the quality of this Gen Z newsletter content and provide actionable feedback.

CONTENT TO REVIEW:
%s

EVALUATION CRITERIA:
1. Engagement (0-10): Is it exciting and attention-grabbing?
2. Clarity (0-10): Are explanations clear and easy to understand?
3. Tone (0-10): Does it match "excited teenager with composure"?
4. Relevance (0-10): Does it explain why stories matter to Gen Z?
5. Writing Quality (0-10): Short sentences, active voice, good flow?

Also give an overall_confidence between 0.0 and 1.0, your strengths, weaknesses and specific improvements.`, content)
}
