// Package narrative writes and polishes the newsletter and podcast copy for a
// weekly selection.
package narrative

import (
	"context"
	"fmt"
	"strings"

	"genzweekly/internal/core"
	"genzweekly/internal/llm"

	"google.golang.org/genai"
)

// LLMClient defines the LLM operations needed by the narrative package.
type LLMClient interface {
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any, options llm.TextGenerationOptions) error
}

// Story is the part of a ranked article the copy is written from.
type Story struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// StoriesFrom converts a ranked selection, keeping its order.
func StoriesFrom(items []core.RankedItem) []Story {
	stories := make([]Story, len(items))
	for i, item := range items {
		stories[i] = Story{
			Title:    item.Article.Title,
			Category: item.Article.Category,
			Summary:  item.Article.Summary,
			URL:      item.Article.URL,
		}
	}
	return stories
}

func buildNewsletterPrompt(stories []Story) string {
	var prompt strings.Builder
	prompt.WriteString("Write engaging newsletter content for these stories.\n\n")
	prompt.WriteString("Tone: Excited teenager with composure\n")
	prompt.WriteString("Audience: Gen Z\n")
	prompt.WriteString("Format: HTML-friendly text (will be templated later)\n\n")
	prompt.WriteString("Stories:\n")
	for _, s := range stories {
		prompt.WriteString(fmt.Sprintf("Title: %s\nCategory: %s\nSummary: %s\n\n", s.Title, s.Category, s.Summary))
	}
	prompt.WriteString("For each story:\n")
	prompt.WriteString("- Catchy headline\n")
	prompt.WriteString("- 100-150 word summary in engaging style\n")
	prompt.WriteString("- Why it matters to Gen Z\n\n")
	prompt.WriteString("Use short sentences, active voice, occasional exclamation points (but not excessive).")
	return prompt.String()
}

func buildImprovementPrompt(content string, weaknesses, improvements []string) string {
	var prompt strings.Builder
	prompt.WriteString("Improve this Gen Z newsletter content based on specific feedback.\n\n")
	prompt.WriteString("CURRENT CONTENT:\n")
	prompt.WriteString(content)
	prompt.WriteString("\n\nIDENTIFIED WEAKNESSES:\n")
	for _, w := range weaknesses {
		prompt.WriteString("- " + w + "\n")
	}
	prompt.WriteString("\nSPECIFIC IMPROVEMENTS TO MAKE:\n")
	for _, imp := range improvements {
		prompt.WriteString("- " + imp + "\n")
	}
	prompt.WriteString(`
REQUIREMENTS:
- Keep the same stories but improve the writing
- Make it MORE engaging and exciting for Gen Z
- Ensure tone is "excited teenager with composure"
- Use short sentences, active voice, occasional exclamation points
- Explain WHY each story matters to young people
- Maintain HTML-friendly formatting (use <div class="story"> for each story)

Generate the IMPROVED newsletter content following the feedback above.`)
	return prompt.String()
}

// ScriptWordsPerMinute is the speaking rate used to size podcast scripts.
const ScriptWordsPerMinute = 150

func buildScriptPrompt(stories []Story, minutes int) string {
	if len(stories) > 7 {
		stories = stories[:7]
	}

	var list strings.Builder
	for i, s := range stories {
		summary := []rune(s.Summary)
		if len(summary) > 150 {
			summary = summary[:150]
		}
		list.WriteString(fmt.Sprintf("%d. %s: %s...\n", i+1, s.Title, string(summary)))
	}

	return fmt.Sprintf(`Create a %d-minute podcast script for "Gen Z News Weekly" - a real, engaging news podcast.

Tone: Excited teenager with composure - energetic but credible, like a real Gen Z host
Target: Gen Z listeners (ages 16-26)
Word count: ~%d words
Style: Natural, conversational, like talking to friends

Stories to cover:
%s
Script Structure:
- INTRO (30-45 sec): energetic greeting, a hook, preview the top 3 stories
- STORY SEGMENTS: for each story a natural transition, the headline, why it matters to Gen Z specifically and a short honest take
- OUTRO (30 sec): wrap up, call to follow, sign off with "Stay informed, stay real. Peace out!"

Requirements:
- Sound like a real Gen Z person talking, not reading
- Use natural speech patterns
- Don't use [PAUSE] markers - just natural flow

Write the full script as if you're the host speaking directly to listeners.`, minutes, minutes*ScriptWordsPerMinute, list.String())
}

// GenerateScript writes a spoken podcast script of roughly the given length.
func GenerateScript(ctx context.Context, client LLMClient, stories []Story, minutes int) (string, error) {
	if len(stories) == 0 {
		return "", fmt.Errorf("no stories provided")
	}
	if minutes <= 0 {
		minutes = 5
	}

	script, err := client.GenerateText(ctx, buildScriptPrompt(stories, minutes), llm.TextGenerationOptions{
		MaxTokens:   3000,
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("script generation failed: %w", err)
	}
	return strings.TrimSpace(script), nil
}
