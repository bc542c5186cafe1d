package relevance

import (
	"context"
	"math"
	"strings"

	"genzweekly/internal/core"
)

// Assessor rates how relevant an article is to a Gen Z audience, from 0 to 1.
// The LLM client implements it; KeywordAssessor is the offline fallback.
type Assessor interface {
	AssessRelevance(ctx context.Context, article core.Article) (float64, error)
}

// AssessorFunc adapts a function to Assessor.
type AssessorFunc func(ctx context.Context, article core.Article) (float64, error)

func (f AssessorFunc) AssessRelevance(ctx context.Context, article core.Article) (float64, error) {
	return f(ctx, article)
}

// GenZKeywords are the default interest terms for KeywordAssessor.
var GenZKeywords = []string{
	"student", "college", "tiktok", "instagram", "youtube", "gaming", "esports",
	"music", "tour", "climate", "ai", "jobs", "rent", "loan", "mental health",
	"social media", "creator", "streaming", "sneaker", "nba", "playoff",
	"election", "vote", "iphone", "app",
}

// KeywordAssessor scores articles by keyword coverage in the title and
// summary. It needs no network and is used when no model key is configured.
type KeywordAssessor struct {
	Keywords []string
}

// NewKeywordAssessor returns an assessor over GenZKeywords.
func NewKeywordAssessor() *KeywordAssessor {
	return &KeywordAssessor{Keywords: GenZKeywords}
}

// AssessRelevance weights title matches above summary matches.
func (k *KeywordAssessor) AssessRelevance(ctx context.Context, article core.Article) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(k.Keywords) == 0 {
		return DefaultRelevance, nil
	}

	title := textRelevance(" "+normalize(article.Title)+" ", k.Keywords)
	body := textRelevance(" "+normalize(article.Summary)+" ", k.Keywords)
	return core.Clamp01(0.2 + title*0.4 + body*0.4), nil
}

// textRelevance mixes keyword coverage with a log-damped match frequency.
func textRelevance(text string, keywords []string) float64 {
	totalMatches := 0
	uniqueMatches := 0
	for _, kw := range keywords {
		n := strings.Count(text, " "+strings.ToLower(kw)+" ")
		if n > 0 {
			uniqueMatches++
			totalMatches += n
		}
	}
	if uniqueMatches == 0 {
		return 0
	}

	coverage := float64(uniqueMatches) / float64(len(keywords))
	frequency := math.Log(float64(totalMatches)+1) / math.Log(float64(len(keywords)*3)+1)
	return math.Min(1, coverage*0.7+frequency*0.3)
}

// normalize lower-cases s and replaces punctuation with spaces so keywords
// match on word boundaries.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127 {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
