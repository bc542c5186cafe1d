package relevance

import (
	"fmt"
	"strings"
	"time"

	"genzweekly/internal/core"
)

// Composite score weights. The four terms are summed and capped at 1.
const (
	RelevanceWeight     = 0.5
	DefaultRelevance    = 0.5
	CredibleBonus       = 0.1
	UncredibleBonus     = 0.05
	DepthBonus          = 0.1
	ShallowBonus        = 0.05
	DepthSummaryLength  = 300
	HighRelevanceCutoff = 0.8
	RelevantCutoff      = 0.7
)

// credibleSources is matched verbatim against Article.Source.
var credibleSources = map[string]struct{}{
	"Reuters":                  {},
	"AP News":                  {},
	"BBC":                      {},
	"ESPN":                     {},
	"TechCrunch":               {},
	"Bloomberg":                {},
	"The Verge":                {},
	"MIT Technology Review AI": {},
}

// IsCredibleSource reports whether source is one of the recognized outlets.
func IsCredibleSource(source string) bool {
	_, ok := credibleSources[source]
	return ok
}

// Breakdown holds the individual composite terms.
type Breakdown struct {
	Relevance   float64
	Recency     float64
	Credibility float64
	Quality     float64
}

// Total is the capped sum of the terms.
func (b Breakdown) Total() float64 {
	return core.Clamp01(b.Relevance + b.Recency + b.Credibility + b.Quality)
}

// CompositeScorer combines model relevance with recency, source credibility
// and content depth.
type CompositeScorer struct {
	// Now is the reference clock for recency. Defaults to time.Now.
	Now func() time.Time
}

// NewCompositeScorer returns a scorer using the wall clock.
func NewCompositeScorer() *CompositeScorer {
	return &CompositeScorer{Now: time.Now}
}

func (s *CompositeScorer) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Score returns the composite score of a, in [0, 1].
func (s *CompositeScorer) Score(a core.Article) float64 {
	return s.Breakdown(a).Total()
}

// Breakdown returns the clamped terms that make up the composite score.
func (s *CompositeScorer) Breakdown(a core.Article) Breakdown {
	b := Breakdown{
		Relevance:   core.Clamp01(a.Relevance(DefaultRelevance)) * RelevanceWeight,
		Credibility: UncredibleBonus,
		Quality:     ShallowBonus,
	}

	if days, ok := s.ageDays(a); ok {
		switch {
		case days <= 1:
			b.Recency = 0.3
		case days <= 3:
			b.Recency = 0.2
		case days <= 7:
			b.Recency = 0.1
		}
	}
	if IsCredibleSource(a.Source) {
		b.Credibility = CredibleBonus
	}
	if len(a.Summary) > DepthSummaryLength {
		b.Quality = DepthBonus
	}
	return b
}

// SelectionReason explains why a was picked, e.g.
// "Top story in Tech, highly relevant, breaking news, from Reuters".
func (s *CompositeScorer) SelectionReason(a core.Article, categoryRank int, category string) string {
	var parts []string

	if categoryRank == 1 {
		parts = append(parts, "Top story in "+category)
	} else {
		parts = append(parts, fmt.Sprintf("#%d in %s", categoryRank, category))
	}

	if a.RelevanceScore != nil {
		switch r := *a.RelevanceScore; {
		case r >= HighRelevanceCutoff:
			parts = append(parts, "highly relevant")
		case r >= RelevantCutoff:
			parts = append(parts, "relevant")
		}
	}

	if days, ok := s.ageDays(a); ok {
		switch {
		case days <= 0:
			parts = append(parts, "breaking news")
		case days <= 2:
			parts = append(parts, "recent")
		}
	}

	if IsCredibleSource(a.Source) {
		parts = append(parts, "from "+a.Source)
	}

	return strings.Join(parts, ", ")
}

// ageDays returns whole days since publication. A zero date has no age.
func (s *CompositeScorer) ageDays(a core.Article) (int, bool) {
	if a.PublishDate.IsZero() {
		return 0, false
	}
	return int(s.now().Sub(a.PublishDate).Hours() / 24), true
}
