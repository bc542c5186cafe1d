package pipeline

import (
	"context"

	"genzweekly/internal/core"
	"genzweekly/internal/narrative"
	"genzweekly/internal/ranking"
	"genzweekly/internal/social"
	"genzweekly/internal/store"
	"genzweekly/internal/website"
)

// ArticleScraper collects the day's articles for one category
type ArticleScraper interface {
	// ScrapeCategory fetches every source of the category; failing sources
	// are skipped
	ScrapeCategory(ctx context.Context, category string, sources []core.Source) ([]core.Article, error)
}

// ArticleFilter keeps the articles worth ranking and attaches relevance scores
type ArticleFilter interface {
	Filter(ctx context.Context, articles []core.Article) ([]core.Article, error)
}

// WeeklyRanker selects and orders the week's stories
type WeeklyRanker interface {
	// Rank takes the week's articles grouped by category
	Rank(ctx context.Context, weekly map[string][]core.Article) (ranking.Result, error)
}

// ContentRefiner writes and polishes the newsletter copy
type ContentRefiner interface {
	Refine(ctx context.Context, stories []narrative.Story) (narrative.Refined, error)
}

// ScriptWriter writes the spoken podcast script
type ScriptWriter interface {
	WriteScript(ctx context.Context, stories []narrative.Story, minutes int) (string, error)
}

// ApprovalMailer sends the weekly approval request
type ApprovalMailer interface {
	SendApprovalRequest(week store.ProcessedWeek, command string) error
}

// Synthesizer converts a script to MP3 audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ThreadPoster publishes a tweet thread and returns the posted ids
type ThreadPoster interface {
	PostThread(ctx context.Context, tweets []social.Tweet) ([]string, error)
}

// SitePublisher writes and deploys the week's website page
type SitePublisher interface {
	Publish(ctx context.Context, week store.ProcessedWeek, audio []byte) (website.Result, error)
}
