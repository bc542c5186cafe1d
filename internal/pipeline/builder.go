package pipeline

import (
	"context"
	"fmt"
	"time"

	"genzweekly/internal/config"
	"genzweekly/internal/email"
	"genzweekly/internal/events"
	"genzweekly/internal/feeds"
	"genzweekly/internal/llm"
	"genzweekly/internal/logger"
	"genzweekly/internal/messaging"
	"genzweekly/internal/narrative"
	"genzweekly/internal/observability"
	"genzweekly/internal/quality"
	"genzweekly/internal/ranking"
	"genzweekly/internal/relevance"
	"genzweekly/internal/social"
	"genzweekly/internal/store"
	"genzweekly/internal/tts"
	"genzweekly/internal/website"
)

// Builder helps construct a fully configured Pipeline
type Builder struct {
	cfg       *config.Config
	store     *store.Store
	bus       *events.Bus
	llmClient *llm.Client
	now       func() time.Time
}

// NewBuilder creates a pipeline builder for the given configuration
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// WithStore sets the archive instead of opening the configured database
func (b *Builder) WithStore(st *store.Store) *Builder {
	b.store = st
	return b
}

// WithBus sets the event bus
func (b *Builder) WithBus(bus *events.Bus) *Builder {
	b.bus = bus
	return b
}

// WithLLMClient sets the LLM client instead of creating one from the API key
func (b *Builder) WithLLMClient(client *llm.Client) *Builder {
	b.llmClient = client
	return b
}

// WithClock sets the clock used to date scrapes and pick the week
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build constructs a Pipeline from the configuration. Stages whose
// credentials are missing are left out and skip or report ErrNotConfigured
// when reached.
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	log := logger.With("builder")
	cfg := b.cfg

	st := b.store
	if st == nil {
		opened, err := store.Open(cfg.Storage.Database)
		if err != nil {
			return nil, err
		}
		st = opened
	}
	fail := func(err error) (*Pipeline, error) {
		if b.store == nil {
			_ = st.Close()
		}
		return nil, err
	}

	client := b.llmClient
	if client == nil && cfg.RequireGeminiKey() == nil {
		created, err := llm.NewClient(ctx, llm.Settings{
			APIKey:     cfg.AI.Gemini.APIKey,
			Model:      cfg.AI.Gemini.Model,
			MaxRetries: cfg.AI.Gemini.MaxRetries,
			RetryDelay: config.Duration(cfg.AI.Gemini.RetryDelay, time.Second),
		})
		if err != nil {
			return fail(err)
		}
		client = created
	}

	var c Components
	c.Scraper = feeds.NewScraper(feeds.Options{
		UserAgent:        cfg.Pipeline.UserAgent,
		Timeout:          config.Duration(cfg.Pipeline.FetchTimeout, 10*time.Second),
		MaxEntries:       cfg.Pipeline.MaxEntriesPerFeed,
		MaxAge:           config.Duration(cfg.Pipeline.MaxArticleAge, 14*24*time.Hour),
		SourceDelay:      config.Duration(cfg.Pipeline.ScrapeDelay, 2*time.Second),
		FetchFullContent: true,
	})

	var assessor relevance.Assessor = relevance.NewKeywordAssessor()
	if client != nil {
		assessor = client
	} else {
		log.Warn("No Gemini API key, using keyword relevance and skipping content generation")
	}
	q := cfg.Pipeline.Quality
	c.Filter = quality.New(assessor, quality.Config{
		MaxIterations:       q.MaxIterations,
		ConfidenceThreshold: q.ConfidenceThreshold,
		BatchSize:           q.BatchSize,
		BatchDelay:          config.Duration(q.BatchDelay, time.Second),
		MinKeep:             q.MinKeep,
	})

	scorer := relevance.NewCompositeScorer()
	scorer.Now = b.now
	c.Ranker = ranking.New(cfg.Categories, scorer, ranking.Config{
		MaxIterations:       cfg.Pipeline.Ranking.MaxIterations,
		ConfidenceThreshold: cfg.Pipeline.Ranking.ConfidenceThreshold,
		MaxStories:          cfg.Pipeline.MaxTotalStories,
	})

	if client != nil {
		c.Refiner = narrative.NewRefiner(client, narrative.RefinerConfig{
			MaxIterations:       cfg.Pipeline.Refiner.MaxIterations,
			ConfidenceThreshold: cfg.Pipeline.Refiner.ConfidenceThreshold,
		})
		c.Scripts = NewLLMScriptWriter(client)
	}

	c.Mailer = email.NewSender(cfg.Email)

	if cfg.TTS.ElevenLabs.APIKey != "" {
		c.Speaker = tts.NewTTSClient(&tts.TTSConfig{
			Provider:  tts.ProviderElevenLabs,
			APIKey:    cfg.TTS.ElevenLabs.APIKey,
			VoiceID:   cfg.TTS.ElevenLabs.VoiceID,
			Model:     cfg.TTS.ElevenLabs.Model,
			BaseURL:   cfg.TTS.ElevenLabs.BaseURL,
			OutputDir: cfg.TTS.OutputDirectory,
		})
	}

	if cfg.Social.BearerToken != "" {
		c.Poster = social.NewClient(cfg.Social.BearerToken, cfg.Social.BaseURL,
			config.Duration(cfg.Social.PostDelay, social.DefaultPostDelay),
			config.Duration(cfg.Social.Timeout, 30*time.Second))
	}

	if cfg.Website.OutputDirectory != "" {
		c.Site = website.NewPublisher(website.Options{
			OutputDir:     cfg.Website.OutputDirectory,
			BaseURL:       cfg.Website.BaseURL,
			BuildCommand:  cfg.Website.BuildCommand,
			DeployCommand: cfg.Website.DeployCommand,
		})
	}

	analytics, err := observability.NewPostHogClient(cfg.PostHog)
	if err != nil {
		return fail(err)
	}

	p := NewPipeline(b.bus, st, c, &Config{
		Categories:       cfg.Categories,
		SourcesFor:       cfg.SourcesFor,
		PodcastMinutes:   cfg.Pipeline.PodcastMinutes,
		MaxThreadStories: cfg.Social.MaxStories,
		CommandName:      "genzweekly",
		Now:              b.now,
	})
	p.Wire()

	if analytics.IsEnabled() {
		analytics.Subscribe(p.Bus())
		p.OnClose(func() error { return analytics.Shutdown(context.Background()) })
	}
	notifier := messaging.NewMessagingClient(cfg.Notify.SlackWebhookURL, cfg.Notify.DiscordWebhookURL)
	if notifier.Configured() {
		notifier.Subscribe(p.Bus())
	}
	return p, nil
}
