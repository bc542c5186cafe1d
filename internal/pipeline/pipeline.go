package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/events"
	"genzweekly/internal/logger"
	"genzweekly/internal/store"
)

// Artifact formats saved per week.
const (
	FormatApprovalReport = "approval_report"
	FormatNewsletter     = "newsletter"
	FormatThread         = "twitter_thread"
	FormatScript         = "podcast_script"
	FormatPodcast        = "podcast"
)

// Agent ids used on emitted events.
const (
	AgentScraper       = "scraper_agent"
	AgentConsolidation = "consolidation_agent"
	AgentApproval      = "approval"
	AgentFormatter     = "formatter_agent"
	AgentAudio         = "audio_agent"
	AgentPublisher     = "publisher"
	AgentTwitter       = "twitter_agent"
	AgentWebsite       = "website_agent"
)

var (
	// ErrNoStories is returned when a week has nothing to rank or format.
	ErrNoStories = errors.New("no stories for week")
	// ErrNotApproved is returned when publishing a week that is not approved.
	ErrNotApproved = errors.New("week is not approved")
	// ErrNotConfigured is returned when a stage's component is missing.
	ErrNotConfigured = errors.New("component not configured")
)

// Pipeline orchestrates the weekly workflow. Each stage is an agent that
// reacts to events on the bus and announces its own results there.
type Pipeline struct {
	bus   *events.Bus
	store *store.Store

	scraper ArticleScraper
	filter  ArticleFilter
	ranker  WeeklyRanker
	refiner ContentRefiner
	scripts ScriptWriter
	mailer  ApprovalMailer
	speaker Synthesizer
	poster  ThreadPoster
	site    SitePublisher
	config  *Config
	log     *slog.Logger
	wired   bool
	closers []func() error
}

// Config holds pipeline configuration
type Config struct {
	Categories       []core.CategoryConfig
	SourcesFor       func(category string) []core.Source
	PodcastMinutes   int
	MaxThreadStories int
	CommandName      string // Shown in approval instructions
	Now              func() time.Time
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		PodcastMinutes:   5,
		MaxThreadStories: 5,
		CommandName:      "genzweekly",
		Now:              time.Now,
	}
}

// Components are the stage implementations. Optional ones may be nil; the
// stage that needs them then reports ErrNotConfigured or skips.
type Components struct {
	Scraper ArticleScraper
	Filter  ArticleFilter
	Ranker  WeeklyRanker
	Refiner ContentRefiner
	Scripts ScriptWriter
	Mailer  ApprovalMailer
	Speaker Synthesizer
	Poster  ThreadPoster
	Site    SitePublisher
}

// NewPipeline creates a pipeline over the given bus and store
func NewPipeline(bus *events.Bus, st *store.Store, c Components, config *Config) *Pipeline {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.PodcastMinutes <= 0 {
		config.PodcastMinutes = def.PodcastMinutes
	}
	if config.MaxThreadStories <= 0 {
		config.MaxThreadStories = def.MaxThreadStories
	}
	if config.CommandName == "" {
		config.CommandName = def.CommandName
	}
	if config.Now == nil {
		config.Now = def.Now
	}
	if config.SourcesFor == nil {
		config.SourcesFor = func(string) []core.Source { return nil }
	}
	if bus == nil {
		bus = events.NewBus(0)
	}

	return &Pipeline{
		bus:     bus,
		store:   st,
		scraper: c.Scraper,
		filter:  c.Filter,
		ranker:  c.Ranker,
		refiner: c.Refiner,
		scripts: c.Scripts,
		mailer:  c.Mailer,
		speaker: c.Speaker,
		poster:  c.Poster,
		site:    c.Site,
		config:  config,
		log:     logger.With("pipeline"),
	}
}

// Bus returns the pipeline's event bus.
func (p *Pipeline) Bus() *events.Bus {
	return p.bus
}

// Store returns the pipeline's archive.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// OnClose registers fn to run when the pipeline is closed.
func (p *Pipeline) OnClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close runs the registered shutdown hooks, newest first, then closes the
// store.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	return errors.Join(errs...)
}

// Wire subscribes the publishing agents to the bus:
//
//	approval_received -> formatter -> content_formatted
//	content_formatted -> audio     -> audio_generated
//	ready_to_publish  -> twitter   -> twitter_published
//	ready_to_publish  -> website   -> website_published
//
// Calling Wire more than once has no effect.
func (p *Pipeline) Wire() {
	if p.wired {
		return
	}
	p.wired = true

	p.bus.Subscribe(events.ApprovalReceived, p.agent(AgentFormatter, func(ctx context.Context, e events.Event) error {
		if store.Status(e.String("status")) != store.StatusApproved {
			return nil
		}
		return p.FormatWeek(ctx, e)
	}))
	p.bus.Subscribe(events.ContentFormatted, p.agent(AgentAudio, p.GenerateAudio))
	p.bus.Subscribe(events.ReadyToPublish, p.agent(AgentTwitter, p.PublishThread))
	p.bus.Subscribe(events.ReadyToPublish, p.agent(AgentWebsite, p.PublishWebsite))
}

// agent wraps a handler so failures are announced as error_occurred events.
func (p *Pipeline) agent(id string, h events.Handler) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		err := h(ctx, e)
		if err == nil {
			return nil
		}
		p.reportError(ctx, e, id, err)
		return fmt.Errorf("%s: %w", id, err)
	}
}

func (p *Pipeline) reportError(ctx context.Context, cause events.Event, agentID string, err error) {
	data := map[string]any{"error": err.Error(), "agent": agentID}
	if week := cause.String("week_id"); week != "" {
		data["week_id"] = week
	}
	_ = p.bus.Publish(ctx, events.Follow(cause, events.ErrorOccurred, agentID, data))
}

// emit publishes an event continuing parent's correlation chain. Failures of
// downstream agents are reported by those agents, not the emitter.
func (p *Pipeline) emit(ctx context.Context, parent events.Event, t events.Type, agentID string, data map[string]any) {
	e := events.Follow(parent, t, agentID, data)
	p.log.Info("Emitted event", "event_type", t, "agent_id", agentID, "correlation_id", e.CorrelationID)
	if err := p.bus.Publish(ctx, e); err != nil {
		p.log.Debug("Downstream agents failed", "event_type", t, "error", err)
	}
}

func (p *Pipeline) loadWeek(ctx context.Context, weekID string) (*store.ProcessedWeek, error) {
	if weekID == "" {
		return nil, fmt.Errorf("no week_id in event")
	}
	week, err := p.store.LoadProcessed(ctx, weekID)
	if err != nil {
		return nil, fmt.Errorf("load week %s: %w", weekID, err)
	}
	if len(week.Stories) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoStories, weekID)
	}
	return week, nil
}

// ResolveWeek returns weekID, or the most recently consolidated week when
// weekID is empty.
func (p *Pipeline) ResolveWeek(ctx context.Context, weekID string) (string, error) {
	if weekID != "" {
		return weekID, nil
	}
	latest, err := p.store.LatestWeek(ctx)
	if err != nil {
		return "", fmt.Errorf("no consolidated week found: %w", err)
	}
	return latest, nil
}
