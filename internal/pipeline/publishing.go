package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"genzweekly/internal/email"
	"genzweekly/internal/events"
	"genzweekly/internal/narrative"
	"genzweekly/internal/social"
	"genzweekly/internal/store"
	"genzweekly/internal/tts"
)

// Approve records the editor's approval and announces it, which starts
// formatting when the pipeline is wired.
func (p *Pipeline) Approve(ctx context.Context, weekID, note string) error {
	return p.decide(ctx, weekID, store.StatusApproved, note)
}

// Reject records the editor's rejection. Nothing is formatted.
func (p *Pipeline) Reject(ctx context.Context, weekID, note string) error {
	return p.decide(ctx, weekID, store.StatusRejected, note)
}

func (p *Pipeline) decide(ctx context.Context, weekID string, status store.Status, note string) error {
	e, err := p.RecordDecision(ctx, weekID, status, note)
	if err != nil {
		return err
	}
	return p.Announce(ctx, e)
}

// RecordDecision stores the editor's decision and returns the
// approval_received event for it without publishing it.
func (p *Pipeline) RecordDecision(ctx context.Context, weekID string, status store.Status, note string) (events.Event, error) {
	if err := p.store.SetApproval(ctx, weekID, status, note); err != nil {
		return events.Event{}, err
	}
	p.log.Info("Approval recorded", "week_id", weekID, "status", status)

	return events.Follow(newRun(), events.ApprovalReceived, AgentApproval, map[string]any{
		"week_id": weekID,
		"status":  string(status),
		"note":    note,
	}), nil
}

// Announce publishes a recorded decision. On approval this runs the
// formatter and audio agents before returning.
func (p *Pipeline) Announce(ctx context.Context, e events.Event) error {
	return p.bus.Publish(ctx, e)
}

// FormatWeek refines the approved week's newsletter copy and prepares the
// thread. It handles approval_received and emits content_formatted.
func (p *Pipeline) FormatWeek(ctx context.Context, e events.Event) error {
	week, err := p.loadWeek(ctx, e.String("week_id"))
	if err != nil {
		return err
	}
	if week.Status != store.StatusApproved {
		return fmt.Errorf("%w: %s is %s", ErrNotApproved, week.Week.ID, week.Status)
	}
	if p.refiner == nil {
		return fmt.Errorf("content refiner: %w", ErrNotConfigured)
	}

	refined, err := p.refiner.Refine(ctx, narrative.StoriesFrom(week.Stories))
	if err != nil {
		return fmt.Errorf("refine newsletter: %w", err)
	}
	if !refined.Converged {
		p.log.Warn("Newsletter below confidence threshold",
			"week_id", week.Week.ID, "confidence", refined.Confidence, "iterations", refined.Iterations)
	}

	newsletter, err := email.RenderNewsletter(week.Week, refined.Content, email.GetNewsletterEmailTemplate())
	if err != nil {
		return err
	}
	if _, err := p.store.SaveArtifact(ctx, week.Week.ID, FormatNewsletter, "html", []byte(newsletter)); err != nil {
		return err
	}

	thread, err := json.MarshalIndent(social.BuildThread(week.Stories, p.config.MaxThreadStories), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode thread: %w", err)
	}
	if _, err := p.store.SaveArtifact(ctx, week.Week.ID, FormatThread, "json", thread); err != nil {
		return err
	}

	p.emit(ctx, e, events.ContentFormatted, AgentFormatter, map[string]any{
		"week_id":    week.Week.ID,
		"confidence": refined.Confidence,
		"iterations": refined.Iterations,
		"converged":  refined.Converged,
	})
	return nil
}

// GenerateAudio writes the podcast script and, when a voice is configured,
// synthesizes it. It handles content_formatted and emits audio_generated.
func (p *Pipeline) GenerateAudio(ctx context.Context, e events.Event) error {
	week, err := p.loadWeek(ctx, e.String("week_id"))
	if err != nil {
		return err
	}
	if p.scripts == nil {
		return fmt.Errorf("script writer: %w", ErrNotConfigured)
	}

	script, err := p.scripts.WriteScript(ctx, narrative.StoriesFrom(week.Stories), p.config.PodcastMinutes)
	if err != nil {
		return fmt.Errorf("write script: %w", err)
	}
	if _, err := p.store.SaveArtifact(ctx, week.Week.ID, FormatScript, "txt", []byte(script)); err != nil {
		return err
	}

	hasAudio := false
	if p.speaker == nil {
		p.log.Warn("No voice configured, skipping audio", "week_id", week.Week.ID)
	} else {
		text := tts.PrepareScript(script)
		audio, err := p.speaker.Synthesize(ctx, text)
		if err != nil {
			return fmt.Errorf("synthesize podcast: %w", err)
		}
		if _, err := p.store.SaveArtifact(ctx, week.Week.ID, FormatPodcast, "mp3", audio); err != nil {
			return err
		}
		hasAudio = true
		p.log.Info("Podcast generated", "week_id", week.Week.ID,
			"bytes", len(audio), "minutes", tts.EstimateAudioLength(text))
	}

	p.emit(ctx, e, events.AudioGenerated, AgentAudio, map[string]any{
		"week_id":   week.Week.ID,
		"has_audio": hasAudio,
	})
	return nil
}

// PublishWeek announces an approved week as ready to publish. The newsletter
// is formatted first when it does not exist yet.
func (p *Pipeline) PublishWeek(ctx context.Context, weekID string) error {
	week, err := p.loadWeek(ctx, weekID)
	if err != nil {
		return err
	}
	if week.Status != store.StatusApproved {
		return fmt.Errorf("%w: %s is %s", ErrNotApproved, weekID, week.Status)
	}

	run := newRun()
	if _, err := p.store.LoadArtifact(ctx, weekID, FormatNewsletter); errors.Is(err, store.ErrNotFound) {
		p.log.Info("Newsletter missing, formatting first", "week_id", weekID)
		if err := p.FormatWeek(ctx, events.Follow(run, events.ApprovalReceived, AgentPublisher,
			map[string]any{"week_id": weekID, "status": string(store.StatusApproved)})); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	e := events.Follow(run, events.ReadyToPublish, AgentPublisher, map[string]any{
		"week_id":     weekID,
		"story_count": len(week.Stories),
	})
	p.log.Info("Emitted event", "event_type", e.Type, "agent_id", AgentPublisher, "correlation_id", e.CorrelationID)
	return p.bus.Publish(ctx, e)
}

// PublishThread posts the week's thread. It handles ready_to_publish and
// emits twitter_published.
func (p *Pipeline) PublishThread(ctx context.Context, e events.Event) error {
	weekID := e.String("week_id")
	if p.poster == nil {
		p.log.Warn("X posting not configured, skipping thread", "week_id", weekID)
		return nil
	}

	artifact, err := p.store.LoadArtifact(ctx, weekID, FormatThread)
	if err != nil {
		return err
	}
	var tweets []social.Tweet
	if err := json.Unmarshal(artifact.Content, &tweets); err != nil {
		return fmt.Errorf("failed to decode thread: %w", err)
	}

	ids, err := p.poster.PostThread(ctx, tweets)
	if errors.Is(err, social.ErrNotConfigured) {
		p.log.Warn("X posting not configured, skipping thread", "week_id", weekID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("posted %d of %d tweets: %w", len(ids), len(tweets), err)
	}

	p.emit(ctx, e, events.TwitterPublished, AgentTwitter, map[string]any{
		"week_id": weekID,
		"tweets":  len(ids),
	})
	return nil
}

// PublishWebsite writes and deploys the week's page. It handles
// ready_to_publish and emits website_published.
func (p *Pipeline) PublishWebsite(ctx context.Context, e events.Event) error {
	if p.site == nil {
		p.log.Warn("Website not configured, skipping page", "week_id", e.String("week_id"))
		return nil
	}
	week, err := p.loadWeek(ctx, e.String("week_id"))
	if err != nil {
		return err
	}

	var audio []byte
	podcast, err := p.store.LoadArtifact(ctx, week.Week.ID, FormatPodcast)
	switch {
	case err == nil:
		audio = podcast.Content
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	res, err := p.site.Publish(ctx, *week, audio)
	if err != nil {
		return err
	}

	p.emit(ctx, e, events.WebsitePublished, AgentWebsite, map[string]any{
		"week_id":  week.Week.ID,
		"path":     res.PagePath,
		"deployed": res.Deployed,
	})
	return nil
}
