// Package observability forwards pipeline events to PostHog product analytics.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"genzweekly/internal/config"
	"genzweekly/internal/events"
	"genzweekly/internal/logger"

	"github.com/posthog/posthog-go"
)

// DistinctID identifies the pipeline as the acting user in PostHog.
const DistinctID = "genzweekly-pipeline"

// enqueuer is the part of the PostHog client the tracker uses
type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// PostHogClient wraps the PostHog SDK for product analytics
type PostHogClient struct {
	client  enqueuer
	enabled bool
	log     *slog.Logger
}

// EventProperties contains properties for an event
type EventProperties map[string]interface{}

// NewPostHogClient creates a new PostHog analytics client. A disabled
// configuration yields a client whose calls are no-ops.
func NewPostHogClient(cfg config.PostHog) (*PostHogClient, error) {
	log := logger.With("observability")
	if !cfg.Enabled {
		return &PostHogClient{log: log}, nil
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostHog enabled but missing API key")
	}

	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{
		Endpoint: cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PostHog client: %w", err)
	}

	return &PostHogClient{client: client, enabled: true, log: log}, nil
}

// IsEnabled returns whether PostHog tracking is enabled
func (p *PostHogClient) IsEnabled() bool {
	return p.enabled
}

// Capture sends an event to PostHog
func (p *PostHogClient) Capture(ctx context.Context, distinctID string, event string, properties EventProperties) error {
	if !p.enabled {
		return nil
	}

	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	return p.client.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: props,
	})
}

// TrackEvent records a pipeline event with its data, agent and correlation id.
func (p *PostHogClient) TrackEvent(ctx context.Context, e events.Event) error {
	properties := EventProperties{
		"agent_id":       e.AgentID,
		"correlation_id": e.CorrelationID,
	}
	for k, v := range e.Data {
		properties[k] = v
	}
	return p.Capture(ctx, DistinctID, string(e.Type), properties)
}

// Subscribe tracks every pipeline event type. Tracking failures are logged
// and never fail the publishing agent.
func (p *PostHogClient) Subscribe(bus *events.Bus) {
	if !p.enabled {
		return
	}
	handler := func(ctx context.Context, e events.Event) error {
		if err := p.TrackEvent(ctx, e); err != nil {
			p.log.Warn("Failed to track event", "event_type", e.Type, "error", err)
		}
		return nil
	}
	for _, t := range []events.Type{
		events.NewsScraped,
		events.ConsolidationReady,
		events.ApprovalRequested,
		events.ApprovalReceived,
		events.ContentFormatted,
		events.AudioGenerated,
		events.ReadyToPublish,
		events.TwitterPublished,
		events.WebsitePublished,
		events.ErrorOccurred,
	} {
		bus.Subscribe(t, handler)
	}
}

// Shutdown flushes pending events and closes the client
func (p *PostHogClient) Shutdown(ctx context.Context) error {
	if !p.enabled {
		return nil
	}

	return p.client.Close()
}
