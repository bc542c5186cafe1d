// Package events carries pipeline notifications between agents.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"genzweekly/internal/logger"

	"github.com/google/uuid"
)

// Type identifies what happened.
type Type string

const (
	NewsScraped        Type = "news_scraped"
	ConsolidationReady Type = "consolidation_ready"
	ApprovalRequested  Type = "approval_requested"
	ApprovalReceived   Type = "approval_received"
	ContentFormatted   Type = "content_formatted"
	AudioGenerated     Type = "audio_generated"
	ReadyToPublish     Type = "ready_to_publish"
	TwitterPublished   Type = "twitter_published"
	WebsitePublished   Type = "website_published"
	ErrorOccurred      Type = "error_occurred"
)

// DefaultHistorySize bounds the bus's event history.
const DefaultHistorySize = 10000

// Event is a single notification.
type Event struct {
	Type          Type           `json:"event_type"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
	AgentID       string         `json:"agent_id"`
	CorrelationID string         `json:"correlation_id"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// New builds an event with a fresh correlation id.
func New(t Type, agentID string, data map[string]any) Event {
	return Event{
		Type:          t,
		Timestamp:     time.Now(),
		Data:          data,
		AgentID:       agentID,
		CorrelationID: uuid.NewString(),
	}
}

// Follow builds an event that continues the correlation chain of parent.
func Follow(parent Event, t Type, agentID string, data map[string]any) Event {
	e := New(t, agentID, data)
	if parent.CorrelationID != "" {
		e.CorrelationID = parent.CorrelationID
	}
	return e
}

// String returns the data value for key formatted as text, or "".
func (e Event) String(key string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event) error

// Bus delivers events to subscribers in subscription order.
type Bus struct {
	mu          sync.Mutex
	subscribers map[Type][]Handler
	history     []Event
	maxHistory  int
	log         *slog.Logger
}

// NewBus creates a bus keeping at most maxHistory events (DefaultHistorySize
// when not positive).
func NewBus(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = DefaultHistorySize
	}
	return &Bus{
		subscribers: make(map[Type][]Handler),
		maxHistory:  maxHistory,
		log:         logger.With("event_bus"),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// Publish records e and calls its subscribers one after another. A failing or
// panicking subscriber does not stop delivery to the others; their errors are
// logged and returned joined.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}

	b.mu.Lock()
	b.history = append(b.history, e)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}
	handlers := append([]Handler(nil), b.subscribers[e.Type]...)
	b.mu.Unlock()

	b.log.Debug("Publishing event", "event_type", e.Type, "agent_id", e.AgentID,
		"correlation_id", e.CorrelationID, "subscribers", len(handlers))

	var errs []error
	for i, h := range handlers {
		if err := b.deliver(ctx, h, e); err != nil {
			b.log.Error("Error in subscriber", "event_type", e.Type, "subscriber", i,
				"correlation_id", e.CorrelationID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic on %s: %v", e.Type, r)
		}
	}()
	return h(ctx, e)
}

// History returns recorded events, oldest first. An empty t returns all.
func (b *Bus) History(t Type) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t == "" {
		return append([]Event(nil), b.history...)
	}
	var out []Event
	for _, e := range b.history {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
