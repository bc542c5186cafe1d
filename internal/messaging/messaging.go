// Package messaging posts pipeline milestones and failures to chat webhooks.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genzweekly/internal/events"
	"genzweekly/internal/logger"
)

// MessagePlatform represents different messaging platforms
type MessagePlatform string

const (
	PlatformSlack   MessagePlatform = "slack"
	PlatformDiscord MessagePlatform = "discord"
)

const botName = "Gen Z News Weekly"

// Embed colors per notice level.
const (
	colorInfo    = 0x6366F1
	colorSuccess = 0x10B981
	colorError   = 0xEF4444
)

// ErrNoWebhooks is returned when no platform is configured.
var ErrNoWebhooks = errors.New("no webhook URL configured")

// SlackMessage represents a Slack message structure
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
}

// SlackAttachment represents legacy Slack attachments
type SlackAttachment struct {
	Color  string       `json:"color,omitempty"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
	Ts     int64        `json:"ts,omitempty"`
}

// SlackField represents fields in attachments
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// DiscordMessage represents a Discord message structure
type DiscordMessage struct {
	Content  string         `json:"content,omitempty"`
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents a Discord embed
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents fields in Discord embeds
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents footer in Discord embeds
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// Notice is a platform-neutral notification.
type Notice struct {
	Title  string
	Text   string
	Color  int
	Fields [][2]string // Name, value pairs in display order
	Footer string
	Time   time.Time
}

// NoticeFor describes the events worth announcing. ok is false for the rest.
func NoticeFor(e events.Event) (Notice, bool) {
	n := Notice{Time: e.Timestamp, Footer: "correlation " + e.CorrelationID, Color: colorInfo}
	week := e.String("week_id")

	switch e.Type {
	case events.ApprovalRequested:
		n.Title = fmt.Sprintf("📬 Week %s is ready for review", week)
		n.Text = fmt.Sprintf("%s stories are waiting for approval.", e.String("story_count"))
	case events.AudioGenerated:
		n.Title = fmt.Sprintf("🎧 Week %s content is ready", week)
		n.Text = "Newsletter, thread and podcast script were generated."
		if e.String("has_audio") != "true" {
			n.Text = "Newsletter, thread and podcast script were generated. No audio was synthesized."
		}
		n.Color = colorSuccess
	case events.TwitterPublished:
		n.Title = fmt.Sprintf("🐦 Week %s thread posted", week)
		n.Text = fmt.Sprintf("%s tweets published.", e.String("tweets"))
		n.Color = colorSuccess
	case events.WebsitePublished:
		n.Title = fmt.Sprintf("🌐 Week %s page published", week)
		n.Text = e.String("path")
		n.Color = colorSuccess
	case events.ErrorOccurred:
		n.Title = fmt.Sprintf("🚨 %s failed", e.String("agent"))
		n.Text = e.String("error")
		n.Color = colorError
		if week != "" {
			n.Fields = append(n.Fields, [2]string{"Week", week})
		}
	default:
		return Notice{}, false
	}
	return n, true
}

// ToSlack converts a notice to Slack's attachment format.
func ToSlack(n Notice) *SlackMessage {
	fields := make([]SlackField, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = SlackField{Title: f[0], Value: f[1], Short: true}
	}
	return &SlackMessage{
		Text:      n.Title,
		Username:  botName,
		IconEmoji: ":newspaper:",
		Attachments: []SlackAttachment{{
			Color:  fmt.Sprintf("#%06X", n.Color),
			Text:   n.Text,
			Fields: fields,
			Footer: n.Footer,
			Ts:     n.Time.Unix(),
		}},
	}
}

// ToDiscord converts a notice to a Discord embed.
func ToDiscord(n Notice) *DiscordMessage {
	fields := make([]DiscordEmbedField, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = DiscordEmbedField{Name: f[0], Value: f[1], Inline: true}
	}
	return &DiscordMessage{
		Username: botName,
		Embeds: []DiscordEmbed{{
			Title:       n.Title,
			Description: n.Text,
			Color:       n.Color,
			Fields:      fields,
			Footer:      &DiscordEmbedFooter{Text: n.Footer},
			Timestamp:   n.Time.Format(time.RFC3339),
		}},
	}
}

// MessagingClient handles sending messages to different platforms
type MessagingClient struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
	HTTPClient        *http.Client
}

// NewMessagingClient creates a new messaging client
func NewMessagingClient(slackURL, discordURL string) *MessagingClient {
	return &MessagingClient{
		SlackWebhookURL:   slackURL,
		DiscordWebhookURL: discordURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured reports whether any webhook is set.
func (c *MessagingClient) Configured() bool {
	return c.SlackWebhookURL != "" || c.DiscordWebhookURL != ""
}

// Notify sends n to every configured platform.
func (c *MessagingClient) Notify(ctx context.Context, n Notice) error {
	if !c.Configured() {
		return ErrNoWebhooks
	}
	var errs []error
	if c.SlackWebhookURL != "" {
		errs = append(errs, c.post(ctx, PlatformSlack, c.SlackWebhookURL, ToSlack(n)))
	}
	if c.DiscordWebhookURL != "" {
		errs = append(errs, c.post(ctx, PlatformDiscord, c.DiscordWebhookURL, ToDiscord(n)))
	}
	return errors.Join(errs...)
}

func (c *MessagingClient) post(ctx context.Context, platform MessagePlatform, url string, message any) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", platform, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", platform, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", platform, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s webhook returned status %d: %s", platform, resp.StatusCode, string(body))
	}
	return nil
}

// Subscribe announces notable pipeline events. Delivery failures are logged
// and never fail the publishing agent.
func (c *MessagingClient) Subscribe(bus *events.Bus) {
	log := logger.With("messaging")
	handler := func(ctx context.Context, e events.Event) error {
		n, ok := NoticeFor(e)
		if !ok {
			return nil
		}
		if err := c.Notify(ctx, n); err != nil {
			log.Warn("Notification failed", "event_type", e.Type, "error", err)
		}
		return nil
	}
	for _, t := range []events.Type{
		events.ApprovalRequested,
		events.AudioGenerated,
		events.TwitterPublished,
		events.WebsitePublished,
		events.ErrorOccurred,
	} {
		bus.Subscribe(t, handler)
	}
}

// ValidateWebhookURL validates if a webhook URL is properly formatted
func ValidateWebhookURL(platform MessagePlatform, url string) error {
	if url == "" {
		return fmt.Errorf("%s webhook URL cannot be empty", platform)
	}

	switch platform {
	case PlatformSlack:
		if !strings.Contains(url, "hooks.slack.com") {
			return fmt.Errorf("invalid Slack webhook URL format")
		}
	case PlatformDiscord:
		if !strings.Contains(url, "discord.com/api/webhooks") {
			return fmt.Errorf("invalid Discord webhook URL format")
		}
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}

	return nil
}
