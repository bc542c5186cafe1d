package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"genzweekly/internal/core"

	"google.golang.org/genai"
)

const (
	// DefaultModel is the Gemini model used when none is configured.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultMaxRetries is the number of attempts per generation call.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base of the exponential backoff between attempts.
	DefaultRetryDelay = time.Second

	relevancePromptTemplate = `Analyze this news article for relevance to Gen Z audiences (ages 16-26).

Title: %s
Summary: %s
Category: %s

Rate relevance from 0.0 to 1.0 based on:
- Interest to young people
- Cultural relevance
- Impact on their lives
- Engagement potential

Return ONLY a number between 0.0 and 1.0, nothing else.`
)

var (
	// ErrEmptyResponse is returned when the model answers with no text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrNoAPIKey is returned by NewClient without credentials.
	ErrNoAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY or ai.gemini.api_key in the config file")
	// ErrUnparseableScore is returned when a numeric answer cannot be read.
	ErrUnparseableScore = errors.New("model response is not a score")

	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	fencePattern  = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// contentGenerator is the slice of the genai Models service the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Settings configures a Client.
type Settings struct {
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
}

// Client wraps the Gemini API for text, JSON and relevance calls.
type Client struct {
	modelName  string
	models     contentGenerator
	maxRetries int
	retryDelay time.Duration
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens      int32         // Maximum number of tokens to generate
	Temperature    float32       // Temperature for randomness (0.0 to 1.0)
	Model          string        // Model to use (optional, defaults to client's model)
	System         string        // Optional system instruction
	ResponseSchema *genai.Schema // Optional schema for structured JSON output
}

// NewClient creates a Gemini-backed client.
func NewClient(ctx context.Context, s Settings) (*Client, error) {
	if s.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newClient(gClient.Models, s), nil
}

func newClient(models contentGenerator, s Settings) *Client {
	c := &Client{
		modelName:  s.Model,
		models:     models,
		maxRetries: s.MaxRetries,
		retryDelay: s.RetryDelay,
	}
	if c.modelName == "" {
		c.modelName = DefaultModel
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	return c
}

// ModelName returns the default model of the client.
func (c *Client) ModelName() string {
	return c.modelName
}

// GenerateText generates text with retries and exponential backoff.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if options.MaxTokens > 0 || options.Temperature > 0 || options.ResponseSchema != nil || options.System != "" {
		config = &genai.GenerateContentConfig{}
		if options.MaxTokens > 0 {
			config.MaxOutputTokens = options.MaxTokens
		}
		if options.Temperature > 0 {
			temp := options.Temperature
			config.Temperature = &temp
		}
		if options.System != "" {
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: options.System}},
			}
		}
		if options.ResponseSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = options.ResponseSchema
		}
	}

	var text string
	err := core.Retry(ctx, c.maxRetries, c.retryDelay, func() error {
		resp, err := c.models.GenerateContent(ctx, modelName, contents, config)
		if err != nil {
			return fmt.Errorf("failed to generate text: %w", err)
		}
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			return ErrEmptyResponse
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateJSON requests structured output matching schema and decodes it into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any, options TextGenerationOptions) error {
	options.ResponseSchema = schema
	response, err := c.GenerateText(ctx, prompt, options)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFence(response)), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// AssessRelevance asks the model for a 0-1 Gen Z relevance score.
func (c *Client) AssessRelevance(ctx context.Context, article core.Article) (float64, error) {
	summary := article.Summary
	if summary == "" {
		summary = "N/A"
	}
	prompt := fmt.Sprintf(relevancePromptTemplate, article.Title, summary, article.Category)

	response, err := c.GenerateText(ctx, prompt, TextGenerationOptions{MaxTokens: 10})
	if err != nil {
		return 0, fmt.Errorf("relevance assessment failed: %w", err)
	}
	return ParseScore(response)
}

// ParseScore reads the first number in response and clamps it to [0, 1].
func ParseScore(response string) (float64, error) {
	match := numberPattern.FindString(response)
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableScore, response)
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseableScore, response)
	}
	return core.Clamp01(score), nil
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
