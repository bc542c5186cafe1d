package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TTSProvider represents different TTS service providers
type TTSProvider string

const (
	ProviderElevenLabs TTSProvider = "elevenlabs"
	ProviderMock       TTSProvider = "mock"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultModel   = "eleven_monolingual_v1"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
)

// ErrMissingVoice is returned when no voice id is configured.
var ErrMissingVoice = errors.New("elevenlabs voice id not set")

// TTSConfig holds TTS configuration
type TTSConfig struct {
	Provider   TTSProvider
	APIKey     string
	VoiceID    string
	Model      string
	BaseURL    string
	Settings   VoiceSettings
	OutputDir  string
	HTTPClient *http.Client
}

// VoiceSettings represents voice settings for ElevenLabs
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
}

// PodcastVoice is tuned for an upbeat host read.
var PodcastVoice = VoiceSettings{Stability: 0.6, SimilarityBoost: 0.8, Style: 0.7}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// TTSClient handles text-to-speech operations
type TTSClient struct {
	Config *TTSConfig
}

// NewTTSClient creates a new TTS client
func NewTTSClient(config *TTSConfig) *TTSClient {
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: 120 * time.Second,
		}
	}
	if config.Provider == "" {
		config.Provider = ProviderElevenLabs
	}
	if config.OutputDir == "" {
		config.OutputDir = "audio"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Settings == (VoiceSettings{}) {
		config.Settings = PodcastVoice
	}

	return &TTSClient{
		Config: config,
	}
}

// PrepareScript makes a podcast script speech friendly: stage directions in
// brackets and markdown markers are dropped, URLs removed and symbols spoken.
func PrepareScript(script string) string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) {
			continue
		}
		if cleaned := cleanTextForTTS(line); cleaned != "" {
			lines = append(lines, cleaned)
		}
	}
	return strings.Join(lines, "\n\n")
}

// cleanTextForTTS removes markdown formatting and makes text more speech-friendly
func cleanTextForTTS(text string) string {
	for _, marker := range []string{"**", "*", "_", "`", "#"} {
		text = strings.ReplaceAll(text, marker, "")
	}

	words := strings.Fields(text)
	var cleanWords []string
	for _, word := range words {
		if !strings.HasPrefix(word, "http://") && !strings.HasPrefix(word, "https://") {
			cleanWords = append(cleanWords, word)
		}
	}
	text = strings.Join(cleanWords, " ")

	replacer := strings.NewReplacer("&", "and", "@", "at", "%", " percent", "$", "dollars ")
	text = replacer.Replace(text)

	return strings.Join(strings.Fields(text), " ")
}

// Synthesize converts text to MP3 audio bytes.
func (c *TTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	switch c.Config.Provider {
	case ProviderElevenLabs:
		return c.synthesizeElevenLabs(ctx, text)
	case ProviderMock:
		return []byte("Mock TTS Audio\n\n" + text), nil
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s", c.Config.Provider)
	}
}

func (c *TTSClient) synthesizeElevenLabs(ctx context.Context, text string) ([]byte, error) {
	if c.Config.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}
	if c.Config.VoiceID == "" {
		return nil, ErrMissingVoice
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text to synthesize")
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(c.Config.BaseURL, "/"), c.Config.VoiceID)

	jsonData, err := json.Marshal(synthesisRequest{
		Text:          text,
		ModelID:       c.Config.Model,
		VoiceSettings: c.Config.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.Config.APIKey)

	resp, err := c.Config.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ElevenLabs API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("ElevenLabs returned no audio")
	}
	return audio, nil
}

// GenerateAudio synthesizes text and writes it under OutputDir, returning
// the file path.
func (c *TTSClient) GenerateAudio(ctx context.Context, text string, filename string) (string, error) {
	if err := os.MkdirAll(c.Config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if !strings.HasSuffix(filename, ".mp3") {
		filename = strings.TrimSuffix(filename, ".wav") + ".mp3"
	}
	if c.Config.Provider == ProviderMock {
		filename = strings.TrimSuffix(filename, ".mp3") + "_mock.txt"
	}
	outputPath := filepath.Join(c.Config.OutputDir, filename)

	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, audio, 0644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return outputPath, nil
}

// ValidateConfig validates TTS configuration
func ValidateConfig(config *TTSConfig) error {
	switch config.Provider {
	case ProviderElevenLabs:
		if config.APIKey == "" {
			return fmt.Errorf("%s requires an API key", config.Provider)
		}
		if config.VoiceID == "" {
			return ErrMissingVoice
		}
	case ProviderMock:
	case "":
		return fmt.Errorf("TTS provider is required")
	default:
		return fmt.Errorf("invalid TTS provider: %s (available: %s, %s)",
			config.Provider, ProviderElevenLabs, ProviderMock)
	}

	s := config.Settings
	for name, v := range map[string]float64{"stability": s.Stability, "similarity_boost": s.SimilarityBoost, "style": s.Style} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

// EstimateAudioLength estimates audio length in minutes based on text
func EstimateAudioLength(text string) float64 {
	// Average speaking rate is about 150 words per minute
	return float64(len(strings.Fields(text))) / 150.0
}
