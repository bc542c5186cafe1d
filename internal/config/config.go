package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"genzweekly/internal/core"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	App        App                      `mapstructure:"app"`
	AI         AI                       `mapstructure:"ai"`
	Pipeline   Pipeline                 `mapstructure:"pipeline"`
	Categories []core.CategoryConfig    `mapstructure:"categories"`
	Sources    map[string][]core.Source `mapstructure:"sources"`
	Storage    Storage                  `mapstructure:"storage"`
	Email      Email                    `mapstructure:"email"`
	Social     Social                   `mapstructure:"social"`
	TTS        TTS                      `mapstructure:"tts"`
	Website    Website                  `mapstructure:"website"`
	Server     Server                   `mapstructure:"server"`
	Notify     Notify                   `mapstructure:"notify"`
	PostHog    PostHog                  `mapstructure:"posthog"`
	Logging    Logging                  `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug          bool   `mapstructure:"debug"`
	Name           string `mapstructure:"name"`
	CategoriesFile string `mapstructure:"categories_file"`
	SourcesFile    string `mapstructure:"sources_file"`
}

// AI holds AI/LLM configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Timeout    string `mapstructure:"timeout"`
	MaxRetries int    `mapstructure:"max_retries"`
	RetryDelay string `mapstructure:"retry_delay"`
}

// Pipeline holds the loop budgets and pacing of the weekly pipeline
type Pipeline struct {
	MaxTotalStories   int        `mapstructure:"max_total_stories"`
	MaxEntriesPerFeed int        `mapstructure:"max_entries_per_feed"`
	MaxArticleAge     string     `mapstructure:"max_article_age"`
	ScrapeDelay       string     `mapstructure:"scrape_delay"`
	UserAgent         string     `mapstructure:"user_agent"`
	FetchTimeout      string     `mapstructure:"fetch_timeout"`
	PodcastMinutes    int        `mapstructure:"podcast_minutes"`
	Quality           LoopConfig `mapstructure:"quality"`
	Ranking           LoopConfig `mapstructure:"ranking"`
	Refiner           LoopConfig `mapstructure:"refiner"`
}

// LoopConfig bounds one refinement loop
type LoopConfig struct {
	MaxIterations       int     `mapstructure:"max_iterations"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	BatchSize           int     `mapstructure:"batch_size"`
	BatchDelay          string  `mapstructure:"batch_delay"`
	MinKeep             int     `mapstructure:"min_keep"`
}

// Storage holds persistence configuration
type Storage struct {
	DataDir  string `mapstructure:"data_dir"`
	Database string `mapstructure:"database"`
}

// Email holds email configuration
type Email struct {
	SMTP              SMTPConfig `mapstructure:"smtp"`
	FromAddress       string     `mapstructure:"from_address"`
	FromName          string     `mapstructure:"from_name"`
	ApprovalRecipient string     `mapstructure:"approval_recipient"`
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// Social holds the X (Twitter) publishing configuration
type Social struct {
	BearerToken string `mapstructure:"bearer_token"`
	BaseURL     string `mapstructure:"base_url"`
	PostDelay   string `mapstructure:"post_delay"`
	Timeout     string `mapstructure:"timeout"`
	MaxStories  int    `mapstructure:"max_stories"`
}

// TTS holds text-to-speech configuration
type TTS struct {
	OutputDirectory string              `mapstructure:"output_directory"`
	Timeout         string              `mapstructure:"timeout"`
	ElevenLabs      TTSElevenLabsConfig `mapstructure:"elevenlabs"`
}

// TTSElevenLabsConfig holds ElevenLabs configuration
type TTSElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	VoiceID string `mapstructure:"voice_id"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// Website holds static site configuration
type Website struct {
	OutputDirectory string `mapstructure:"output_directory"`
	BaseURL         string `mapstructure:"base_url"`
	BuildCommand    string `mapstructure:"build_command"`
	DeployCommand   string `mapstructure:"deploy_command"`
}

// Server holds the archive API server configuration
type Server struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminToken   string        `mapstructure:"admin_token"` // Required for approve/reject over HTTP
	CORS         CORS          `mapstructure:"cors"`
}

// CORS holds cross-origin settings for the archive API
type CORS struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Notify holds chat webhook configuration for pipeline notifications
type Notify struct {
	SlackWebhookURL   string `mapstructure:"slack_webhook_url"`
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
}

// PostHog holds product analytics configuration
type PostHog struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".genzweekly")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.name", "Gen Z News Weekly")

	viper.SetDefault("ai.gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("ai.gemini.timeout", "60s")
	viper.SetDefault("ai.gemini.max_retries", 3)
	viper.SetDefault("ai.gemini.retry_delay", "1s")

	viper.SetDefault("pipeline.max_total_stories", 15)
	viper.SetDefault("pipeline.max_entries_per_feed", 15)
	viper.SetDefault("pipeline.max_article_age", "336h")
	viper.SetDefault("pipeline.scrape_delay", "2s")
	viper.SetDefault("pipeline.user_agent", "GenZWeekly/1.0")
	viper.SetDefault("pipeline.fetch_timeout", "10s")
	viper.SetDefault("pipeline.podcast_minutes", 5)

	viper.SetDefault("pipeline.quality.max_iterations", 2)
	viper.SetDefault("pipeline.quality.confidence_threshold", 0.75)
	viper.SetDefault("pipeline.quality.batch_size", 30)
	viper.SetDefault("pipeline.quality.batch_delay", "1s")
	viper.SetDefault("pipeline.quality.min_keep", 5)

	viper.SetDefault("pipeline.ranking.max_iterations", 3)
	viper.SetDefault("pipeline.ranking.confidence_threshold", 0.85)

	viper.SetDefault("pipeline.refiner.max_iterations", 3)
	viper.SetDefault("pipeline.refiner.confidence_threshold", 0.85)

	viper.SetDefault("storage.data_dir", "data")
	viper.SetDefault("storage.database", "genzweekly.db")

	viper.SetDefault("email.smtp.host", "smtp.gmail.com")
	viper.SetDefault("email.smtp.port", 587)
	viper.SetDefault("email.smtp.tls_enabled", true)
	viper.SetDefault("email.from_name", "Gen Z News Weekly")

	viper.SetDefault("social.base_url", "https://api.twitter.com")
	viper.SetDefault("social.post_delay", "10s")
	viper.SetDefault("social.timeout", "30s")
	viper.SetDefault("social.max_stories", 5)

	viper.SetDefault("tts.output_directory", "audio")
	viper.SetDefault("tts.timeout", "120s")
	viper.SetDefault("tts.elevenlabs.model", "eleven_monolingual_v1")
	viper.SetDefault("tts.elevenlabs.base_url", "https://api.elevenlabs.io")

	viper.SetDefault("website.output_directory", "website/content/weeks")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.cors.enabled", false)

	viper.SetDefault("posthog.enabled", false)
	viper.SetDefault("posthog.host", "https://app.posthog.com")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("tts.elevenlabs.api_key", []string{
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_KEY",
		"ELEVEN_LABS_API_KEY",
	})

	bindEnvKeys("tts.elevenlabs.voice_id", []string{
		"ELEVENLABS_VOICE_ID",
		"ELEVENLABS_VOICE",
	})

	bindEnvKeys("social.bearer_token", []string{
		"TWITTER_BEARER_TOKEN",
		"TWITTER_BEARER",
		"X_BEARER_TOKEN",
	})

	bindEnvKeys("email.smtp.host", []string{
		"SMTP_HOST",
		"SMTP_SERVER",
	})

	bindEnvKeys("email.smtp.port", []string{
		"SMTP_PORT",
	})

	bindEnvKeys("email.smtp.username", []string{
		"SMTP_USERNAME",
		"EMAIL_SENDER",
	})

	bindEnvKeys("email.smtp.password", []string{
		"SMTP_PASSWORD",
		"EMAIL_PASSWORD",
	})

	bindEnvKeys("email.from_address", []string{
		"EMAIL_SENDER",
		"EMAIL_FROM",
	})

	bindEnvKeys("email.approval_recipient", []string{
		"APPROVAL_EMAIL",
		"EMAIL_RECIPIENT",
	})

	bindEnvKeys("notify.slack_webhook_url", []string{
		"SLACK_WEBHOOK_URL",
	})

	bindEnvKeys("notify.discord_webhook_url", []string{
		"DISCORD_WEBHOOK_URL",
	})

	bindEnvKeys("posthog.api_key", []string{
		"POSTHOG_API_KEY",
	})

	bindEnvKeys("server.admin_token", []string{
		"ADMIN_API_KEY",
		"GENZWEEKLY_ADMIN_TOKEN",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"GENZWEEKLY_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	config.Storage.DataDir = expandPath(config.Storage.DataDir)
	config.TTS.OutputDirectory = expandPath(config.TTS.OutputDirectory)
	config.Website.OutputDirectory = expandPath(config.Website.OutputDirectory)
	if config.Storage.Database != "" && !filepath.IsAbs(config.Storage.Database) {
		config.Storage.Database = filepath.Join(config.Storage.DataDir, config.Storage.Database)
	}

	if config.App.CategoriesFile != "" {
		categories, err := LoadCategories(expandPath(config.App.CategoriesFile))
		if err != nil {
			return err
		}
		config.Categories = categories
	}
	if config.App.SourcesFile != "" {
		sources, err := LoadSources(expandPath(config.App.SourcesFile))
		if err != nil {
			return err
		}
		config.Sources = sources
	}
	if len(config.Categories) == 0 {
		config.Categories = DefaultCategories()
	}
	if len(config.Sources) == 0 {
		config.Sources = DefaultSources()
	}

	durations := map[string]string{
		"ai.gemini.timeout":            config.AI.Gemini.Timeout,
		"ai.gemini.retry_delay":        config.AI.Gemini.RetryDelay,
		"pipeline.max_article_age":     config.Pipeline.MaxArticleAge,
		"pipeline.scrape_delay":        config.Pipeline.ScrapeDelay,
		"pipeline.fetch_timeout":       config.Pipeline.FetchTimeout,
		"pipeline.quality.batch_delay": config.Pipeline.Quality.BatchDelay,
		"social.post_delay":            config.Social.PostDelay,
		"social.timeout":               config.Social.Timeout,
		"tts.timeout":                  config.TTS.Timeout,
	}

	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return fmt.Errorf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures the configuration is usable
func validateConfig(config *Config) error {
	var errors []string

	seen := make(map[string]bool)
	for _, c := range config.Categories {
		if c.Name == "" {
			errors = append(errors, "category name is required")
			continue
		}
		if seen[c.Name] {
			errors = append(errors, fmt.Sprintf("duplicate category: %s", c.Name))
		}
		seen[c.Name] = true
		if c.MinStories < 0 {
			errors = append(errors, fmt.Sprintf("category %s: min_stories must not be negative", c.Name))
		}
	}

	if config.Pipeline.MaxTotalStories <= 0 {
		errors = append(errors, "pipeline.max_total_stories must be positive")
	}

	for name, loop := range map[string]LoopConfig{
		"quality": config.Pipeline.Quality,
		"ranking": config.Pipeline.Ranking,
		"refiner": config.Pipeline.Refiner,
	} {
		if loop.ConfidenceThreshold < 0 || loop.ConfidenceThreshold > 1 {
			errors = append(errors, fmt.Sprintf("pipeline.%s.confidence_threshold must be between 0 and 1", name))
		}
	}

	if config.PostHog.Enabled && config.PostHog.APIKey == "" {
		errors = append(errors, "posthog.api_key is required when posthog is enabled")
	}

	// SMTP credentials come as a pair
	if (config.Email.SMTP.Username == "") != (config.Email.SMTP.Password == "") {
		errors = append(errors, "SMTP username and password must be set together")
	}

	if len(errors) > 0 {
		sort.Strings(errors)
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireGeminiKey reports a helpful error when no Gemini API key is configured.
func (c *Config) RequireGeminiKey() error {
	if !isValidAPIKey(c.AI.Gemini.APIKey) {
		return fmt.Errorf("Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://aistudio.google.com/app/apikey")
	}
	return nil
}

// SourcesFor returns the sources configured for a category. Keys are matched
// case-insensitively with spaces and underscores treated alike.
func (c *Config) SourcesFor(category string) []core.Source {
	want := sourceKey(category)
	for key, sources := range c.Sources {
		if sourceKey(key) == want {
			return sources
		}
	}
	return nil
}

func sourceKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// Duration parses a validated duration string, returning fallback when it is
// empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Convenience getters for commonly used configuration values
func GetApp() App           { return Get().App }
func GetAI() AI             { return Get().AI }
func GetPipeline() Pipeline { return Get().Pipeline }
func GetStorage() Storage   { return Get().Storage }
func GetEmail() Email       { return Get().Email }
func GetSocial() Social     { return Get().Social }
func GetTTS() TTS           { return Get().TTS }
func GetWebsite() Website   { return Get().Website }
func GetServer() Server     { return Get().Server }
func GetLogging() Logging   { return Get().Logging }

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "your-google-api-key",
		"YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}

type categoriesFile struct {
	Categories []core.CategoryConfig `yaml:"categories"`
}

type sourcesFile struct {
	Sources map[string][]core.Source `yaml:"sources"`
}

// LoadCategories reads a categories.yaml file of the form
// `categories: [{name, priority, min_stories}]`.
func LoadCategories(path string) ([]core.CategoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse categories file %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}
	return file.Categories, nil
}

// LoadSources reads a sources.yaml file mapping category keys to publishers.
func LoadSources(path string) (map[string][]core.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	for category, sources := range file.Sources {
		for _, s := range sources {
			if s.RSS == "" && s.URL == "" {
				return nil, fmt.Errorf("source %q in %s has neither rss nor url", s.Name, category)
			}
		}
	}
	return file.Sources, nil
}

// DefaultCategories is the edition layout used when none is configured.
func DefaultCategories() []core.CategoryConfig {
	return []core.CategoryConfig{
		{Name: "Politics", Priority: 1, MinStories: 2},
		{Name: "Technology", Priority: 2, MinStories: 2},
		{Name: "Sports", Priority: 3, MinStories: 2},
		{Name: "Entertainment", Priority: 4, MinStories: 2},
		{Name: "Climate", Priority: 5, MinStories: 1},
		{Name: "Business", Priority: 6, MinStories: 1},
	}
}

// DefaultSources returns a starter feed list for DefaultCategories.
func DefaultSources() map[string][]core.Source {
	return map[string][]core.Source{
		"politics": {
			{Name: "BBC", RSS: "https://feeds.bbci.co.uk/news/politics/rss.xml"},
			{Name: "AP News", URL: "https://apnews.com/politics"},
		},
		"technology": {
			{Name: "TechCrunch", RSS: "https://techcrunch.com/feed/"},
			{Name: "The Verge", RSS: "https://www.theverge.com/rss/index.xml"},
		},
		"sports": {
			{Name: "ESPN", RSS: "https://www.espn.com/espn/rss/news"},
		},
		"entertainment": {
			{Name: "BBC", RSS: "https://feeds.bbci.co.uk/news/entertainment_and_arts/rss.xml"},
		},
		"climate": {
			{Name: "BBC", RSS: "https://feeds.bbci.co.uk/news/science_and_environment/rss.xml"},
		},
		"business": {
			{Name: "Bloomberg", RSS: "https://feeds.bloomberg.com/markets/news.rss"},
		},
	}
}
