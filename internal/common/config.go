package common

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/gammawatch/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment       string                   `toml:"environment"`        // "development" or "production"
	WatchDirectory    string                   `toml:"watch_directory" validate:"required"`
	OutputDirectory   string                   `toml:"output_directory" validate:"required"`
	HistoryFile       string                   `toml:"history_file" validate:"required"`
	ScheduleTime      string                   `toml:"schedule_time" validate:"required"` // Daily trigger, "HH:MM"
	Timezone          string                   `toml:"timezone"`                          // IANA name; empty = local
	StrictPersistence bool                     `toml:"strict_persistence"`                // Abort a run when the history file cannot be written
	Scan              ScanConfig               `toml:"scan"`
	Renderer          RendererConfig           `toml:"renderer"`
	Analysis          AnalysisConfig           `toml:"analysis"`
	Notifier          NotifierConfig           `toml:"notifier"`
	SMTP              SMTPConfig               `toml:"smtp"`
	Channels          map[string]ChannelConfig `toml:"channels" validate:"dive"`
	Symbols           []models.SymbolConfig    `toml:"symbols" validate:"required,min=1,dive"`
	Storage           StorageConfig            `toml:"storage"`
	Logging           LoggingConfig            `toml:"logging"`
	LLM               LLMConfig                `toml:"llm"`
	Gemini            GeminiConfig             `toml:"gemini"`
	Claude            ClaudeConfig             `toml:"claude"`
}

// ScanConfig controls which files in the watch directory are considered
type ScanConfig struct {
	Extension   string `toml:"extension" validate:"required"`    // Snapshot file extension (default: ".html")
	ChartMarker string `toml:"chart_marker" validate:"required"` // Filename token for chart snapshots (default: "gamma")
	TextMarker  string `toml:"text_marker" validate:"required"`  // Filename token for text snapshots (default: "tvcode")
}

// RendererConfig contains headless Chrome settings for chart export
type RendererConfig struct {
	ChromePath     string `toml:"chrome_path"`     // Empty uses chromedp's lookup
	Headless       bool   `toml:"headless"`        // Run Chrome headless (default: true)
	NoSandbox      bool   `toml:"no_sandbox"`      // Required in most containers
	SettleTime     string `toml:"settle_time"`     // Wait after load before exporting (default: "5s")
	Timeout        string `toml:"timeout"`         // Per-file render timeout (default: "2m")
	ViewportWidth  int    `toml:"viewport_width"`  // default: 1600
	ViewportHeight int    `toml:"viewport_height"` // default: 2200
}

// AnalysisConfig controls the multi-day bundle analysis
type AnalysisConfig struct {
	Channel    string `toml:"channel"`     // Destination for reports; empty disables delivery
	Prompt     string `toml:"prompt"`      // Inline prompt template
	PromptFile string `toml:"prompt_file"` // Prompt template file, read at startup (wins over prompt)
	RecentDays int    `toml:"recent_days" validate:"min=2"`
}

// NotifierConfig contains delivery settings shared by all channels
type NotifierConfig struct {
	Timeout          string `toml:"timeout"`            // HTTP timeout per request (default: "30s")
	RateLimit        int    `toml:"rate_limit"`         // Requests per second per webhook (default: 1)
	MaxMessageLength int    `toml:"max_message_length"` // Chunk threshold for text (default: 2000)
	MaxFilesPerPost  int    `toml:"max_files_per_post"` // Discord attachment limit (default: 10)
}

// SMTPConfig holds credentials for email channels
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	UseTLS   bool   `toml:"use_tls"` // Implicit TLS (465); otherwise STARTTLS when offered
}

// Channel platforms
const (
	PlatformDiscord = "discord"
	PlatformEmail   = "email"
)

// ChannelConfig describes one named notification destination
type ChannelConfig struct {
	Platform   string `toml:"platform" validate:"required,oneof=discord email"`
	WebhookURL string `toml:"webhook_url"` // discord
	Username   string `toml:"username"`    // discord display name override
	To         string `toml:"to"`          // email recipient
	Subject    string `toml:"subject"`     // email subject prefix
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents the run log database configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path; empty disables the run log
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default: "15:04:05"
	Directory  string   `toml:"directory"`   // Log file directory; empty = <exe dir>/logs
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the analysis provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
	Model           string      `toml:"model"` // Optional override; provider is detected from its prefix
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey          string  `toml:"api_key"`
	Model           string  `toml:"model"`
	Temperature     float32 `toml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens"`
	Timeout         string  `toml:"timeout"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment:     "development",
		WatchDirectory:  "./images",
		OutputDirectory: "./images",
		HistoryFile:     "./history.json",
		ScheduleTime:    "23:00",
		Scan: ScanConfig{
			Extension:   ".html",
			ChartMarker: "gamma",
			TextMarker:  "tvcode",
		},
		Renderer: RendererConfig{
			Headless:       true,
			SettleTime:     "5s",
			Timeout:        "2m",
			ViewportWidth:  1600,
			ViewportHeight: 2200,
		},
		Analysis: AnalysisConfig{
			RecentDays: 2,
		},
		Notifier: NotifierConfig{
			Timeout:          "30s",
			RateLimit:        1,
			MaxMessageLength: 2000, // Discord content limit
			MaxFilesPerPost:  10,   // Discord attachment limit
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "gammawatch",
		},
		Channels: map[string]ChannelConfig{},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/runs",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Gemini: GeminiConfig{
			Model:           "gemini-2.5-flash",
			Temperature:     0.7,
			MaxOutputTokens: 4000,
			Timeout:         "5m",
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4000,
			Temperature: 0.7,
			Timeout:     "5m",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if config.Analysis.PromptFile != "" {
		data, err := os.ReadFile(config.Analysis.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file %s: %w", config.Analysis.PromptFile, err)
		}
		config.Analysis.Prompt = strings.TrimSpace(string(data))
	}

	return config, nil
}

// applyEnvOverrides applies GAMMAWATCH_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GAMMAWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if dir := os.Getenv("GAMMAWATCH_WATCH_DIRECTORY"); dir != "" {
		config.WatchDirectory = dir
	}
	if dir := os.Getenv("GAMMAWATCH_OUTPUT_DIRECTORY"); dir != "" {
		config.OutputDirectory = dir
	}
	if file := os.Getenv("GAMMAWATCH_HISTORY_FILE"); file != "" {
		config.HistoryFile = file
	}
	if scheduleTime := os.Getenv("GAMMAWATCH_SCHEDULE_TIME"); scheduleTime != "" {
		config.ScheduleTime = scheduleTime
	}
	if tz := os.Getenv("GAMMAWATCH_TIMEZONE"); tz != "" {
		config.Timezone = tz
	}
	if strict := os.Getenv("GAMMAWATCH_STRICT_PERSISTENCE"); strict != "" {
		if s, err := strconv.ParseBool(strict); err == nil {
			config.StrictPersistence = s
		}
	}

	// Renderer
	if chromePath := os.Getenv("GAMMAWATCH_CHROME_PATH"); chromePath != "" {
		config.Renderer.ChromePath = chromePath
	}
	if noSandbox := os.Getenv("GAMMAWATCH_CHROME_NO_SANDBOX"); noSandbox != "" {
		if ns, err := strconv.ParseBool(noSandbox); err == nil {
			config.Renderer.NoSandbox = ns
		}
	}

	// Analysis
	if channel := os.Getenv("GAMMAWATCH_ANALYSIS_CHANNEL"); channel != "" {
		config.Analysis.Channel = channel
	}

	// SMTP
	if password := os.Getenv("GAMMAWATCH_SMTP_PASSWORD"); password != "" {
		config.SMTP.Password = password
	}

	// Storage
	if badgerPath := os.Getenv("GAMMAWATCH_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("GAMMAWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("GAMMAWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM
	if provider := os.Getenv("GAMMAWATCH_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if model := os.Getenv("GAMMAWATCH_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("GAMMAWATCH_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("GAMMAWATCH_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, watchDir, scheduleTime, logLevel string) {
	if watchDir != "" {
		config.WatchDirectory = watchDir
	}
	if scheduleTime != "" {
		config.ScheduleTime = scheduleTime
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
}

// Validate checks the configuration before any run begins.
// Every problem is reported, not just the first.
func (c *Config) Validate() error {
	var problems []string

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed '%s' check", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if _, _, err := ParseDailyTime(c.ScheduleTime); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}

	seenKeys := make(map[string]string)
	for _, sym := range c.Symbols {
		key := sym.Key()
		if other, dup := seenKeys[key]; dup && key != "" {
			problems = append(problems, fmt.Sprintf("symbols %s and %s share storage key %q", other, sym.Name, key))
		}
		seenKeys[key] = sym.Name

		if err := c.checkChannel(sym.Channel); err != nil {
			problems = append(problems, fmt.Sprintf("symbol %s: %v", sym.Name, err))
		}
		if sym.AnalysisChannel != "" {
			if err := c.checkChannel(sym.AnalysisChannel); err != nil {
				problems = append(problems, fmt.Sprintf("symbol %s analysis channel: %v", sym.Name, err))
			}
		}
	}

	if c.Analysis.Channel != "" {
		if err := c.checkChannel(c.Analysis.Channel); err != nil {
			problems = append(problems, fmt.Sprintf("analysis channel: %v", err))
		}
	}

	names := make([]string, 0, len(c.Channels))
	for name := range c.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch := c.Channels[name]
		switch ch.Platform {
		case PlatformDiscord:
			if isPlaceholder(ch.WebhookURL) {
				problems = append(problems, fmt.Sprintf("channel %s: webhook_url is not configured", name))
			}
		case PlatformEmail:
			if ch.To == "" {
				problems = append(problems, fmt.Sprintf("channel %s: to is required for email", name))
			}
			if c.SMTP.Host == "" || c.SMTP.From == "" {
				problems = append(problems, fmt.Sprintf("channel %s: [smtp] host and from are required for email", name))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// checkChannel verifies a channel reference: a configured name or a raw webhook URL
func (c *Config) checkChannel(ref string) error {
	if ref == "" {
		return fmt.Errorf("channel is required")
	}
	if IsWebhookURL(ref) {
		if isPlaceholder(ref) {
			return fmt.Errorf("webhook URL is a placeholder")
		}
		return nil
	}
	if _, ok := c.Channels[ref]; !ok {
		return fmt.Errorf("channel %q is not defined in [channels]", ref)
	}
	return nil
}

// IsWebhookURL reports whether a channel reference is an inline webhook URL
func IsWebhookURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

func isPlaceholder(url string) bool {
	return url == "" || strings.HasPrefix(url, "YOUR_") || strings.Contains(url, "/YOUR_")
}

// Location returns the configured time zone for the daily trigger and "today"
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ResolveAPIKey resolves an API key with environment variable priority.
// Resolution order: environment variables -> config fallback -> error.
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"GAMMAWATCH_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key": {"GAMMAWATCH_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// KeywordOverlaps describes keyword pairs from different symbols where one
// contains the other, so a single filename can match both. The symbol
// declared first wins such a file.
func (c *Config) KeywordOverlaps() []string {
	var overlaps []string
	for i, first := range c.Symbols {
		for _, second := range c.Symbols[i+1:] {
			for _, a := range first.Keywords {
				for _, b := range second.Keywords {
					la, lb := strings.ToLower(a), strings.ToLower(b)
					if la == "" || lb == "" {
						continue
					}
					if strings.Contains(la, lb) || strings.Contains(lb, la) {
						overlaps = append(overlaps, fmt.Sprintf("%s keyword %q overlaps %s keyword %q (%s wins)",
							first.Name, a, second.Name, b, first.Name))
					}
				}
			}
		}
	}
	return overlaps
}
