// Package config loads and validates muaddib's YAML configuration: model
// providers, per-room command grammar, tool gates, and the deferred
// feature flags (chronicler, quests, proactive) that warn when present but
// disabled and fail fast when enabled without their required backing
// store configured.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document (spec §6 "external
// interfaces" / configuration surface).
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	Servers   map[string]ServerConfig   `yaml:"servers"`
	Rooms     map[string]RoomConfig     `yaml:"rooms"`
	Router    RouterConfig              `yaml:"router"`
	Tools     ToolsConfig               `yaml:"tools"`
	ContextReducer ContextReducerConfig `yaml:"context_reducer"`
	Chronicler     ChroniclerConfig     `yaml:"chronicler"`
	Quests         QuestsConfig         `yaml:"quests"`
	Storage        StorageConfig        `yaml:"storage"`
}

// StorageConfig locates the on-disk state the core (as opposed to the
// optional chronicler feature) always needs: the message-history database
// and the sandbox tool's per-arc working directories.
type StorageConfig struct {
	HistoryDatabasePath string `yaml:"historyDatabasePath"`
	SandboxBaseDir      string `yaml:"sandboxBaseDir"`
}

// ServerConfig carries one transport connection's credentials, keyed by
// the same server tag ("irc:libera", "discord:<guild-or-app-id>",
// "slack:<workspace>") that prefixes every RoomMessage.ServerTag and
// therefore every room's Arc (spec §1 "platform transports").
type ServerConfig struct {
	Transport string `yaml:"transport"` // "irc", "discord", or "slack"

	// Discord / Slack bot credentials.
	Token    string `yaml:"token"`
	AppToken string `yaml:"appToken"` // Slack socket-mode app-level token

	// IRC network details.
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Nick     string   `yaml:"nick"`
	User     string   `yaml:"user"`
	TLS      bool     `yaml:"tls"`
	Channels []string `yaml:"channels"`

	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

// ProviderConfig holds one model provider's credentials and adapter
// defaults.
type ProviderConfig struct {
	Key          string   `yaml:"key"`
	BaseURL      string   `yaml:"baseUrl"`
	DefaultModel string   `yaml:"defaultModel"`
	MaxRetries   int      `yaml:"maxRetries"`
	RetryDelayMS int      `yaml:"retryDelayMs"`
	VisionModels []string `yaml:"visionModels"`
}

// RouterConfig holds cross-room routing defaults.
type RouterConfig struct {
	DefaultProvider       string `yaml:"defaultProvider"`
	RefusalFallbackModel string `yaml:"refusalFallbackModel"`
}

// RoomConfig is one room/channel's full configuration.
type RoomConfig struct {
	Command  CommandConfig  `yaml:"command"`
	Proactive ProactiveConfig `yaml:"proactive"`
}

// CommandConfig describes a room's command grammar: its modes, its
// classifier (if any), and the forced-trigger/mode fallback policy.
type CommandConfig struct {
	Modes           map[string]ModeConfig `yaml:"modes"`
	ModeClassifier  ModeClassifierConfig  `yaml:"modeClassifier"`
	ForcedTrigger   string                `yaml:"forcedTrigger"`
	DefaultMode     string                `yaml:"defaultMode"`

	// NoContextToken overrides the "!c" no-context flag token (spec §4.1).
	// Empty keeps the resolver's default.
	NoContextToken string `yaml:"noContextToken"`

	HistorySize      int      `yaml:"historySize"`
	ResponseMaxBytes int      `yaml:"responseMaxBytes"`
	IgnoreUsers      []string `yaml:"ignoreUsers"`
}

// ModeConfig is one named runtime bundle.
type ModeConfig struct {
	Model                 string   `yaml:"model"`
	VisionModel           string   `yaml:"visionModel"`
	Prompt                 string   `yaml:"prompt"`
	Triggers               []string `yaml:"triggers"`
	ReasoningEffort        string   `yaml:"reasoningEffort"`
	AllowedTools           []string `yaml:"allowedTools"`
	Steering               *bool    `yaml:"steering"`
	AutoReduceContext       *bool    `yaml:"autoReduceContext"`
	IncludeChapterSummary   *bool    `yaml:"includeChapterSummary"`
	HistorySize             int      `yaml:"historySize"`
}

// ModeClassifierConfig configures the free-text-to-mode classifier.
type ModeClassifierConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Model         string `yaml:"model"`
	RestrictToMode string `yaml:"restrictToMode"`
}

// ToolsConfig gates optional tool integrations.
type ToolsConfig struct {
	Summary   SummaryToolConfig   `yaml:"summary"`
	Oracle    OracleToolConfig    `yaml:"oracle"`
	Jina      JinaToolConfig      `yaml:"jina"`
	Artifacts ArtifactsToolConfig `yaml:"artifacts"`
	ImageGen  ImageGenToolConfig  `yaml:"image_gen"`
	Sprites   SpritesToolConfig   `yaml:"sprites"`
}

type SummaryToolConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type OracleToolConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type JinaToolConfig struct {
	Enabled *bool  `yaml:"enabled"`
	APIKey  string `yaml:"apiKey"`
}

type ArtifactsToolConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	BaseURL  string `yaml:"baseUrl"`
	BaseDir  string `yaml:"baseDir"`
	MaxBytes int64  `yaml:"maxBytes"`
}

type ImageGenToolConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type SpritesToolConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Token   string `yaml:"token"`
	Arc     string `yaml:"arc"`
}

// ContextReducerConfig configures the auto-reduce-context behavior.
type ContextReducerConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	Model          string `yaml:"model"`
	TargetMessages int    `yaml:"targetMessages"`
}

// ChroniclerConfig gates the chronicle (long-term chapter log) feature.
type ChroniclerConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	DatabasePath    string `yaml:"databasePath"`
	ChapterMessages int    `yaml:"chapterMessages"`
}

// QuestsConfig gates the quest/snooze feature.
type QuestsConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// ProactiveConfig gates a room's unsolicited (proactive) responses.
type ProactiveConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// boolOr returns *b if non-nil, else def.
func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Load reads and parses the YAML file at path and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate fails fast on enabled-but-unconfigured deferred features and on
// missing required settings (providers, history database path, transport
// credentials). It does not warn; present-but-disabled features are
// reported separately by DeferredFeatureWarnings.
func (c *Config) Validate() error {
	if boolOr(c.Chronicler.Enabled, false) && c.Chronicler.DatabasePath == "" {
		return fmt.Errorf("chronicler.enabled is true but chronicler.databasePath is not set")
	}
	if boolOr(c.Tools.Oracle.Enabled, false) && c.Tools.Oracle.Model == "" {
		return fmt.Errorf("tools.oracle.enabled is true but tools.oracle.model is not set")
	}
	if boolOr(c.Tools.Jina.Enabled, false) && c.Tools.Jina.APIKey == "" {
		return fmt.Errorf("tools.jina.enabled is true but tools.jina.apiKey is not set")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	if c.Storage.HistoryDatabasePath == "" {
		return fmt.Errorf("storage.historyDatabasePath is required")
	}
	for tag, srv := range c.Servers {
		switch srv.Transport {
		case "irc":
			if srv.Host == "" || srv.Nick == "" {
				return fmt.Errorf("server %q: irc transport requires host and nick", tag)
			}
		case "discord":
			if srv.Token == "" {
				return fmt.Errorf("server %q: discord transport requires token", tag)
			}
		case "slack":
			if srv.Token == "" || srv.AppToken == "" {
				return fmt.Errorf("server %q: slack transport requires token and appToken", tag)
			}
		default:
			return fmt.Errorf("server %q: unknown transport %q", tag, srv.Transport)
		}
	}
	return nil
}

// DeferredFeatureWarnings reports non-fatal warnings for deferred features
// that are configured but disabled, for startup log output.
func (c *Config) DeferredFeatureWarnings() []string {
	var warnings []string
	if c.Chronicler.DatabasePath != "" && !boolOr(c.Chronicler.Enabled, false) {
		warnings = append(warnings, "chronicler is configured but not enabled")
	}
	if c.Quests.Enabled != nil && !boolOr(c.Quests.Enabled, false) {
		warnings = append(warnings, "quests are not enabled")
	}
	for name, room := range c.Rooms {
		if room.Proactive.Enabled != nil && !boolOr(room.Proactive.Enabled, false) {
			warnings = append(warnings, fmt.Sprintf("room %q has proactive configured but disabled", name))
		}
	}
	return warnings
}
