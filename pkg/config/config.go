package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tallyhq/tally/pkg/errors"
	"github.com/tallyhq/tally/pkg/preferences"
)

// Default configuration values exported for documentation and validation
const (
	DefaultModelProvider       = "openrouter"
	DefaultModelName           = "openai/gpt-4.1-mini"
	DefaultModelBaseURL        = "https://openrouter.ai/api/v1"
	DefaultModelTimeout        = 60 * time.Second
	DefaultLedgerTimeout       = 15 * time.Second
	DefaultConfirmationTimeout = 10 * time.Minute
	DefaultServerBind          = "127.0.0.1:4490"
	DefaultBusKind             = "memory"
	DefaultLogDir              = ".tally/logs"
	DefaultPreferencesDir      = ".tally/preferences"
)

// Config represents the complete Tally configuration
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Agent       AgentConfig       `yaml:"agent"`
	Bus         BusConfig         `yaml:"bus"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Preferences PreferencesConfig `yaml:"preferences"`
}

// ModelConfig configures the language-model endpoint
type ModelConfig struct {
	Provider    string        `yaml:"provider"`
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

// LedgerConfig configures the ledger backend the tools call
type LedgerConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// AgentConfig holds the default agent policy applied when a user has no
// stored preferences.
type AgentConfig struct {
	Thresholds          preferences.Thresholds `yaml:"thresholds"`
	ConfirmHighRisk     *bool                  `yaml:"confirm_high_risk"`
	ConfirmMediumRisk   *bool                  `yaml:"confirm_medium_risk"`
	BatchThreshold      int                    `yaml:"batch_threshold"`
	MaxSuggestions      int                    `yaml:"max_suggestions"`
	ConfirmationTimeout time.Duration          `yaml:"confirmation_timeout"`
}

// BusConfig selects the event stream backend
type BusConfig struct {
	Kind string `yaml:"kind"` // "memory" or "nats"
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// ServerConfig configures the host adapter HTTP server
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// LoggingConfig configures the structured JSONL logger
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// PreferencesConfig configures the user preferences store
type PreferencesConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from the given path, applies defaults, and
// resolves environment overrides. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrCodeConfigLoad, "read config file")
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeConfigParse, "parse config file")
			}
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = DefaultModelProvider
	}
	if c.Model.Name == "" {
		c.Model.Name = DefaultModelName
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = DefaultModelBaseURL
	}
	if c.Model.APIKeyEnv == "" {
		c.Model.APIKeyEnv = "TALLY_MODEL_API_KEY"
	}
	if c.Model.Timeout <= 0 {
		c.Model.Timeout = DefaultModelTimeout
	}
	if c.Model.MaxTokens <= 0 {
		c.Model.MaxTokens = 1024
	}

	if c.Ledger.BaseURL == "" {
		c.Ledger.BaseURL = "http://127.0.0.1:8080"
	}
	if c.Ledger.APIKeyEnv == "" {
		c.Ledger.APIKeyEnv = "TALLY_LEDGER_API_KEY"
	}
	if c.Ledger.Timeout <= 0 {
		c.Ledger.Timeout = DefaultLedgerTimeout
	}

	if c.Agent.ConfirmationTimeout <= 0 {
		c.Agent.ConfirmationTimeout = DefaultConfirmationTimeout
	}

	if c.Bus.Kind == "" {
		c.Bus.Kind = DefaultBusKind
	}
	if c.Bus.Name == "" {
		c.Bus.Name = "tally"
	}

	if c.Server.Bind == "" {
		c.Server.Bind = DefaultServerBind
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Preferences.Dir == "" {
		c.Preferences.Dir = DefaultPreferencesDir
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TALLY_MODEL_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("TALLY_MODEL_NAME"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("TALLY_LEDGER_BASE_URL"); v != "" {
		c.Ledger.BaseURL = v
	}
	if v := os.Getenv("TALLY_BUS_URL"); v != "" {
		c.Bus.URL = v
		c.Bus.Kind = "nats"
	}
	if v := os.Getenv("TALLY_BIND"); v != "" {
		c.Server.Bind = v
	}
}

// Validate checks the configuration for internal consistency
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case "memory", "nats":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("bus kind %q (valid: memory, nats)", c.Bus.Kind))
	}
	if c.Bus.Kind == "nats" && strings.TrimSpace(c.Bus.URL) == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "bus kind nats requires a url")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("log level %q (valid: debug, info, warn, error)", c.Logging.Level))
	}

	th := c.Agent.Thresholds
	for name, v := range map[string]float64{
		"intent_high":    th.IntentHigh,
		"intent_low":     th.IntentLow,
		"reflection_low": th.ReflectionLow,
	} {
		if v < 0 || v > 1 {
			return errors.New(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("threshold %s = %v out of [0,1]", name, v))
		}
	}

	return nil
}

// APIKey resolves the model API key from the configured environment variable
func (m ModelConfig) APIKey() string {
	return os.Getenv(m.APIKeyEnv)
}

// APIKey resolves the ledger API key from the configured environment variable
func (l LedgerConfig) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}

// DefaultPreferences converts the agent config into resolved preferences,
// used for users without a stored profile.
func (c *Config) DefaultPreferences() preferences.Preferences {
	prefs := preferences.Defaults()
	if c.Agent.Thresholds.IntentHigh > 0 {
		prefs.Thresholds.IntentHigh = c.Agent.Thresholds.IntentHigh
	}
	if c.Agent.Thresholds.IntentLow > 0 {
		prefs.Thresholds.IntentLow = c.Agent.Thresholds.IntentLow
	}
	if c.Agent.Thresholds.ReflectionLow > 0 {
		prefs.Thresholds.ReflectionLow = c.Agent.Thresholds.ReflectionLow
	}
	if c.Agent.ConfirmHighRisk != nil {
		prefs.ConfirmHighRisk = *c.Agent.ConfirmHighRisk
	}
	if c.Agent.ConfirmMediumRisk != nil {
		prefs.ConfirmMediumRisk = *c.Agent.ConfirmMediumRisk
	}
	if c.Agent.BatchThreshold > 0 {
		prefs.BatchThreshold = c.Agent.BatchThreshold
	}
	if c.Agent.MaxSuggestions > 0 {
		prefs.MaxSuggestions = c.Agent.MaxSuggestions
	}
	return preferences.Resolve(prefs)
}
