// ABOUTME: Configuration loading and parsing for coven-voice
// ABOUTME: Supports YAML files with environment variable expansion, defaults and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model provider names accepted in model.provider.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Session backend names accepted in sessions.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Supervisor modes accepted in supervisor.mode.
const (
	SupervisorModel = "model"
	SupervisorRules = "rules"
)

// Config represents the complete coven-voice configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Tailscale    TailscaleConfig    `yaml:"tailscale"`
	Twilio       TwilioConfig       `yaml:"twilio"`
	Model        ModelConfig        `yaml:"model"`
	Supervisor   SupervisorConfig   `yaml:"supervisor"`
	Sessions     SessionsConfig     `yaml:"sessions"`
	Conversation ConversationConfig `yaml:"conversation"`
	Dedupe       DedupeConfig       `yaml:"dedupe"`
	Auth         AuthConfig         `yaml:"auth"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds listener addresses and the externally reachable URL
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
	// PublicURL is the base URL Twilio uses to reach this process. It is
	// used to build TwiML action URLs and to validate request signatures.
	PublicURL string `yaml:"public_url"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // tailnet-only HTTPS with Tailscale certs
	Funnel    bool   `yaml:"funnel"` // public Funnel so Twilio can reach the webhooks
}

// TwilioConfig holds telephony credentials and speech settings
type TwilioConfig struct {
	AccountSID         string `yaml:"account_sid"`
	AuthToken          string `yaml:"auth_token"`
	PhoneNumber        string `yaml:"phone_number"`
	BaseURL            string `yaml:"base_url"`
	ValidateSignatures bool   `yaml:"validate_signatures"`
	Voice              string `yaml:"voice"`
	Language           string `yaml:"language"`
}

// ModelConfig selects and tunes the language-model provider
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// SupervisorConfig selects the routing policy
type SupervisorConfig struct {
	Mode string `yaml:"mode"`
}

// SessionsConfig holds session store configuration
type SessionsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	IdleTimeout   time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	IdleTimeoutRaw   string `yaml:"idle_timeout"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// ConversationConfig holds per-call conversation policy
type ConversationConfig struct {
	MaxTurns int    `yaml:"max_turns"`
	Greeting string `yaml:"greeting"`
}

// DedupeConfig holds the webhook replay cache settings
type DedupeConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"-"`
	TTLRaw  string        `yaml:"ttl"`
}

// AuthConfig holds authentication configuration for the admin API
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied to zero-valued fields before validation.
const (
	DefaultHTTPAddr      = "0.0.0.0:8080"
	DefaultGRPCAddr      = "0.0.0.0:50051"
	DefaultModelTimeout  = 20 * time.Second
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxTurns      = 15
	DefaultDedupeTTL     = 5 * time.Minute
	DefaultDedupeSize    = 10000
	DefaultTemperature   = 0.7
	DefaultVoice         = "Polly.Joanna"
	DefaultLanguage      = "en-US"
)

// Bounds for model.timeout.
const (
	MinModelTimeout = time.Second
	MaxModelTimeout = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes, applying env expansion,
// duration parsing, defaults and validation in that order.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if !c.Tailscale.Enabled {
		if c.Server.HTTPAddr == "" {
			c.Server.HTTPAddr = DefaultHTTPAddr
		}
		if c.Server.GRPCAddr == "" {
			c.Server.GRPCAddr = DefaultGRPCAddr
		}
	}

	if c.Model.Provider == "" {
		c.Model.Provider = ProviderGroq
	}
	c.Model.Provider = strings.ToLower(c.Model.Provider)
	if c.Model.Timeout == 0 {
		c.Model.Timeout = DefaultModelTimeout
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = DefaultTemperature
	}

	if c.Supervisor.Mode == "" {
		c.Supervisor.Mode = SupervisorModel
	}

	if c.Sessions.Backend == "" {
		c.Sessions.Backend = BackendMemory
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Sessions.SweepInterval == 0 {
		c.Sessions.SweepInterval = DefaultSweepInterval
	}

	if c.Conversation.MaxTurns == 0 {
		c.Conversation.MaxTurns = DefaultMaxTurns
	}

	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = DefaultDedupeSize
	}

	if c.Twilio.Voice == "" {
		c.Twilio.Voice = DefaultVoice
	}
	if c.Twilio.Language == "" {
		c.Twilio.Language = DefaultLanguage
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Model.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("model.provider %q is not one of groq, openai, gemini", c.Model.Provider)
	}
	if c.Supervisor.Mode == SupervisorModel && c.Model.APIKey == "" {
		return fmt.Errorf("model.api_key is required when supervisor.mode is %q", SupervisorModel)
	}
	if c.Model.Timeout < MinModelTimeout || c.Model.Timeout > MaxModelTimeout {
		return fmt.Errorf("model.timeout %s must be between %s and %s", c.Model.Timeout, MinModelTimeout, MaxModelTimeout)
	}

	switch c.Supervisor.Mode {
	case SupervisorModel, SupervisorRules:
	default:
		return fmt.Errorf("supervisor.mode %q is not one of model, rules", c.Supervisor.Mode)
	}

	switch c.Sessions.Backend {
	case BackendMemory:
	case BackendSQLite, BackendBadger:
		if c.Sessions.Path == "" {
			return fmt.Errorf("sessions.path is required for the %s backend", c.Sessions.Backend)
		}
	default:
		return fmt.Errorf("sessions.backend %q is not one of memory, sqlite, badger", c.Sessions.Backend)
	}
	if c.Sessions.IdleTimeout < 0 || c.Sessions.SweepInterval < 0 {
		return fmt.Errorf("sessions durations must not be negative")
	}

	if c.Conversation.MaxTurns < 0 {
		return fmt.Errorf("conversation.max_turns must not be negative")
	}

	if c.Twilio.ValidateSignatures && c.Twilio.AuthToken == "" {
		return fmt.Errorf("twilio.auth_token is required when twilio.validate_signatures is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"model.timeout", cfg.Model.TimeoutRaw, &cfg.Model.Timeout},
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"sessions.sweep_interval", cfg.Sessions.SweepIntervalRaw, &cfg.Sessions.SweepInterval},
		{"dedupe.ttl", cfg.Dedupe.TTLRaw, &cfg.Dedupe.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// TwilioEnabled reports whether REST credentials are configured.
func (c *Config) TwilioEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}
