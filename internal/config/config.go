package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Gmail      GmailConfig      `yaml:"gmail" mapstructure:"gmail"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the dossier history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AuthConfig holds Google OAuth settings for the Gmail session.
type AuthConfig struct {
	ClientID           string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret       string `yaml:"client_secret" mapstructure:"client_secret"`
	RedirectURL        string `yaml:"redirect_url" mapstructure:"redirect_url"`
	TokenFile          string `yaml:"token_file" mapstructure:"token_file"`
	SessionMaxAgeHours int    `yaml:"session_max_age_hours" mapstructure:"session_max_age_hours"`
}

// GmailConfig configures thread search and fetch behavior.
type GmailConfig struct {
	MaxResults       int64   `yaml:"max_results" mapstructure:"max_results"`
	FetchParallelism int     `yaml:"fetch_parallelism" mapstructure:"fetch_parallelism"`
	RateLimitPerSec  float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PipelineConfig configures coordinator behavior.
type PipelineConfig struct {
	AuthCacheTTLSecs int `yaml:"auth_cache_ttl_secs" mapstructure:"auth_cache_ttl_secs"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DOSSIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dossiers.db")
	v.SetDefault("auth.redirect_url", "http://localhost:8089/oauth2/callback")
	v.SetDefault("auth.token_file", "gmail_token.json")
	v.SetDefault("auth.session_max_age_hours", 24)
	v.SetDefault("gmail.max_results", 50)
	v.SetDefault("gmail.fetch_parallelism", 5)
	v.SetDefault("gmail.rate_limit_per_sec", 10)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-reasoning")
	v.SetDefault("pipeline.auth_cache_ttl_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "serve" and "run" need the full AI + auth stack, "auth" only
// needs the OAuth client.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireAuth := func() {
		if c.Auth.ClientID == "" {
			problems = append(problems, "auth.client_id is required")
		}
		if c.Auth.ClientSecret == "" {
			problems = append(problems, "auth.client_secret is required")
		}
	}

	switch mode {
	case "serve", "run":
		requireAuth()
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Perplexity.Key == "" {
			problems = append(problems, "perplexity.key is required")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Gmail.FetchParallelism < 1 || c.Gmail.FetchParallelism > 20 {
			problems = append(problems, "gmail.fetch_parallelism must be between 1 and 20")
		}
	case "auth":
		requireAuth()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
