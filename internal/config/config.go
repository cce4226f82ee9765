package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/omnifunnel/visibility-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Copilot    CopilotConfig    `yaml:"copilot" mapstructure:"copilot"`
	Tracker    TrackerConfig    `yaml:"tracker" mapstructure:"tracker"`
	Score      ScoreConfig      `yaml:"score" mapstructure:"score"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Sites      []SiteConfig     `yaml:"sites" mapstructure:"sites"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	RPM     int    `yaml:"rpm" mapstructure:"rpm"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	RPM     int    `yaml:"rpm" mapstructure:"rpm"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	RPM     int    `yaml:"rpm" mapstructure:"rpm"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	RPM     int    `yaml:"rpm" mapstructure:"rpm"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// CopilotConfig holds the scrape-backed Copilot adapter settings.
type CopilotConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	RPM     int    `yaml:"rpm" mapstructure:"rpm"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// TrackerConfig bounds run execution.
type TrackerConfig struct {
	GlobalConcurrency    int `yaml:"global_concurrency" mapstructure:"global_concurrency"`
	PerEngineConcurrency int `yaml:"per_engine_concurrency" mapstructure:"per_engine_concurrency"`
	MaxAttempts          int `yaml:"max_attempts" mapstructure:"max_attempts"`
	RunTimeoutSecs       int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	VariantSample        int `yaml:"variant_sample" mapstructure:"variant_sample"`
	HealthIntervalSecs   int `yaml:"health_interval_secs" mapstructure:"health_interval_secs"`
}

// ScoreConfig configures score computation.
type ScoreConfig struct {
	WindowDays         int    `yaml:"window_days" mapstructure:"window_days"`
	AuthorityTablePath string `yaml:"authority_table_path" mapstructure:"authority_table_path"`
}

// TelemetryConfig points at the external telemetry collaborator.
type TelemetryConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// NotionConfig holds Notion API credentials and the score database ID.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	ScoreDB string `yaml:"score_db" mapstructure:"score_db"`
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

// SiteConfig is the local projection of a tracked site. Site records live in
// the external tenant store; this block mirrors the fields the pipeline
// needs.
type SiteConfig struct {
	ID           string   `yaml:"id" mapstructure:"id"`
	Domain       string   `yaml:"domain" mapstructure:"domain"`
	BrandName    string   `yaml:"brand_name" mapstructure:"brand_name"`
	BrandDomains []string `yaml:"brand_domains" mapstructure:"brand_domains"`
}

// Site looks up a configured site by ID.
func (c *Config) Site(siteID string) (model.Site, error) {
	for _, s := range c.Sites {
		if s.ID == siteID {
			return model.Site{
				ID:           s.ID,
				Domain:       s.Domain,
				BrandName:    s.BrandName,
				BrandDomains: s.BrandDomains,
			}, nil
		}
	}
	return model.Site{}, eris.Errorf("config: site %s not configured", siteID)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default empty so AutomaticEnv can bind them.
	for _, key := range []string{
		"anthropic.key", "openai.key", "perplexity.key", "gemini.key",
		"copilot.base_url", "telemetry.base_url", "telemetry.key",
		"notion.token", "notion.score_db",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "visibility.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.rpm", 20)
	v.SetDefault("anthropic.enabled", true)
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.rpm", 20)
	v.SetDefault("openai.enabled", true)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.rpm", 20)
	v.SetDefault("perplexity.enabled", true)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.rpm", 20)
	v.SetDefault("gemini.enabled", true)
	v.SetDefault("copilot.rpm", 10)
	v.SetDefault("copilot.enabled", false)
	v.SetDefault("tracker.global_concurrency", 8)
	v.SetDefault("tracker.per_engine_concurrency", 2)
	v.SetDefault("tracker.max_attempts", 3)
	v.SetDefault("tracker.run_timeout_secs", 900)
	v.SetDefault("tracker.variant_sample", 0)
	v.SetDefault("tracker.health_interval_secs", 300)
	v.SetDefault("score.window_days", 30)

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
