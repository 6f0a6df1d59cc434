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
	Portal   PortalConfig   `yaml:"portal" mapstructure:"portal"`
	Solver   SolverConfig   `yaml:"solver" mapstructure:"solver"`
	Browser  BrowserConfig  `yaml:"browser" mapstructure:"browser"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PortalConfig holds the invoice portal endpoint and timing knobs.
type PortalConfig struct {
	SearchURL       string `yaml:"search_url" mapstructure:"search_url"`
	SelectorTimeout int    `yaml:"selector_timeout_secs" mapstructure:"selector_timeout_secs"`
	SettleTimeout   int    `yaml:"settle_timeout_secs" mapstructure:"settle_timeout_secs"`
	SettleDelayMs   int    `yaml:"settle_delay_ms" mapstructure:"settle_delay_ms"`
}

// SolverConfig selects and credentials the captcha solving backend.
type SolverConfig struct {
	Provider     string `yaml:"provider" mapstructure:"provider"`
	AnthropicKey string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIKey    string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	Model        string `yaml:"model" mapstructure:"model"`
	OpenAIModel  string `yaml:"openai_model" mapstructure:"openai_model"`
}

// Key returns the credential for the configured provider.
func (c SolverConfig) Key() string {
	if c.Provider == "openai" {
		return c.OpenAIKey
	}
	return c.AnthropicKey
}

// BrowserConfig configures the chromedp session.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// DownloadConfig configures where and how invoice files land.
type DownloadConfig struct {
	Dir              string `yaml:"dir" mapstructure:"dir"`
	TransferTimeout  int    `yaml:"transfer_timeout_secs" mapstructure:"transfer_timeout_secs"`
	InterRequestSecs int    `yaml:"inter_request_secs" mapstructure:"inter_request_secs"`
}

// StoreConfig configures the download history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.search_url", "https://3701642642-010-tt78.vnpt-invoice.com.vn/HomeNoLogin/SearchByFkey")
	v.SetDefault("portal.selector_timeout_secs", 5)
	v.SetDefault("portal.settle_timeout_secs", 15)
	v.SetDefault("portal.settle_delay_ms", 2000)
	v.SetDefault("solver.provider", "anthropic")
	// Empty defaults register the credential keys so AutomaticEnv can
	// populate them during Unmarshal.
	v.SetDefault("solver.anthropic_api_key", "")
	v.SetDefault("solver.openai_api_key", "")
	v.SetDefault("solver.model", "claude-haiku-4-5-20251001")
	v.SetDefault("solver.openai_model", "gpt-4o-mini")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("download.dir", "./invoices")
	v.SetDefault("download.transfer_timeout_secs", 30)
	v.SetDefault("download.inter_request_secs", 2)
	v.SetDefault("store.path", "invoice-fetch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
