// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Consent ConsentConfig `mapstructure:"consent" yaml:"consent"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser engine.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	InstallTimeout time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
}

// CaptureConfig tunes the screenshot run itself. Every timeout and delay the
// orchestrator uses lives here so tests can inject shortened values.
type CaptureConfig struct {
	OutputDir         string        `mapstructure:"output_dir" yaml:"output_dir"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PostResolveWait absorbs layout reflow after consent resolution; it is
	// deliberately longer than any single delay inside the resolver.
	PostResolveWait time.Duration `mapstructure:"post_resolve_wait" yaml:"post_resolve_wait"`
	SkipConsent     bool          `mapstructure:"skip_consent" yaml:"skip_consent"`
	// Tablet adds a third 768x1024 profile after desktop and mobile.
	Tablet bool `mapstructure:"tablet" yaml:"tablet"`
}

// ConsentConfig holds the resolver's internal timing knobs.
type ConsentConfig struct {
	// ProbeTimeout bounds a single selector visibility probe. Probing must stay
	// cheap since most catalog entries will not match a given page.
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	ClickTimeout  time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	ClickSettle   time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	ReloadTimeout time.Duration `mapstructure:"reload_timeout" yaml:"reload_timeout"`
	ReloadSettle  time.Duration `mapstructure:"reload_settle" yaml:"reload_settle"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pageshot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.install_timeout", "5m")

	// -- Capture --
	v.SetDefault("capture.output_dir", "./output")
	v.SetDefault("capture.navigation_timeout", "30s")
	v.SetDefault("capture.post_resolve_wait", "2s")
	v.SetDefault("capture.skip_consent", false)
	v.SetDefault("capture.tablet", false)

	// -- Consent --
	v.SetDefault("consent.probe_timeout", "500ms")
	v.SetDefault("consent.click_timeout", "1s")
	v.SetDefault("consent.click_settle", "500ms")
	v.SetDefault("consent.reload_timeout", "20s")
	v.SetDefault("consent.reload_settle", "1s")
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with our own defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewFromViper creates a validated configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Capture.OutputDir == "" {
		return fmt.Errorf("capture.output_dir must not be empty")
	}
	if c.Capture.NavigationTimeout <= 0 {
		return fmt.Errorf("capture.navigation_timeout must be a positive duration")
	}
	if c.Capture.PostResolveWait < 0 {
		return fmt.Errorf("capture.post_resolve_wait must not be negative")
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be a positive duration")
	}
	if c.Browser.InstallTimeout <= 0 {
		return fmt.Errorf("browser.install_timeout must be a positive duration")
	}
	if err := c.Consent.Validate(); err != nil {
		return fmt.Errorf("consent configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the resolver timing knobs.
func (c *ConsentConfig) Validate() error {
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be a positive duration")
	}
	if c.ClickTimeout <= 0 {
		return fmt.Errorf("click_timeout must be a positive duration")
	}
	if c.ReloadTimeout <= 0 {
		return fmt.Errorf("reload_timeout must be a positive duration")
	}
	if c.ClickSettle < 0 || c.ReloadSettle < 0 {
		return fmt.Errorf("settle delays must not be negative")
	}
	return nil
}
