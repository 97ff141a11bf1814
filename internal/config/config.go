// Package config provides configuration types and defaults for the gemini
// client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"

	"github.com/pitr/gemini-ios-sub000/internal/dispatch"
	"github.com/pitr/gemini-ios-sub000/internal/log"
	"github.com/pitr/gemini-ios-sub000/internal/page"
	"github.com/pitr/gemini-ios-sub000/internal/paths"
	"github.com/pitr/gemini-ios-sub000/internal/tracing"
	"github.com/pitr/gemini-ios-sub000/internal/transport"
)

// MaxRedirectsLimit caps max_redirects.
const MaxRedirectsLimit = 20

// Config holds all configuration options.
type Config struct {
	IdentityDB      string         `mapstructure:"identity_db"`
	MaxRedirects    int            `mapstructure:"max_redirects"`
	Timeout         time.Duration  `mapstructure:"timeout"`
	DownloadHandler string         `mapstructure:"download_handler"`
	Theme           ThemeConfig    `mapstructure:"theme"`
	Identity        IdentityConfig `mapstructure:"identity"`
	Tracing         tracing.Config `mapstructure:"tracing"`
	Serve           ServeConfig    `mapstructure:"serve"`
}

// ThemeConfig holds document presentation options.
type ThemeConfig struct {
	// SiteColors derives page colours from each capsule's host name.
	SiteColors bool `mapstructure:"site_colors"`

	// FontURL overrides the bundled monospace font location.
	FontURL string `mapstructure:"font_url"`
}

// IdentityConfig holds client certificate defaults.
type IdentityConfig struct {
	ValidityDays int `mapstructure:"validity_days"`
}

// ServeConfig holds preview server options.
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		IdentityDB:      paths.IdentityDB(),
		MaxRedirects:    dispatch.DefaultMaxRedirects,
		Timeout:         0, // no client side timeout
		DownloadHandler: dispatch.DefaultDownloadHandler,
		Theme: ThemeConfig{
			SiteColors: false,
			FontURL:    page.DefaultFontURL,
		},
		Identity: IdentityConfig{
			ValidityDays: 365,
		},
		Tracing: tracing.DefaultConfig(),
		Serve: ServeConfig{
			Addr: "127.0.0.1:8965",
		},
	}
}

// SetDefaults registers Defaults with v so unset keys fall back to them.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("identity_db", d.IdentityDB)
	v.SetDefault("max_redirects", d.MaxRedirects)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("download_handler", d.DownloadHandler)
	v.SetDefault("theme.site_colors", d.Theme.SiteColors)
	v.SetDefault("theme.font_url", d.Theme.FontURL)
	v.SetDefault("identity.validity_days", d.Identity.ValidityDays)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("serve.addr", d.Serve.Addr)
}

// Load decodes v into a Config, expands paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg.IdentityDB = paths.Expand(cfg.IdentityDB)
	cfg.Tracing.FilePath = paths.Expand(cfg.Tracing.FilePath)
	if cfg.Tracing.FilePath == "" && cfg.Tracing.Exporter == "file" {
		cfg.Tracing.FilePath = paths.TracesFile()
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	log.Debug(log.CatConfig, "Loaded config", "file", v.ConfigFileUsed(), "identity_db", cfg.IdentityDB)
	return cfg, nil
}

var handlerName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Validate checks cfg for out of range or malformed values.
func Validate(cfg Config) error {
	if cfg.IdentityDB == "" {
		return fmt.Errorf("identity_db is required")
	}
	if cfg.MaxRedirects < 1 || cfg.MaxRedirects > MaxRedirectsLimit {
		return fmt.Errorf("max_redirects must be between 1 and %d, got %d", MaxRedirectsLimit, cfg.MaxRedirects)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if !handlerName.MatchString(cfg.DownloadHandler) {
		return fmt.Errorf("download_handler must be a JavaScript identifier, got %q", cfg.DownloadHandler)
	}
	if cfg.Theme.FontURL != "" {
		if _, err := url.Parse(cfg.Theme.FontURL); err != nil {
			return fmt.Errorf("theme.font_url: %w", err)
		}
	}
	if cfg.Identity.ValidityDays < 1 {
		return fmt.Errorf("identity.validity_days must be positive, got %d", cfg.Identity.ValidityDays)
	}
	if cfg.Serve.Addr == "" {
		return fmt.Errorf("serve.addr is required")
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing tracing.Config) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// Dispatch returns the response dispatch settings.
func (c Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		MaxRedirects:    c.MaxRedirects,
		DownloadHandler: c.DownloadHandler,
		Page:            c.Page(),
	}
}

// Page returns the document chrome settings.
func (c Config) Page() page.Options {
	return page.Options{
		SiteTheme: c.Theme.SiteColors,
		FontURL:   c.Theme.FontURL,
	}
}

// Transport returns the network client settings.
func (c Config) Transport() transport.Config {
	return transport.Config{Timeout: c.Timeout}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Gemini client configuration

# SQLite database holding client certificates (default: ~/.config/gemini/identities.db)
# identity_db: ~/.config/gemini/identities.db

# Redirects followed in one navigation before giving up (1-20)
max_redirects: 5

# Bound on connect plus exchange, e.g. 30s. 0 waits for the server indefinitely.
timeout: 0s

# Host message handler that receives downloads the viewer cannot display
download_handler: download

# Document presentation
theme:
  site_colors: false   # Derive page colours from each capsule's host name
  font_url: gemini-resource://fonts/iosevka-regular.woff2

# Client certificates
identity:
  validity_days: 365   # Lifetime of newly created certificates

# Preview server (gemini serve)
serve:
  addr: 127.0.0.1:8965

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/gemini/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
