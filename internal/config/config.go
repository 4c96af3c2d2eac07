// Package config provides configuration management for the brokerage site
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// Configuration is read from .brokerage.yml (or the file named by
// BROKERAGE_CONFIG_FILE / --config), overridden by BROKERAGE_* environment
// variables and flags. Load applies defaults for everything left unset and
// validates the result.
package config

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/brokerage/internal/validation"
)

// Environment names understood by the server.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Storage backends for the form-state store.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Security  SecurityConfig  `mapstructure:"security" yaml:"security"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Prefetch  PrefetchConfig  `mapstructure:"prefetch" yaml:"prefetch"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Leads     LeadsConfig     `mapstructure:"leads" yaml:"leads"`
	Mail      MailConfig      `mapstructure:"mail" yaml:"mail"`
	Content   ContentConfig   `mapstructure:"content" yaml:"content"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Open            bool          `mapstructure:"open" yaml:"open"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// RenderWait bounds how long a page request waits for its chunk before
	// the fallback placeholder is served instead.
	RenderWait time.Duration `mapstructure:"render_wait" yaml:"render_wait"`
}

type SecurityConfig struct {
	CSRFCookie        string   `mapstructure:"csrf_cookie" yaml:"csrf_cookie"`
	CSRFHeader        string   `mapstructure:"csrf_header" yaml:"csrf_header"`
	SessionCookie     string   `mapstructure:"session_cookie" yaml:"session_cookie"`
	SecureCookies     bool     `mapstructure:"secure_cookies" yaml:"secure_cookies"`
	TrustProxy        bool     `mapstructure:"trust_proxy" yaml:"trust_proxy"`
	BlockedUserAgents []string `mapstructure:"blocked_user_agents" yaml:"blocked_user_agents"`
	MaxBodyBytes      int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type RateLimitConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Requests     int           `mapstructure:"requests" yaml:"requests"`
	Window       time.Duration `mapstructure:"window" yaml:"window"`
	FormRequests int           `mapstructure:"form_requests" yaml:"form_requests"`
	FormWindow   time.Duration `mapstructure:"form_window" yaml:"form_window"`
}

type PrefetchConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	HoverDelay  time.Duration `mapstructure:"hover_delay" yaml:"hover_delay"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type StorageConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	Path       string        `mapstructure:"path" yaml:"path"`
	Namespace  string        `mapstructure:"namespace" yaml:"namespace"`
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

type LeadsConfig struct {
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`
}

type MailConfig struct {
	Driver   string `mapstructure:"driver" yaml:"driver"` // "log" or "smtp"
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
	To       string `mapstructure:"to" yaml:"to"`
}

type ContentConfig struct {
	// Dir overrides the embedded catalogue when set.
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	bindEnv(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(v, &config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// bindEnv registers every config key with v so that BROKERAGE_* variables
// reach Unmarshal even when no file or default mentions the key.
func bindEnv(v *viper.Viper) {
	for _, key := range Keys() {
		_ = v.BindEnv(key)
	}
}

// Keys returns every dotted configuration key, e.g. "server.port".
func Keys() []string {
	var keys []string
	root := reflect.TypeOf(Config{})
	for i := 0; i < root.NumField(); i++ {
		section := root.Field(i)
		prefix := section.Tag.Get("mapstructure")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("mapstructure"))
		}
	}
	return keys
}

// Default returns the configuration Load would produce with nothing set.
func Default() *Config {
	config := &Config{}
	applyDefaults(viper.New(), config)

	return config
}

func applyDefaults(v *viper.Viper, config *Config) {
	if config.Server.Port == 0 && !v.IsSet("server.port") {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = EnvDevelopment
	}
	if config.Server.BaseURL == "" {
		config.Server.BaseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}
	if config.Server.RenderWait == 0 {
		config.Server.RenderWait = 2 * time.Second
	}

	if config.Security.CSRFCookie == "" {
		config.Security.CSRFCookie = "csrf_token"
	}
	if config.Security.CSRFHeader == "" {
		config.Security.CSRFHeader = "X-CSRF-Token"
	}
	if config.Security.SessionCookie == "" {
		config.Security.SessionCookie = "brk_sid"
	}
	if !v.IsSet("security.secure_cookies") {
		config.Security.SecureCookies = config.Server.Environment == EnvProduction
	}
	if config.Security.MaxBodyBytes == 0 {
		config.Security.MaxBodyBytes = 64 << 10
	}

	if !v.IsSet("ratelimit.enabled") {
		config.RateLimit.Enabled = true
	}
	if config.RateLimit.Requests == 0 {
		config.RateLimit.Requests = 100
	}
	if config.RateLimit.Window == 0 {
		config.RateLimit.Window = 15 * time.Minute
	}
	if config.RateLimit.FormRequests == 0 {
		config.RateLimit.FormRequests = 10
	}
	if config.RateLimit.FormWindow == 0 {
		config.RateLimit.FormWindow = time.Hour
	}

	if !v.IsSet("prefetch.enabled") {
		config.Prefetch.Enabled = true
	}
	if config.Prefetch.HoverDelay == 0 {
		config.Prefetch.HoverDelay = 100 * time.Millisecond
	}
	if config.Prefetch.IdleTimeout == 0 {
		config.Prefetch.IdleTimeout = 2 * time.Second
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = StorageFile
	}
	if config.Storage.Path == "" {
		switch config.Storage.Backend {
		case StorageSQLite:
			config.Storage.Path = ".brokerage/formstate.db"
		case StorageFile:
			config.Storage.Path = ".brokerage/formstate"
		}
	}
	if config.Storage.Namespace == "" {
		config.Storage.Namespace = "form-state"
	}
	if config.Storage.SessionTTL == 0 {
		config.Storage.SessionTTL = 30 * time.Minute
	}

	if config.Leads.DatabasePath == "" {
		config.Leads.DatabasePath = ".brokerage/leads.db"
	}

	if config.Mail.Driver == "" {
		config.Mail.Driver = "log"
	}
	if config.Mail.Port == 0 {
		config.Mail.Port = 587
	}
	if config.Mail.From == "" {
		config.Mail.From = "website@example.com"
	}
	if config.Mail.To == "" {
		config.Mail.To = "leads@example.com"
	}

	if !v.IsSet("content.watch") {
		config.Content.Watch = config.Server.Environment == EnvDevelopment && config.Content.Dir != ""
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		if config.Server.Environment == EnvProduction {
			config.Logging.Format = "json"
		} else {
			config.Logging.Format = "text"
		}
	}
}

// IsProduction reports whether the server runs with the production profile.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// IsDevelopment reports whether the server runs with the development profile.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateRateLimitConfig(&config.RateLimit); err != nil {
		return fmt.Errorf("ratelimit config: %w", err)
	}

	if err := validateStorageConfig(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := validateMailConfig(&config.Mail); err != nil {
		return fmt.Errorf("mail config: %w", err)
	}

	if config.Content.Dir != "" {
		if err := validatePath(config.Content.Dir); err != nil {
			return fmt.Errorf("content config: %w", err)
		}
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// 0 lets the OS pick a port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	switch config.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("unknown environment %q", config.Environment)
	}

	if config.BaseURL != "" {
		if err := validation.ValidateURL(config.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}

	for _, origin := range config.AllowedOrigins {
		if err := validation.ValidateOrigin(origin); err != nil {
			return fmt.Errorf("allowed_origins: %w", err)
		}
	}

	return nil
}

func validateRateLimitConfig(config *RateLimitConfig) error {
	if config.Requests < 0 || config.FormRequests < 0 {
		return fmt.Errorf("request limits must not be negative")
	}
	if config.Window < 0 || config.FormWindow < 0 {
		return fmt.Errorf("windows must not be negative")
	}

	return nil
}

func validateStorageConfig(config *StorageConfig) error {
	switch config.Backend {
	case StorageMemory:
		return nil
	case StorageFile, StorageSQLite:
		return validatePath(config.Path)
	default:
		return fmt.Errorf("unknown storage backend %q", config.Backend)
	}
}

func validateMailConfig(config *MailConfig) error {
	switch config.Driver {
	case "log":
	case "smtp":
		if config.Host == "" {
			return fmt.Errorf("smtp driver requires a host")
		}
	default:
		return fmt.Errorf("unknown mail driver %q", config.Driver)
	}

	if _, err := mail.ParseAddress(config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if _, err := mail.ParseAddress(config.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
