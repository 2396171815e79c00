package internal

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Credential store backends.
const (
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
	BackendMemory  = "memory"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	Auth        AuthConfig        `yaml:"auth"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Sources     SourcesConfig     `yaml:"sources"`
	Pages       PagesConfig       `yaml:"pages"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Credentials.Validate(); err != nil {
		return err
	}
	if err := c.Sources.Validate(); err != nil {
		return err
	}
	if err := c.Pages.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CredentialsConfig selects where source credentials are persisted.
type CredentialsConfig struct {
	Backend string        `yaml:"backend"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Keyring KeyringConfig `yaml:"keyring"`
}

// Validate validates the credential store configuration.
func (c *CredentialsConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(BackendSQLite, BackendKeyring, BackendMemory)),
	); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	switch c.Backend {
	case BackendSQLite:
		return c.SQLite.Validate()
	case BackendKeyring:
		return c.Keyring.Validate()
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// KeyringConfig holds OS keyring configuration.
type KeyringConfig struct {
	Service string `yaml:"service"`
}

// Validate validates the keyring configuration.
func (c *KeyringConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Service, validation.Required),
	)
}

// SourcesConfig tunes the media source adapters and the registry.
type SourcesConfig struct {
	AllowReplace      bool                  `yaml:"allow_replace"`
	RefreshOnEnable   bool                  `yaml:"refresh_on_enable"`
	HTTPTimeout       time.Duration         `yaml:"http_timeout"`
	CacheTTL          time.Duration         `yaml:"cache_ttl"`
	RequestsPerSecond float64               `yaml:"requests_per_second"`
	ProbeTimeout      time.Duration         `yaml:"probe_timeout"`
	Watch             bool                  `yaml:"watch"`
	Seed              map[string]SeedConfig `yaml:"seed"`
}

// SeedConfig is a credential record written on first start when the store
// has none for the source.
type SeedConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Credentials map[string]any `yaml:"credentials"`
}

// Validate validates the sources configuration.
func (c *SourcesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.HTTPTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
		validation.Field(&c.ProbeTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	for id, s := range c.Seed {
		if !slices.Contains(SourceIDs, id) {
			return fmt.Errorf("sources: seed: unknown source %q (known: %s)", id, strings.Join(SourceIDs, ", "))
		}
		if len(s.Credentials) == 0 {
			return fmt.Errorf("sources: seed %s: credentials are required", id)
		}
	}
	return nil
}

// PagesConfig tunes page fetching for scans.
type PagesConfig struct {
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	UserAgent    string        `yaml:"user_agent"`
}

// Validate validates the pages configuration.
func (c *PagesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FetchTimeout, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Credentials: CredentialsConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "./shelfcheck.db"},
			Keyring: KeyringConfig{Service: "shelfcheck"},
		},
		Sources: SourcesConfig{
			HTTPTimeout:  10 * time.Second,
			CacheTTL:     5 * time.Minute,
			ProbeTimeout: 5 * time.Second,
			Watch:        true,
		},
		Pages: PagesConfig{
			FetchTimeout: 15 * time.Second,
			UserAgent:    "Mozilla/5.0 (compatible; shelfcheck/1.0)",
		},
	}
}
