package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Catalog sources.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// Config holds all configuration for intentgate.
// Values come from a YAML file (config.yaml by default, CONFIG_PATH to
// override) with environment variables taking precedence. Secrets (API keys,
// passwords) are only read from the environment.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Catalog    CatalogConfig    `yaml:"catalog"`
	Validation ValidationConfig `yaml:"validation"`
	LLM        LLMConfig        `yaml:"llm"`
	Engine     EngineConfig     `yaml:"engine"`
	Database   DatabaseConfig   `yaml:"database"`
	MCP        MCPConfig        `yaml:"mcp"`
	Auth       AuthConfig       `yaml:"auth"`
}

// CatalogConfig selects where the semantic catalog is loaded from.
type CatalogConfig struct {
	// Source is "file" or "postgres".
	Source string `yaml:"source" env:"CATALOG_SOURCE" env-default:"file"`
	// Path is the YAML catalog used by the file source.
	Path string `yaml:"path" env:"CATALOG_PATH" env-default:"catalog/catalog.yaml"`
	// ReloadInterval re-reads the source periodically; 0 disables it.
	ReloadInterval time.Duration `yaml:"reload_interval" env:"CATALOG_RELOAD_INTERVAL" env-default:"0s"`
}

// ValidationConfig holds the intent validation policy.
type ValidationConfig struct {
	// RequireSnapshotTimeRange rejects SNAPSHOT intents without a time_range.
	RequireSnapshotTimeRange bool `yaml:"require_snapshot_time_range" env:"VALIDATION_REQUIRE_SNAPSHOT_TIME_RANGE" env-default:"false"`
	// UseCatalogDefaultTimeDimension fills a missing time_dimension from the
	// catalog's default_time_dimension. Defaults to true in Load.
	UseCatalogDefaultTimeDimension bool `yaml:"use_catalog_default_time_dimension" env:"VALIDATION_USE_CATALOG_DEFAULT_TIME_DIMENSION"`
	SuggestionLimit                int  `yaml:"suggestion_limit" env:"VALIDATION_SUGGESTION_LIMIT" env-default:"3"`
}

// LLMConfig configures the model used for intent extraction.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string        `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string        `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string        `yaml:"model" env:"LLM_MODEL" env-default:""`
	Temperature float64       `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	Timeout     time.Duration `yaml:"timeout" env:"LLM_TIMEOUT" env-default:"30s"`
	APIKey      string        `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// IsAvailable reports whether enough is configured to call a model.
func (c *LLMConfig) IsAvailable() bool {
	return c.Model != "" && (c.APIKey != "" || c.BaseURL != "")
}

// EngineConfig configures the semantic-query engine (Cube REST API).
type EngineConfig struct {
	// BaseURL is the API root, e.g. http://localhost:4000/cubejs-api/v1.
	BaseURL string        `yaml:"base_url" env:"CUBE_API_URL" env-default:""`
	Timeout time.Duration `yaml:"timeout" env:"CUBE_TIMEOUT" env-default:"30s"`
	MaxRows int           `yaml:"max_rows" env:"CUBE_MAX_ROWS" env-default:"10000"`
	// Timezone is sent with every query and used to resolve named time windows.
	Timezone string `yaml:"timezone" env:"CUBE_TIMEZONE" env-default:"UTC"`
	// ContinueWaitAttempts bounds polling while the engine answers "Continue wait".
	ContinueWaitAttempts int           `yaml:"continue_wait_attempts" env:"CUBE_CONTINUE_WAIT_ATTEMPTS" env-default:"10"`
	ContinueWaitDelay    time.Duration `yaml:"continue_wait_delay" env:"CUBE_CONTINUE_WAIT_DELAY" env-default:"1s"`
	APISecret            string        `yaml:"-" env:"CUBE_API_SECRET"` // Secret - not in YAML
}

// IsAvailable reports whether queries can be executed.
func (c *EngineConfig) IsAvailable() bool {
	return c.BaseURL != ""
}

// DatabaseConfig holds the PostgreSQL connection for the postgres catalog source.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"intentgate"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"intentgate"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED"` // Defaults to true in Load
}

// AuthConfig enables bearer-token auth on /api and /mcp. Auth is off unless
// a JWKS URL is set.
type AuthConfig struct {
	Issuer        string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`
	JWKSURL       string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
	Audience      string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`
	RequiredScope string `yaml:"required_scope" env:"AUTH_REQUIRED_SCOPE" env-default:""`
}

// Enabled reports whether requests must carry a token.
func (c *AuthConfig) Enabled() bool {
	return c.JWKSURL != ""
}

// Load reads configuration with environment variable overrides. A missing
// config file is not an error; defaults and the environment are used instead.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	// cleanenv applies env-default to any zero field, which would turn an
	// explicit "false" in YAML back into true. True defaults are preset here.
	cfg := &Config{
		Version:    version,
		Validation: ValidationConfig{UseCatalogDefaultTimeDimension: true},
		MCP:        MCPConfig{Enabled: true},
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Catalog.Source = strings.ToLower(strings.TrimSpace(c.Catalog.Source))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Engine.BaseURL = strings.TrimRight(strings.TrimSpace(c.Engine.BaseURL), "/")
	c.Auth.JWKSURL = strings.TrimSpace(c.Auth.JWKSURL)
}

// Validate checks values cleanenv cannot check on its own.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case CatalogSourceFile:
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required for the file source")
		}
	case CatalogSourcePostgres:
	default:
		return fmt.Errorf("catalog.source must be %q or %q, got %q", CatalogSourceFile, CatalogSourcePostgres, c.Catalog.Source)
	}

	if c.Catalog.ReloadInterval < 0 {
		return fmt.Errorf("catalog.reload_interval must not be negative")
	}
	if c.Validation.SuggestionLimit < 0 {
		return fmt.Errorf("validation.suggestion_limit must not be negative")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}

	if c.Engine.MaxRows <= 0 {
		return fmt.Errorf("engine.max_rows must be positive")
	}
	if c.Engine.ContinueWaitAttempts <= 0 {
		return fmt.Errorf("engine.continue_wait_attempts must be positive")
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if c.Engine.BaseURL != "" {
		if u, err := url.Parse(c.Engine.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("engine.base_url must be an absolute URL, got %q", c.Engine.BaseURL)
		}
	}

	if c.Auth.Enabled() {
		if c.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer is required when auth.jwks_url is set")
		}
		if u, err := url.Parse(c.Auth.JWKSURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("auth.jwks_url must be an absolute URL, got %q", c.Auth.JWKSURL)
		}
	}
	return nil
}

// Location returns the engine timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindAddr, c.Port)
}

// URL returns a postgres:// connection URL accepted by pgx and golang-migrate.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(ResolveHostForDocker(c.Host), strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
