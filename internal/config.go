package internal

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tutorcore/internal/mastery"
	"github.com/starford/tutorcore/internal/retrieval"
	"github.com/starford/tutorcore/internal/subgraph"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Tracing exporters.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	Mastery    mastery.Params    `yaml:"mastery"`
	Session    SessionConfig     `yaml:"session"`
	Retrieval  RetrievalConfig   `yaml:"retrieval"`
	Curriculum CurriculumConfig  `yaml:"curriculum"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Mastery.Validate(); err != nil {
		return fmt.Errorf("mastery: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	Tracing  string     `yaml:"tracing"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Tracing == "" {
		c.Tracing = TracingNone
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Tracing, validation.In(TracingNone, TracingStdout)),
	); err != nil {
		return err
	}
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

// VaultConfig holds the Markdown vault location and how it is followed.
type VaultConfig struct {
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
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

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// SessionConfig restricts the mastery thresholds callers may ask for.
type SessionConfig struct {
	MasteryThresholds       []float64 `yaml:"mastery_thresholds"`
	DefaultMasteryThreshold float64   `yaml:"default_mastery_threshold"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MasteryThresholds, validation.Required, validation.Each(validation.Min(0.01), validation.Max(1.0))),
		validation.Field(&c.DefaultMasteryThreshold, validation.Required),
	); err != nil {
		return err
	}
	if !slices.Contains(c.MasteryThresholds, c.DefaultMasteryThreshold) {
		return fmt.Errorf("session: default_mastery_threshold %v is not one of %v", c.DefaultMasteryThreshold, c.MasteryThresholds)
	}
	return nil
}

// RetrievalConfig tunes context retrieval.
type RetrievalConfig struct {
	K              int    `yaml:"k"`
	Hops           int    `yaml:"hops"`
	BudgetTokens   int    `yaml:"budget_tokens"`
	Strategy       string `yaml:"strategy"`
	DropStopwords  bool   `yaml:"drop_stopwords"`
	DictionaryScan bool   `yaml:"dictionary_scan"`
	VectorSearch   bool   `yaml:"vector_search"`

	// MinSimilarity is the cosine similarity a vector hit needs to seed
	// retrieval.
	MinSimilarity float64 `yaml:"min_similarity"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.K, validation.Min(0), validation.Max(100)),
		validation.Field(&c.Hops, validation.Required, validation.Min(1), validation.Max(5)),
		validation.Field(&c.BudgetTokens, validation.Required, validation.Min(subgraph.NodeTokens)),
		validation.Field(&c.MinSimilarity, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if _, err := subgraph.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	return nil
}

// Options converts the configuration into retriever options.
func (c *RetrievalConfig) Options() retrieval.Options {
	strategy, _ := subgraph.ParseStrategy(c.Strategy)
	return retrieval.Options{K: c.K, Hops: c.Hops, BudgetTokens: c.BudgetTokens, Strategy: strategy}
}

// CurriculumConfig points at an optional curriculum YAML file. When empty
// the curriculum persisted in SQLite is used.
type CurriculumConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig holds practice metrics settings.
type MetricsConfig struct {
	HintWindow time.Duration `yaml:"hint_window"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HintWindow, validation.Required, validation.Min(time.Minute)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			Tracing: TracingNone,
		},
		Vault: VaultConfig{
			Path:     "./vault",
			Watch:    true,
			CacheTTL: 5 * time.Minute,
			Debounce: 500 * time.Millisecond,
		},
		SQLite: SQLiteConfig{
			Path: "./tutorcore.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Mastery: mastery.DefaultParams(),
		Session: SessionConfig{
			MasteryThresholds:       []float64{0.95, 0.98},
			DefaultMasteryThreshold: 0.95,
		},
		Retrieval: RetrievalConfig{
			K:              retrieval.DefaultK,
			Hops:           retrieval.DefaultHops,
			BudgetTokens:   subgraph.DefaultBudgetTokens,
			Strategy:       string(subgraph.Greedy),
			DropStopwords:  true,
			DictionaryScan: false,
			VectorSearch:   true,
			MinSimilarity:  float64(retrieval.DefaultMinSimilarity),
		},
		Metrics: MetricsConfig{
			HintWindow: 7 * 24 * time.Hour,
		},
	}
}
