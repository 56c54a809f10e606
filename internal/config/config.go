// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.campusqa/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Clova: HyperCLOVA X chat-completions endpoint, model and sampling
//   - Embedding: embedder model and output dimension
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: top-k bounds for syllabus search
//   - Server: HTTP listen address, auth secret, title generation
//
// Sensitive values (API keys, passwords, secrets) are masked in MarshalJSON
// and String so they never reach logs verbatim.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingClovaKey indicates the HyperCLOVA API key is missing.
	ErrMissingClovaKey = errors.New("missing CLOVA API key")

	// ErrMissingGeminiKey indicates the Gemini API key for embeddings is missing.
	ErrMissingGeminiKey = errors.New("missing Gemini API key")

	// ErrInvalidModelName indicates the completion model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidTopK indicates the retrieval top-k default is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidEmbedDimension indicates the embedder output dimension is invalid.
	ErrInvalidEmbedDimension = errors.New("invalid embedding dimension")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingAuthSecret indicates the token-signing secret is not set.
	ErrMissingAuthSecret = errors.New("missing auth secret")

	// ErrInvalidAuthSecret indicates the token-signing secret is too short.
	ErrInvalidAuthSecret = errors.New("invalid auth secret")
)

const (
	// DefaultClovaModel is the default HyperCLOVA X chat-completions model.
	DefaultClovaModel = "HCX-005"

	// DefaultClovaHost is the CLOVA Studio API host.
	DefaultClovaHost = "https://clovastudio.stream.ntruss.com"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema stores vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedDimension matches the vector column width in db/migrations.
	DefaultEmbedDimension = 768

	// DefaultRetrievalTopK is the default number of syllabus passages
	// retrieved per domain query when the caller does not specify k.
	DefaultRetrievalTopK = 5

	// MaxRetrievalTopK caps caller-requested k.
	MaxRetrievalTopK = 10
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HyperCLOVA X completion configuration
	ClovaHost      string  `mapstructure:"clova_host" json:"clova_host"`
	ClovaAPIKey    string  `mapstructure:"clova_api_key" json:"clova_api_key"` // SENSITIVE: masked in MarshalJSON
	ClovaModel     string  `mapstructure:"clova_model" json:"clova_model"`
	ClovaRequestID string  `mapstructure:"clova_request_id" json:"clova_request_id"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Embedding configuration
	GeminiAPIKey  string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedDim      int    `mapstructure:"embed_dimension" json:"embed_dimension"`
	EmbedWorkers  int    `mapstructure:"embed_workers" json:"embed_workers"`

	// Retrieval configuration
	RetrievalTopK int `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration (serve mode only)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	AuthSecret string `mapstructure:"auth_secret" json:"auth_secret"` // SENSITIVE: masked in MarshalJSON

	// Observability (optional OTLP trace export)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".campusqa")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Completion defaults (HyperCLOVA X v3 defaults used by the service)
	viper.SetDefault("clova_host", DefaultClovaHost)
	viper.SetDefault("clova_model", DefaultClovaModel)
	viper.SetDefault("temperature", 0.5)
	viper.SetDefault("max_tokens", 500)

	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embed_dimension", DefaultEmbedDimension)
	viper.SetDefault("embed_workers", 4)

	// Retrieval defaults
	viper.SetDefault("retrieval_top_k", DefaultRetrievalTopK)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "campusqa")
	viper.SetDefault("postgres_password", "campusqa_dev_password")
	viper.SetDefault("postgres_db_name", "campusqa")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")

	// Observability defaults (empty endpoint disables trace export)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets come only from the environment in production deployments.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a bug in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("clova_api_key", "CLOVA_API_KEY")
	mustBind("clova_request_id", "CLOVA_REQUEST_ID")
	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("auth_secret", "CAMPUSQA_AUTH_SECRET")
	mustBind("listen_addr", "CAMPUSQA_LISTEN_ADDR")
	mustBind("otlp_endpoint", "CAMPUSQA_OTLP_ENDPOINT")
	mustBind("environment", "CAMPUSQA_ENV")
	mustBind("clova_model", "CAMPUSQA_CLOVA_MODEL")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked; longer secrets keep the
// first and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked: ClovaAPIKey, GeminiAPIKey, PostgresPassword,
// AuthSecret. When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.ClovaAPIKey = maskSecret(a.ClovaAPIKey)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.AuthSecret = maskSecret(a.AuthSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
