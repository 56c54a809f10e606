package config

import "fmt"

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the fields every run mode needs. Serve-only requirements
// (API keys, auth secret) are checked in ValidateServe so commands like
// `campusqa version` or `campusqa migrate` stay usable without credentials.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ClovaModel == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: %v (must be in [0, 1])", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 4096 {
		return fmt.Errorf("%w: %d (must be in [1, 4096])", ErrInvalidMaxTokens, c.MaxTokens)
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > MaxRetrievalTopK {
		return fmt.Errorf("%w: %d (must be in [1, %d])", ErrInvalidTopK, c.RetrievalTopK, MaxRetrievalTopK)
	}
	if c.EmbedDim < 1 || c.EmbedDim > 3072 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbedDimension, c.EmbedDim)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be in [1, 65535])", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe checks the additional fields the HTTP service requires.
// Called by the serve command after Validate has already passed in Load.
func (c *Config) ValidateServe() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ClovaAPIKey == "" {
		return fmt.Errorf("%w: set CLOVA_API_KEY", ErrMissingClovaKey)
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingGeminiKey)
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("%w: set CAMPUSQA_AUTH_SECRET", ErrMissingAuthSecret)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 bytes", ErrInvalidAuthSecret)
	}

	return nil
}
