package config

import (
	"fmt"
	"strings"

	errs "nutrition-enrichment/pkg/errors"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

type validator struct {
	errors []ValidationError
}

func (v *validator) add(field, value, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: message})
}

// Validate checks the configuration. Missing external-service credentials are
// a fatal configuration error: the worker must refuse to run a batch rather
// than attempt partial work.
func (c *Config) Validate() error {
	v := &validator{}

	if c.DatabaseURL == "" {
		v.add("DATABASE_URL", c.DatabaseURL, "database URL is required")
	}
	if c.OpenAIAPIKey == "" {
		v.add("OPENAI_API_KEY", "", "OpenAI API key is required")
	}

	if c.BatchSize <= 0 {
		v.add("BATCH_SIZE", fmt.Sprint(c.BatchSize), "batch size must be positive")
	}
	if c.BatchSize > 100 {
		v.add("BATCH_SIZE", fmt.Sprint(c.BatchSize), "batch size above 100 would exceed completion service rate limits")
	}
	if c.RecordDelay < 0 {
		v.add("RECORD_DELAY", c.RecordDelay.String(), "record delay cannot be negative")
	}
	if c.RescoreThreshold < 0 || c.RescoreThreshold > 100 {
		v.add("RESCORE_THRESHOLD", fmt.Sprint(c.RescoreThreshold), "rescore threshold must be within [0,100]")
	}
	if c.ClaimTTL <= 0 {
		v.add("CLAIM_TTL", c.ClaimTTL.String(), "claim TTL must be positive")
	}
	if c.MaxTransientRetries < 0 {
		v.add("MAX_TRANSIENT_RETRIES", fmt.Sprint(c.MaxTransientRetries), "retry limit cannot be negative")
	}

	if c.OpenAITemperature < 0 || c.OpenAITemperature > 2 {
		v.add("OPENAI_TEMPERATURE", fmt.Sprint(c.OpenAITemperature), "temperature must be within [0,2]")
	}
	if c.OpenAIMaxTokens <= 0 {
		v.add("OPENAI_MAX_TOKENS", fmt.Sprint(c.OpenAIMaxTokens), "max tokens must be positive")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		v.add("LOG_FORMAT", c.LogFormat, "log format must be json or text")
	}

	if len(v.errors) > 0 {
		msgs := make([]string, 0, len(v.errors))
		for _, e := range v.errors {
			msgs = append(msgs, e.Error())
		}
		return errs.NewValidation("config.Validate", fmt.Sprintf("configuration validation failed:\n%s", strings.Join(msgs, "\n")), nil)
	}
	return nil
}
