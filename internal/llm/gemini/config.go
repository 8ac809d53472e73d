package gemini

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 45 * time.Second
)

// Config is read from GEMINI_* environment variables.
type Config struct {
	APIKey string
	Model  string
	// Timeout bounds one generation call; the HTTP layer allows 60s.
	Timeout time.Duration
}

func NewConfig() (*Config, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable is required")
	}
	cfg := &Config{APIKey: apiKey, Model: defaultModel, Timeout: defaultTimeout}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.Model = model
	}
	if v := os.Getenv("GEMINI_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid GEMINI_TIMEOUT %q", v)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}
