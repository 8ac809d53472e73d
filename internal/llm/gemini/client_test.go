package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"hiroai/roomsync/internal/llm"
)

func newStubClient(fn func(ctx context.Context, prompt string) (string, error)) *Client {
	return &Client{config: &Config{APIKey: "test", Model: "test-model"}, generate: fn}
}

func TestClientGenerateContentSuccess(t *testing.T) {
	client := newStubClient(func(_ context.Context, prompt string) (string, error) {
		if prompt != "prompt" {
			t.Fatalf("unexpected prompt %q", prompt)
		}
		return "hello world", nil
	})

	resp, err := client.GenerateContent(context.Background(), "prompt", "req-1")
	if err != nil {
		t.Fatalf("GenerateContent returned error: %v", err)
	}
	if resp.Text != "hello world" || resp.Model != "test-model" || resp.Provider != "gemini" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClientGenerateContentErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		text string
		code string
	}{
		{"rate limited", errors.New("Error 429, RESOURCE_EXHAUSTED"), "", llm.ErrCodeRateLimit},
		{"bad key", errors.New("API key not valid"), "", llm.ErrCodeAPIKey},
		{"timeout", context.DeadlineExceeded, "", llm.ErrCodeTimeout},
		{"down", errors.New("connection refused"), "", llm.ErrCodeServiceDown},
		{"nil result", errNoResponse, "", llm.ErrCodeInvalidInput},
		{"empty", nil, "", llm.ErrCodeInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			client := newStubClient(func(context.Context, string) (string, error) { return c.text, c.err })
			_, err := client.GenerateContent(context.Background(), "p", "r")
			var perr *llm.ProviderError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ProviderError, got %v", err)
			}
			if perr.Code != c.code {
				t.Fatalf("expected code %s, got %s", c.code, perr.Code)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewConfig(); err == nil {
		t.Fatalf("expected missing key error")
	}

	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("GEMINI_TIMEOUT", "")
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash" || cfg.Timeout != 45*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("GEMINI_TIMEOUT", "10s")
	cfg, err = NewConfig()
	if err != nil || cfg.Timeout != 10*time.Second {
		t.Fatalf("expected 10s timeout, got %+v %v", cfg, err)
	}

	t.Setenv("GEMINI_TIMEOUT", "soon")
	if _, err := NewConfig(); err == nil {
		t.Fatalf("expected invalid timeout error")
	}
}

func TestProviderRegistered(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := llm.NewProvider("gemini"); err == nil {
		t.Fatalf("expected factory to surface config error")
	}
}

func TestGetProviderName(t *testing.T) {
	if (&Client{}).GetProviderName() != "gemini" {
		t.Fatalf("unexpected provider name")
	}
}
