package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"hiroai/roomsync/internal/llm"
)

// Client represents a Gemini LLM client
type Client struct {
	client *genai.Client
	config *Config
	// generate is swapped in tests
	generate func(ctx context.Context, prompt string) (string, error)
}

func NewClient(config *Config) (*Client, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: ProviderName,
			Code:     llm.ErrCodeAPIKey,
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}
	c := &Client{client: client, config: config}
	c.generate = c.callModel
	return c, nil
}

func (c *Client) callModel(ctx context.Context, prompt string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	result, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", errNoResponse
	}
	text, err := result.Text()
	if err != nil {
		return "", &llm.ProviderError{
			Provider: ProviderName,
			Code:     llm.ErrCodeInvalidInput,
			Message:  "Failed to extract response text",
			Err:      err,
		}
	}
	return text, nil
}

var errNoResponse = errors.New("no response generated")

func (c *Client) GenerateContent(ctx context.Context, prompt string, requestID string) (*llm.GenerationResponse, error) {
	startTime := time.Now()
	text, err := c.generate(ctx, prompt)
	var perr *llm.ProviderError
	if errors.As(err, &perr) {
		return nil, perr
	}
	if errors.Is(err, errNoResponse) {
		return nil, &llm.ProviderError{
			Provider: ProviderName,
			Code:     llm.ErrCodeInvalidInput,
			Message:  "No response generated",
		}
	}
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: ProviderName,
			Code:     classify(ctx, err),
			Message:  "Failed to generate content",
			Err:      err,
		}
	}
	if text == "" {
		return nil, &llm.ProviderError{
			Provider: ProviderName,
			Code:     llm.ErrCodeInvalidInput,
			Message:  "Empty response generated",
		}
	}

	return &llm.GenerationResponse{
		Text:           text,
		Provider:       ProviderName,
		Model:          c.config.Model,
		ProcessingTime: time.Since(startTime).Milliseconds(),
	}, nil
}

func classify(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llm.ErrCodeTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource_exhausted"):
		return llm.ErrCodeRateLimit
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return llm.ErrCodeAPIKey
	}
	return llm.ErrCodeServiceDown
}

func (c *Client) GetProviderName() string {
	return ProviderName
}
