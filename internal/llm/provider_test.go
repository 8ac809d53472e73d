package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubProvider struct{}

func (stubProvider) GenerateContent(context.Context, string, string) (*GenerationResponse, error) {
	return &GenerationResponse{Text: "ok"}, nil
}

func (stubProvider) GetProviderName() string { return "stub" }

func TestRegistry(t *testing.T) {
	RegisterProvider("stub", func() (Provider, error) { return stubProvider{}, nil })

	p, err := NewProvider("stub")
	if err != nil {
		t.Fatalf("expected stub provider, got %v", err)
	}
	if p.GetProviderName() != "stub" {
		t.Fatalf("unexpected provider %s", p.GetProviderName())
	}

	found := false
	for _, name := range Registered() {
		if name == "stub" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stub in registered list")
	}

	if _, err := NewProvider("missing"); err == nil || !strings.Contains(err.Error(), "unsupported provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestProviderErrorFormatting(t *testing.T) {
	inner := errors.New("quota")
	err := &ProviderError{Provider: "gemini", Code: ErrCodeRateLimit, Message: "limited", Err: inner}
	if err.Error() != "gemini error: limited (quota)" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected unwrap to expose inner error")
	}
	plain := &ProviderError{Provider: "gemini", Message: "down"}
	if plain.Error() != "gemini error: down" {
		t.Fatalf("unexpected message %q", plain.Error())
	}
}
