package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hiroai/roomsync/internal/models"
)

func TestStripFences(t *testing.T) {
	input := "```json\n{\"question\": \"hi\"}\n```\n"
	want := `{"question": "hi"}`

	if got := StripFences(input); got != want {
		t.Fatalf("StripFences: expected %q, got %q", want, got)
	}

	raw := "  {\"a\":1}  "
	if got := StripFences(raw); got != `{"a":1}` {
		t.Fatalf("StripFences (no fences): expected trimmed string, got %q", got)
	}

	if got := StripFences("```"); got != "" {
		t.Fatalf("StripFences (bare fence): expected empty, got %q", got)
	}
}

func TestJSONHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"hello": "world"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("JSON: expected status %d, got %d", http.StatusCreated, rec.Code)
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("JSON: expected content-type application/json, got %s", contentType)
	}

	rec2 := httptest.NewRecorder()
	Error(rec2, http.StatusBadGateway, "store_unavailable", "down")
	var resp models.ErrorResponse
	if err := json.NewDecoder(rec2.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec2.Code != http.StatusBadGateway || resp.Code != "store_unavailable" {
		t.Fatalf("unexpected error response %d %#v", rec2.Code, resp)
	}
}
