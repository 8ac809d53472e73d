package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/auth"
	"hiroai/roomsync/internal/config"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/profile"
)

func TestTokenHandler(t *testing.T) {
	issue := func(issuer *auth.Issuer, body string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.With(middleware.ValidateRequest[*models.TokenRequest]()).Post("/rooms/{roomId}/tokens", NewTokenHandler(issuer, zap.NewNop()).Issue)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rooms/abc/tokens", strings.NewReader(body)))
		return rec
	}

	if rec := issue(auth.NewIssuer("", 0), `{"role":"candidate"}`); rec.Code != http.StatusNotImplemented {
		t.Fatalf("disabled: expected 501, got %d", rec.Code)
	}
	if rec := issue(auth.NewIssuer("k", 0), `{"role":"admin"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad role: expected 400, got %d", rec.Code)
	}

	issuer := auth.NewIssuer("k", time.Hour)
	rec := issue(issuer, `{"role":"candidate","ttlSeconds":60}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: %d %s", rec.Code, rec.Body.String())
	}
	tok := decode[models.TokenResponse](t, rec)
	claims, err := issuer.Validate(tok.Token, "abc")
	if err != nil || claims.Role != models.RoleCandidate {
		t.Fatalf("issued token invalid: %v %+v", err, claims)
	}
}

type stubFetcher struct {
	content string
	err     error
}

func (s stubFetcher) Fetch(context.Context, string) (string, error) { return s.content, s.err }

func TestProfileHandler(t *testing.T) {
	fetch := func(f profile.Fetcher, body string) *httptest.ResponseRecorder {
		h := middleware.ValidateRequest[*models.ProfileRequest]()(http.HandlerFunc(NewProfileHandler(f, zap.NewNop()).Fetch))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/profiles", strings.NewReader(body)))
		return rec
	}

	rec := fetch(stubFetcher{content: "GitHub: octocat"}, `{"handle":"https://github.com/octocat"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ok: %d", rec.Code)
	}
	if got := decode[models.ProfileResponse](t, rec); got.Handle != "octocat" || got.Content != "GitHub: octocat" {
		t.Fatalf("unexpected body: %+v", got)
	}

	cases := []struct {
		f    profile.Fetcher
		body string
		code int
	}{
		{stubFetcher{}, `{"handle":"bad handle!"}`, http.StatusBadRequest},
		{stubFetcher{}, `{}`, http.StatusBadRequest},
		{stubFetcher{err: profile.ErrProfileNotFound}, `{"handle":"ghost"}`, http.StatusNotFound},
		{stubFetcher{err: profile.ErrUpstreamUnavailable}, `{"handle":"octocat"}`, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if rec := fetch(tc.f, tc.body); rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.body, tc.code, rec.Code)
		}
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	get := func(h *HealthHandler, fn func(*HealthHandler) http.HandlerFunc) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		fn(h)(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec
	}
	healthz := func(h *HealthHandler) http.HandlerFunc { return h.HealthzHandler }
	readyz := func(h *HealthHandler) http.HandlerFunc { return h.ReadyzHandler }

	if rec := get(NewHealthHandler(nil, false, nil), healthz); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	cfg := &config.Config{AIProvider: "none"}
	rec := get(NewHealthHandler(stubPinger{}, false, cfg), readyz)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[ReadinessResponse](t, rec); got.Checks["generator"].Status != "disabled" {
		t.Fatalf("generator check: %+v", got.Checks)
	}

	if rec := get(NewHealthHandler(stubPinger{err: errors.New("down")}, true, cfg), readyz); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store down: expected 503, got %d", rec.Code)
	}
	if rec := get(NewHealthHandler(stubPinger{}, false, &config.Config{AIProvider: "gemini"}), readyz); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing provider: expected 503, got %d", rec.Code)
	}
}
