package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/auth"
	"hiroai/roomsync/internal/models"
)

func roomRouter(issuer *auth.Issuer) http.Handler {
	r := chi.NewRouter()
	r.With(RequireRoomToken(issuer, zap.NewNop())).Get("/rooms/{roomId}", func(w http.ResponseWriter, r *http.Request) {
		if c, ok := RoomClaims(r); ok {
			w.Header().Set("X-Role", string(c.Role))
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestRequireRoomToken(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	token, _, err := issuer.Issue("abc", models.RoleCandidate, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	h := roomRouter(issuer)

	cases := []struct {
		name   string
		path   string
		header string
		code   int
	}{
		{"missing", "/rooms/abc", "", http.StatusUnauthorized},
		{"garbage", "/rooms/abc", "Bearer nope", http.StatusUnauthorized},
		{"other room", "/rooms/xyz", "Bearer " + token, http.StatusForbidden},
		{"header", "/rooms/abc", "Bearer " + token, http.StatusNoContent},
		{"query", "/rooms/abc?token=" + token, "", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.code, rec.Code)
		}
		if tc.code == http.StatusNoContent && rec.Header().Get("X-Role") != "candidate" {
			t.Fatalf("%s: claims not propagated", tc.name)
		}
	}
}

func TestRequireRoomTokenDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	roomRouter(auth.NewIssuer("", time.Hour)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/abc", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}
