package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/auth"
	"hiroai/roomsync/internal/utils"
)

const roomClaimsKey contextKey = "room_claims"

// RequireRoomToken rejects requests whose bearer token (or "token" query
// parameter) was not issued for the {roomId} in the route. It is a no-op
// when the issuer has no secret.
func RequireRoomToken(issuer *auth.Issuer, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !issuer.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roomID := chi.URLParam(r, "roomId")
			token := auth.ExtractToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
			claims, err := issuer.Validate(token, roomID)
			if err != nil {
				log.Debug("room token rejected", zap.String("room_id", roomID), zap.Error(err))
				switch {
				case errors.Is(err, auth.ErrMissingToken):
					utils.Error(w, http.StatusUnauthorized, "missing_token", "Room token required")
				case errors.Is(err, auth.ErrRoomMismatch):
					utils.Error(w, http.StatusForbidden, "room_mismatch", "Token is not valid for this room")
				default:
					utils.Error(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired room token")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roomClaimsKey, claims)))
		})
	}
}

// RoomClaims returns the claims stored by RequireRoomToken, if any.
func RoomClaims(r *http.Request) (*auth.RoomTokenClaims, bool) {
	c, ok := r.Context().Value(roomClaimsKey).(*auth.RoomTokenClaims)
	return c, ok
}
