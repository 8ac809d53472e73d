package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"hiroai/roomsync/internal/models"
)

var (
	ErrMissingToken = errors.New("room token missing")
	ErrRoomMismatch = errors.New("room token issued for a different room")
)

// RoomTokenClaims represents the claims in a room access token
type RoomTokenClaims struct {
	RoomID string      `json:"roomId"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 room tokens. A zero-value secret
// disables enforcement.
type Issuer struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, defaultTTL time.Duration) *Issuer {
	if defaultTTL <= 0 {
		defaultTTL = 4 * time.Hour
	}
	return &Issuer{secret: []byte(secret), defaultTTL: defaultTTL, now: time.Now}
}

func (i *Issuer) Enabled() bool { return i != nil && len(i.secret) > 0 }

func (i *Issuer) Issue(roomID string, role models.Role, ttl time.Duration) (string, time.Time, error) {
	if !i.Enabled() {
		return "", time.Time{}, errors.New("room tokens are not configured")
	}
	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	now := i.now()
	exp := now.Add(ttl)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &RoomTokenClaims{
		RoomID: roomID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(i.secret)
	return token, exp, err
}

// Validate validates a token and checks it was issued for roomID.
func (i *Issuer) Validate(tokenString, roomID string) (*RoomTokenClaims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &RoomTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, err
	}
	claims := token.Claims.(*RoomTokenClaims)
	if claims.RoomID != roomID {
		return nil, ErrRoomMismatch
	}
	return claims, nil
}

// ExtractToken reads a bearer token from the Authorization header value,
// falling back to the query parameter used by browser WebSocket clients.
func ExtractToken(authHeader, query string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authHeader[7:]
	}
	return query
}
