package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	clinicIDKey contextKey = "clinicID"
	apiTokenKey contextKey = "apiToken"
)

// ContextWithClinicID returns a new context that carries the clinic (tenant) scope.
func ContextWithClinicID(ctx context.Context, id uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clinicIDKey, id)
}

// ClinicIDFromContext retrieves the clinic scope from the context, if any.
func ClinicIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(clinicIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// ContextWithAPIToken stores the caller's bearer token so calls to the clinic
// API are made on the caller's behalf.
func ContextWithAPIToken(ctx context.Context, token string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, apiTokenKey, strings.TrimSpace(token))
}

// APITokenFromContext returns the forwarded bearer token, if any.
func APITokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(apiTokenKey).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// TokenFingerprint is a short digest of an API token, safe to use in cache
// keys and logs.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:8])
}

// ScopeKey names the data a caller may see: the credential its API calls are
// made with, narrowed by the clinic it selected ("-" when none). A blank
// token has no scope.
func ScopeKey(ctx context.Context, token string) (string, bool) {
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	clinic := "-"
	if id, ok := ClinicIDFromContext(ctx); ok {
		clinic = id.String()
	}
	return TokenFingerprint(token) + ":" + clinic, true
}
