package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/verahq/governance-core/services/authz"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for token claims
	ClaimsKey contextKey = "claims"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves token claims from context
func GetClaimsFromContext(ctx context.Context) *authz.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*authz.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds token claims to the context
func WithClaims(ctx context.Context, claims *authz.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserIDFromContext retrieves the authenticated user ID from the claims
// in context. Returns uuid.Nil when unauthenticated.
func GetUserIDFromContext(ctx context.Context) uuid.UUID {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil
	}
	return userID
}

// GetEnterpriseIDFromContext retrieves the enterprise ID bound into the
// claims in context. Returns uuid.Nil when unauthenticated.
func GetEnterpriseIDFromContext(ctx context.Context) uuid.UUID {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil
	}
	enterpriseID, err := uuid.Parse(claims.EnterpriseID)
	if err != nil {
		return uuid.Nil
	}
	return enterpriseID
}
