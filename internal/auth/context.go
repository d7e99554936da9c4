// ABOUTME: Identity propagation through request contexts
// ABOUTME: Provides WithIdentity/IdentityFromContext for handlers behind the middleware

package auth

import (
	"context"
)

// identityKey is the key type for storing the authenticated user in a context.
type identityKey struct{}

// WithIdentity returns a new context carrying the authenticated user ID.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey{}, userID)
}

// IdentityFromContext retrieves the authenticated user ID, returning an empty
// string if the request was not authenticated.
func IdentityFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(identityKey{}).(string)
	return userID
}
