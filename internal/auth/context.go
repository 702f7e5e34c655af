// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating token claims via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated caller extracted from a request.
type AuthContext struct {
	Subject string
	Role    Role
}

// CanOperate reports whether the caller may change agent state.
func (a *AuthContext) CanOperate() bool {
	return a.Role == RoleOperator
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
