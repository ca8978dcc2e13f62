package shared

import "context"

type identityContextKey struct{}

// Identity describes the credential attached to the current request.
type Identity struct {
	UserID int64
	Token  string
}

// ContextWithIdentity stores the authenticated identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity from context.
// Returns nil when the request carried no valid credential.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
