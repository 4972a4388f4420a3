package auth

import "context"

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated actor attached to a request context. Its
// ID and Name are what the ledger records as actor_id and actor_name.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// ContextWithIdentity returns a new context carrying the authenticated
// identity.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the authenticated identity from the
// context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.ID == "" {
		return Identity{}, false
	}
	return identity, true
}
