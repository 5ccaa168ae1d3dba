package auth

import "context"

// Principal is an authenticated caller with its capability set resolved
// from the current stored role.
type Principal struct {
	UserID       string
	Email        string
	Role         Role
	Capabilities map[Capability]struct{}
}

// NewPrincipal builds a principal from a user and its resolved capabilities.
func NewPrincipal(user *User, caps []Capability) Principal {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return Principal{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		Capabilities: set,
	}
}

// HasCapability reports whether the principal may perform the action.
func (p Principal) HasCapability(c Capability) bool {
	_, ok := p.Capabilities[c]
	return ok
}

// HasAnyCapability reports whether at least one of the capabilities is held.
func (p Principal) HasAnyCapability(caps ...Capability) bool {
	for _, c := range caps {
		if p.HasCapability(c) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}
type tokenContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
