package httpapi

import (
	"net/http"

	"airops.org/internal/auth"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/authenticate",
	"/v1/auth/validate",
	"/v1/auth/logout",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the bearer token on every protected path and attaches
// the resulting principal to the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		verdict := a.auth.Validate(r.Context(), r.Header.Get(authHeader))
		if !verdict.Valid {
			writeError(w, r, http.StatusUnauthorized, verdict.Message)
			return
		}

		principal := auth.Principal{
			UserID: verdict.UserID,
			Email:  verdict.Email,
			Role:   verdict.Role,
		}
		principal.Capabilities = make(map[auth.Capability]struct{}, len(verdict.Capabilities))
		for _, c := range verdict.Capabilities {
			principal.Capabilities[c] = struct{}{}
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		if raw, err := auth.ExtractBearer(r.Header.Get(authHeader)); err == nil {
			ctx = auth.ContextWithToken(ctx, raw)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) ensureCapability(w http.ResponseWriter, r *http.Request, c auth.Capability) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || !principal.HasCapability(c) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func (a *API) ensureAnyCapability(w http.ResponseWriter, r *http.Request, caps ...auth.Capability) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok || !principal.HasAnyCapability(caps...) {
		writeError(w, r, http.StatusForbidden, "insufficient permissions")
		return false
	}
	return true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
