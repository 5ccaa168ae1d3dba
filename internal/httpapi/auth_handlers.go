package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"airops.org/internal/audit"
	"airops.org/internal/auth"
)

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.auth.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserRegistered, map[string]any{
		"user_id": result.User.ID,
		"email":   result.User.Email,
		"role":    string(result.User.Role),
	})
	writeJSON(w, http.StatusCreated, result)
}

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authenticateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSessionIssued, map[string]any{
		"user_id":    result.User.ID,
		"expires_at": result.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, result)
}

// handleValidate accepts the token either in the Authorization header or in
// the request body. The response is always 200; the verdict is in the body.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		var req validateRequest
		if err := decodeJSON(w, r, &req); err == nil && strings.TrimSpace(req.Token) != "" {
			header = "Bearer " + strings.TrimSpace(req.Token)
		}
	}
	writeJSON(w, http.StatusOK, a.auth.Validate(r.Context(), header))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.auth.Logout(r.Context(), r.Header.Get("Authorization"))
	_ = audit.LogEvent(r.Context(), audit.EventSessionRevoked, map[string]any{})
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated principal's own record.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := a.auth.GetUser(r.Context(), principal.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureAnyCapability(w, r, auth.CapChatRead, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleUserResource dispatches /v1/auth/users/... paths:
// count, {id}, {id}/role and role/{role}.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/auth/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] == "count":
		a.handleUserCount(w, r)
	case len(parts) == 2 && parts[0] == "role":
		a.handleUsersByRole(w, r, parts[1])
	case len(parts) == 1:
		a.handleUserByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "role":
		a.handleUserRoleUpdate(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureCapability(w, r, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	count, err := a.auth.CountUsers(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureAnyCapability(w, r, auth.CapChatRead, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	user, err := a.auth.GetUser(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUsersByRole(w http.ResponseWriter, r *http.Request, role string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureAnyCapability(w, r, auth.CapChatRead, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	users, err := a.auth.ListUsersByRole(r.Context(), role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleUserRoleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensureCapability(w, r, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.UpdateUserRole(r.Context(), id, req.Role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventRoleUpdated, map[string]any{
		"user_id": user.ID,
		"role":    string(user.Role),
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureCapability(w, r, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": auth.Roles()})
}

// handleRoleResource dispatches /v1/auth/roles/{role}/authorities.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/auth/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "authorities" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureCapability(w, r, auth.RoleMarker(auth.RoleAdmin)) {
		return
	}
	caps, err := a.auth.AuthoritiesForRole(parts[0])
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        strings.ToUpper(strings.TrimSpace(parts[0])),
		"authorities": caps,
	})
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrTokenMalformed):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "auth operation failed")
	}
}
