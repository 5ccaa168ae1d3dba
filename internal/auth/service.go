package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"airops.org/internal/ids"
)

// Service orchestrates registration, authentication, token validation and
// role management. It is the only component enforcing the cross-cutting
// session invariants: after a successful Authenticate exactly one usable
// token exists per user, and Validate always re-reads both the persisted
// token state and the user's current role.
type Service struct {
	store  Store
	issuer *Issuer
	now    func() time.Time

	// sessionLocks serializes revoke-then-save per user so concurrent
	// logins cannot leave two usable tokens behind. Entries are never
	// evicted; the map is bounded by the number of distinct users seen
	// by this process.
	sessionMu    sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTimeSource overrides the service clock (useful for tests).
func WithTimeSource(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store and token issuer.
func NewService(store Store, issuer *Issuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if issuer == nil {
		return nil, errors.New("auth: issuer is required")
	}
	s := &Service{
		store:        store,
		issuer:       issuer,
		now:          time.Now,
		sessionLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UserView is the externally visible projection of a user.
type UserView struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// AuthResult carries a freshly issued token and its owner.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserView  `json:"user"`
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// Register creates a user and issues its first session token. The role
// defaults to AGENT when unspecified.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Password) == "" {
		return AuthResult{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role := RoleAgent
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := ParseRole(in.Role)
		if err != nil {
			return AuthResult{}, err
		}
		role = parsed
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	user := &User{
		ID:           ids.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return AuthResult{}, wrapStore(err)
	}
	return s.issueSession(ctx, user, false)
}

// Authenticate validates credentials and issues a new token, revoking every
// previously usable token of the user. Absent user and wrong password are
// indistinguishable from the outside.
func (s *Service) Authenticate(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, wrapStore(err)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return AuthResult{}, ErrInvalidCredentials
	}
	return s.issueSession(ctx, user, true)
}

// issueSession mints, persists and returns a token. With revokeExisting set
// the user's previous tokens are invalidated in the same critical section,
// keeping the single-active-session invariant under concurrent logins.
func (s *Service) issueSession(ctx context.Context, user *User, revokeExisting bool) (AuthResult, error) {
	raw, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return AuthResult{}, err
	}
	record := &SessionToken{
		ID:        ids.New(),
		UserID:    user.ID,
		Token:     raw,
		IssuedAt:  s.now().UTC(),
		ExpiresAt: expiresAt,
	}

	unlock := s.lockSession(user.ID)
	defer unlock()

	if revokeExisting {
		if err := s.store.RevokeUserTokens(ctx, user.ID); err != nil {
			return AuthResult{}, wrapStore(err)
		}
	}
	if err := s.store.SaveToken(ctx, record); err != nil {
		return AuthResult{}, wrapStore(err)
	}
	return AuthResult{
		Token:     raw,
		ExpiresAt: expiresAt,
		User:      viewOf(user),
	}, nil
}

// Validation is the soft outcome of Validate. Invalid never carries an
// error; the message explains the rejection for diagnostics only.
type Validation struct {
	Valid        bool         `json:"valid"`
	Message      string       `json:"message"`
	UserID       string       `json:"user_id,omitempty"`
	Email        string       `json:"email,omitempty"`
	Role         Role         `json:"role,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

func invalid(message string) Validation {
	return Validation{Valid: false, Message: message}
}

// Validate parses a bearer Authorization header and verifies the token
// cryptographically and against its persisted state. Capabilities are
// derived from the user's current role, not the role at issuance, so role
// changes apply to outstanding tokens immediately.
func (s *Service) Validate(ctx context.Context, authHeader string) Validation {
	raw, err := ExtractBearer(authHeader)
	if err != nil {
		return invalid("token missing or malformed")
	}
	claims, err := s.issuer.ParseAndValidate(raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenMalformed):
			return invalid("token malformed")
		case errors.Is(err, ErrTokenExpiredOrRevoked):
			return invalid("token expired or revoked")
		default:
			return invalid("token invalid")
		}
	}
	record, err := s.store.FindToken(ctx, raw)
	if err != nil {
		return invalid("token not recognized")
	}
	if !record.Usable(s.now().UTC()) {
		return invalid("token expired or revoked")
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		return invalid("user not found")
	}
	caps, err := CapabilitiesFor(user.Role)
	if err != nil {
		return invalid("user role not recognized")
	}
	return Validation{
		Valid:        true,
		Message:      "token valid",
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		Capabilities: caps,
	}
}

// Logout revokes every usable token of the principal the header resolves
// to. It is deliberately best-effort: malformed headers, unknown users and
// store failures are all swallowed so logout never fails from the caller's
// point of view.
func (s *Service) Logout(ctx context.Context, authHeader string) {
	raw, err := ExtractBearer(authHeader)
	if err != nil {
		return
	}
	claims, err := s.issuer.ParseAndValidate(raw)
	if err != nil {
		return
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		return
	}
	unlock := s.lockSession(user.ID)
	defer unlock()
	_ = s.store.RevokeUserTokens(ctx, user.ID)
}

// AuthoritiesForRole resolves a role name to its capability set.
func (s *Service) AuthoritiesForRole(role string) ([]Capability, error) {
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	return CapabilitiesFor(parsed)
}

// UpdateUserRole changes a user's role in place. Outstanding tokens are not
// revoked: Validate re-derives capabilities from the stored role, so the
// change applies to them on their next use.
func (s *Service) UpdateUserRole(ctx context.Context, id, role string) (UserView, error) {
	parsed, err := ParseRole(role)
	if err != nil {
		return UserView{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return UserView{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.store.UpdateUserRole(ctx, id, parsed)
	if err != nil {
		return UserView{}, wrapStore(err)
	}
	return viewOf(user), nil
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, id string) (UserView, error) {
	user, err := s.store.FindUser(ctx, strings.TrimSpace(id))
	if err != nil {
		return UserView{}, wrapStore(err)
	}
	return viewOf(user), nil
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, wrapStore(err)
	}
	return viewsOf(users), nil
}

// ListUsersByRole returns the users holding the given role.
func (s *Service) ListUsersByRole(ctx context.Context, role string) ([]UserView, error) {
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsersByRole(ctx, parsed)
	if err != nil {
		return nil, wrapStore(err)
	}
	return viewsOf(users), nil
}

// CountUsers returns the total number of users.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return 0, wrapStore(err)
	}
	return count, nil
}

func (s *Service) lockSession(userID string) func() {
	s.sessionMu.Lock()
	mu, ok := s.sessionLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.sessionLocks[userID] = mu
	}
	s.sessionMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func viewOf(u *User) UserView {
	return UserView{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}
}

func viewsOf(users []User) []UserView {
	out := make([]UserView, 0, len(users))
	for i := range users {
		out = append(out, viewOf(&users[i]))
	}
	return out
}

// wrapStore passes taxonomy errors through untouched and brands everything
// else as a store availability failure.
func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidInput):
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
