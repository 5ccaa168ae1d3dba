package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemory) {
	t.Helper()
	store := NewInMemory()
	issuer, err := NewIssuer(testSecret, WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc, err := NewService(store, issuer, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func register(t *testing.T, svc *Service, email string) AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterInput{
		FirstName: "Nadia",
		LastName:  "Benali",
		Email:     email,
		Password:  "correct-horse",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func bearer(token string) string { return "Bearer " + token }

func TestRegisterThenValidate(t *testing.T) {
	svc, _ := newTestService(t)
	res := register(t, svc, "a@x.com")

	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.User.Role != RoleAgent {
		t.Fatalf("expected default role AGENT, got %s", res.User.Role)
	}

	v := svc.Validate(context.Background(), bearer(res.Token))
	if !v.Valid {
		t.Fatalf("expected valid token: %s", v.Message)
	}
	if v.UserID != res.User.ID || v.Email != "a@x.com" || v.Role != RoleAgent {
		t.Fatalf("unexpected validation payload: %+v", v)
	}
	if len(v.Capabilities) == 0 || v.Capabilities[0] != "ROLE_AGENT" {
		t.Fatalf("expected agent capabilities, got %v", v.Capabilities)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "a@x.com")

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "A@X.com",
		Password: "another-pass",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Password: "pass-word",
		Role:     "SUPERADMIN",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthenticateUniformFailure(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "a@x.com")

	if _, err := svc.Authenticate(context.Background(), "nobody@x.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "a@x.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateSingleActiveSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	res := register(t, svc, "a@x.com")

	first, err := svc.Authenticate(ctx, "a@x.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	second, err := svc.Authenticate(ctx, "a@x.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	active, err := store.ActiveTokensByUser(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("ActiveTokensByUser: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active token, got %d", len(active))
	}
	if active[0].Token != second.Token {
		t.Fatal("the surviving token must be the latest one")
	}

	if v := svc.Validate(ctx, bearer(first.Token)); v.Valid {
		t.Fatal("first token must be rejected after re-authentication")
	}
	if v := svc.Validate(ctx, bearer(second.Token)); !v.Valid {
		t.Fatalf("second token must stay valid: %s", v.Message)
	}
}

func TestConcurrentAuthenticateKeepsInvariant(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	res := register(t, svc, "a@x.com")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Authenticate(ctx, "a@x.com", "correct-horse"); err != nil {
				t.Errorf("Authenticate: %v", err)
			}
		}()
	}
	wg.Wait()

	active, err := store.ActiveTokensByUser(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("ActiveTokensByUser: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected one active token after concurrent logins, got %d", len(active))
	}
}

func TestLogoutNeverFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// None of these may panic or surface an error.
	svc.Logout(ctx, "")
	svc.Logout(ctx, "Basic abc")
	svc.Logout(ctx, "Bearer not-a-jwt")

	res := register(t, svc, "a@x.com")
	svc.Logout(ctx, bearer(res.Token))
	if v := svc.Validate(ctx, bearer(res.Token)); v.Valid {
		t.Fatal("token must be rejected after logout")
	}
	// Logging out twice is a no-op.
	svc.Logout(ctx, bearer(res.Token))
}

func TestUpdateRoleAffectsOutstandingTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := register(t, svc, "a@x.com")

	if _, err := svc.UpdateUserRole(ctx, res.User.ID, "ADMIN"); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	v := svc.Validate(ctx, bearer(res.Token))
	if !v.Valid {
		t.Fatalf("token must remain valid after a role change: %s", v.Message)
	}
	if v.Role != RoleAdmin {
		t.Fatalf("expected current role ADMIN, got %s", v.Role)
	}
	if !containsCapability(v.Capabilities, CapFlightAdmin) {
		t.Fatalf("expected admin capabilities on the outstanding token, got %v", v.Capabilities)
	}
}

func TestUpdateRoleErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := register(t, svc, "a@x.com")

	if _, err := svc.UpdateUserRole(ctx, "missing-id", "ADMIN"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.UpdateUserRole(ctx, res.User.ID, "SUPERADMIN"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSessionLifecycleScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := register(t, svc, "a@x.com")
	t1 := res.Token
	if v := svc.Validate(ctx, bearer(t1)); !v.Valid {
		t.Fatalf("T1 must be valid after register: %s", v.Message)
	}

	auth2, err := svc.Authenticate(ctx, "a@x.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	t2 := auth2.Token

	if v := svc.Validate(ctx, bearer(t1)); v.Valid {
		t.Fatal("T1 must be invalid after re-authentication")
	}
	v := svc.Validate(ctx, bearer(t2))
	if !v.Valid || v.Role != RoleAgent {
		t.Fatalf("T2 must be valid with role AGENT: %+v", v)
	}

	if _, err := svc.UpdateUserRole(ctx, res.User.ID, "ADMIN"); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}
	v = svc.Validate(ctx, bearer(t2))
	if !v.Valid || !containsCapability(v.Capabilities, CapFlightAdmin) {
		t.Fatalf("T2 must report admin capabilities after the role change: %+v", v)
	}

	svc.Logout(ctx, bearer(t2))
	if v := svc.Validate(ctx, bearer(t2)); v.Valid {
		t.Fatal("T2 must be invalid after logout")
	}
}

func TestValidateRejectsTimeExpiredToken(t *testing.T) {
	issued := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	clock := issued

	store := NewInMemory()
	issuer, err := NewIssuer(testSecret, WithTTL(time.Hour), WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc, err := NewService(store, issuer, WithTimeSource(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	res := register(t, svc, "a@x.com")
	clock = issued.Add(90 * time.Minute)

	v := svc.Validate(context.Background(), bearer(res.Token))
	if v.Valid {
		t.Fatal("token past its expiry must be rejected")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	other, err := NewIssuer(testSecret, WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	// Cryptographically valid but never persisted by this service.
	raw, _, err := other.Issue(&User{ID: "ghost", Email: "ghost@x.com", Role: RoleAgent})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if v := svc.Validate(context.Background(), bearer(raw)); v.Valid {
		t.Fatal("unpersisted token must be rejected")
	}
}

func TestAuthoritiesForRole(t *testing.T) {
	svc, _ := newTestService(t)
	caps, err := svc.AuthoritiesForRole("agent")
	if err != nil {
		t.Fatalf("AuthoritiesForRole: %v", err)
	}
	if caps[0] != "ROLE_AGENT" {
		t.Fatalf("expected marker capability first, got %v", caps)
	}
	if _, err := svc.AuthoritiesForRole("SUPERADMIN"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestReadOperations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	res := register(t, svc, "a@x.com")
	register(t, svc, "b@x.com")

	users, err := svc.ListUsers(ctx)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListUsers: %v (len=%d)", err, len(users))
	}
	count, err := svc.CountUsers(ctx)
	if err != nil || count != 2 {
		t.Fatalf("CountUsers: %v (count=%d)", err, count)
	}
	got, err := svc.GetUser(ctx, res.User.ID)
	if err != nil || got.Email != "a@x.com" {
		t.Fatalf("GetUser: %v (%+v)", err, got)
	}
	agents, err := svc.ListUsersByRole(ctx, "AGENT")
	if err != nil || len(agents) != 2 {
		t.Fatalf("ListUsersByRole: %v (len=%d)", err, len(agents))
	}
	if _, err := svc.ListUsersByRole(ctx, "SUPERADMIN"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if _, err := svc.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

type failingStore struct {
	Store
}

func (f *failingStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureSurfacesAsUnavailable(t *testing.T) {
	issuer, err := NewIssuer(testSecret)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	svc, err := NewService(&failingStore{Store: NewInMemory()}, issuer)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "a@x.com", "pass-word"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
