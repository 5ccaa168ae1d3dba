package auth

import "context"

// Store describes the persistence operations the session service needs.
// Uniqueness of email and the atomicity of RevokeUserTokens are the store's
// responsibility; the service relies on both.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersByRole(ctx context.Context, role Role) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUserRole(ctx context.Context, id string, role Role) (*User, error)

	SaveToken(ctx context.Context, t *SessionToken) error
	FindToken(ctx context.Context, raw string) (*SessionToken, error)
	ActiveTokensByUser(ctx context.Context, userID string) ([]SessionToken, error)
	// RevokeUserTokens marks every currently usable token of the user as
	// expired and revoked in one atomic step. Revoking a user with no
	// usable tokens is a no-op, not an error.
	RevokeUserTokens(ctx context.Context, userID string) error
}
