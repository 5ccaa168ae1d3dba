package auth

import "time"

// User is an operator account. The password hash never leaves this package.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionToken is one issued bearer credential. Tokens are kept after
// revocation for audit; the two flags plus the time bound decide usability.
type SessionToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Expired   bool      `json:"expired"`
	Revoked   bool      `json:"revoked"`
}

// Usable reports whether the token may still authenticate requests at the
// given instant.
func (t SessionToken) Usable(now time.Time) bool {
	return !t.Expired && !t.Revoked && now.Before(t.ExpiresAt)
}
