package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and local development when no database DSN is configured.
type InMemory struct {
	mu      sync.RWMutex
	users   map[string]*User         // id -> user
	byEmail map[string]string        // lowercased email -> id
	tokens  map[string]*SessionToken // raw token -> record
	now     func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*SessionToken),
		now:     time.Now,
	}
}

func (s *InMemory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	now := s.now().UTC()
	stored := *u
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.users[stored.ID] = &stored
	s.byEmail[key] = stored.ID
	*u = stored
	return nil
}

func (s *InMemory) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *InMemory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *InMemory) ListUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sortUsersByCreation(out)
	return out, nil
}

func (s *InMemory) ListUsersByRole(ctx context.Context, role Role) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sortUsersByCreation(out)
	return out, nil
}

func (s *InMemory) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *InMemory) UpdateUserRole(ctx context.Context, id string, role Role) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = s.now().UTC()
	out := *u
	return &out, nil
}

func (s *InMemory) SaveToken(ctx context.Context, t *SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *t
	s.tokens[stored.Token] = &stored
	return nil
}

func (s *InMemory) FindToken(ctx context.Context, raw string) (*SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[raw]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *InMemory) ActiveTokensByUser(ctx context.Context, userID string) ([]SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now().UTC()
	var out []SessionToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.Usable(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *InMemory) RevokeUserTokens(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID && !t.Expired && !t.Revoked {
			t.Expired = true
			t.Revoked = true
		}
	}
	return nil
}

func sortUsersByCreation(users []User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
