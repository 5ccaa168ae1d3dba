package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// PGStore implements Store using PostgreSQL through database/sql with the
// pgx driver.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// Open connects to PostgreSQL and returns a PGStore.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing database handle (used by tests).
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for readiness probes.
func (s *PGStore) DB() *sql.DB { return s.db }

const userColumns = `id, first_name, last_name, email, password_hash, role, created_at, updated_at`

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users(id, first_name, last_name, email, password_hash, role)
		values ($1,$2,$3,$4,$5,$6)
		returning created_at, updated_at`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role),
	)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *PGStore) FindUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where lower(email)=lower($1)`, email)
	return scanUser(row)
}

func (s *PGStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *PGStore) ListUsersByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where role=$1 order by created_at asc`, string(role))
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (s *PGStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&count)
	return count, err
}

func (s *PGStore) UpdateUserRole(ctx context.Context, id string, role Role) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set role=$2, updated_at=now()
		where id=$1
		returning `+userColumns, id, string(role))
	return scanUser(row)
}

func (s *PGStore) SaveToken(ctx context.Context, t *SessionToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into session_tokens(id, user_id, token, issued_at, expires_at, expired, revoked)
		values ($1,$2,$3,$4,$5,$6,$7)`,
		t.ID, t.UserID, t.Token, t.IssuedAt, t.ExpiresAt, t.Expired, t.Revoked,
	)
	return err
}

func (s *PGStore) FindToken(ctx context.Context, raw string) (*SessionToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, user_id, token, issued_at, expires_at, expired, revoked
		from session_tokens where token=$1`, raw)
	var t SessionToken
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.IssuedAt, &t.ExpiresAt, &t.Expired, &t.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *PGStore) ActiveTokensByUser(ctx context.Context, userID string) ([]SessionToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, token, issued_at, expires_at, expired, revoked
		from session_tokens
		where user_id=$1 and expired=false and revoked=false and expires_at > now()
		order by issued_at asc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionToken
	for rows.Next() {
		var t SessionToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Token, &t.IssuedAt, &t.ExpiresAt, &t.Expired, &t.Revoked); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RevokeUserTokens is a single conditional update so that concurrent
// authenticate calls for the same user cannot interleave half-revoked state.
func (s *PGStore) RevokeUserTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update session_tokens set expired=true, revoked=true
		where user_id=$1 and (expired=false or revoked=false)`, userID)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]User, error) {
	defer rows.Close()
	var out []User
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.Role = Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}
