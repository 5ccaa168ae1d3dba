package auth

import "errors"

var (
	ErrInvalidCredentials    = errors.New("auth: invalid credentials")
	ErrDuplicateEmail        = errors.New("auth: email already registered")
	ErrInvalidRole           = errors.New("auth: invalid role")
	ErrUserNotFound          = errors.New("auth: user not found")
	ErrNotFound              = errors.New("auth: not found")
	ErrInvalidInput          = errors.New("auth: invalid input")
	ErrTokenMalformed        = errors.New("auth: token malformed")
	ErrTokenInvalid          = errors.New("auth: token invalid")
	ErrTokenExpiredOrRevoked = errors.New("auth: token expired or revoked")
	ErrStoreUnavailable      = errors.New("auth: store unavailable")
)
