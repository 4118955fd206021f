package core

import (
	"context"
	"errors"
	"time"
)

// User represents a registered account returned to handlers.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUsernameTaken is returned by registration for an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidToken is returned when a token is unknown or expired.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTooManyAttempts is returned when login is throttled for a username.
	ErrTooManyAttempts = errors.New("too many login attempts")
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("not found")
)

// AuthService defines account and token lifecycle behaviour.
type AuthService interface {
	Register(ctx context.Context, username, password string) (User, error)
	Authenticate(ctx context.Context, username, password string) (User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context, token string) error
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
