package session

import (
	"context"
	"errors"

	"doit/internal/service"
)

// Sign-in and sign-up failures reported by an Authenticator.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrEmailInUse    = errors.New("email already in use")
	ErrWeakPassword  = errors.New("password too weak")
	ErrInvalidEmail  = errors.New("invalid email")
)

// Authenticator is a Provider that can also create and open sessions.
type Authenticator interface {
	Provider

	// SignIn opens a session with email and password.
	SignIn(ctx context.Context, email, password string) (*service.User, error)

	// SignUp creates an account and opens a session for it.
	SignUp(ctx context.Context, email, password, displayName string) (*service.User, error)
}

// Message returns the user-facing text for an authentication error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "user not found"
	case errors.Is(err, ErrWrongPassword):
		return "wrong password"
	case errors.Is(err, ErrEmailInUse):
		return "email already in use"
	case errors.Is(err, ErrWeakPassword):
		return "password too weak"
	case errors.Is(err, ErrInvalidEmail):
		return "invalid email"
	case errors.Is(err, ErrUnavailable):
		return "identity provider not configured (demo mode)"
	default:
		return "an error occurred"
	}
}
