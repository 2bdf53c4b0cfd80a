package identity

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired session")
	ErrFederationDisabled = errors.New("federated sign-in is not configured")
)

type Session struct {
	Token     string      `json:"token"`
	User      domain.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// SessionEvent is delivered on sign-in and sign-out. User is nil on sign-out.
type SessionEvent struct {
	UserID string       `json:"userId"`
	User   *domain.User `json:"user"`
}

// Provider is the identity collaborator the HTTP layer talks to.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignInFederated(ctx context.Context, idToken string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	// Resolve returns the user behind a session token, or ErrInvalidToken.
	Resolve(ctx context.Context, token string) (*domain.User, error)
	Subscribe() (<-chan SessionEvent, func())
}
