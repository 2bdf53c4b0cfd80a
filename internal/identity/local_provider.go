package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const subscriberBuffer = 16

type Config struct {
	Secret     []byte
	Issuer     string
	SessionTTL time.Duration
	// Federated ID tokens are HS256 JWTs from FederatedIssuer signed with
	// FederatedSecret. Federation is disabled when the secret is empty.
	FederatedIssuer string
	FederatedSecret []byte
	BcryptCost      int
}

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type federatedClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

// LocalProvider keeps password credentials and profiles in the document
// store and issues signed session tokens.
type LocalProvider struct {
	store   repository.UserStore
	revoked Revocations
	cfg     Config
	hub     *events.Hub[SessionEvent]
	log     *zap.Logger
	now     func() time.Time
}

func NewLocalProvider(store repository.UserStore, revoked Revocations, cfg Config, log *zap.Logger) *LocalProvider {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "storefront"
	}
	return &LocalProvider{
		store:   store,
		revoked: revoked,
		cfg:     cfg,
		hub:     events.NewHub[SessionEvent](),
		log:     log,
		now:     time.Now,
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	email = normalizeEmail(email)
	if _, err := p.store.CredentialByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := p.now().UTC()
	user := domain.User{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        domain.RoleUser,
		CreatedAt:   now,
	}

	cred := domain.Credential{UserID: user.ID, Email: email, PasswordHash: hash, CreatedAt: now}
	if err := p.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	if err := p.store.Create(ctx, &user); err != nil {
		return nil, err
	}

	p.log.Info("user signed up", zap.String("user_id", user.ID))
	return p.startSession(&user)
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := p.store.CredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := p.ensureUser(ctx, domain.User{ID: cred.UserID, Email: cred.Email})
	if err != nil {
		return nil, err
	}
	return p.startSession(user)
}

// SignInFederated accepts an ID token from the configured third-party issuer.
// A first-seen subject becomes a new user with the default role.
func (p *LocalProvider) SignInFederated(ctx context.Context, idToken string) (*Session, error) {
	if len(p.cfg.FederatedSecret) == 0 {
		return nil, ErrFederationDisabled
	}

	var claims federatedClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(*jwt.Token) (any, error) {
		return p.cfg.FederatedSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.FederatedIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := p.ensureUser(ctx, domain.User{
		ID:          claims.Subject,
		Email:       normalizeEmail(claims.Email),
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	})
	if err != nil {
		return nil, err
	}
	return p.startSession(user)
}

func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}

	if err := p.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return err
	}

	p.hub.Publish(SessionEvent{UserID: claims.Subject})
	p.log.Info("user signed out", zap.String("user_id", claims.Subject))
	return nil
}

func (p *LocalProvider) Resolve(ctx context.Context, token string) (*domain.User, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := p.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}

	// Load the stored profile so role changes apply to live sessions.
	user, err := p.store.Get(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (p *LocalProvider) Subscribe() (<-chan SessionEvent, func()) {
	return p.hub.Subscribe(subscriberBuffer)
}

// Close ends every subscription.
func (p *LocalProvider) Close() {
	p.hub.Close()
}

func (p *LocalProvider) ensureUser(ctx context.Context, profile domain.User) (*domain.User, error) {
	user, err := p.store.Get(ctx, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	profile.Role = domain.RoleUser
	profile.CreatedAt = p.now().UTC()
	if err := p.store.Create(ctx, &profile); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return p.store.Get(ctx, profile.ID)
		}
		return nil, err
	}
	p.log.Info("first sign-in, user created", zap.String("user_id", profile.ID))
	return &profile, nil
}

func (p *LocalProvider) startSession(user *domain.User) (*Session, error) {
	now := p.now()
	expires := now.Add(p.cfg.SessionTTL)
	claims := sessionClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	p.hub.Publish(SessionEvent{UserID: user.ID, User: user})
	return &Session{Token: token, User: *user, ExpiresAt: expires}, nil
}

func (p *LocalProvider) parse(token string) (*sessionClaims, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
