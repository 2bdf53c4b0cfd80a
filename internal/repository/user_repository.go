package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// mongoUserRepository serves both user profiles and password credentials.
type mongoUserRepository struct {
	users       *mongo.Collection
	credentials *mongo.Collection
}

func NewUserRepository(db *mongo.Database) UserStore {
	return &mongoUserRepository{
		users:       db.Collection(usersCollection),
		credentials: db.Collection(credentialsCollection),
	}
}

func (m *mongoUserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toDomain(), nil
}

func (m *mongoUserRepository) Create(ctx context.Context, u *domain.User) error {
	if _, err := m.users.InsertOne(ctx, newUserDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (m *mongoUserRepository) CreateCredential(ctx context.Context, c domain.Credential) error {
	doc := credentialDoc{
		Email:        normalizeEmail(c.Email),
		UserID:       c.UserID,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
	}
	if _, err := m.credentials.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

func (m *mongoUserRepository) CredentialByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	var doc credentialDoc
	err := m.credentials.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &domain.Credential{
		UserID:       doc.UserID,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
