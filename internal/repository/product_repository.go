package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProductRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{
		collection: db.Collection(productsCollection),
		now:        time.Now,
	}
}

func (m *mongoProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	return m.find(ctx, bson.M{}, newestFirst())
}

func (m *mongoProductRepository) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	if category == "" || category == domain.CategoryAll {
		return m.List(ctx)
	}
	return m.find(ctx, bson.M{"category": category}, newestFirst())
}

func (m *mongoProductRepository) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.find(ctx, bson.M{"featured": true}, newestFirst().SetLimit(int64(limit)))
}

func (m *mongoProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p := doc.toDomain()
	return &p, nil
}

// Create assigns the id and creation time before inserting.
func (m *mongoProductRepository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.NewString()
	p.CreatedAt = m.now().UTC().Truncate(time.Millisecond)

	doc, err := newProductDoc(p)
	if err != nil {
		return err
	}
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (m *mongoProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(*current)
	doc, err := newProductDoc(&updated)
	if err != nil {
		return nil, err
	}

	result, err := m.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, ErrProductNotFound
	}
	return &updated, nil
}

func (m *mongoProductRepository) Delete(ctx context.Context, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (m *mongoProductRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Product, error) {
	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}
	return products, nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
}
