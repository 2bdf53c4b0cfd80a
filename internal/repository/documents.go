package repository

import (
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Documents own the BSON mapping so domain types stay storage agnostic.
// Money is stored as Decimal128.

type productDoc struct {
	ID             string                `bson:"_id"`
	Name           string                `bson:"name"`
	Description    string                `bson:"description"`
	Price          primitive.Decimal128  `bson:"price"`
	CompareAtPrice *primitive.Decimal128 `bson:"compare_at_price,omitempty"`
	Images         []string              `bson:"images"`
	Category       string                `bson:"category"`
	Featured       bool                  `bson:"featured"`
	InStock        bool                  `bson:"in_stock"`
	Rating         *float64              `bson:"rating,omitempty"`
	ReviewCount    *int                  `bson:"review_count,omitempty"`
	CreatedAt      time.Time             `bson:"created_at"`
}

type lineDoc struct {
	ID        string               `bson:"id"`
	ProductID string               `bson:"product_id"`
	Name      string               `bson:"name"`
	Price     primitive.Decimal128 `bson:"price"`
	Image     string               `bson:"image"`
	Quantity  int                  `bson:"quantity"`
}

type addressDoc struct {
	Name       string `bson:"name"`
	Street     string `bson:"street"`
	City       string `bson:"city"`
	State      string `bson:"state"`
	PostalCode string `bson:"postal_code"`
	Country    string `bson:"country"`
}

type orderDoc struct {
	ID              string               `bson:"_id"`
	UserID          string               `bson:"user_id"`
	Items           []lineDoc            `bson:"items"`
	Total           primitive.Decimal128 `bson:"total"`
	Status          string               `bson:"status"`
	ShippingAddress addressDoc           `bson:"shipping_address"`
	PaymentIntentID string               `bson:"payment_intent_id"`
	CreatedAt       time.Time            `bson:"created_at"`
}

type userDoc struct {
	ID          string    `bson:"_id"`
	Email       string    `bson:"email"`
	DisplayName string    `bson:"display_name,omitempty"`
	PhotoURL    string    `bson:"photo_url,omitempty"`
	Role        string    `bson:"role"`
	CreatedAt   time.Time `bson:"created_at"`
}

type credentialDoc struct {
	Email        string    `bson:"email"`
	UserID       string    `bson:"user_id"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("invalid amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newProductDoc(p *domain.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	doc := productDoc{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       price,
		Images:      p.Images,
		Category:    p.Category,
		Featured:    p.Featured,
		InStock:     p.InStock,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		CreatedAt:   p.CreatedAt,
	}
	if doc.Images == nil {
		doc.Images = []string{}
	}
	if p.CompareAtPrice != nil {
		c, err := toDecimal128(*p.CompareAtPrice)
		if err != nil {
			return productDoc{}, err
		}
		doc.CompareAtPrice = &c
	}
	return doc, nil
}

func (d productDoc) toDomain() domain.Product {
	p := domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Price:       fromDecimal128(d.Price),
		Images:      d.Images,
		Category:    d.Category,
		Featured:    d.Featured,
		InStock:     d.InStock,
		Rating:      d.Rating,
		ReviewCount: d.ReviewCount,
		CreatedAt:   d.CreatedAt,
	}
	if d.CompareAtPrice != nil {
		c := fromDecimal128(*d.CompareAtPrice)
		p.CompareAtPrice = &c
	}
	return p
}

func newOrderDoc(o *domain.Order) (orderDoc, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return orderDoc{}, err
	}
	items := make([]lineDoc, 0, len(o.Items))
	for _, l := range o.Items {
		price, err := toDecimal128(l.Price)
		if err != nil {
			return orderDoc{}, err
		}
		items = append(items, lineDoc{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     price,
			Image:     l.Image,
			Quantity:  l.Quantity,
		})
	}
	a := o.ShippingAddress
	return orderDoc{
		ID:     o.ID,
		UserID: o.UserID,
		Items:  items,
		Total:  total,
		Status: string(o.Status),
		ShippingAddress: addressDoc{
			Name:       a.Name,
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		PaymentIntentID: o.PaymentIntentID,
		CreatedAt:       o.CreatedAt,
	}, nil
}

func (d orderDoc) toDomain() domain.Order {
	items := make([]domain.CartLine, 0, len(d.Items))
	for _, l := range d.Items {
		items = append(items, domain.CartLine{
			ID:        l.ID,
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     fromDecimal128(l.Price),
			Image:     l.Image,
			Quantity:  l.Quantity,
		})
	}
	a := d.ShippingAddress
	return domain.Order{
		ID:     d.ID,
		UserID: d.UserID,
		Items:  items,
		Total:  fromDecimal128(d.Total),
		Status: domain.OrderStatus(d.Status),
		ShippingAddress: domain.ShippingAddress{
			Name:       a.Name,
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		PaymentIntentID: d.PaymentIntentID,
		CreatedAt:       d.CreatedAt,
	}
}

func newUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
	}
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:          d.ID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		PhotoURL:    d.PhotoURL,
		Role:        domain.Role(d.Role),
		CreatedAt:   d.CreatedAt,
	}
}
