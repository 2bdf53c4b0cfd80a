package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryAll is the pseudo category that matches every product.
const CategoryAll = "all"

type Product struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Images         []string         `json:"images"`
	Category       string           `json:"category"`
	Featured       bool             `json:"featured"`
	InStock        bool             `json:"inStock"`
	Rating         *float64         `json:"rating,omitempty"`
	ReviewCount    *int             `json:"reviewCount,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// PrimaryImage returns the image used for cart snapshots and listings.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// DiscountPercent is the rounded percentage off the compare-at price.
// Zero when there is no compare-at price or it is not above the price.
func (p Product) DiscountPercent() int {
	if p.CompareAtPrice == nil || !p.CompareAtPrice.GreaterThan(p.Price) {
		return 0
	}
	off := p.CompareAtPrice.Sub(p.Price).Div(*p.CompareAtPrice).Mul(decimal.NewFromInt(100))
	return int(off.Round(0).IntPart())
}

// ProductPatch is a partial product update. Nil fields are left unchanged.
type ProductPatch struct {
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Images         []string         `json:"images,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Featured       *bool            `json:"featured,omitempty"`
	InStock        *bool            `json:"inStock,omitempty"`
}

// Apply returns p with the patch applied.
func (pp ProductPatch) Apply(p Product) Product {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.CompareAtPrice != nil {
		c := *pp.CompareAtPrice
		p.CompareAtPrice = &c
	}
	if pp.Images != nil {
		p.Images = append([]string(nil), pp.Images...)
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Featured != nil {
		p.Featured = *pp.Featured
	}
	if pp.InStock != nil {
		p.InStock = *pp.InStock
	}
	return p
}
