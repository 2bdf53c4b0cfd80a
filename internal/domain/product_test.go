package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProduct_DiscountPercent(t *testing.T) {
	compareAt := decimal.NewFromInt(80)
	p := Product{Price: decimal.NewFromInt(60), CompareAtPrice: &compareAt}
	assert.Equal(t, 25, p.DiscountPercent())

	lower := decimal.NewFromInt(50)
	p.CompareAtPrice = &lower
	assert.Equal(t, 0, p.DiscountPercent(), "compare-at below price is not a discount")

	p.CompareAtPrice = nil
	assert.Equal(t, 0, p.DiscountPercent())
}

func TestProduct_PrimaryImage(t *testing.T) {
	assert.Equal(t, "", Product{}.PrimaryImage())
	assert.Equal(t, "a.png", Product{Images: []string{"a.png", "b.png"}}.PrimaryImage())
}

func TestLinesTotalAndCount(t *testing.T) {
	lines := []CartLine{
		{ID: "1", Price: decimal.RequireFromString("10.50"), Quantity: 2},
		{ID: "2", Price: decimal.RequireFromString("0.99"), Quantity: 3},
	}
	assert.True(t, decimal.RequireFromString("23.97").Equal(LinesTotal(lines)))
	assert.Equal(t, 5, LinesCount(lines))
	assert.True(t, decimal.Zero.Equal(LinesTotal(nil)))
}

func TestProductPatch_Apply(t *testing.T) {
	orig := Product{ID: "p1", Name: "Lamp", Price: decimal.NewFromInt(30), Images: []string{"a.png"}, InStock: true}
	name := "Desk lamp"
	inStock := false

	got := ProductPatch{Name: &name, InStock: &inStock, Images: []string{"a.png", "b.png"}}.Apply(orig)

	assert.Equal(t, "Desk lamp", got.Name)
	assert.False(t, got.InStock)
	assert.Equal(t, []string{"a.png", "b.png"}, got.Images)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "Lamp", orig.Name, "original untouched")
	assert.Equal(t, []string{"a.png"}, orig.Images)
}
