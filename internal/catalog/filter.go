// Package catalog derives the visible product list from a fetched catalog.
// Every function here is pure: inputs are never mutated and nothing is
// fetched or stored.
package catalog

import (
	"net/url"
	"sort"
	"strconv"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type SortKey string

const (
	SortFeatured  SortKey = "featured"
	SortPriceLow  SortKey = "price-low"
	SortPriceHigh SortKey = "price-high"
	SortNewest    SortKey = "newest"
)

// ParseSort maps a query value to a sort key, defaulting to featured.
func ParseSort(s string) SortKey {
	switch k := SortKey(s); k {
	case SortPriceLow, SortPriceHigh, SortNewest:
		return k
	default:
		return SortFeatured
	}
}

// Criteria selects and orders products. A nil bound is open.
type Criteria struct {
	Category    string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	Sort        SortKey
}

// Apply filters products by category, inclusive price range and stock, then
// orders them by c.Sort. Ties keep their input order.
func Apply(products []domain.Product, c Criteria) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if c.Category != "" && c.Category != domain.CategoryAll && p.Category != c.Category {
			continue
		}
		if c.MinPrice != nil && p.Price.LessThan(*c.MinPrice) {
			continue
		}
		if c.MaxPrice != nil && p.Price.GreaterThan(*c.MaxPrice) {
			continue
		}
		if c.InStockOnly && !p.InStock {
			continue
		}
		out = append(out, p)
	}

	switch c.Sort {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	default:
		// stable partition: featured first
		sort.SliceStable(out, func(i, j int) bool { return out[i].Featured && !out[j].Featured })
	}
	return out
}

// ParseCriteria reads category, min, max, inStock and sort from
// query values. Unparseable prices are treated as open bounds.
func ParseCriteria(q url.Values) Criteria {
	c := Criteria{
		Category: q.Get("category"),
		Sort:     ParseSort(q.Get("sort")),
	}
	if c.Category == "" {
		c.Category = domain.CategoryAll
	}
	if d, err := decimal.NewFromString(q.Get("min")); err == nil {
		c.MinPrice = &d
	}
	if d, err := decimal.NewFromString(q.Get("max")); err == nil {
		c.MaxPrice = &d
	}
	if b, err := strconv.ParseBool(q.Get("inStock")); err == nil {
		c.InStockOnly = b
	}
	return c
}

// DefaultPriceRange is used when there are no products to derive one from.
var DefaultPriceRange = [2]decimal.Decimal{decimal.Zero, decimal.NewFromInt(1000)}

// PriceBounds returns [floor(min price), ceil(max price)] over products.
func PriceBounds(products []domain.Product) [2]decimal.Decimal {
	if len(products) == 0 {
		return DefaultPriceRange
	}
	lo, hi := products[0].Price, products[0].Price
	for _, p := range products[1:] {
		lo = decimal.Min(lo, p.Price)
		hi = decimal.Max(hi, p.Price)
	}
	return [2]decimal.Decimal{lo.Floor(), hi.Ceil()}
}
