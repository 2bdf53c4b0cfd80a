package catalog

import (
	"sort"
	"strings"

	"github.com/fjod/storefront/internal/domain"
)

// DefaultFeaturedLimit is how many featured products the home page shows.
const DefaultFeaturedLimit = 4

// Categories lists "all" followed by every distinct non-empty category
// present in products, alphabetically.
func Categories(products []domain.Product) []string {
	seen := make(map[string]struct{})
	var found []string
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		found = append(found, p.Category)
	}
	sort.Strings(found)
	return append([]string{domain.CategoryAll}, found...)
}

// Search keeps products whose name or description contains term, ignoring case.
func Search(products []domain.Product, term string) []domain.Product {
	return matching(products, term, func(p domain.Product) []string {
		return []string{p.Name, p.Description}
	})
}

// AdminSearch keeps products whose name or category contains term.
func AdminSearch(products []domain.Product, term string) []domain.Product {
	return matching(products, term, func(p domain.Product) []string {
		return []string{p.Name, p.Category}
	})
}

// Featured returns up to limit featured products in input order.
func Featured(products []domain.Product, limit int) []domain.Product {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	var out []domain.Product
	for _, p := range products {
		if len(out) == limit {
			break
		}
		if p.Featured {
			out = append(out, p)
		}
	}
	return out
}

func matching(products []domain.Product, term string, fields func(domain.Product) []string) []domain.Product {
	needle := strings.ToLower(term)
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		for _, f := range fields(p) {
			if strings.Contains(strings.ToLower(f), needle) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
