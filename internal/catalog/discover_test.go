package catalog

import (
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	products := append(fixture(), item("f", "", "1", false, true, 0))

	assert.Equal(t, []string{"all", "bags", "hats", "shoes"}, Categories(products))
}

func TestCategories_Empty(t *testing.T) {
	assert.Equal(t, []string{domain.CategoryAll}, Categories(nil))
}

func TestSearch(t *testing.T) {
	products := fixture()
	products[3].Description = "A roomy leather TOTE"

	assert.Equal(t, []string{"d"}, ids(Search(products, "tote")))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(Search(products, "item")))
	assert.Empty(t, Search(products, "hats"))
}

func TestAdminSearch(t *testing.T) {
	assert.Equal(t, []string{"b", "e"}, ids(AdminSearch(fixture(), "HAT")))
	assert.Equal(t, []string{"c"}, ids(AdminSearch(fixture(), "item c")))
}

func TestFeatured(t *testing.T) {
	products := []domain.Product{
		item("1", "x", "1", true, true, 0),
		item("2", "x", "1", false, true, 0),
		item("3", "x", "1", true, true, 0),
		item("4", "x", "1", true, true, 0),
		item("5", "x", "1", true, true, 0),
		item("6", "x", "1", true, true, 0),
	}

	assert.Equal(t, []string{"1", "3", "4", "5"}, ids(Featured(products, 0)))
	assert.Equal(t, []string{"1", "3"}, ids(Featured(products, 2)))
}
