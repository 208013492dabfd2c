package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const categoryHTML = `
<html><body>
<h1>Laptops</h1>
<ul class="products">
  <li class="product-card"><a href="/product/100">ThinkBook 14</a></li>
  <li class="product-card"><a href="/product/101">AeroLight 13</a></li>
  <li class="product-card"><a href="/product/102">WorkStation Pro</a></li>
</ul>
<div class="pagination">
  <a rel="next" href="/category/laptops?page=2">Next</a>
</div>
</body></html>`

func TestParseCategory(t *testing.T) {
	page, err := ParseCategory(categoryHTML)
	require.NoError(t, err)

	assert.Equal(t, "Laptops", page.Title)
	assert.Equal(t, []string{"/product/100", "/product/101", "/product/102"}, page.ProductURLs)
	assert.Equal(t, "/category/laptops?page=2", page.NextPageURL)
}

func TestParseCategoryLastPage(t *testing.T) {
	html := `<h1>Laptops</h1>
		<div class="product-card"><a href="/product/100">One</a></div>`

	page, err := ParseCategory(html)
	require.NoError(t, err)
	assert.Len(t, page.ProductURLs, 1)
	assert.Empty(t, page.NextPageURL)
}

func TestParseCategoryDeduplicatesProducts(t *testing.T) {
	html := `<div class="product-card">
		<a href="/product/100">Image link</a>
		<a href="/product/100">Title link</a>
	</div>`

	page, err := ParseCategory(html)
	require.NoError(t, err)
	assert.Equal(t, []string{"/product/100"}, page.ProductURLs)
}

func TestParseCategoryEmptyListing(t *testing.T) {
	page, err := ParseCategory(`<h1>Empty</h1><p>No products found</p>`)
	require.NoError(t, err)
	assert.Equal(t, "Empty", page.Title)
	assert.Empty(t, page.ProductURLs)
	assert.Empty(t, page.NextPageURL)
}
