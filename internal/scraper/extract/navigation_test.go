package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const navigationHTML = `
<html><body>
<nav>
  <ul>
    <li><a href="/electronics">Electronics</a>
      <ul>
        <li><a href="/electronics/phones">Phones</a></li>
        <li><a href="/electronics/laptops">Laptops</a></li>
      </ul>
    </li>
    <li><a href="/home-garden">Home &amp; Garden</a></li>
  </ul>
</nav>
</body></html>`

func TestParseNavigation(t *testing.T) {
	items, err := ParseNavigation(navigationHTML)
	require.NoError(t, err)
	require.Len(t, items, 4)

	byURL := map[string]NavigationItem{}
	for _, item := range items {
		byURL[item.URL] = item
	}

	root := byURL["/electronics"]
	assert.Equal(t, "Electronics", root.Title)
	assert.Empty(t, root.ParentURL)

	phones := byURL["/electronics/phones"]
	assert.Equal(t, "Phones", phones.Title)
	assert.Equal(t, "/electronics", phones.ParentURL)
	assert.True(t, phones.IsLeaf)

	garden := byURL["/home-garden"]
	assert.Equal(t, "Home & Garden", garden.Title)
	assert.Empty(t, garden.ParentURL)
	assert.True(t, garden.IsLeaf)
}

func TestParseNavigationParentsBeforeChildren(t *testing.T) {
	items, err := ParseNavigation(navigationHTML)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, item := range items {
		if item.ParentURL != "" {
			assert.True(t, seen[item.ParentURL], "parent %s must precede %s", item.ParentURL, item.URL)
		}
		seen[item.URL] = true
	}
}

func TestParseNavigationSkipsDeadLinks(t *testing.T) {
	html := `<nav><ul>
		<li><a href="#">Menu</a></li>
		<li><a href="/valid">Valid</a></li>
		<li><a href="/valid">Duplicate</a></li>
		<li><a href=""></a></li>
	</ul></nav>`

	items, err := ParseNavigation(html)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/valid", items[0].URL)
}

func TestParseNavigationFlatFallback(t *testing.T) {
	html := `<nav><a href="/a">A</a><a href="/b">B</a></nav>`

	items, err := ParseNavigation(html)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
