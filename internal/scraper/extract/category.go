package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// CategoryPage is one parsed listing page: the category's own metadata,
// the product links found on this page, and the next-page signal.
type CategoryPage struct {
	Title       string
	ProductURLs []string
	NextPageURL string
}

// ParseCategory extracts a category listing page. NextPageURL is empty on
// the last page; the worker caps pagination regardless.
func ParseCategory(html string) (*CategoryPage, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse category DOM: %w", err)
	}

	page := &CategoryPage{}

	for _, selector := range []string{"h1", ".category-title", ".page-title", "title"} {
		if title := cleanText(doc.Find(selector).First().Text()); title != "" {
			page.Title = title
			break
		}
	}

	seen := map[string]bool{}
	productSelectors := []string{
		".product-card a", ".product-item a", ".product a",
		"[data-product-id] a", ".products li a", "a.product-link",
	}
	for _, selector := range productSelectors {
		doc.Find(selector).Each(func(_ int, link *goquery.Selection) {
			href := firstAttr(link, "href")
			if href == "" || href == "#" || seen[href] {
				return
			}
			seen[href] = true
			page.ProductURLs = append(page.ProductURLs, href)
		})
		if len(page.ProductURLs) > 0 {
			break
		}
	}

	nextSelectors := []string{
		"a[rel=next]", ".pagination .next a", "a.next-page", ".pagination a.next",
	}
	for _, selector := range nextSelectors {
		if href := firstAttr(doc.Find(selector).First(), "href"); href != "" && href != "#" {
			page.NextPageURL = href
			break
		}
	}

	return page, nil
}
