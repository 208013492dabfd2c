package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProductDetail is a parsed product page before image processing and
// persistence.
type ProductDetail struct {
	Title     string
	SourceID  string
	Price     *float64
	Currency  string
	ImageURLs []string
	Summary   string
	Specs     map[string]interface{}
	Available bool
}

// ParseProduct extracts product fields from a rendered detail page.
func ParseProduct(html string) (*ProductDetail, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product DOM: %w", err)
	}

	detail := &ProductDetail{
		Specs:     map[string]interface{}{},
		Available: true,
	}

	for _, selector := range []string{"h1", ".product-title", ".product-name", "title"} {
		if title := cleanText(doc.Find(selector).First().Text()); title != "" {
			detail.Title = title
			break
		}
	}

	detail.SourceID = firstAttr(doc.Find("[data-product-id]").First(), "data-product-id")
	if detail.SourceID == "" {
		detail.SourceID = firstAttr(doc.Find("[data-sku]").First(), "data-sku")
	}

	for _, selector := range []string{".price", ".product-price", "[itemprop=price]", "[data-price]"} {
		sel := doc.Find(selector).First()
		text := firstAttr(sel, "content", "data-price")
		if text == "" {
			text = sel.Text()
		}
		if price, currency := ParsePrice(text); price != nil {
			detail.Price = price
			detail.Currency = currency
			break
		}
	}
	if detail.Currency == "" {
		if code := firstAttr(doc.Find("[itemprop=priceCurrency]").First(), "content"); code != "" {
			detail.Currency = code
		}
	}

	seen := map[string]bool{}
	imageSelectors := []string{
		".product-images img", ".product-gallery img", ".gallery img",
		"[itemprop=image]", ".product img", "img.product-image",
	}
	for _, selector := range imageSelectors {
		doc.Find(selector).Each(func(_ int, img *goquery.Selection) {
			src := firstAttr(img, "data-src", "data-original", "src", "content")
			if src == "" || seen[src] || strings.HasPrefix(src, "data:") {
				return
			}
			seen[src] = true
			detail.ImageURLs = append(detail.ImageURLs, src)
		})
		if len(detail.ImageURLs) > 0 {
			break
		}
	}

	for _, selector := range []string{".product-description", ".description", "[itemprop=description]", ".summary"} {
		if summary := cleanText(doc.Find(selector).First().Text()); summary != "" {
			detail.Summary = summary
			break
		}
	}

	// Spec tables: two-column rows and definition lists.
	doc.Find(".specs tr, .specifications tr, table.product-specs tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		name := cleanText(cells.Eq(0).Text())
		value := cleanText(cells.Eq(1).Text())
		if name != "" && value != "" {
			detail.Specs[name] = value
		}
	})
	doc.Find(".specs dl, .specifications dl").Each(func(_ int, dl *goquery.Selection) {
		terms := dl.Find("dt")
		values := dl.Find("dd")
		terms.Each(func(i int, term *goquery.Selection) {
			if i >= values.Length() {
				return
			}
			name := cleanText(term.Text())
			value := cleanText(values.Eq(i).Text())
			if name != "" && value != "" {
				detail.Specs[name] = value
			}
		})
	})

	// Availability: explicit markers win, otherwise out-of-stock text flips it.
	if avail := firstAttr(doc.Find("[itemprop=availability]").First(), "href", "content"); avail != "" {
		detail.Available = !strings.Contains(strings.ToLower(avail), "outofstock")
	} else {
		bodyText := strings.ToLower(doc.Find(".availability, .stock-status, .stock").First().Text())
		if strings.Contains(bodyText, "out of stock") || strings.Contains(bodyText, "unavailable") {
			detail.Available = false
		}
	}

	if detail.Title == "" {
		return nil, fmt.Errorf("product page has no recognizable title")
	}
	return detail, nil
}
