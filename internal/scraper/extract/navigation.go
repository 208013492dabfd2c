package extract

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// NavigationItem is one parsed navigation link. ParentURL is the URL of
// the enclosing menu item, empty for roots; the worker wires parent ids
// in a second pass after all nodes are upserted.
type NavigationItem struct {
	Title     string
	URL       string
	ParentURL string
	IsLeaf    bool
}

// ParseNavigation walks the site navigation menus and returns the link
// hierarchy in document order, parents before children.
func ParseNavigation(html string) ([]NavigationItem, error) {
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation DOM: %w", err)
	}

	var items []NavigationItem
	seen := map[string]bool{}

	doc.Find("nav ul, [role=navigation] ul, .navigation ul, .menu ul").Each(func(_ int, list *goquery.Selection) {
		// Only walk top-level lists; nested lists are reached recursively.
		if list.ParentsFiltered("ul").Length() > 0 {
			return
		}
		walkList(list, "", seen, &items)
	})

	// Flat fallback for markup without list nesting.
	if len(items) == 0 {
		doc.Find("nav a, [role=navigation] a").Each(func(_ int, link *goquery.Selection) {
			appendItem(link, "", seen, &items)
		})
	}

	return items, nil
}

// walkList recurses through nested menu lists, threading the parent URL.
func walkList(list *goquery.Selection, parentURL string, seen map[string]bool, items *[]NavigationItem) {
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		link := li.ChildrenFiltered("a").First()
		if link.Length() == 0 {
			link = li.Find("a").First()
		}

		itemURL := appendItem(link, parentURL, seen, items)

		nested := li.ChildrenFiltered("ul")
		if nested.Length() == 0 {
			nested = li.Find("ul").First()
		}
		if nested.Length() > 0 {
			next := itemURL
			if next == "" {
				next = parentURL
			}
			walkList(nested.First(), next, seen, items)
		} else if itemURL != "" && len(*items) > 0 {
			(*items)[len(*items)-1].IsLeaf = true
		}
	})
}

// appendItem records a link if it has both text and href. Returns the URL
// recorded, or "" when the link was skipped.
func appendItem(link *goquery.Selection, parentURL string, seen map[string]bool, items *[]NavigationItem) string {
	if link.Length() == 0 {
		return ""
	}
	title := cleanText(link.Text())
	href := firstAttr(link, "href")
	if title == "" || href == "" || href == "#" || seen[href] {
		return ""
	}
	seen[href] = true
	*items = append(*items, NavigationItem{
		Title:     title,
		URL:       href,
		ParentURL: parentURL,
	})
	return href
}
