package models

import (
	"strings"
	"time"
)

// NavigationNode is one node of the site navigation tree. Nodes form an
// acyclic tree: ParentID reaches a root within the configured depth bound.
// Created and updated by scraper workers, never deleted by the core.
type NavigationNode struct {
	ID            string    `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	SourceURL     string    `db:"source_url" json:"source_url"`
	ParentID      *string   `db:"parent_id" json:"parent_id,omitempty"`
	LastScrapedAt time.Time `db:"last_scraped_at" json:"last_scraped_at"`

	// Children is populated only when the tree is assembled for the read
	// API; it is not a stored column.
	Children []*NavigationNode `db:"-" json:"children,omitempty"`
}

// Category is a product listing page. ProductCount is a materialized
// counter maintained by the repository on product insert/move/delete.
type Category struct {
	ID            string    `db:"id" json:"id"`
	NavigationID  *string   `db:"navigation_id" json:"navigation_id,omitempty"`
	Title         string    `db:"title" json:"title"`
	SourceURL     string    `db:"source_url" json:"source_url"`
	ProductCount  int       `db:"product_count" json:"product_count"`
	LastScrapedAt time.Time `db:"last_scraped_at" json:"last_scraped_at"`
}

// Product is a catalog item. Upsert conflict key is SourceURL.
type Product struct {
	ID            string     `db:"id" json:"id"`
	CategoryID    *string    `db:"category_id" json:"category_id,omitempty"`
	Title         string     `db:"title" json:"title"`
	SourceURL     string     `db:"source_url" json:"source_url"`
	SourceID      *string    `db:"source_id" json:"source_id,omitempty"`
	Price         *float64   `db:"price" json:"price,omitempty"`
	Currency      string     `db:"currency" json:"currency,omitempty"`
	ImageURLs     StringList `db:"image_urls" json:"image_urls"`
	Summary       *string    `db:"summary" json:"summary,omitempty"`
	Specs         JSONMap    `db:"specs" json:"specs"`
	Available     bool       `db:"available" json:"available"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastScrapedAt time.Time  `db:"last_scraped_at" json:"last_scraped_at"`
}

// ProductSort enumerates the supported product orderings. All orderings are
// stable: ties break on id.
type ProductSort string

const (
	SortTitleAsc      ProductSort = "title_asc"
	SortTitleDesc     ProductSort = "title_desc"
	SortPriceAsc      ProductSort = "price_asc"
	SortPriceDesc     ProductSort = "price_desc"
	SortCreatedAtDesc ProductSort = "created_at_desc"
)

// ParseProductSort validates a sort parameter, defaulting to created_at_desc.
func ParseProductSort(s string) (ProductSort, bool) {
	if s == "" {
		return SortCreatedAtDesc, true
	}
	switch ProductSort(s) {
	case SortTitleAsc, SortTitleDesc, SortPriceAsc, SortPriceDesc, SortCreatedAtDesc:
		return ProductSort(s), true
	}
	return "", false
}

// ProductQuery bounds a paginated product read.
type ProductQuery struct {
	CategoryID    *string
	Limit         int
	Offset        int
	Sort          ProductSort
	AvailableOnly bool
}

// CategoryQuery bounds a paginated category read.
type CategoryQuery struct {
	NavigationID *string
	Limit        int
	Offset       int
}

// Validate checks a navigation node before persistence.
func (n *NavigationNode) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return NewValidationError("title", "title must not be empty")
	}
	if err := validateSourceURL(n.SourceURL); err != nil {
		return err
	}
	return nil
}

// Validate checks a category before persistence.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return NewValidationError("title", "title must not be empty")
	}
	if err := validateSourceURL(c.SourceURL); err != nil {
		return err
	}
	if c.ProductCount < 0 {
		return NewValidationError("product_count", "product count must not be negative")
	}
	return nil
}

// Validate checks a product before persistence.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return NewValidationError("title", "title must not be empty")
	}
	if err := validateSourceURL(p.SourceURL); err != nil {
		return err
	}
	if p.Price != nil && *p.Price < 0 {
		return NewValidationError("price", "price must not be negative")
	}
	if p.Currency != "" && !isCurrencyCode(p.Currency) {
		return NewValidationError("currency", "currency must be a 3-letter ISO-4217 code")
	}
	return nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
