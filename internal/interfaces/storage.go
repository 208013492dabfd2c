// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"

	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// NavigationStorage persists navigation tree nodes.
type NavigationStorage interface {
	// Upsert inserts or updates a node by source_url and returns the stored row.
	Upsert(ctx context.Context, node *models.NavigationNode) (*models.NavigationNode, error)

	GetByID(ctx context.Context, id string) (*models.NavigationNode, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*models.NavigationNode, error)

	// List returns all nodes; the handler layer assembles the tree.
	List(ctx context.Context) ([]*models.NavigationNode, error)
}

// CategoryStorage persists categories with their materialized product counts.
type CategoryStorage interface {
	Upsert(ctx context.Context, category *models.Category) (*models.Category, error)

	GetByID(ctx context.Context, id string) (*models.Category, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*models.Category, error)

	// List returns a page of categories, optionally scoped to a navigation node.
	List(ctx context.Context, query models.CategoryQuery) ([]*models.Category, int, error)
}

// ProductStorage persists products. Upserts maintain category product
// counts within the same transaction.
type ProductStorage interface {
	Upsert(ctx context.Context, product *models.Product) (*models.Product, error)

	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySourceURL(ctx context.Context, sourceURL string) (*models.Product, error)

	// List returns a page of products plus the total match count.
	List(ctx context.Context, query models.ProductQuery) ([]*models.Product, int, error)
}

// StorageManager bundles the per-entity storages over one connection pool.
type StorageManager interface {
	Navigation() NavigationStorage
	Categories() CategoryStorage
	Products() ProductStorage

	// Ping verifies database connectivity for health reporting.
	Ping(ctx context.Context) error
	Close() error
}
